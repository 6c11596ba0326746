// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging builds the zerolog logger shared by every command.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/datacatalog/pkg/types"
)

const permission = 0o664

// Formats accepted by Builder.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Builder assembles a logger from configuration.
type Builder struct {
	writer io.Writer
	cfg    types.LogConfig
}

// Log is a built logger and the file it writes to, if any.
type Log struct {
	Logger zerolog.Logger
	File   *os.File
}

// New returns a Builder writing console output to stderr at info level.
func New() *Builder {
	return &Builder{writer: os.Stderr, cfg: types.LogConfig{Level: "info", Format: FormatConsole}}
}

// FromConfig applies level, format and file settings. Empty fields keep
// their current values.
func (b *Builder) FromConfig(cfg types.LogConfig) *Builder {
	if cfg.Level != "" {
		b.cfg.Level = cfg.Level
	}
	if cfg.Format != "" {
		b.cfg.Format = cfg.Format
	}
	if cfg.File != "" {
		b.cfg.File = cfg.File
	}
	return b
}

// ToWriter sends output to w instead of stderr. A configured file takes
// precedence.
func (b *Builder) ToWriter(w io.Writer) *Builder {
	b.writer = w
	return b
}

// Make builds the logger. Log files are opened for append; the caller
// closes Log when done.
func (b *Builder) Make() (*Log, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(b.cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := &Log{}
	w := b.writer
	if b.cfg.File != "" {
		out.File, err = os.OpenFile(b.cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		w = zerolog.SyncWriter(out.File)
	}

	switch strings.ToLower(b.cfg.Format) {
	case FormatJSON:
	case FormatConsole, "":
		// Log files always get JSON.
		if out.File == nil {
			_, tty := w.(*os.File)
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: !tty}
		}
	default:
		out.Close()
		return nil, fmt.Errorf("unknown log format %q: use console or json", b.cfg.Format)
	}

	out.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return out, nil
}

// Close closes the log file, if one was opened.
func (l *Log) Close() error {
	if l.File == nil {
		return nil
	}
	return l.File.Close()
}
