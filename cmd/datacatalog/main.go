// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the datacatalog CLI: the operator
// surface over the descriptor ingestion and index pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/datacatalog/internal/logging"
	"github.com/pdiddy/datacatalog/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from the secrets directory at
// startup.
var loadedSecrets map[string]string

// logger is built from the log.* settings before any command runs.
var (
	logger  = zerolog.Nop()
	logFile *logging.Log
)

// errFailures marks a run that completed but skipped or failed records.
// The summary has already been printed; main only sets the exit code.
var errFailures = errors.New("run completed with failures")

var rootCmd = &cobra.Command{
	Use:   "datacatalog",
	Short: "Ingest catalog descriptors into a search index",
	Long: `datacatalog loads study, project and dataset descriptors from a directory
tree, normalizes them, and keeps a search index in sync: schema setup,
batched indexing with a commit per entity type, derived-field enrichment,
and sitemap generation.

Types are always imported in dependency order (studies, projects, datasets)
when "all" is given. Only one mutating command may run against an index at
a time.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log, err := logging.New().FromConfig(loadConfig().Log).Make()
		if err != nil {
			return err
		}
		logFile = log
		logger = log.Logger

		s, err := secrets.Load(viper.GetString("secrets_dir"), logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug().Strs("keys", keys).Msg("loaded secrets")
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logFile != nil {
			return logFile.Close()
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./datacatalog.yaml or ~/.config/datacatalog/datacatalog.yaml)")
	pf.String("descriptors-dir", "", "root of the descriptor tree (studies/, projects/, datasets/)")
	pf.String("backend", "", "index backend: sqlite or solr")
	pf.String("index-path", "", "directory of the local sqlite index and the run lock")
	pf.String("solr-url", "", "Solr base URL, such as http://localhost:8983/solr")
	pf.String("collection", "", "Solr collection name")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: console or json")
	pf.String("log-file", "", "append JSON logs to this file instead of stderr")
	pf.String("secrets-dir", "", "directory of credential files")

	for key, flag := range map[string]string{
		"descriptors_dir":  "descriptors-dir",
		"index.backend":    "backend",
		"index.path":       "index-path",
		"index.solr_url":   "solr-url",
		"index.collection": "collection",
		"log.level":        "log-level",
		"log.format":       "log-format",
		"log.file":         "log-file",
		"secrets_dir":      "secrets-dir",
	} {
		_ = viper.BindPFlag(key, pf.Lookup(flag))
	}
	setDefaults()
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("datacatalog")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "datacatalog"))
		}
	}

	viper.SetEnvPrefix("DATACATALOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
