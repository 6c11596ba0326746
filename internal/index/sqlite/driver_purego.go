// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

//go:build !cgo_sqlite

package sqlite

// Default build: pure Go SQLite, no C toolchain required. FTS5 and the JSON
// functions are compiled in.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver registered by the import.
	DriverName = "sqlite"

	// BuildMode describes the driver selected at build time.
	BuildMode = "purego"
)
