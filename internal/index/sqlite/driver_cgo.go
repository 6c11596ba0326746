// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

//go:build cgo_sqlite

package sqlite

// cgo build using the system C SQLite amalgamation bundled with
// go-sqlite3. FTS5 must be enabled explicitly:
//
//	CGO_ENABLED=1 go build -tags "cgo_sqlite sqlite_fts5" ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver registered by the import.
	DriverName = "sqlite3"

	// BuildMode describes the driver selected at build time.
	BuildMode = "cgo"
)
