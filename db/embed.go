// Package db embeds the database schema applied on startup.
package db

import _ "embed"

// Schema holds the DDL for every commerce table. The script is idempotent
// and is executed as a whole by postgres.RunMigrations.
//
//go:embed migrations/001_schema.sql
var Schema string
