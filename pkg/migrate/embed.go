package migrate

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const (
	embeddedDir = "migrations"
	// DefaultDir is where new migrations are written, relative to the repo root.
	DefaultDir = "pkg/migrate/migrations"
)

func embeddedFS() fs.FS {
	return embeddedMigrations
}
