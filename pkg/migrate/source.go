package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"
)

// goose keeps its dialect and base filesystem in package globals.
var gooseMu sync.Mutex

// Source is a set of goose SQL migrations, either a directory on disk or the
// copy compiled into the binary.
type Source struct {
	fsys fs.FS
	dir  string
}

func DirSource(dir string) Source {
	return Source{dir: dir}
}

func EmbeddedSource() Source {
	return Source{fsys: embeddedFS(), dir: embeddedDir}
}

func (s Source) String() string {
	if s.fsys != nil {
		return "embedded:" + s.dir
	}
	return s.dir
}

// Run executes a goose command (up, down, status, ...) against db.
func (s Source) Run(ctx context.Context, db *sql.DB, command string, args ...string) error {
	return s.with(db, func() error {
		if err := goose.RunContext(ctx, command, db, s.dir, args...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	})
}

// MigrateTo moves the schema up or down until it sits at version.
func (s Source) MigrateTo(ctx context.Context, db *sql.DB, version string) error {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", version, err)
	}
	return s.with(db, func() error {
		current, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		switch {
		case current < target:
			err = goose.UpToContext(ctx, db, s.dir, target)
		case current > target:
			err = goose.DownToContext(ctx, db, s.dir, target)
		}
		if err != nil {
			return fmt.Errorf("migrate %d -> %d: %w", current, target, err)
		}
		return nil
	})
}

func (s Source) with(db *sql.DB, fn func() error) error {
	if db == nil {
		return errors.New("migrate: db is required")
	}
	if s.dir == "" {
		return errors.New("migrate: migrations dir is required")
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(s.fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return fn()
}

// RunEmbedded runs command against the migrations compiled into the binary.
func RunEmbedded(ctx context.Context, db *sql.DB, command string, args ...string) error {
	return EmbeddedSource().Run(ctx, db, command, args...)
}
