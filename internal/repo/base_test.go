package repo

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type ctxKey struct{}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return conn
}

func TestBaseDB_BindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)
	if withCtx.Statement == nil || withCtx.Statement.Context != ctx {
		t.Fatalf("expected context to flow through")
	}

	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw connection")
	}
}

func TestBaseBindSwapsHandle(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	if base.Bind(nil).db != db {
		t.Fatalf("binding nil should keep the original handle")
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		bound := base.Bind(tx)
		if bound.db != tx {
			t.Fatalf("expected bound base to use the transaction")
		}
		if base.db != db {
			t.Fatalf("binding must not modify the receiver")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestLockForUpdateSkipsLockingOnSqlite(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	locked := base.LockForUpdate(context.Background())
	if _, ok := locked.Statement.Clauses["FOR"]; ok {
		t.Fatalf("sqlite connection should not carry a FOR UPDATE clause")
	}
}
