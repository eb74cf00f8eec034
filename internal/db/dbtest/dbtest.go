// Package dbtest opens throwaway databases for tests. It lives outside
// package db so the sqlite driver and the testing framework are only linked
// into test binaries.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/marker-labs/marker-back/internal/db"
)

var seq uint64

// New opens an in-memory sqlite database with the full schema migrated. The
// DSN names each database uniquely and shares the cache so every pooled
// connection sees the same tables.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", atomic.AddUint64(&seq, 1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return conn
}
