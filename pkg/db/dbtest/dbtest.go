// Package dbtest opens isolated in-memory sqlite databases carrying the
// settlement schema.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/angelmondragon/rosca-settlement/pkg/db"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// New returns a client over a fresh shared-cache memory database. The pool is
// pinned to one connection, so code inside WithTx must only use the tx handle.
func New(t testing.TB) *db.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                db.NowUTC,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	client := db.NewFromGorm(conn)
	if err := client.EnsureSQLiteSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return client
}
