package apikey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&Key{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestCreateAndList(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()

	first, err := svc.Create(ctx, "owner-1", "ci")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(first.Secret, "pk_") {
		t.Fatalf("secret %q missing pk_ prefix", first.Secret)
	}
	if first.UUID == "" {
		t.Fatal("expected public key id")
	}

	time.Sleep(5 * time.Millisecond)
	second, err := svc.Create(ctx, "owner-1", "local")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.Secret == first.Secret {
		t.Fatal("secrets must be unique")
	}

	if _, err := svc.Create(ctx, "owner-2", "other"); err != nil {
		t.Fatalf("create foreign: %v", err)
	}

	keys, err := svc.List(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	if keys[0].UUID != second.UUID {
		t.Fatalf("expected newest first, got %q", keys[0].Name)
	}
}

func TestRevokeScopedToOwner(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()

	k, err := svc.Create(ctx, "owner-1", "ci")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Revoke(ctx, "owner-2", k.UUID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign revoke: expected ErrNotFound, got %v", err)
	}
	if err := svc.Revoke(ctx, "owner-1", "no-such-key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("absent revoke: expected ErrNotFound, got %v", err)
	}
	if err := svc.Revoke(ctx, "owner-1", k.UUID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := svc.Revoke(ctx, "owner-1", k.UUID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second revoke: expected ErrNotFound, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc := NewService(openTestDB(t))
	ctx := context.Background()

	k, err := svc.Create(ctx, "owner-1", "ci")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.Authenticate(ctx, k.Secret)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.OwnerID != "owner-1" {
		t.Fatalf("owner = %q", got.OwnerID)
	}
	if got.LastUsedAt == nil {
		t.Fatal("expected last_used_at stamp")
	}

	if _, err := svc.Authenticate(ctx, "pk_bogus"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bogus secret: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty secret: expected ErrNotFound, got %v", err)
	}
}
