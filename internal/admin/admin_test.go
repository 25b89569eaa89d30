package admin

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pocketllm/pocketchat/internal/cache"
	"github.com/pocketllm/pocketchat/internal/chat"
	"github.com/pocketllm/pocketchat/internal/models"
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
	if err := db.AutoMigrate(&models.User{}, &chat.Chat{}, &chat.Message{}, &cache.Entry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	cacheStore := cache.NewStore(db)
	svc := NewService(db, cacheStore)
	ctx := context.Background()

	db.Create(&models.User{UUID: "u1", Email: "a@example.com", PasswordHash: "x"})
	db.Create(&models.User{UUID: "u2", Email: "b@example.com", PasswordHash: "x"})

	db.Create(&chat.Chat{ChatID: "c1", OwnerID: "u1", Title: "first"})
	db.Create(&chat.Chat{ChatID: "c2", OwnerID: "u2", Title: "second"})

	// Two recent messages in one chat, one stale message in the other.
	db.Create(&chat.Message{ChatID: "c1", Content: "hi", FromUser: true})
	db.Create(&chat.Message{ChatID: "c1", Content: "hello", FromUser: false})
	stale := chat.Message{ChatID: "c2", Content: "old", FromUser: true}
	db.Create(&stale)
	db.Model(&chat.Message{}).Where("id = ?", stale.ID).
		Update("created_at", time.Now().Add(-48*time.Hour))

	if _, err := cacheStore.Insert(ctx, "q1", "a1"); err != nil {
		t.Fatalf("insert cache: %v", err)
	}
	if _, err := cacheStore.Insert(ctx, "q2", "a2"); err != nil {
		t.Fatalf("insert cache: %v", err)
	}
	if err := cacheStore.RecordHit(ctx, "q1"); err != nil {
		t.Fatalf("record hit: %v", err)
	}
	if err := cacheStore.RecordHit(ctx, "q1"); err != nil {
		t.Fatalf("record hit: %v", err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	if stats.TotalUsers != 2 || stats.TotalChats != 2 || stats.TotalMessages != 3 {
		t.Fatalf("totals = %d/%d/%d", stats.TotalUsers, stats.TotalChats, stats.TotalMessages)
	}
	if stats.CacheEntries != 2 || stats.CacheHits != 2 || stats.CacheMisses != 1 {
		t.Fatalf("cache counters = %d/%d/%d", stats.CacheEntries, stats.CacheHits, stats.CacheMisses)
	}
	if want := 0.5; stats.CacheHitRate != want {
		t.Fatalf("hit rate = %v, want %v", stats.CacheHitRate, want)
	}
	if stats.CacheSizeBytes != 4 {
		t.Fatalf("cache size = %d, want 4", stats.CacheSizeBytes)
	}
	if stats.MessagesToday != 2 {
		t.Fatalf("messages today = %d, want 2", stats.MessagesToday)
	}
	if stats.ActiveChatsHour != 1 {
		t.Fatalf("active chats = %d, want 1", stats.ActiveChatsHour)
	}
	if len(stats.TopQueries) != 2 || stats.TopQueries[0].Query != "q1" || stats.TopQueries[0].HitCount != 2 {
		t.Fatalf("top queries = %+v", stats.TopQueries)
	}
}

func TestStatsEmpty(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, cache.NewStore(db))

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.CacheHitRate != 0 {
		t.Fatalf("hit rate on empty cache = %v", stats.CacheHitRate)
	}
	if len(stats.TopQueries) != 0 {
		t.Fatalf("expected no top queries, got %+v", stats.TopQueries)
	}
}

func TestClearCache(t *testing.T) {
	db := openTestDB(t)
	cacheStore := cache.NewStore(db)
	svc := NewService(db, cacheStore)
	ctx := context.Background()

	if _, err := cacheStore.Insert(ctx, "q1", "a1"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	removed, err := svc.ClearCache(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	n, err := cacheStore.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("count after clear = %d", n)
	}
}

func TestDeleteChatAnyOwner(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, cache.NewStore(db))
	ctx := context.Background()

	db.Create(&chat.Chat{ChatID: "c1", OwnerID: "someone", Title: "doomed"})
	db.Create(&chat.Message{ChatID: "c1", Content: "hi", FromUser: true})

	if err := svc.DeleteChat(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var msgs int64
	db.Model(&chat.Message{}).Where("chat_id = ?", "c1").Count(&msgs)
	if msgs != 0 {
		t.Fatalf("transcript survived delete, %d messages", msgs)
	}

	if err := svc.DeleteChat(ctx, "c1"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}
