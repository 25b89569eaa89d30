// Package cache persists previously generated answers keyed by the
// normalized user query.
//
// Normalization folds case and trims whitespace, so queries that differ only
// in those collide on purpose: the cache trades precision for reuse, and a
// cached answer is shared across all users and chats.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by Lookup on a cache miss and by RecordHit when no
// entry exists for the key.
var ErrNotFound = errors.New("cache: entry not found")

type Entry struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	Query          string    `gorm:"type:varchar(768);uniqueIndex;not null" json:"query"`
	Response       string    `gorm:"type:text;not null" json:"response"`
	HitCount       int64     `gorm:"not null;default:0" json:"hit_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

func (Entry) TableName() string { return "query_cache" }

// Normalize canonicalizes user input into the cache key: trim surrounding
// whitespace, fold to lower case. Idempotent.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Lookup is a pure read; it does not touch hit bookkeeping.
func (s *Store) Lookup(ctx context.Context, query string) (*Entry, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("query = ?", query).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup cache entry: %w", err)
	}
	return &e, nil
}

// RecordHit bumps hit_count and refreshes last_accessed_at in a single
// UPDATE, so concurrent hits on the same key never lose an increment.
func (s *Store) RecordHit(ctx context.Context, query string) error {
	res := s.db.WithContext(ctx).Model(&Entry{}).
		Where("query = ?", query).
		Updates(map[string]any{
			"hit_count":        gorm.Expr("hit_count + 1"),
			"last_accessed_at": time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("record cache hit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Insert creates an entry with hit_count 0, or leaves an existing one
// untouched. The unique key is the serialization point for concurrent misses:
// the loser of an insert race gets created=false and must fall through to
// RecordHit against the winner's row.
func (s *Store) Insert(ctx context.Context, query, response string) (created bool, err error) {
	now := time.Now()
	e := Entry{
		Query:          query,
		Response:       response,
		HitCount:       0,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "query"}},
			DoNothing: true,
		}).
		Create(&e)
	if res.Error != nil {
		return false, fmt.Errorf("insert cache entry: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Clear drops every entry and reports how many were removed.
// Administrative use only.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("1 = 1").Delete(&Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear cache: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// TopByHits returns the n most replayed entries, most hits first.
func (s *Store) TopByHits(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 10
	}
	var entries []Entry
	if err := s.db.WithContext(ctx).
		Order("hit_count DESC").
		Limit(n).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("top cache entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of cache entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Entry{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

// AggregateHitCount sums hit_count over all entries.
func (s *Store) AggregateHitCount(ctx context.Context) (int64, error) {
	var sum int64
	if err := s.db.WithContext(ctx).Model(&Entry{}).
		Select("COALESCE(SUM(hit_count), 0)").
		Scan(&sum).Error; err != nil {
		return 0, fmt.Errorf("sum cache hits: %w", err)
	}
	return sum, nil
}

// AggregateMissCount counts entries that have never been replayed
// (hit_count = 0), i.e. one row per original miss that was cached.
func (s *Store) AggregateMissCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Entry{}).
		Where("hit_count = 0").
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count cache misses: %w", err)
	}
	return n, nil
}

// ResponseBytes sums the stored response sizes, for the admin stats view.
func (s *Store) ResponseBytes(ctx context.Context) (int64, error) {
	var sum int64
	if err := s.db.WithContext(ctx).Model(&Entry{}).
		Select("COALESCE(SUM(LENGTH(response)), 0)").
		Scan(&sum).Error; err != nil {
		return 0, fmt.Errorf("sum cache response bytes: %w", err)
	}
	return sum, nil
}
