// Package admin exposes the operator surface: usage statistics, cache
// maintenance, and moderation-style chat removal.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pocketllm/pocketchat/internal/cache"
	"github.com/pocketllm/pocketchat/internal/chat"
	"github.com/pocketllm/pocketchat/internal/models"
)

type TopQuery struct {
	Query    string `json:"query"`
	HitCount int64  `json:"hit_count"`
}

type Stats struct {
	TotalUsers       int64      `json:"total_users"`
	TotalChats       int64      `json:"total_chats"`
	TotalMessages    int64      `json:"total_messages"`
	CacheEntries     int64      `json:"cache_entries"`
	CacheHits        int64      `json:"cache_hits"`
	CacheMisses      int64      `json:"cache_misses"`
	CacheHitRate     float64    `json:"cache_hit_rate"`
	CacheSizeBytes   int64      `json:"cache_size_bytes"`
	MessagesToday    int64      `json:"messages_today"`
	ActiveChatsHour  int64      `json:"active_chats_last_hour"`
	TopQueries       []TopQuery `json:"top_queries"`
}

type Service struct {
	db    *gorm.DB
	cache *cache.Store
}

func NewService(db *gorm.DB, cacheStore *cache.Store) *Service {
	return &Service{db: db, cache: cacheStore}
}

// Stats assembles the dashboard snapshot. Counters are read in separate
// queries, so the snapshot is not transactional; close enough for a
// dashboard.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	out := &Stats{}

	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&out.TotalUsers).Error; err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&chat.Chat{}).Count(&out.TotalChats).Error; err != nil {
		return nil, fmt.Errorf("count chats: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&chat.Message{}).Count(&out.TotalMessages).Error; err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	var err error
	if out.CacheEntries, err = s.cache.Count(ctx); err != nil {
		return nil, err
	}
	if out.CacheHits, err = s.cache.AggregateHitCount(ctx); err != nil {
		return nil, err
	}
	if out.CacheMisses, err = s.cache.AggregateMissCount(ctx); err != nil {
		return nil, err
	}
	if out.CacheSizeBytes, err = s.cache.ResponseBytes(ctx); err != nil {
		return nil, err
	}
	// Every entry was written on a miss, so misses = entries and the rate
	// is hits over hits plus entries.
	if total := out.CacheHits + out.CacheEntries; total > 0 {
		out.CacheHitRate = float64(out.CacheHits) / float64(total)
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&chat.Message{}).
		Where("created_at >= ?", now.Add(-24*time.Hour)).
		Count(&out.MessagesToday).Error; err != nil {
		return nil, fmt.Errorf("count recent messages: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&chat.Message{}).
		Where("created_at >= ?", now.Add(-time.Hour)).
		Distinct("chat_id").
		Count(&out.ActiveChatsHour).Error; err != nil {
		return nil, fmt.Errorf("count active chats: %w", err)
	}

	top, err := s.cache.TopByHits(ctx, 10)
	if err != nil {
		return nil, err
	}
	out.TopQueries = make([]TopQuery, 0, len(top))
	for _, e := range top {
		out.TopQueries = append(out.TopQueries, TopQuery{Query: e.Query, HitCount: e.HitCount})
	}
	return out, nil
}

// ClearCache drops every cached answer and returns how many were removed.
func (s *Service) ClearCache(ctx context.Context) (int64, error) {
	return s.cache.Clear(ctx)
}

// DeleteChat removes any user's chat and its transcript. Unlike the
// user-facing delete there is no ownership filter.
func (s *Service) DeleteChat(ctx context.Context, chatID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&chat.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("chat_id = ?", chatID).Delete(&chat.Chat{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return chat.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return chat.ErrNotFound
		}
		return fmt.Errorf("admin delete chat: %w", err)
	}
	return nil
}
