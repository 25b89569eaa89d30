// Package apikey issues and checks developer keys for the playground API.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound hides whether a key exists at all from non-owners.
var ErrNotFound = errors.New("apikey: not found")

const rawKeyBytes = 32

type Key struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"-"`
	UUID      string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"key_id"`
	OwnerID   string     `gorm:"type:varchar(36);index;not null" json:"-"`
	Name      string     `gorm:"type:varchar(128);not null" json:"name"`
	Secret    string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"api_key"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

func (Key) TableName() string { return "api_keys" }

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Create issues a new key. The secret is only returned here; listing repeats
// it because the original product surfaced stored keys, but issuance is the
// authoritative moment.
func (s *Service) Create(ctx context.Context, ownerID, name string) (*Key, error) {
	secret, err := newSecret()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	k := &Key{
		UUID:    uuid.NewString(),
		OwnerID: ownerID,
		Name:    name,
		Secret:  secret,
	}
	if err := s.db.WithContext(ctx).Create(k).Error; err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return k, nil
}

// List returns the owner's keys, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Key, error) {
	var keys []Key
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// Revoke deletes a key by public id; absent and foreign keys are both
// ErrNotFound.
func (s *Service) Revoke(ctx context.Context, ownerID, keyID string) error {
	res := s.db.WithContext(ctx).
		Where("uuid = ? AND owner_id = ?", keyID, ownerID).
		Delete(&Key{})
	if res.Error != nil {
		return fmt.Errorf("delete api key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Authenticate resolves a bearer secret to its key and stamps last_used_at.
func (s *Service) Authenticate(ctx context.Context, secret string) (*Key, error) {
	if secret == "" {
		return nil, ErrNotFound
	}
	var k Key
	if err := s.db.WithContext(ctx).Where("secret = ?", secret).First(&k).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find api key: %w", err)
	}
	now := time.Now()
	_ = s.db.WithContext(ctx).Model(&Key{}).
		Where("id = ?", k.ID).
		Update("last_used_at", now).Error
	k.LastUsedAt = &now
	return &k, nil
}

func newSecret() (string, error) {
	b := make([]byte, rawKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "pk_" + base64.RawURLEncoding.EncodeToString(b), nil
}
