package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pocketllm/pocketchat/internal/models"
	"github.com/pocketllm/pocketchat/internal/session"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken is returned by SignUp when the email is already registered.
	ErrEmailTaken = errors.New("auth: email already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
)

type Service struct {
	db       *gorm.DB
	sessions session.Store
}

func NewService(db *gorm.DB, sessions session.Store) *Service {
	return &Service{db: db, sessions: sessions}
}

// SignUp registers a user and opens a session for them.
func (s *Service) SignUp(ctx context.Context, email, password string) (sessionID string, err error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).Count(&n).Error; err != nil {
		return "", fmt.Errorf("check email: %w", err)
	}
	if n > 0 {
		return "", ErrEmailTaken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		UUID:         uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	return s.sessions.Create(ctx, user.UUID)
}

// Login verifies credentials and opens a session. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (sessionID string, err error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("find user: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		return "", ErrInvalidCredentials
	}
	return s.sessions.Create(ctx, user.UUID)
}

// Logout destroys the session; an already-absent session is fine.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Destroy(ctx, sessionID)
}

// UserBySession resolves a session id to its user.
func (s *Service) UserBySession(ctx context.Context, sessionID string) (*models.User, error) {
	id, err := s.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.UserByUUID(ctx, id)
}

// UserByUUID loads a user by public id.
func (s *Service) UserByUUID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("uuid = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}
