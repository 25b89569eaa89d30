package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/pocketllm/pocketchat/internal/common"
	"gorm.io/gorm"
)

// ErrNotFound covers both "chat does not exist" and "chat is not yours".
// The two are deliberately indistinguishable so that probing for other
// users' chat ids reveals nothing.
var ErrNotFound = errors.New("chat: not found")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateChat(ctx context.Context, ownerID, title string) (*Chat, error) {
	chatID, err := common.NewULID()
	if err != nil {
		return nil, fmt.Errorf("new chat id: %w", err)
	}
	c := &Chat{
		ChatID:  chatID,
		OwnerID: ownerID,
		Title:   title,
	}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return c, nil
}

// ListChats returns the owner's chats, newest first.
func (r *Repo) ListChats(ctx context.Context, ownerID string) ([]Chat, error) {
	var chats []Chat
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// AssertOwnership fails with ErrNotFound unless callerID owns chatID.
func (r *Repo) AssertOwnership(ctx context.Context, chatID, callerID string) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Chat{}).
		Where("chat_id = ? AND owner_id = ?", chatID, callerID).
		Count(&n).Error; err != nil {
		return fmt.Errorf("check chat ownership: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage persists one transcript entry. Callers must have passed
// AssertOwnership in the same logical operation.
func (r *Repo) AppendMessage(ctx context.Context, chatID, content string, fromUser bool) (*Message, error) {
	m := &Message{
		ChatID:   chatID,
		Content:  content,
		FromUser: fromUser,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

// ListMessages returns the transcript in chronological order, insertion
// order breaking timestamp ties.
func (r *Repo) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// DeleteChat removes the chat and its transcript as one transaction; a
// failure mid-way leaves both intact.
func (r *Repo) DeleteChat(ctx context.Context, chatID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("chat_id = ?", chatID).Delete(&Chat{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

// Job persistence, used by the async path.

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, assistantMsgID uint64) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": assistantMsgID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
}

func (r *Repo) getJobByOwnerAndKey(ctx context.Context, ownerID, key string) (*Job, error) {
	var j Job
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND idempotency_key = ?", ownerID, key).
		First(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateJobOrGetExisting creates a job, or returns the existing one when the
// (owner, idempotency key) pair was already used.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.CreateJob(ctx, job); err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.getJobByOwnerAndKey(ctx, job.OwnerID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	return nil, false, fmt.Errorf("get existing job: %w", getErr)
}
