package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pocketllm/pocketchat/internal/cache"
	"github.com/pocketllm/pocketchat/internal/common"
	"github.com/pocketllm/pocketchat/internal/llm"
	"github.com/pocketllm/pocketchat/internal/logger"
	"github.com/pocketllm/pocketchat/internal/session"
)

// ErrUnauthenticated is returned when the presented session id resolves to
// no user.
var ErrUnauthenticated = errors.New("chat: unauthenticated")

// CachedPrefix marks answers replayed from the cache, so callers can tell
// them apart from freshly generated ones.
const CachedPrefix = "[Cached] "

/// Service is the message pipeline: resolve session, authorize ownership,
// persist the user message, consult the cache, generate on a miss, persist
// the assistant message.
type Service struct {
	sessions session.Store
	repo     *Repo
	cache    *cache.Store
	gateway  *llm.Gateway
}

func NewService(sessions session.Store, repo *Repo, cacheStore *cache.Store, gateway *llm.Gateway) *Service {
	return &Service{
		sessions: sessions,
		repo:     repo,
		cache:    cacheStore,
		gateway:  gateway,
	}
}

// SendResult is the pipeline's terminal "done" state.
type SendResult struct {
	ChatID    string    `json:"chat_id"`
	UserText  string    `json:"user_text"`
	Answer    string    `json:"answer"`
	Cached    bool      `json:"cached"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleMessage runs the pipeline exactly once for one inbound message.
// Authentication and ownership failures come back as ErrUnauthenticated and
// ErrNotFound; gateway failures never surface as errors (the answer carries a
// diagnostic instead); store failures abort.
func (s *Service) HandleMessage(ctx context.Context, sessionID, chatID, text string) (*SendResult, error) {
	userID, err := s.sessions.Resolve(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	if err := s.repo.AssertOwnership(ctx, chatID, userID); err != nil {
		return nil, err
	}

	if _, err := s.repo.AppendMessage(ctx, chatID, text, true); err != nil {
		return nil, err
	}

	answer, cached, err := s.answerFor(ctx, text)
	if err != nil {
		return nil, err
	}

	assistantMsg, err := s.repo.AppendMessage(ctx, chatID, answer, false)
	if err != nil {
		return nil, err
	}

	return &SendResult{
		ChatID:    chatID,
		UserText:  text,
		Answer:    answer,
		Cached:    cached,
		Timestamp: assistantMsg.CreatedAt,
	}, nil
}

// answerFor consults the cache and falls back to the gateway. On a hit the
// cached response is surfaced with CachedPrefix; on a miss the raw generated
// text is cached and surfaced as-is. An insert race loser counts as a hit
// against the winner's row instead of erroring.
func (s *Service) answerFor(ctx context.Context, text string) (answer string, cached bool, err error) {
	key := cache.Normalize(text)

	entry, err := s.cache.Lookup(ctx, key)
	switch {
	case err == nil:
		if hitErr := s.cache.RecordHit(ctx, key); hitErr != nil && !errors.Is(hitErr, cache.ErrNotFound) {
			return "", false, hitErr
		}
		return CachedPrefix + entry.Response, true, nil

	case errors.Is(err, cache.ErrNotFound):
		res := s.gateway.Generate(ctx, []llm.Message{{Role: "user", Content: text}})
		if res.Degraded {
			logger.Warnw("degraded answer cached", "query", key)
		}
		created, insErr := s.cache.Insert(ctx, key, res.Text)
		if insErr != nil {
			return "", false, insErr
		}
		if !created {
			// a concurrent miss won the insert; this access is a hit on its row
			if hitErr := s.cache.RecordHit(ctx, key); hitErr != nil && !errors.Is(hitErr, cache.ErrNotFound) {
				return "", false, hitErr
			}
		}
		return res.Text, false, nil

	default:
		return "", false, err
	}
}

// Answer runs the cache-or-generate half of the pipeline with no session
// and no transcript. The developer playground uses it.
func (s *Service) Answer(ctx context.Context, text string) (answer string, cached bool, err error) {
	return s.answerFor(ctx, text)
}

// CreateChat makes a new chat for the session's user.
func (s *Service) CreateChat(ctx context.Context, sessionID, title string) (*Chat, error) {
	userID, err := s.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateChat(ctx, userID, title)
}

// ListChats returns the session user's chats, newest first.
func (s *Service) ListChats(ctx context.Context, sessionID string) ([]Chat, error) {
	userID, err := s.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListChats(ctx, userID)
}

// History returns a chat's transcript after an ownership check.
func (s *Service) History(ctx context.Context, sessionID, chatID string) ([]Message, error) {
	userID, err := s.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AssertOwnership(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, chatID)
}

// DeleteChat removes a chat and its transcript after an ownership check.
func (s *Service) DeleteChat(ctx context.Context, sessionID, chatID string) error {
	userID, err := s.resolve(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.repo.AssertOwnership(ctx, chatID, userID); err != nil {
		return err
	}
	return s.repo.DeleteChat(ctx, chatID)
}

func (s *Service) resolve(ctx context.Context, sessionID string) (string, error) {
	userID, err := s.sessions.Resolve(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return "", ErrUnauthenticated
		}
		return "", fmt.Errorf("resolve session: %w", err)
	}
	return userID, nil
}

// Async job path. SubmitAsync persists the user message up front and queues
// the generation half for the worker.

type JobSubmission struct {
	Job     *Job
	Created bool
}

func (s *Service) SubmitAsync(ctx context.Context, sessionID, chatID, text string, idempotencyKey *string) (*JobSubmission, error) {
	userID, err := s.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AssertOwnership(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if _, err := s.repo.AppendMessage(ctx, chatID, text, true); err != nil {
		return nil, err
	}

	jobID, err := common.NewULID()
	if err != nil {
		return nil, fmt.Errorf("new job id: %w", err)
	}
	j := &Job{
		ID:             jobID,
		OwnerID:        userID,
		ChatID:         chatID,
		Prompt:         text,
		IdempotencyKey: idempotencyKey,
		Status:         JobQueued,
	}
	job, created, err := s.repo.CreateJobOrGetExisting(ctx, j)
	if err != nil {
		return nil, err
	}
	return &JobSubmission{Job: job, Created: created}, nil
}

// GetJob returns a job, hiding other owners' jobs behind ErrNotFound.
func (s *Service) GetJob(ctx context.Context, sessionID, jobID string) (*Job, error) {
	userID, err := s.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.OwnerID != userID {
		return nil, ErrNotFound
	}
	return j, nil
}

// RunJob executes the generation half of the pipeline for a queued job: the
// user message is already in the transcript, so only cache-or-generate and
// the assistant append remain.
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	_ = s.repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	if err := s.repo.AssertOwnership(ctx, j.ChatID, j.OwnerID); err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	answer, _, err := s.answerFor(ctx, j.Prompt)
	if err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	assistantMsg, err := s.repo.AppendMessage(ctx, j.ChatID, answer, false)
	if err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	return s.repo.MarkJobSucceeded(ctx, jobID, assistantMsg.ID)
}
