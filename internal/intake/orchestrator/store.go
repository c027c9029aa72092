package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"claims-intake/internal/models"
)

const (
	sessionKeyPrefix = "intake:session:"
	lockKeyPrefix    = "intake:lock:"

	// lockTTL outlives the longest possible decision round trip so a
	// crashed submission cannot wedge a session forever.
	lockTTL = 3 * time.Minute
)

// ErrSessionNotFound is returned when a session id is unknown or expired.
var ErrSessionNotFound = errors.New("intake session not found")

// SessionStore persists intake sessions in Redis with a sliding TTL.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore creates a session store with the given session TTL.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
	}
}

// Create allocates a new idle session for the given contact details.
func (s *SessionStore) Create(ctx context.Context, info models.UserInfo) (*models.IntakeSession, error) {
	now := time.Now().UTC()
	session := &models.IntakeSession{
		ID:        uuid.NewString(),
		State:     models.SessionStateIdle,
		UserInfo:  &info,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Save(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// Get loads a session by id.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.IntakeSession, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var session models.IntakeSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}

	return &session, nil
}

// Save writes the session back and refreshes its TTL.
func (s *SessionStore) Save(ctx context.Context, session *models.IntakeSession) error {
	session.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", session.ID, err)
	}

	if err := s.client.Set(ctx, sessionKeyPrefix+session.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session %s: %w", session.ID, err)
	}

	return nil
}

// AcquireSubmission takes the single-flight lock for a session. It returns
// false when another submission already holds it.
func (s *SessionStore) AcquireSubmission(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, lockKeyPrefix+sessionID, "1", lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire submission lock for %s: %w", sessionID, err)
	}
	return ok, nil
}

// Delete removes a session and its lock. Used by the full-restart path.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+sessionID, lockKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

// ReleaseSubmission drops the single-flight lock.
func (s *SessionStore) ReleaseSubmission(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, lockKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to release submission lock for %s: %w", sessionID, err)
	}
	return nil
}
