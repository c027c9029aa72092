package audit

import (
	"context"
	"database/sql"
	"fmt"

	"claims-intake/internal/common/logger"
	"claims-intake/internal/models"
)

const insertSubmissionQuery = `
	INSERT INTO intake_submissions (
		session_id, claim_id, user_name, phone, location,
		image_url, storage_key, decision_status, decided_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Store writes one audit row per decided evidence submission.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// NewStore creates an audit store over the given database handle.
func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log,
	}
}

// RecordSubmission inserts the audit row for a decided session. Sessions
// without a decision are a programming error and are rejected.
func (s *Store) RecordSubmission(ctx context.Context, session *models.IntakeSession) error {
	if session.Decision == nil || session.Upload == nil || session.UserInfo == nil {
		return fmt.Errorf("session %s is not decided, refusing to audit", session.ID)
	}

	_, err := s.db.ExecContext(ctx, insertSubmissionQuery,
		session.ID,
		session.UserInfo.ClaimID,
		session.UserInfo.Name,
		session.UserInfo.Phone,
		session.UserInfo.Location,
		session.Upload.ImageURL,
		session.Upload.StorageKey,
		session.Decision.Status,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit row for session %s: %w", session.ID, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"session_id": session.ID,
		"status":     session.Decision.Status,
	}).Debug("Audit row recorded", nil)

	return nil
}
