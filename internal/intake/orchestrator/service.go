package orchestrator

import (
	"context"
	"errors"
	"time"

	commonerrors "claims-intake/internal/common/errors"
	"claims-intake/internal/common/logger"
	"claims-intake/internal/common/metrics"
	"claims-intake/internal/common/workflow"
	"claims-intake/internal/models"
)

// EvidenceStore vets a photo and pushes it to object storage.
type EvidenceStore interface {
	Inspect(fileName, declaredType string, data []byte) (string, *commonerrors.StandardError)
	Store(ctx context.Context, fileName, contentType string, data []byte) (*models.UploadMetadata, *commonerrors.StandardError)
}

// Decider runs the workflow decision round trip.
type Decider interface {
	Decide(ctx context.Context, info models.UserInfo, upload models.UploadMetadata) (*models.WorkflowDecision, error)
}

// AuditRecorder persists a row per decided submission.
type AuditRecorder interface {
	RecordSubmission(ctx context.Context, session *models.IntakeSession) error
}

// Notifier tells the claimant about the decision outcome.
type Notifier interface {
	NotifyDecision(ctx context.Context, session *models.IntakeSession) error
}

// SubmissionResult is what a finished evidence submission hands back to the
// transport layer.
type SubmissionResult struct {
	Session  *models.IntakeSession
	Decision *models.WorkflowDecision
}

// Service drives an intake session through upload, verification and the
// decision branches.
type Service struct {
	logger   logger.Logger
	store    *SessionStore
	evidence EvidenceStore
	decider  Decider
	audit    AuditRecorder
	notifier Notifier
}

// NewService wires the orchestrator. audit and notifier may be nil; both are
// best-effort side effects of a decided submission.
func NewService(log logger.Logger, store *SessionStore, evidence EvidenceStore, decider Decider, audit AuditRecorder, notifier Notifier) *Service {
	return &Service{
		logger:   log,
		store:    store,
		evidence: evidence,
		decider:  decider,
		audit:    audit,
		notifier: notifier,
	}
}

// StartSession creates a fresh idle session for validated contact details.
func (s *Service) StartSession(ctx context.Context, info models.UserInfo) (*models.IntakeSession, error) {
	session, err := s.store.Create(ctx, info)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"session_id": session.ID,
		"claim_id":   info.ClaimID,
	}).Info("Intake session started", nil)

	return session, nil
}

// GetSession loads a session for the transport layer.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.IntakeSession, *commonerrors.StandardError) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, commonerrors.NewSessionNotFoundError(sessionID)
		}
		return nil, commonerrors.NewExternalServiceError("redis", err)
	}
	return session, nil
}

// SubmitEvidence runs one photo through the whole pipeline: store it, ask
// the workflow for a verdict, and move the session into the matching state.
// Only one submission may be in flight per session.
func (s *Service) SubmitEvidence(ctx context.Context, sessionID, fileName, declaredType string, data []byte) (*SubmissionResult, *commonerrors.StandardError) {
	session, stdErr := s.GetSession(ctx, sessionID)
	if stdErr != nil {
		return nil, stdErr
	}

	acquired, err := s.store.AcquireSubmission(ctx, sessionID)
	if err != nil {
		return nil, commonerrors.NewExternalServiceError("redis", err)
	}
	if !acquired {
		metrics.IntakeSubmissions.WithLabelValues("rejected_in_flight").Inc()
		return nil, commonerrors.NewSubmissionInFlightError(sessionID)
	}
	defer func() {
		if err := s.store.ReleaseSubmission(ctx, sessionID); err != nil {
			s.logger.WithError(err).Warn("Failed to release submission lock", nil)
		}
	}()

	contentType, stdErr := s.evidence.Inspect(fileName, declaredType, data)
	if stdErr != nil {
		metrics.IntakeSubmissions.WithLabelValues("rejected_media").Inc()
		return nil, stdErr
	}

	s.transition(ctx, session, models.SessionStateUploading)

	upload, stdErr := s.evidence.Store(ctx, fileName, contentType, data)
	if stdErr != nil {
		metrics.IntakeSubmissions.WithLabelValues("upload_failed").Inc()
		s.transition(ctx, session, models.SessionStateIdle)
		return nil, stdErr
	}
	session.Upload = upload

	s.transition(ctx, session, models.SessionStateVerifying)

	started := time.Now()
	decision, err := s.decider.Decide(ctx, *session.UserInfo, *upload)
	metrics.DecisionRoundTripDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.IntakeSubmissions.WithLabelValues("decision_failed").Inc()
		s.transition(ctx, session, models.SessionStateIdle)
		return nil, decisionError(err)
	}

	session.Decision = decision
	metrics.IntakeSubmissions.WithLabelValues("decided").Inc()
	metrics.IntakeDecisions.WithLabelValues(decision.Status).Inc()

	switch decision.Status {
	case models.DecisionAccepts:
		s.transition(ctx, session, models.SessionStateAccepted)
	case models.DecisionEvaluates:
		s.transition(ctx, session, models.SessionStateEvaluates)
	case models.DecisionDeclines:
		s.transition(ctx, session, models.SessionStateConversation)
	}

	s.recordSideEffects(ctx, session)

	s.logger.WithFields(map[string]interface{}{
		"session_id": session.ID,
		"status":     decision.Status,
		"state":      session.State,
	}).Info("Evidence submission decided", nil)

	return &SubmissionResult{Session: session, Decision: decision}, nil
}

// Reset puts a session back to idle for another attempt. Contact details
// survive; upload and decision do not.
func (s *Service) Reset(ctx context.Context, sessionID string) (*models.IntakeSession, *commonerrors.StandardError) {
	session, stdErr := s.GetSession(ctx, sessionID)
	if stdErr != nil {
		return nil, stdErr
	}

	session.Upload = nil
	session.Decision = nil
	session.State = models.SessionStateIdle
	if err := s.store.Save(ctx, session); err != nil {
		return nil, commonerrors.NewExternalServiceError("redis", err)
	}

	s.logger.WithFields(map[string]interface{}{"session_id": sessionID}).Info("Intake session reset", nil)
	return session, nil
}

// Destroy removes a session entirely. A full restart begins with a fresh
// contact form, unlike Reset which keeps the claimant details.
func (s *Service) Destroy(ctx context.Context, sessionID string) *commonerrors.StandardError {
	if _, stdErr := s.GetSession(ctx, sessionID); stdErr != nil {
		return stdErr
	}

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return commonerrors.NewExternalServiceError("redis", err)
	}

	s.logger.WithFields(map[string]interface{}{"session_id": sessionID}).Info("Intake session destroyed", nil)
	return nil
}

func (s *Service) transition(ctx context.Context, session *models.IntakeSession, state string) {
	session.State = state
	if err := s.store.Save(ctx, session); err != nil {
		// The in-memory session stays authoritative for this request;
		// the next save retries the write.
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"session_id": session.ID,
			"state":      state,
		}).Warn("Failed to persist session transition", nil)
	}
}

func (s *Service) recordSideEffects(ctx context.Context, session *models.IntakeSession) {
	if s.audit != nil {
		if err := s.audit.RecordSubmission(ctx, session); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"session_id": session.ID,
			}).Error("Failed to record submission audit row", nil)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyDecision(ctx, session); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"session_id": session.ID,
			}).Warn("Failed to send decision notification", nil)
		}
	}
}

func decisionError(err error) *commonerrors.StandardError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return commonerrors.NewDecisionTimeoutError()
	case errors.Is(err, workflow.ErrEmptyResponse), errors.Is(err, workflow.ErrInvalidStatus):
		return commonerrors.NewDecisionContractError(err.Error())
	default:
		return commonerrors.NewDecisionRequestError(err)
	}
}
