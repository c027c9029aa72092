package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "claims-intake/internal/common/errors"
	"claims-intake/internal/common/logger"
	"claims-intake/internal/common/workflow"
	"claims-intake/internal/models"
)

type stubEvidence struct {
	inspectErr *commonerrors.StandardError
	storeErr   *commonerrors.StandardError
}

func (e *stubEvidence) Inspect(fileName, declaredType string, data []byte) (string, *commonerrors.StandardError) {
	if e.inspectErr != nil {
		return "", e.inspectErr
	}
	return "image/jpeg", nil
}

func (e *stubEvidence) Store(ctx context.Context, fileName, contentType string, data []byte) (*models.UploadMetadata, *commonerrors.StandardError) {
	if e.storeErr != nil {
		return nil, e.storeErr
	}
	return &models.UploadMetadata{
		ImageURL:    "https://cdn.example.com/evidence/" + fileName,
		StorageKey:  "1700000000000-" + fileName,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		UploadedAt:  time.Now().UTC(),
	}, nil
}

type stubDecider struct {
	status string
	err    error
	calls  int
}

func (d *stubDecider) Decide(ctx context.Context, info models.UserInfo, upload models.UploadMetadata) (*models.WorkflowDecision, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return &models.WorkflowDecision{Status: d.status}, nil
}

type recordingAudit struct {
	sessions []*models.IntakeSession
	err      error
}

func (a *recordingAudit) RecordSubmission(ctx context.Context, session *models.IntakeSession) error {
	a.sessions = append(a.sessions, session)
	return a.err
}

func newTestService(t *testing.T, decider Decider) (*Service, *SessionStore) {
	t.Helper()

	store, _ := newTestStore(t)
	svc := NewService(logger.NewNoOpLogger(), store, &stubEvidence{}, decider, nil, nil)
	return svc, store
}

func startSession(t *testing.T, svc *Service) *models.IntakeSession {
	t.Helper()

	session, err := svc.StartSession(context.Background(), models.UserInfo{Name: "Jane Doe", ClaimID: "CLM-1042"})
	require.NoError(t, err)
	return session
}

func TestSubmitEvidenceDecisionBranches(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		wantState string
	}{
		{name: "accepted", status: models.DecisionAccepts, wantState: models.SessionStateAccepted},
		{name: "evaluates", status: models.DecisionEvaluates, wantState: models.SessionStateEvaluates},
		{name: "declined moves to conversation", status: models.DecisionDeclines, wantState: models.SessionStateConversation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t, &stubDecider{status: tt.status})
			session := startSession(t, svc)

			result, stdErr := svc.SubmitEvidence(context.Background(), session.ID, "evidence.jpg", "image/jpeg", []byte("photo"))
			require.Nil(t, stdErr)

			assert.Equal(t, tt.status, result.Decision.Status)
			assert.Equal(t, tt.wantState, result.Session.State)
			require.NotNil(t, result.Session.Upload)
			assert.Equal(t, "1700000000000-evidence.jpg", result.Session.Upload.StorageKey)

			persisted, err := store.Get(context.Background(), session.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, persisted.State)
		})
	}
}

func TestSubmitEvidenceUnknownSession(t *testing.T) {
	svc, _ := newTestService(t, &stubDecider{status: models.DecisionAccepts})

	_, stdErr := svc.SubmitEvidence(context.Background(), "no-such-session", "evidence.jpg", "image/jpeg", []byte("photo"))

	require.NotNil(t, stdErr)
	assert.Equal(t, commonerrors.ErrCodeSessionNotFound, stdErr.Code)
}

func TestSubmitEvidenceSingleFlight(t *testing.T) {
	svc, store := newTestService(t, &stubDecider{status: models.DecisionAccepts})
	session := startSession(t, svc)

	acquired, err := store.AcquireSubmission(context.Background(), session.ID)
	require.NoError(t, err)
	require.True(t, acquired)

	_, stdErr := svc.SubmitEvidence(context.Background(), session.ID, "evidence.jpg", "image/jpeg", []byte("photo"))

	require.NotNil(t, stdErr)
	assert.Equal(t, commonerrors.ErrCodeSubmissionInFlight, stdErr.Code)
}

func TestSubmitEvidenceReleasesLockAfterFailure(t *testing.T) {
	decider := &stubDecider{err: errors.New("webhook unreachable")}
	svc, store := newTestService(t, decider)
	session := startSession(t, svc)

	_, stdErr := svc.SubmitEvidence(context.Background(), session.ID, "evidence.jpg", "image/jpeg", []byte("photo"))
	require.NotNil(t, stdErr)

	acquired, err := store.AcquireSubmission(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, acquired, "lock should be free after a failed submission")
}

func TestSubmitEvidenceDecisionErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode commonerrors.ErrorCode
	}{
		{
			name:     "deadline exceeded maps to timeout",
			err:      fmt.Errorf("decision request failed: %w", context.DeadlineExceeded),
			wantCode: commonerrors.ErrCodeDecisionTimeout,
		},
		{
			name:     "empty response maps to contract violation",
			err:      workflow.ErrEmptyResponse,
			wantCode: commonerrors.ErrCodeDecisionContractViolated,
		},
		{
			name:     "unknown status maps to contract violation",
			err:      fmt.Errorf("%w: %q", workflow.ErrInvalidStatus, "maybe"),
			wantCode: commonerrors.ErrCodeDecisionContractViolated,
		},
		{
			name:     "transport failure maps to request error",
			err:      errors.New("connection refused"),
			wantCode: commonerrors.ErrCodeDecisionRequestFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t, &stubDecider{err: tt.err})
			session := startSession(t, svc)

			_, stdErr := svc.SubmitEvidence(context.Background(), session.ID, "evidence.jpg", "image/jpeg", []byte("photo"))

			require.NotNil(t, stdErr)
			assert.Equal(t, tt.wantCode, stdErr.Code)

			// A failed decision returns the session to idle for a retry.
			persisted, err := store.Get(context.Background(), session.ID)
			require.NoError(t, err)
			assert.Equal(t, models.SessionStateIdle, persisted.State)
		})
	}
}

func TestSubmitEvidenceAuditRecorded(t *testing.T) {
	store, _ := newTestStore(t)
	audit := &recordingAudit{}
	svc := NewService(logger.NewNoOpLogger(), store, &stubEvidence{}, &stubDecider{status: models.DecisionDeclines}, audit, nil)
	session := startSession(t, svc)

	_, stdErr := svc.SubmitEvidence(context.Background(), session.ID, "evidence.jpg", "image/jpeg", []byte("photo"))
	require.Nil(t, stdErr)

	require.Len(t, audit.sessions, 1)
	assert.Equal(t, session.ID, audit.sessions[0].ID)
}

func TestSubmitEvidenceAuditFailureIsNonFatal(t *testing.T) {
	store, _ := newTestStore(t)
	audit := &recordingAudit{err: errors.New("postgres down")}
	svc := NewService(logger.NewNoOpLogger(), store, &stubEvidence{}, &stubDecider{status: models.DecisionAccepts}, audit, nil)
	session := startSession(t, svc)

	result, stdErr := svc.SubmitEvidence(context.Background(), session.ID, "evidence.jpg", "image/jpeg", []byte("photo"))

	require.Nil(t, stdErr)
	assert.Equal(t, models.SessionStateAccepted, result.Session.State)
}

func TestReset(t *testing.T) {
	svc, store := newTestService(t, &stubDecider{status: models.DecisionDeclines})
	session := startSession(t, svc)

	_, stdErr := svc.SubmitEvidence(context.Background(), session.ID, "evidence.jpg", "image/jpeg", []byte("photo"))
	require.Nil(t, stdErr)

	reset, stdErr := svc.Reset(context.Background(), session.ID)
	require.Nil(t, stdErr)

	assert.Equal(t, models.SessionStateIdle, reset.State)
	assert.Nil(t, reset.Upload)
	assert.Nil(t, reset.Decision)
	require.NotNil(t, reset.UserInfo)
	assert.Equal(t, "Jane Doe", reset.UserInfo.Name)

	persisted, err := store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateIdle, persisted.State)
	assert.Nil(t, persisted.Upload)
}

func TestDestroy(t *testing.T) {
	svc, store := newTestService(t, &stubDecider{status: models.DecisionAccepts})
	session := startSession(t, svc)

	stdErr := svc.Destroy(context.Background(), session.ID)
	require.Nil(t, stdErr)

	_, err := store.Get(context.Background(), session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	stdErr = svc.Destroy(context.Background(), session.ID)
	require.NotNil(t, stdErr)
	assert.Equal(t, commonerrors.ErrCodeSessionNotFound, stdErr.Code)
}
