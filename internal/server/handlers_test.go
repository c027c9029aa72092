package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claims-intake/internal/common/airtable"
	"claims-intake/internal/common/config"
	"claims-intake/internal/common/elevenlabs"
	commonerrors "claims-intake/internal/common/errors"
	"claims-intake/internal/common/logger"
	"claims-intake/internal/conversation/transcript"
	"claims-intake/internal/conversation/voice"
	"claims-intake/internal/intake/capture"
	"claims-intake/internal/intake/contact"
	"claims-intake/internal/intake/orchestrator"
	"claims-intake/internal/models"
)

type stubUploader struct{}

func (stubUploader) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	return "https://cdn.example.com/evidence/" + key, nil
}

type stubDecider struct {
	status string
	err    error
}

func (d *stubDecider) Decide(ctx context.Context, info models.UserInfo, upload models.UploadMetadata) (*models.WorkflowDecision, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &models.WorkflowDecision{Status: d.status}, nil
}

type stubSigner struct {
	raw []byte
	err error
}

func (s *stubSigner) GetSignedURL(ctx context.Context) (*elevenlabs.SignedURLResponse, []byte, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	var parsed elevenlabs.SignedURLResponse
	_ = json.Unmarshal(s.raw, &parsed)
	return &parsed, s.raw, nil
}

type stubFetcher struct {
	payload []byte
	err     error
}

func (f *stubFetcher) GetConversation(ctx context.Context, conversationID string) ([]byte, error) {
	return f.payload, f.err
}

type stubSheet struct {
	created []map[string]interface{}
	err     error
}

func (s *stubSheet) CreateRecord(ctx context.Context, fields map[string]interface{}) (*airtable.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, fields)
	return &airtable.Record{ID: "rec-1", Fields: fields}, nil
}

func (s *stubSheet) ListRecords(ctx context.Context, filterByFormula string) ([]airtable.Record, error) {
	return nil, nil
}

func (s *stubSheet) UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}) error {
	return nil
}

type harness struct {
	handler http.Handler
	sheet   *stubSheet
	decider *stubDecider
	signer  *stubSigner
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := logger.NewTestLogger(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := orchestrator.NewSessionStore(client, 30*time.Minute)

	decider := &stubDecider{status: models.DecisionAccepts}
	captureSvc := capture.NewService(log, stubUploader{}, 10<<20)
	intakeSvc := orchestrator.NewService(log, store, captureSvc, decider, nil, nil)
	contactSvc := contact.NewService(log, nil)

	signer := &stubSigner{raw: []byte(`{"signed_url":"wss://agent.example.com/session?token=abc"}`)}
	sheet := &stubSheet{}
	transcriptSvc := transcript.NewService(log, &stubFetcher{payload: []byte(`{"transcript":"agent: hello"}`)}, sheet, nil, nil, transcript.Options{})
	voiceMgr := voice.NewManager(log, time.Minute, nil)

	handlers := NewHandlers(log, contactSvc, intakeSvc, voiceMgr, signer, transcriptSvc, 10<<20)
	srv := New(config.ServerConfig{Address: ":0"}, log, handlers, nil)

	return &harness{
		handler: srv.Handler(),
		sheet:   sheet,
		decider: decider,
		signer:  signer,
	}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) createSession(t *testing.T) models.IntakeSession {
	t.Helper()

	rec := h.do(t, http.MethodPost, "/v1/intake/sessions", map[string]string{
		"name":    "Jane Doe",
		"claimId": "CLM-1042",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var session models.IntakeSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	return session
}

func (h *harness) uploadEvidence(t *testing.T, sessionID string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="evidence.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("photo bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/intake/sessions/"+sessionID+"/evidence", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateSession(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/intake/sessions", map[string]string{
		"name":    "  Jane Doe  ",
		"claimId": "CLM-1042",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var session models.IntakeSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, models.SessionStateIdle, session.State)
	assert.Equal(t, "Jane Doe", session.UserInfo.Name)
}

func TestCreateSessionValidationFailure(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/intake/sessions", map[string]string{"name": "J"})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body fieldErrorsBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, commonerrors.ErrCodeContactValidationFailed, body.Code)
	assert.Contains(t, body.Fields, "name")
	assert.Contains(t, body.Fields, "claimId")
}

func TestGetSessionNotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/v1/intake/sessions/unknown", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitEvidenceAccepted(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t)

	rec := h.uploadEvidence(t, session.ID)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp submissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.DecisionAccepts, resp.Decision.Status)
	assert.Equal(t, models.SessionStateAccepted, resp.Session.State)
	assert.Nil(t, resp.Conversation)
}

func TestSubmitEvidenceDeclinedIncludesHandoff(t *testing.T) {
	h := newHarness(t)
	h.decider.status = models.DecisionDeclines
	session := h.createSession(t)

	rec := h.uploadEvidence(t, session.ID)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp submissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.SessionStateConversation, resp.Session.State)
	require.NotNil(t, resp.Conversation)
	assert.Equal(t, "Jane Doe", resp.Conversation.UserName)
	assert.Equal(t, "CLM-1042", resp.Conversation.ClaimID)
	assert.NotEmpty(t, resp.Conversation.ImageURL)
}

func TestSubmitEvidenceDecisionTimeout(t *testing.T) {
	h := newHarness(t)
	h.decider.err = context.DeadlineExceeded
	session := h.createSession(t)

	rec := h.uploadEvidence(t, session.ID)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var body commonerrors.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, commonerrors.ErrCodeDecisionTimeout, body.Code)
	assert.Equal(t, "The verification is taking longer than expected", body.Error)
}

func TestResetSession(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t)
	h.uploadEvidence(t, session.ID)

	rec := h.do(t, http.MethodPost, "/v1/intake/sessions/"+session.ID+"/reset", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	var reset models.IntakeSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reset))
	assert.Equal(t, models.SessionStateIdle, reset.State)
	assert.Nil(t, reset.Upload)
	assert.Equal(t, "Jane Doe", reset.UserInfo.Name)
}

func TestDeleteSession(t *testing.T) {
	h := newHarness(t)
	session := h.createSession(t)

	rec := h.do(t, http.MethodDelete, "/v1/intake/sessions/"+session.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/intake/sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignedURLRelay(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/v1/voice/signed-url", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"signed_url":"wss://agent.example.com/session?token=abc"}`, rec.Body.String())
}

func TestSignedURLOpaqueFailure(t *testing.T) {
	h := newHarness(t)
	h.signer.err = errors.New("upstream 503")

	rec := h.do(t, http.MethodGet, "/v1/voice/signed-url", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "error")
	assert.NotContains(t, body, "code")
}

func TestDeliverTranscript(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/transcripts", map[string]string{
		"conversationId": "conv-77",
		"claimId":        "CLM-1042",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"transcript":"agent: hello"}`, rec.Body.String())
	require.Len(t, h.sheet.created, 1)
	assert.Equal(t, "conv-77", h.sheet.created[0]["Conversation ID"])
	assert.Equal(t, "agent: hello", h.sheet.created[0]["Transcript"])
}

func TestDeliverTranscriptMissingConversationID(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/transcripts", map[string]string{"claimId": "CLM-1042"})

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "error")
	assert.Empty(t, h.sheet.created)
}

func TestVoiceStreamUpgradesThroughMiddleware(t *testing.T) {
	h := newHarness(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := voice.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"conversation_initiation_metadata","conversation_initiation_metadata_event":{"conversation_id":"conv-99"}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer upstream.Close()

	h.signer.raw = []byte(`{"signed_url":"ws` + strings.TrimPrefix(upstream.URL, "http") + `"}`)

	front := httptest.NewServer(h.handler)
	defer front.Close()

	wsURL := "ws" + strings.TrimPrefix(front.URL, "http") + "/v1/voice/stream?claimId=CLM-1042"
	client, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "upgrade must survive the instrumentation middleware")
	defer client.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	_, payload, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(payload), "conv-99")
}

func TestPreflight(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodOptions, "/v1/voice/signed-url", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Empty(t, rec.Body.String())
}

func TestReverseGeocodeBadCoordinates(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/v1/intake/geocode?lat=abc&lon=1.0", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
