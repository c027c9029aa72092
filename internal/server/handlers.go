package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"claims-intake/internal/common/elevenlabs"
	commonerrors "claims-intake/internal/common/errors"
	commonhttp "claims-intake/internal/common/http"
	"claims-intake/internal/common/logger"
	"claims-intake/internal/conversation/transcript"
	"claims-intake/internal/conversation/voice"
	"claims-intake/internal/intake/contact"
	"claims-intake/internal/intake/orchestrator"
	"claims-intake/internal/models"
)

// SignedURLProvider mints upstream WebSocket URLs. Satisfied by the
// elevenlabs client.
type SignedURLProvider interface {
	GetSignedURL(ctx context.Context) (*elevenlabs.SignedURLResponse, []byte, error)
}

// Handlers carries the services behind the HTTP surface.
type Handlers struct {
	logger         logger.Logger
	errors         *commonerrors.ErrorHandler
	contact        *contact.Service
	intake         *orchestrator.Service
	voiceMgr       *voice.Manager
	signer         SignedURLProvider
	transcripts    *transcript.Service
	maxUploadBytes int64
}

// NewHandlers wires the handler set.
func NewHandlers(log logger.Logger, contactSvc *contact.Service, intakeSvc *orchestrator.Service, voiceMgr *voice.Manager, signer SignedURLProvider, transcripts *transcript.Service, maxUploadBytes int64) *Handlers {
	return &Handlers{
		logger:         log,
		errors:         commonerrors.NewErrorHandler(log),
		contact:        contactSvc,
		intake:         intakeSvc,
		voiceMgr:       voiceMgr,
		signer:         signer,
		transcripts:    transcripts,
		maxUploadBytes: maxUploadBytes,
	}
}

type createSessionRequest struct {
	Name     string `json:"name"`
	ClaimID  string `json:"claimId"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
}

type fieldErrorsBody struct {
	Error  string                 `json:"error"`
	Code   commonerrors.ErrorCode `json:"code"`
	Fields map[string]string      `json:"fields"`
}

// CreateSession validates the contact details and opens an intake session.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.WriteError(w, r, commonerrors.NewContactValidationError("request body is not valid JSON"))
		return
	}

	info := models.UserInfo{
		Name:     req.Name,
		ClaimID:  req.ClaimID,
		Phone:    req.Phone,
		Location: req.Location,
	}
	h.contact.Normalize(&info)

	if fieldErrors := h.contact.Validate(info); len(fieldErrors) > 0 {
		commonhttp.RespondJSON(w, http.StatusUnprocessableEntity, fieldErrorsBody{
			Error:  "Contact details failed validation",
			Code:   commonerrors.ErrCodeContactValidationFailed,
			Fields: fieldErrors,
		})
		return
	}

	session, err := h.intake.StartSession(r.Context(), info)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}

	commonhttp.RespondJSON(w, http.StatusCreated, session)
}

// GetSession returns the current state of an intake session.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	session, stdErr := h.intake.GetSession(r.Context(), r.PathValue("id"))
	if stdErr != nil {
		h.errors.WriteError(w, r, stdErr)
		return
	}
	commonhttp.RespondJSON(w, http.StatusOK, session)
}

type submissionResponse struct {
	Session  *models.IntakeSession    `json:"session"`
	Decision *models.WorkflowDecision `json:"decision"`
	// Conversation carries what the voice step needs when the claim is
	// declined.
	Conversation *conversationHandoff `json:"conversation,omitempty"`
}

type conversationHandoff struct {
	ImageURL string `json:"imageUrl"`
	UserName string `json:"userName"`
	ClaimID  string `json:"claimId"`
}

// SubmitEvidence accepts a multipart photo upload and runs the decision
// round trip.
func (h *Handlers) SubmitEvidence(w http.ResponseWriter, r *http.Request) {
	// One extra byte so the size gate can tell "at the limit" from "over".
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))

	file, header, err := h.evidenceFile(r)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.errors.WriteError(w, r, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	result, stdErr := h.intake.SubmitEvidence(r.Context(), r.PathValue("id"), header.Filename, header.Header.Get("Content-Type"), data)
	if stdErr != nil {
		h.errors.WriteError(w, r, stdErr)
		return
	}

	resp := submissionResponse{
		Session:  result.Session,
		Decision: result.Decision,
	}
	if result.Decision.Status == models.DecisionDeclines {
		resp.Conversation = &conversationHandoff{
			ImageURL: result.Session.Upload.ImageURL,
			UserName: result.Session.UserInfo.Name,
			ClaimID:  result.Session.UserInfo.ClaimID,
		}
	}

	commonhttp.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) evidenceFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return nil, nil, commonerrors.NewContactValidationError("expected a multipart form with a file field")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, commonerrors.NewContactValidationError("missing file field")
	}

	return file, header, nil
}

// ResetSession returns a session to idle, keeping the contact details.
func (h *Handlers) ResetSession(w http.ResponseWriter, r *http.Request) {
	session, stdErr := h.intake.Reset(r.Context(), r.PathValue("id"))
	if stdErr != nil {
		h.errors.WriteError(w, r, stdErr)
		return
	}
	commonhttp.RespondJSON(w, http.StatusOK, session)
}

// DeleteSession tears a session down entirely for a full restart.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if stdErr := h.intake.Destroy(r.Context(), r.PathValue("id")); stdErr != nil {
		h.errors.WriteError(w, r, stdErr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReverseGeocode resolves lat/lon query parameters to a display address.
func (h *Handlers) ReverseGeocode(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		h.errors.WriteError(w, r, commonerrors.NewContactValidationError("lat and lon must be decimal coordinates"))
		return
	}

	location := h.contact.ResolveLocation(r.Context(), lat, lon)
	commonhttp.RespondJSON(w, http.StatusOK, map[string]string{"location": location})
}

// SignedURL relays the upstream signed URL response verbatim. Any failure
// collapses to the opaque 500 contract.
func (h *Handlers) SignedURL(w http.ResponseWriter, r *http.Request) {
	_, raw, err := h.signer.GetSignedURL(r.Context())
	if err != nil {
		h.errors.WriteOpaque(w, r, commonerrors.NewSignedURLError(err))
		return
	}
	commonhttp.RelayJSON(w, http.StatusOK, raw)
}

type deliverTranscriptRequest struct {
	ConversationID string `json:"conversationId"`
	ClaimID        string `json:"claimId"`
}

// DeliverTranscript fetches a finished conversation's transcript and writes
// it to the spreadsheet store. Failures use the opaque 500 contract.
func (h *Handlers) DeliverTranscript(w http.ResponseWriter, r *http.Request) {
	var req deliverTranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.WriteOpaque(w, r, commonerrors.NewConversationIDMissingError())
		return
	}

	result, stdErr := h.transcripts.Deliver(r.Context(), req.ConversationID, req.ClaimID)
	if stdErr != nil {
		h.errors.WriteOpaque(w, r, stdErr)
		return
	}

	// The caller gets the upstream conversation payload back verbatim.
	commonhttp.RelayJSON(w, http.StatusOK, result.Raw)
}

// VoiceStream upgrades the browser connection and relays it to the voice
// agent until the conversation ends.
func (h *Handlers) VoiceStream(w http.ResponseWriter, r *http.Request) {
	claimID := r.URL.Query().Get("claimId")

	parsed, _, err := h.signer.GetSignedURL(r.Context())
	if err != nil {
		h.errors.WriteError(w, r, commonerrors.NewSignedURLError(err))
		return
	}

	upstream, err := h.voiceMgr.Dial(r.Context(), parsed.SignedURL)
	if err != nil {
		h.errors.WriteError(w, r, commonerrors.NewExternalServiceError("voice agent", err))
		return
	}

	client, err := voice.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		upstream.Close()
		h.logger.WithError(err).Warn("WebSocket upgrade failed", nil)
		return
	}

	session := h.voiceMgr.Start(client, upstream, claimID)
	session.Run()
}

// VoiceSessionState reports the state of a live voice session.
func (h *Handlers) VoiceSessionState(w http.ResponseWriter, r *http.Request) {
	session, ok := h.voiceMgr.Get(r.PathValue("id"))
	if !ok {
		h.errors.WriteError(w, r, commonerrors.NewSessionNotFoundError(r.PathValue("id")))
		return
	}

	commonhttp.RespondJSON(w, http.StatusOK, map[string]string{
		"id":             session.ID,
		"state":          session.State(),
		"conversationId": session.ConversationID(),
		"claimId":        session.ClaimID,
	})
}

// Health is the liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	commonhttp.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
