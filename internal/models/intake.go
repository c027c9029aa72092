package models

import "time"

// UserInfo carries the contact details gathered before evidence capture.
// Exactly one of ClaimID or Phone is required at validation time.
type UserInfo struct {
	Name     string `json:"name"`
	ClaimID  string `json:"claimId,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
}

// UploadMetadata describes a stored evidence photo.
type UploadMetadata struct {
	ImageURL    string    `json:"imageUrl"`
	StorageKey  string    `json:"storageKey"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Decision statuses returned by the workflow webhook. Any other value is a
// contract violation.
const (
	DecisionAccepts   = "accepts"
	DecisionDeclines  = "declines"
	DecisionEvaluates = "evaluates"
)

// WorkflowDecision is the parsed webhook response.
type WorkflowDecision struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// IsValidDecisionStatus reports whether status is one of the three values the
// webhook contract allows.
func IsValidDecisionStatus(status string) bool {
	switch status {
	case DecisionAccepts, DecisionDeclines, DecisionEvaluates:
		return true
	}
	return false
}

// Intake session states.
const (
	SessionStateIdle         = "idle"
	SessionStateUploading    = "uploading"
	SessionStateVerifying    = "verifying"
	SessionStateAccepted     = "accepted"
	SessionStateEvaluates    = "evaluates"
	SessionStateConversation = "conversation"
)

// IntakeSession is the server-side state of one claim intake flow.
type IntakeSession struct {
	ID        string            `json:"id"`
	State     string            `json:"state"`
	UserInfo  *UserInfo         `json:"userInfo,omitempty"`
	Upload    *UploadMetadata   `json:"upload,omitempty"`
	Decision  *WorkflowDecision `json:"decision,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Voice conversation states.
const (
	VoiceStateIdle       = "idle"
	VoiceStateConnecting = "connecting"
	VoiceStateConnected  = "connected"
	VoiceStateListening  = "listening"
	VoiceStateSpeaking   = "speaking"
	VoiceStateEnded      = "ended"
)

// Voice session end reasons, recorded in metrics and the end callback.
const (
	VoiceEndReasonAgent      = "agent_ended"
	VoiceEndReasonClient     = "client_disconnected"
	VoiceEndReasonInactivity = "inactivity_timeout"
	VoiceEndReasonError      = "error"
)

// Transcript is the normalized conversation transcript headed for the
// spreadsheet store.
type Transcript struct {
	ConversationID string    `json:"conversationId"`
	ClaimID        string    `json:"claimId"`
	Text           string    `json:"transcript"`
	Timestamp      time.Time `json:"timestamp"`
}
