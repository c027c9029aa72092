package voice

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"claims-intake/internal/common/logger"
	"claims-intake/internal/common/metrics"
	"claims-intake/internal/models"
)

// Conn is the subset of *websocket.Conn the relay needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// EndCallback fires exactly once when the session ends, with the upstream
// conversation id (may be empty if the agent never sent one) and the reason.
type EndCallback func(conversationID, claimID, reason string)

// upstreamEvent is the envelope of events the voice agent sends. Only the
// fields the state machine cares about are decoded.
type upstreamEvent struct {
	Type     string `json:"type"`
	Metadata struct {
		ConversationID string `json:"conversation_id"`
	} `json:"conversation_initiation_metadata_event"`
	PingEvent struct {
		EventID int `json:"event_id"`
	} `json:"ping_event"`
}

// Session relays one browser WebSocket to one upstream voice agent
// conversation and tracks the conversation state.
type Session struct {
	ID      string
	ClaimID string

	logger     logger.Logger
	client     Conn
	upstream   Conn
	inactivity time.Duration
	onEnd      EndCallback

	mu             sync.Mutex
	state          string
	conversationID string
	timer          *time.Timer

	endOnce sync.Once
	done    chan struct{}
}

// NewSession creates a relay session over an accepted client connection and
// a dialed upstream connection.
func NewSession(log logger.Logger, client, upstream Conn, claimID string, inactivity time.Duration, onEnd EndCallback) *Session {
	return &Session{
		ID:         uuid.NewString(),
		ClaimID:    claimID,
		logger:     log,
		client:     client,
		upstream:   upstream,
		inactivity: inactivity,
		onEnd:      onEnd,
		state:      models.VoiceStateConnecting,
		done:       make(chan struct{}),
	}
}

// State returns the current conversation state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConversationID returns the upstream conversation id, once known.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Run pumps frames in both directions until either side closes or the
// inactivity timer fires. It blocks until the session ends.
func (s *Session) Run() {
	metrics.VoiceSessionsActive.Inc()

	s.mu.Lock()
	s.timer = time.AfterFunc(s.inactivity, func() {
		s.logger.WithFields(map[string]interface{}{
			"session_id": s.ID,
		}).Warn("Voice session idle too long, ending conversation", nil)
		s.End(models.VoiceEndReasonInactivity)
	})
	s.mu.Unlock()

	go s.pumpClient()
	go s.pumpUpstream()

	<-s.done
}

// End terminates the session. Safe to call from any goroutine, any number
// of times; the callback and metrics fire once.
func (s *Session) End(reason string) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.state = models.VoiceStateEnded
		conversationID := s.conversationID
		if s.timer != nil {
			s.timer.Stop()
		}
		s.mu.Unlock()

		s.client.Close()
		s.upstream.Close()
		close(s.done)

		metrics.VoiceSessionsActive.Dec()
		metrics.VoiceSessionsTotal.WithLabelValues(reason).Inc()

		s.logger.WithFields(map[string]interface{}{
			"session_id":      s.ID,
			"conversation_id": conversationID,
			"reason":          reason,
		}).Info("Voice session ended", nil)

		if s.onEnd != nil {
			s.onEnd(conversationID, s.ClaimID, reason)
		}
	})
}

// pumpClient forwards browser frames upstream and counts them as activity.
func (s *Session) pumpClient() {
	for {
		messageType, payload, err := s.client.ReadMessage()
		if err != nil {
			s.End(models.VoiceEndReasonClient)
			return
		}

		s.touch()

		if err := s.upstream.WriteMessage(messageType, payload); err != nil {
			s.End(models.VoiceEndReasonError)
			return
		}
	}
}

// pumpUpstream forwards agent frames to the browser and feeds the state
// machine from the event stream.
func (s *Session) pumpUpstream() {
	for {
		messageType, payload, err := s.upstream.ReadMessage()
		if err != nil {
			s.End(models.VoiceEndReasonAgent)
			return
		}

		s.touch()
		s.observeEvent(payload)

		if err := s.client.WriteMessage(messageType, payload); err != nil {
			s.End(models.VoiceEndReasonClient)
			return
		}
	}
}

func (s *Session) observeEvent(payload []byte) {
	var event upstreamEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case "conversation_initiation_metadata":
		// The conversation id is the transcript join key; it never changes
		// once captured.
		if s.conversationID == "" {
			s.conversationID = event.Metadata.ConversationID
		}
		s.state = models.VoiceStateConnected
	case "agent_response", "audio":
		s.state = models.VoiceStateSpeaking
	case "user_transcript":
		s.state = models.VoiceStateListening
	}
}

// touch restarts the inactivity countdown.
func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Reset(s.inactivity)
	}
}

// Upgrader accepts browser connections for voice sessions. Origins are open,
// matching the CORS posture of the rest of the surface.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
