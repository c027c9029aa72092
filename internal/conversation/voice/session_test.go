package voice

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claims-intake/internal/common/logger"
	"claims-intake/internal/models"
)

// fakeConn is an in-memory websocket endpoint fed through a channel.
type fakeConn struct {
	incoming chan []byte

	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	payload, ok := <-c.incoming
	if !ok {
		return 0, nil, io.EOF
	}
	return websocket.TextMessage, payload, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		// Unblock any pending ReadMessage.
		close(c.incoming)
	}
	return nil
}

func (c *fakeConn) writtenPayloads() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

type endRecorder struct {
	mu             sync.Mutex
	calls          int
	conversationID string
	reason         string
}

func (r *endRecorder) callback(conversationID, claimID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.conversationID = conversationID
	r.reason = reason
}

func (r *endRecorder) snapshot() (int, string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, r.conversationID, r.reason
}

func runSession(t *testing.T, client, upstream *fakeConn, inactivity time.Duration, recorder *endRecorder) *Session {
	t.Helper()

	session := NewSession(logger.NewNoOpLogger(), client, upstream, "CLM-1042", inactivity, recorder.callback)

	done := make(chan struct{})
	go func() {
		session.Run()
		close(done)
	}()
	t.Cleanup(func() {
		session.End(models.VoiceEndReasonError)
		<-done
	})

	return session
}

func waitForState(t *testing.T, session *Session, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return session.State() == want
	}, time.Second, 5*time.Millisecond, "expected state %s", want)
}

func TestSessionStateFollowsUpstreamEvents(t *testing.T) {
	client := newFakeConn()
	upstream := newFakeConn()
	session := runSession(t, client, upstream, time.Minute, &endRecorder{})

	assert.Equal(t, models.VoiceStateConnecting, session.State())

	upstream.incoming <- []byte(`{"type":"conversation_initiation_metadata","conversation_initiation_metadata_event":{"conversation_id":"conv-77"}}`)
	waitForState(t, session, models.VoiceStateConnected)
	assert.Equal(t, "conv-77", session.ConversationID())

	upstream.incoming <- []byte(`{"type":"agent_response"}`)
	waitForState(t, session, models.VoiceStateSpeaking)

	upstream.incoming <- []byte(`{"type":"user_transcript"}`)
	waitForState(t, session, models.VoiceStateListening)
}

func TestSessionRelaysBothDirections(t *testing.T) {
	client := newFakeConn()
	upstream := newFakeConn()
	runSession(t, client, upstream, time.Minute, &endRecorder{})

	client.incoming <- []byte(`{"user_audio_chunk":"aGk="}`)
	require.Eventually(t, func() bool {
		return len(upstream.writtenPayloads()) == 1
	}, time.Second, 5*time.Millisecond)

	upstream.incoming <- []byte(`{"type":"agent_response"}`)
	require.Eventually(t, func() bool {
		return len(client.writtenPayloads()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSessionEndsOnClientDisconnect(t *testing.T) {
	client := newFakeConn()
	upstream := newFakeConn()
	recorder := &endRecorder{}
	session := runSession(t, client, upstream, time.Minute, recorder)

	upstream.incoming <- []byte(`{"type":"conversation_initiation_metadata","conversation_initiation_metadata_event":{"conversation_id":"conv-77"}}`)
	waitForState(t, session, models.VoiceStateConnected)

	client.Close()

	<-session.Done()
	calls, conversationID, reason := recorder.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "conv-77", conversationID)
	assert.Equal(t, models.VoiceEndReasonClient, reason)
	assert.Equal(t, models.VoiceStateEnded, session.State())
}

func TestSessionInactivityTimeout(t *testing.T) {
	client := newFakeConn()
	upstream := newFakeConn()
	recorder := &endRecorder{}
	session := runSession(t, client, upstream, 50*time.Millisecond, recorder)

	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not end on inactivity")
	}

	calls, _, reason := recorder.snapshot()
	assert.Equal(t, 1, calls)
	assert.Equal(t, models.VoiceEndReasonInactivity, reason)
}

func TestSessionUpstreamTrafficCountsAsActivity(t *testing.T) {
	client := newFakeConn()
	upstream := newFakeConn()
	recorder := &endRecorder{}
	session := runSession(t, client, upstream, 60*time.Millisecond, recorder)

	// Only the agent talks; the client stream stays silent well past the
	// inactivity window.
	deadline := time.After(200 * time.Millisecond)
feed:
	for {
		select {
		case <-deadline:
			break feed
		case <-session.Done():
			t.Fatal("session ended despite a live agent stream")
		case <-time.After(20 * time.Millisecond):
			upstream.incoming <- []byte(`{"type":"agent_response"}`)
		}
	}

	calls, _, _ := recorder.snapshot()
	assert.Equal(t, 0, calls)
}

func TestSessionConversationIDImmutable(t *testing.T) {
	client := newFakeConn()
	upstream := newFakeConn()
	session := runSession(t, client, upstream, time.Minute, &endRecorder{})

	upstream.incoming <- []byte(`{"type":"conversation_initiation_metadata","conversation_initiation_metadata_event":{"conversation_id":"conv-77"}}`)
	waitForState(t, session, models.VoiceStateConnected)
	require.Equal(t, "conv-77", session.ConversationID())

	upstream.incoming <- []byte(`{"type":"conversation_initiation_metadata","conversation_initiation_metadata_event":{"conversation_id":"conv-88"}}`)
	require.Eventually(t, func() bool {
		return len(client.writtenPayloads()) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "conv-77", session.ConversationID())
}

func TestSessionEndFiresCallbackExactlyOnce(t *testing.T) {
	client := newFakeConn()
	upstream := newFakeConn()
	recorder := &endRecorder{}
	session := runSession(t, client, upstream, time.Minute, recorder)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session.End(models.VoiceEndReasonAgent)
		}()
	}
	wg.Wait()

	calls, _, _ := recorder.snapshot()
	assert.Equal(t, 1, calls)
}

func TestManagerTracksSessions(t *testing.T) {
	manager := NewManager(logger.NewNoOpLogger(), time.Minute, nil)

	client := newFakeConn()
	upstream := newFakeConn()
	session := manager.Start(client, upstream, "CLM-1042")

	done := make(chan struct{})
	go func() {
		session.Run()
		close(done)
	}()

	got, ok := manager.Get(session.ID)
	require.True(t, ok)
	assert.Equal(t, session, got)
	assert.Equal(t, 1, manager.ActiveCount())

	session.End(models.VoiceEndReasonAgent)
	<-done

	_, ok = manager.Get(session.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, manager.ActiveCount())
}
