package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/callhub/internal/app/orch"
	"github.com/dkeye/callhub/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type testServer struct {
	orch *orch.Orchestrator
	url  string
}

func newTestServer(t *testing.T, opts Options, orchOpts ...orch.Option) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	o := orch.New(orch.DefaultSettings(), orchOpts...)
	ctrl := NewSignalWSController(o, opts)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctrl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testServer{orch: o, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(v))
}

// expect reads frames until one of type typ arrives.
func expect(t *testing.T, ws *websocket.Conn, typ string) gjson.Result {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		r := gjson.ParseBytes(data)
		if r.Get("type").String() == typ {
			return r
		}
	}
}

func join(t *testing.T, ws *websocket.Conn, uid, gid string) gjson.Result {
	t.Helper()
	send(t, ws, map[string]any{"type": "join", "userId": uid, "groupId": gid, "userData": map[string]string{"name": uid}})
	return expect(t, ws, core.PushJoined)
}

func TestJoinAndPresenceFanOut(t *testing.T) {
	s := newTestServer(t, DefaultOptions())
	alice, bob := s.dial(t), s.dial(t)

	joined := join(t, alice, "alice", "g1")
	assert.NotEmpty(t, joined.Get("connectionId").String())
	assert.Zero(t, joined.Get("onlineUsers.#").Int())

	joined = join(t, bob, "bob", "g1")
	assert.Equal(t, "alice", joined.Get("onlineUsers.0.userId").String())
	assert.Equal(t, "alice", joined.Get("onlineUsers.0.userData.name").String())

	userJoined := expect(t, alice, core.PushUserJoined)
	assert.Equal(t, "bob", userJoined.Get("userId").String())
	assert.Equal(t, 2, s.orch.ConnectionCount())
}

func TestHeartbeatPing(t *testing.T) {
	s := newTestServer(t, DefaultOptions())
	ws := s.dial(t)
	join(t, ws, "alice", "g1")

	send(t, ws, map[string]any{"type": "heartbeat-ping", "userId": "alice"})
	pong := expect(t, ws, core.PushHeartbeatPong)
	assert.Positive(t, pong.Get("timestamp").Int())
}

func TestBadFramesKeepConnectionOpen(t *testing.T) {
	s := newTestServer(t, DefaultOptions())
	ws := s.dial(t)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	errPush := expect(t, ws, core.PushError)
	assert.Equal(t, "bad_payload", errPush.Get("error").String())

	send(t, ws, map[string]any{"type": "teleport"})
	errPush = expect(t, ws, core.PushError)
	assert.Equal(t, "unknown_type", errPush.Get("error").String())
	assert.Equal(t, "teleport", errPush.Get("event").String())

	send(t, ws, map[string]any{"type": "join", "userId": "alice"})
	errPush = expect(t, ws, core.PushError)
	assert.Equal(t, "bad_payload", errPush.Get("error").String())
	assert.Equal(t, "join", errPush.Get("event").String())

	join(t, ws, "alice", "g1")
}

func TestIndividualCallOverSockets(t *testing.T) {
	s := newTestServer(t, DefaultOptions())
	alice, bob := s.dial(t), s.dial(t)
	join(t, alice, "alice", "g1")
	join(t, bob, "bob", "g1")

	send(t, alice, map[string]any{"type": "individual-call-start", "target": "bob", "callType": "video", "callerName": "Alice"})
	started := expect(t, alice, core.PushCallStarted)
	assert.True(t, started.Get("targetConnected").Bool())
	callID := started.Get("callId").String()
	require.NotEmpty(t, callID)

	incoming := expect(t, bob, core.PushIncomingCall)
	assert.Equal(t, callID, incoming.Get("callId").String())
	assert.Equal(t, "alice", incoming.Get("caller").String())
	assert.Equal(t, "video", incoming.Get("callType").String())

	send(t, bob, map[string]any{"type": "individual-call-respond", "callId": callID, "action": "accepted"})
	resp := expect(t, alice, core.PushCallResponse)
	assert.Equal(t, "accepted", resp.Get("action").String())
	assert.Equal(t, "video", resp.Get("callType").String())

	send(t, bob, map[string]any{"type": "individual-call-respond", "callId": callID, "action": "accepted"})
	errPush := expect(t, bob, core.PushError)
	assert.Equal(t, "call_not_found", errPush.Get("error").String())
}

func TestIndividualCallRateLimited(t *testing.T) {
	opts := DefaultOptions()
	opts.CallLimit = 1
	opts.CallWindow = time.Minute
	s := newTestServer(t, opts)
	ws := s.dial(t)
	join(t, ws, "alice", "g1")

	start := map[string]any{"type": "individual-call-start", "target": "bob", "callType": "audio"}
	send(t, ws, start)
	started := expect(t, ws, core.PushCallStarted)
	assert.False(t, started.Get("targetConnected").Bool())

	send(t, ws, start)
	errPush := expect(t, ws, core.PushError)
	assert.Equal(t, "rate_limited", errPush.Get("error").String())
	assert.Len(t, s.orch.ActiveCalls("g1"), 1)
}

func TestGroupCallOverSockets(t *testing.T) {
	s := newTestServer(t, DefaultOptions())
	alice, bob := s.dial(t), s.dial(t)
	join(t, alice, "alice", "g1")
	join(t, bob, "bob", "g1")

	send(t, alice, map[string]any{"type": "group-call-start", "callType": "audio"})
	own := expect(t, alice, core.PushGroupCallStarted)
	assert.Equal(t, `["alice"]`, own.Get("participants").Raw)
	expect(t, bob, core.PushGroupCallStarted)

	send(t, bob, map[string]any{"type": "group-call-join", "groupId": "g1"})
	joinedPush := expect(t, alice, core.PushGroupCallJoined)
	assert.Equal(t, `["alice","bob"]`, joinedPush.Get("participants").Raw)

	send(t, alice, map[string]any{"type": "group-call-end"})
	expect(t, bob, core.PushGroupCallEnded)
	assert.Empty(t, s.orch.GroupCalls("g1"))
}

func TestSocketCloseRemovesConnection(t *testing.T) {
	s := newTestServer(t, DefaultOptions())
	alice, bob := s.dial(t), s.dial(t)
	join(t, alice, "alice", "g1")
	join(t, bob, "bob", "g1")

	require.NoError(t, alice.Close())
	left := expect(t, bob, core.PushUserLeft)
	assert.Equal(t, "alice", left.Get("userId").String())
	require.Eventually(t, func() bool { return s.orch.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectEvent(t *testing.T) {
	s := newTestServer(t, DefaultOptions())
	alice, bob := s.dial(t), s.dial(t)
	join(t, alice, "alice", "g1")
	join(t, bob, "bob", "g1")

	send(t, alice, map[string]any{"type": "disconnect", "userId": "alice"})
	expect(t, bob, core.PushUserLeft)
	_, ok := s.orch.Connection("alice")
	assert.False(t, ok)
}

func TestDisconnectFromUnjoinedSocketIsRejected(t *testing.T) {
	s := newTestServer(t, DefaultOptions())
	alice, stranger := s.dial(t), s.dial(t)
	join(t, alice, "alice", "g1")

	send(t, stranger, map[string]any{"type": "disconnect", "userId": "alice"})
	errPush := expect(t, stranger, core.PushError)
	assert.Equal(t, "not_joined", errPush.Get("error").String())
	_, ok := s.orch.Connection("alice")
	assert.True(t, ok)
}

func TestMediaEventsWithoutRelay(t *testing.T) {
	s := newTestServer(t, DefaultOptions())
	ws := s.dial(t)

	send(t, ws, map[string]any{"type": "media-offer", "sdp": "v=0"})
	errPush := expect(t, ws, core.PushError)
	assert.Equal(t, "not_joined", errPush.Get("error").String())

	join(t, ws, "alice", "g1")
	send(t, ws, map[string]any{"type": "media-offer", "sdp": "v=0"})
	errPush = expect(t, ws, core.PushError)
	assert.Equal(t, "media_failed", errPush.Get("error").String())

	send(t, ws, map[string]any{"type": "media-candidate", "candidate": map[string]any{}})
	errPush = expect(t, ws, core.PushError)
	assert.Equal(t, "bad_payload", errPush.Get("error").String())

	send(t, ws, map[string]any{"type": "media-mute"})
	errPush = expect(t, ws, core.PushError)
	assert.Equal(t, "bad_payload", errPush.Get("error").String())

	send(t, ws, map[string]any{"type": "media-mute", "muted": true})
	errPush = expect(t, ws, core.PushError)
	assert.Equal(t, "media_failed", errPush.Get("error").String())
}

func TestTransportPongTouchesConnection(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newTestServer(t, DefaultOptions(), orch.WithClock(clock))
	ws := s.dial(t)
	join(t, ws, "alice", "g1")

	// Keep reading so the client answers pings.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	clock.Advance(orch.DefaultSettings().HeartbeatInterval)
	require.NoError(t, clock.BlockUntilContext(ctx, 2))

	require.Eventually(t, func() bool {
		info, ok := s.orch.Connection("alice")
		return ok && info.Alive
	}, 2*time.Second, 10*time.Millisecond)
}
