package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/StudyRoom/internal/adapters/auth"
	router "github.com/dkeye/StudyRoom/internal/adapters/http"
	"github.com/dkeye/StudyRoom/internal/adapters/rtc"
	"github.com/dkeye/StudyRoom/internal/app"
	"github.com/dkeye/StudyRoom/internal/app/orch"
	"github.com/dkeye/StudyRoom/internal/config"
	"github.com/dkeye/StudyRoom/internal/domain"
	"github.com/dkeye/StudyRoom/internal/metrics"
	"github.com/dkeye/StudyRoom/internal/store"
)

type harness struct {
	srv    *httptest.Server
	tokens *auth.JWT
	orch   *orch.Orchestrator
}

func newHarness(t *testing.T, connectLimit int) *harness {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		Mode:       "test",
		StaticPath: t.TempDir(),
		ReadLimit:  1 << 20,
		SendBuffer: 16,
		PingPeriod: time.Minute,
		Secret:     "session-secret",
		Auth:       config.AuthConfig{TokenTTL: time.Hour},
	}
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   app.SimplePolicy{},
		Metrics:  metrics.New(),
	}
	tokens := auth.NewJWT("jwt-secret")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := router.SetupRouter(ctx, cfg, o, router.Services{
		Tokens:         tokens,
		Store:          st,
		ICE:            rtc.DefaultWebRTCConfig(),
		ConnectLimiter: auth.NewRateLimiter(connectLimit, time.Minute),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &harness{srv: srv, tokens: tokens, orch: o}
}

func (h *harness) token(t *testing.T, user, name string) string {
	t.Helper()
	tok, err := h.tokens.Sign(domain.Identity{UserID: domain.UserID(user), DisplayName: name}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *harness) dial(t *testing.T, tok string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/api/ws?token=" + tok
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, msg map[string]any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(msg))
}

// readType reads until a message of typ arrives, skipping others.
func readType(t *testing.T, ws *websocket.Conn, typ string) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg map[string]any
		require.NoError(t, ws.ReadJSON(&msg), "waiting for %s", typ)
		if msg["type"] == typ {
			return msg
		}
	}
}

func whoami(t *testing.T, ws *websocket.Conn) string {
	t.Helper()
	send(t, ws, map[string]any{"type": "whoami"})
	return readType(t, ws, "whoami")["id"].(string)
}

func TestAdmission(t *testing.T) {
	h := newHarness(t, 2)

	resp, err := http.Get(h.srv.URL + "/api/ws")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(h.srv.URL + "/api/ws?token=garbage")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(h.srv.URL + "/api/ws")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	assert.Equal(t, 0, h.orch.Registry.Len(), "rejected attempts touch no state")
}

func TestSignalingEndToEnd(t *testing.T) {
	h := newHarness(t, 0)

	ann := h.dial(t, h.token(t, "1", "Ann"))
	annID := whoami(t, ann)
	send(t, ann, map[string]any{"type": "join-room", "room": "math"})
	snap := readType(t, ann, "room-snapshot")["room"].(map[string]any)
	assert.Equal(t, annID, snap["host"])
	assert.Equal(t, "Ann", snap["displayNames"].(map[string]any)[annID])

	bob := h.dial(t, h.token(t, "2", "Bob"))
	bobID := whoami(t, bob)
	send(t, bob, map[string]any{"type": "join-room", "room": "math"})
	snap = readType(t, bob, "room-snapshot")["room"].(map[string]any)
	assert.Len(t, snap["members"], 2)
	assert.Equal(t, bobID, readType(t, ann, "peer-arrived")["peer"])

	send(t, bob, map[string]any{"type": "offer", "target": annID, "payload": map[string]any{"sdp": "v=0"}})
	offer := readType(t, ann, "offer")
	assert.Equal(t, bobID, offer["from"])
	assert.Equal(t, annID, offer["target"])
	assert.Equal(t, map[string]any{"sdp": "v=0"}, offer["payload"])

	send(t, ann, map[string]any{"type": "toggle-chat", "enabled": false})
	snap = readType(t, bob, "room-snapshot")["room"].(map[string]any)
	assert.Equal(t, false, snap["chatEnabled"])

	send(t, ann, map[string]any{"type": "chat-message", "payload": map[string]any{"text": "hi"}})
	chat := readType(t, bob, "chat-message")
	assert.Equal(t, annID, chat["from"])

	send(t, bob, map[string]any{"type": "ping"})
	readType(t, bob, "pong")

	send(t, bob, map[string]any{"type": "update-name", "name": "x"})
	assert.Equal(t, "invalid_name", readType(t, bob, "error")["error"])

	resp, err := http.Get(h.srv.URL + "/api/rooms/math")
	require.NoError(t, err)
	var rest map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rest))
	_ = resp.Body.Close()
	assert.Equal(t, "math", rest["id"])

	require.NoError(t, ann.Close())
	assert.Equal(t, annID, readType(t, bob, "peer-departed")["peer"])
	require.Eventually(t, func() bool {
		room, ok := h.orch.Rooms.Get("math")
		if !ok {
			return false
		}
		s, ok := room.Snapshot()
		return ok && s.Host == domain.ConnID(bobID)
	}, time.Second, 10*time.Millisecond)

	send(t, bob, map[string]any{"type": "leave-room"})
	readType(t, bob, "left")
	require.Eventually(t, func() bool { return h.orch.Rooms.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestRoomsAPI(t *testing.T) {
	h := newHarness(t, 0)

	resp, err := http.Get(h.srv.URL + "/api/rooms/nowhere")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(h.srv.URL + "/api/ice")
	require.NoError(t, err)
	var ice struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ice))
	_ = resp.Body.Close()
	require.NotEmpty(t, ice.ICEServers)

	resp, err = http.Get(h.srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func postJSON(t *testing.T, url, tok string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestAccountsAndFocus(t *testing.T) {
	h := newHarness(t, 0)

	resp := postJSON(t, h.srv.URL+"/api/auth/register", "", map[string]string{
		"username": "alice", "password": "secret1", "nickname": "Alice",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp = postJSON(t, h.srv.URL+"/api/auth/register", "", map[string]string{
		"username": "Alice", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()

	resp = postJSON(t, h.srv.URL+"/api/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	resp = postJSON(t, h.srv.URL+"/api/auth/login", "", map[string]string{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		Token string          `json:"token"`
		User  domain.Identity `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	_ = resp.Body.Close()
	assert.Equal(t, "Alice", login.User.DisplayName)

	resp = postJSON(t, h.srv.URL+"/api/focus", "", map[string]any{"duration_mins": 25})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	for _, mins := range []int{25, 50} {
		resp = postJSON(t, h.srv.URL+"/api/focus", login.Token, map[string]any{"task_name": "calc", "duration_mins": mins})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		_ = resp.Body.Close()
	}

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/api/focus/today", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var sum store.DaySummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	_ = resp.Body.Close()
	assert.Equal(t, 2, sum.Sessions)
	assert.Equal(t, 75, sum.TotalMins)

	req, err = http.NewRequest(http.MethodGet, h.srv.URL+"/api/focus/month/2024-13", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
