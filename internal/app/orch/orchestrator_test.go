package orch_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/StudyRoom/internal/app"
	"github.com/dkeye/StudyRoom/internal/app/orch"
	"github.com/dkeye/StudyRoom/internal/core"
	"github.com/dkeye/StudyRoom/internal/domain"
	"github.com/dkeye/StudyRoom/internal/metrics"
)

var errFull = errors.New("full")

// fakeConn records every frame it is asked to send.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Message
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errFull
	}
	var m core.Message
	if err := json.Unmarshal(f, &m); err != nil {
		return err
	}
	c.frames = append(c.frames, m)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) messages(typ string) []core.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []core.Message
	for _, m := range c.frames {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) last(typ string) (core.Message, bool) {
	msgs := c.messages(typ)
	if len(msgs) == 0 {
		return core.Message{}, false
	}
	return msgs[len(msgs)-1], true
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

type harness struct {
	o      *orch.Orchestrator
	rooms  *app.RoomManagerImpl
	conns  map[domain.ConnID]*fakeConn
	cancel map[domain.ConnID]int
	mu     sync.Mutex
}

func newHarness() *harness {
	rooms := app.NewRoomManager()
	return &harness{
		o: &orch.Orchestrator{
			Registry: app.NewRegistry(),
			Rooms:    rooms,
			Policy:   app.SimplePolicy{},
			Metrics:  metrics.New(),
		},
		rooms:  rooms,
		conns:  make(map[domain.ConnID]*fakeConn),
		cancel: make(map[domain.ConnID]int),
	}
}

func (h *harness) connect(ids ...domain.ConnID) {
	for _, id := range ids {
		c := &fakeConn{}
		h.mu.Lock()
		h.conns[id] = c
		h.mu.Unlock()
		sid := id
		h.o.Connect(domain.Connection{
			ID:       id,
			Identity: domain.Identity{UserID: domain.UserID("u-" + id), DisplayName: "N" + string(id)},
		}, c, func() {
			h.mu.Lock()
			h.cancel[sid]++
			h.mu.Unlock()
		})
	}
}

func (h *harness) conn(id domain.ConnID) *fakeConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[id]
}

func (h *harness) joinAll(t *testing.T, room domain.RoomID, ids ...domain.ConnID) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, h.o.Join(id, room))
	}
}

func (h *harness) snapshot(t *testing.T, room domain.RoomID) core.Snapshot {
	t.Helper()
	r, ok := h.rooms.Get(room)
	require.True(t, ok, "room %s not found", room)
	snap, ok := r.Snapshot()
	require.True(t, ok)
	return snap
}

func TestJoin_BroadcastsAndPeerArrived(t *testing.T) {
	h := newHarness()
	h.connect("a", "b")
	h.joinAll(t, "study", "a")
	h.conn("a").reset()

	require.NoError(t, h.o.Join("b", "study"))

	for _, id := range []domain.ConnID{"a", "b"} {
		snap, ok := h.conn(id).last(core.TypeRoomSnapshot)
		require.True(t, ok, "%s got no snapshot", id)
		assert.Equal(t, []domain.ConnID{"a", "b"}, snap.Room.Members)
		assert.Equal(t, "Nb", snap.Room.DisplayNames["b"])
		assert.Equal(t, orch.DefaultIdleStatus, snap.Room.Statuses["b"])
	}

	arrived := h.conn("a").messages(core.TypePeerArrived)
	require.Len(t, arrived, 1)
	assert.Equal(t, domain.ConnID("b"), arrived[0].Peer)
	assert.Empty(t, h.conn("b").messages(core.TypePeerArrived))

	room, ok := h.o.Registry.RoomOf("b")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("study"), room)
}

func TestJoin_SameRoomIsIdempotent(t *testing.T) {
	h := newHarness()
	h.connect("a")
	h.joinAll(t, "study", "a")

	err := h.o.Join("a", "study")
	assert.ErrorIs(t, err, core.ErrAlreadyMember)
	assert.Equal(t, []domain.ConnID{"a"}, h.snapshot(t, "study").Members)
}

func TestJoin_SwitchRoomLeavesPrevious(t *testing.T) {
	h := newHarness()
	h.connect("a", "b")
	h.joinAll(t, "one", "a", "b")

	require.NoError(t, h.o.Join("a", "two"))

	one := h.snapshot(t, "one")
	assert.Equal(t, []domain.ConnID{"b"}, one.Members)
	assert.Equal(t, domain.ConnID("b"), one.Host)
	two := h.snapshot(t, "two")
	assert.Equal(t, domain.ConnID("a"), two.Host)

	departed := h.conn("b").messages(core.TypePeerDeparted)
	require.Len(t, departed, 1)
	assert.Equal(t, domain.ConnID("a"), departed[0].Peer)
}

func TestJoin_UnknownSession(t *testing.T) {
	h := newHarness()
	assert.ErrorIs(t, h.o.Join("ghost", "study"), orch.ErrNoSession)
	assert.Equal(t, 0, h.rooms.Len())
}

func TestAutomaticSuccessionOnDisconnect(t *testing.T) {
	h := newHarness()
	h.connect("a", "b", "c")
	h.joinAll(t, "study", "a", "b", "c")

	h.o.OnDisconnect("a")
	assert.Equal(t, domain.ConnID("b"), h.snapshot(t, "study").Host)

	h.o.OnDisconnect("b")
	assert.Equal(t, domain.ConnID("c"), h.snapshot(t, "study").Host)

	departed := h.conn("c").messages(core.TypePeerDeparted)
	require.Len(t, departed, 2)
	assert.Equal(t, domain.ConnID("a"), departed[0].Peer)
	assert.Equal(t, domain.ConnID("b"), departed[1].Peer)
}

func TestRoomGarbageCollection(t *testing.T) {
	h := newHarness()
	h.connect("a", "b")
	h.joinAll(t, "study", "a")
	require.NoError(t, h.o.ToggleChat("a", false))

	h.o.OnDisconnect("a")
	_, ok := h.rooms.Get("study")
	assert.False(t, ok)
	assert.Equal(t, 0, h.rooms.Len())
	assert.Empty(t, h.rooms.List())

	h.joinAll(t, "study", "b")
	snap := h.snapshot(t, "study")
	assert.True(t, snap.ChatEnabled)
	assert.Equal(t, domain.ConnID("b"), snap.Host)
}

func TestHostOnlyActions(t *testing.T) {
	h := newHarness()
	h.connect("a", "b")
	h.joinAll(t, "study", "a", "b")

	assert.ErrorIs(t, h.o.ToggleChat("b", false), core.ErrPermissionDenied)
	assert.ErrorIs(t, h.o.TransferHost("b", "b"), core.ErrPermissionDenied)
	snap := h.snapshot(t, "study")
	assert.True(t, snap.ChatEnabled)
	assert.Equal(t, domain.ConnID("a"), snap.Host)

	require.NoError(t, h.o.TransferHost("a", "b"))
	assert.Equal(t, domain.ConnID("b"), h.snapshot(t, "study").Host)
}

func TestChatGating(t *testing.T) {
	h := newHarness()
	h.connect("host", "m1", "m2")
	h.joinAll(t, "study", "host", "m1", "m2")
	require.NoError(t, h.o.ToggleChat("host", false))

	payload := json.RawMessage(`{"text":"hello"}`)
	assert.ErrorIs(t, h.o.Chat("m1", payload), core.ErrPermissionDenied)
	assert.Empty(t, h.conn("host").messages(core.TypeChatMessage))
	assert.Empty(t, h.conn("m2").messages(core.TypeChatMessage))

	require.NoError(t, h.o.Chat("host", payload))
	for _, id := range []domain.ConnID{"m1", "m2"} {
		msgs := h.conn(id).messages(core.TypeChatMessage)
		require.Len(t, msgs, 1)
		assert.Equal(t, domain.ConnID("host"), msgs[0].From)
		assert.JSONEq(t, string(payload), string(msgs[0].Payload))
	}
	assert.Empty(t, h.conn("host").messages(core.TypeChatMessage))
}

func TestRoomScopedEventWithoutRoom(t *testing.T) {
	h := newHarness()
	h.connect("a")

	assert.ErrorIs(t, h.o.Chat("a", json.RawMessage(`"x"`)), core.ErrNotJoined)
	assert.ErrorIs(t, h.o.SyncStatus("a", "focused"), core.ErrNotJoined)
	assert.ErrorIs(t, h.o.Leave("a"), core.ErrNotJoined)
	assert.Equal(t, 0, h.rooms.Len())
}

func TestSyncStatusFreshness(t *testing.T) {
	h := newHarness()
	h.connect("x", "y")
	h.joinAll(t, "study", "x", "y")

	require.NoError(t, h.o.SyncStatus("x", "focused"))
	snap, ok := h.conn("y").last(core.TypeRoomSnapshot)
	require.True(t, ok)
	assert.Equal(t, "focused", snap.Room.Statuses["x"])
}

func TestRename(t *testing.T) {
	h := newHarness()
	h.connect("a")
	h.joinAll(t, "study", "a")

	assert.ErrorIs(t, h.o.Rename("a", "x"), domain.ErrDisplayNameTooShort)
	assert.ErrorIs(t, h.o.Rename("a", "abcdefghijk"), domain.ErrDisplayNameTooLong)
	require.NoError(t, h.o.Rename("a", "  Alice "))
	assert.Equal(t, "Alice", h.snapshot(t, "study").DisplayNames["a"])
}

func TestRelay(t *testing.T) {
	h := newHarness()
	h.connect("a", "b", "c")
	h.joinAll(t, "one", "a", "c")
	h.joinAll(t, "two", "b")
	h.conn("c").reset()

	payload := json.RawMessage(`{"sdp":"v=0\r\n","type":"offer"}`)
	require.NoError(t, h.o.Relay("a", core.TypeOffer, "b", payload))

	got := h.conn("b").messages(core.TypeOffer)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ConnID("a"), got[0].From)
	assert.Equal(t, string(payload), string(got[0].Payload))
	assert.Empty(t, h.conn("c").messages(core.TypeOffer))
	assert.Empty(t, h.conn("a").messages(core.TypeOffer))

	assert.ErrorIs(t, h.o.Relay("a", core.TypeAnswer, "gone", payload), core.ErrUnknownTarget)
	assert.Error(t, h.o.Relay("a", "chat-message", "b", payload))
}

func TestBackpressureKicksSlowMember(t *testing.T) {
	h := newHarness()
	h.connect("a", "b")
	h.joinAll(t, "study", "a", "b")

	h.conn("b").mu.Lock()
	h.conn("b").full = true
	h.conn("b").mu.Unlock()

	require.NoError(t, h.o.SyncStatus("a", "focused"))
	h.mu.Lock()
	assert.Equal(t, 1, h.cancel["b"])
	assert.Zero(t, h.cancel["a"])
	h.mu.Unlock()
}

func TestConcurrentRoomsKeepInvariants(t *testing.T) {
	h := newHarness()
	const rooms, perRoom = 8, 12

	var wg sync.WaitGroup
	for r := 0; r < rooms; r++ {
		r := r
		roomID := domain.RoomID(fmt.Sprintf("room-%d", r))
		for m := 0; m < perRoom; m++ {
			m := m
			sid := domain.ConnID(fmt.Sprintf("r%d-m%d", r, m))
			h.connect(sid)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = h.o.Join(sid, roomID)
				_ = h.o.SyncStatus(sid, "focused")
				_ = h.o.ToggleChat(sid, m%2 == 0)
				_ = h.o.Chat(sid, json.RawMessage(`"hi"`))
				_ = h.o.TransferHost(sid, domain.ConnID(fmt.Sprintf("r%d-m0", r)))
				if m%3 == 0 {
					h.o.OnDisconnect(sid)
				}
			}()
		}
	}
	wg.Wait()

	for r := 0; r < rooms; r++ {
		roomID := domain.RoomID(fmt.Sprintf("room-%d", r))
		room, ok := h.rooms.Get(roomID)
		require.True(t, ok)
		probe := func(s *core.State) ([]core.Effect, error) { return nil, s.Validate() }
		require.NoError(t, room.Apply(probe, nil))
		assert.Equal(t, perRoom-perRoom/3, room.MemberCount())
	}

	for r := 0; r < rooms; r++ {
		for m := 0; m < perRoom; m++ {
			h.o.OnDisconnect(domain.ConnID(fmt.Sprintf("r%d-m%d", r, m)))
		}
	}
	assert.Equal(t, 0, h.rooms.Len())
	assert.Equal(t, 0, h.o.Registry.Len())
}
