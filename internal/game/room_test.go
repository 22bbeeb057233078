package game

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazegame/server/internal/maze"
)

// fakeClock is an injectable Clock for deterministic room tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeConn is an in-memory Conn that records sent frames.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	code   string
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.frames = append(c.frames, cp)
	return nil
}

func (c *fakeConn) Close(code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.code = code
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "fake" }

func (c *fakeConn) last(t *testing.T) OutMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.frames)
	var msg OutMessage
	require.NoError(t, json.Unmarshal(c.frames[len(c.frames)-1], &msg))
	return msg
}

func (c *fakeConn) first(t *testing.T) OutMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.frames)
	var msg OutMessage
	require.NoError(t, json.Unmarshal(c.frames[0], &msg))
	return msg
}

// states decodes every STATE payload received so far, in order.
func (c *fakeConn) states(t *testing.T) []StatePayload {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []StatePayload
	for _, f := range c.frames {
		var msg OutMessage
		require.NoError(t, json.Unmarshal(f, &msg))
		if msg.Type != MsgTypeState {
			continue
		}
		var payload StatePayload
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		out = append(out, payload)
	}
	return out
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newTestRoom(t *testing.T) (*Room, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Now())
	room := NewRoom("TEST01", clock, maze.NewSpanningTreeFactory())
	go room.Run()
	t.Cleanup(room.Stop)
	return room, clock
}

func TestRoomAttachSendsFullSnapshot(t *testing.T) {
	room, _ := newTestRoom(t)
	conn := &fakeConn{}

	sess, err := room.Attach(RoleOwner, "OWNER1", conn)
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, sess.Role)

	// The attach snapshot is the first frame; later frames are deltas.
	msg := conn.first(t)
	assert.Equal(t, MsgTypeState, msg.Type)

	var payload StatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.True(t, payload.Full)
	require.NotNil(t, payload.Snapshot)
	assert.Equal(t, PhaseLobby, payload.Snapshot.Phase)
}

func TestRoomSecondAttachSameRoleTakesOver(t *testing.T) {
	room, _ := newTestRoom(t)
	first := &fakeConn{}
	second := &fakeConn{}

	_, err := room.Attach(RoleOwner, "OWNER1", first)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = room.Attach(RoleOwner, "INTRUDER", second)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	assert.True(t, first.closed)
	assert.Equal(t, "takeover", first.code)
}

func TestRoomStartTransitionsToCountdown(t *testing.T) {
	room, _ := newTestRoom(t)
	ownerConn := &fakeConn{}
	playerConn := &fakeConn{}

	ownerSess, err := room.Attach(RoleOwner, "OWNER1", ownerConn)
	require.NoError(t, err)
	_, err = room.Attach(RolePlayer, "PLAYER1", playerConn)
	require.NoError(t, err)

	room.Submit(Command{Session: ownerSess, Body: CmdStart{MazeSize: 20}})
	time.Sleep(30 * time.Millisecond)

	// Only attach sends a full snapshot; the start reaches an attached
	// session as a delta carrying the new phase and the new maze.
	var started *Delta
	for _, payload := range ownerConn.states(t) {
		if payload.Changes != nil && payload.Changes.Phase != nil {
			started = payload.Changes
		}
	}
	require.NotNil(t, started)
	assert.Equal(t, PhaseCountdown, *started.Phase)
	require.NotNil(t, started.Maze)
}

func TestRoomRejectsEditFromPlayerRole(t *testing.T) {
	room, _ := newTestRoom(t)
	ownerConn := &fakeConn{}
	playerConn := &fakeConn{}

	ownerSess, err := room.Attach(RoleOwner, "OWNER1", ownerConn)
	require.NoError(t, err)
	playerSess, err := room.Attach(RolePlayer, "PLAYER1", playerConn)
	require.NoError(t, err)

	room.Submit(Command{Session: ownerSess, Body: CmdStart{MazeSize: 20}})
	time.Sleep(20 * time.Millisecond)

	before := playerConn.count()
	room.Submit(Command{Session: playerSess, Body: CmdEdit{Action: ActionPlaceWall, Edge: maze.Edge{Cell: maze.Cell{X: 1, Y: 1}, Side: maze.SideTop}}})
	time.Sleep(20 * time.Millisecond)

	// A non-owner edit is silently ignored: no extra broadcast or error
	// frame is produced beyond whatever regular tick traffic occurred.
	assert.LessOrEqual(t, playerConn.count()-before, 2)
}

func TestRoomPingReceivesPong(t *testing.T) {
	room, _ := newTestRoom(t)
	conn := &fakeConn{}
	sess, err := room.Attach(RoleOwner, "OWNER1", conn)
	require.NoError(t, err)

	room.Submit(Command{Session: sess, Body: CmdPing{Ts: 12345}})
	time.Sleep(20 * time.Millisecond)

	msg := conn.last(t)
	assert.Equal(t, MsgTypePong, msg.Type)
}

func TestRoomIdleForReportsZeroWhileOccupied(t *testing.T) {
	room, clock := newTestRoom(t)
	conn := &fakeConn{}
	_, err := room.Attach(RoleOwner, "OWNER1", conn)
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), room.IdleFor(clock.Now()))
}
