package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazegame/server/internal/maze"
)

func baseSnapshot() *Snapshot {
	return &Snapshot{
		RoomID:    "TEST01",
		Phase:     PhaseExplore,
		UpdatedAt: 1000,
		Sessions:  []SessionInfo{{ID: "a", Role: RoleOwner, Nick: "OWNER1"}},
		Player:    &PlayerSnapshot{Score: 0},
		Owner: &OwnerSnapshot{
			WallStock: 10,
			Traps:     []Trap{{Cell: maze.Cell{X: 1, Y: 1}}},
			PredictionMarks: []PredictionMark{
				{Cell: maze.Cell{X: 2, Y: 2}, Active: true},
			},
			Points: []PointEntity{{Cell: maze.Cell{X: 3, Y: 3}}},
		},
		Maze: &MazeSnapshot{
			Seed:  "seed",
			Start: maze.Cell{X: 0, Y: 0},
			Goal:  maze.Cell{X: 4, Y: 4},
			Cells: []maze.MazeCell{
				{X: 0, Y: 0, Walls: maze.Walls{Top: true, Left: true}},
				{X: 1, Y: 0, Walls: maze.Walls{Top: true}},
			},
		},
	}
}

func TestBuildMessageSendsFullSnapshotOnFirstAttach(t *testing.T) {
	b := NewBroadcaster()
	sess := &Session{ID: "s1", LastAckSeq: -1}
	snap := baseSnapshot()

	raw, err := b.BuildMessage(sess, 1, snap, 0)
	require.NoError(t, err)

	var msg OutMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, MsgTypeState, msg.Type)

	var payload StatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.True(t, payload.Full)
	require.NotNil(t, payload.Snapshot)
	assert.Equal(t, snap.RoomID, payload.Snapshot.RoomID)
}

func TestBuildMessageSendsDeltaAfterAck(t *testing.T) {
	b := NewBroadcaster()
	sess := &Session{ID: "s1", LastAckSeq: -1}
	snap := baseSnapshot()

	_, err := b.BuildMessage(sess, 1, snap, 0)
	require.NoError(t, err)
	sess.LastAckSeq = 1

	raw, err := b.BuildMessage(sess, 2, snap, 0)
	require.NoError(t, err)

	var msg OutMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	var payload StatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.False(t, payload.Full)
	require.NotNil(t, payload.Changes)
}

func TestDiffCarriesWallEditAsMazeEdgeChange(t *testing.T) {
	prev := baseSnapshot()
	cur := baseSnapshot()
	cur.Maze.Cells = []maze.MazeCell{
		{X: 0, Y: 0, Walls: maze.Walls{Top: true, Left: true, Right: true}},
		{X: 1, Y: 0, Walls: maze.Walls{Top: true, Left: true}},
	}

	d := diff(prev, cur)
	require.Len(t, d.MazeEdgeChanges, 2)
	assert.Nil(t, d.Maze)

	byCell := map[maze.Cell]maze.MazeCell{}
	for _, c := range d.MazeEdgeChanges {
		byCell[maze.Cell{X: c.X, Y: c.Y}] = c
	}
	assert.True(t, byCell[maze.Cell{X: 0, Y: 0}].Walls.Right)
	assert.True(t, byCell[maze.Cell{X: 1, Y: 0}].Walls.Left)
}

func TestDiffSendsFullMazeOnFirstAppearance(t *testing.T) {
	prev := baseSnapshot()
	prev.Maze = nil
	cur := baseSnapshot()

	d := diff(prev, cur)
	require.NotNil(t, d.Maze)
	assert.Equal(t, cur.Maze.Seed, d.Maze.Seed)
	assert.Nil(t, d.MazeEdgeChanges)
}

func TestDiffReportsConsumedTrapAsRemoved(t *testing.T) {
	prev := baseSnapshot()
	cur := baseSnapshot()
	cur.Owner.Traps = []Trap{{Cell: maze.Cell{X: 1, Y: 1}, Consumed: true}}

	d := diff(prev, cur)
	require.NotNil(t, d.Owner)
	require.Len(t, d.RemovedTraps, 1)
	assert.Equal(t, maze.Cell{X: 1, Y: 1}, d.RemovedTraps[0])
}

func TestDiffReportsTriggeredMarkAsRemoved(t *testing.T) {
	prev := baseSnapshot()
	cur := baseSnapshot()
	cur.Owner.PredictionMarks = []PredictionMark{
		{Cell: maze.Cell{X: 2, Y: 2}, Active: false},
	}

	d := diff(prev, cur)
	require.NotNil(t, d.Owner)
	require.Len(t, d.RemovedMarks, 1)
	assert.Equal(t, maze.Cell{X: 2, Y: 2}, d.RemovedMarks[0])
}

func TestDiffReportsOwnerRemovedMarkAsRemoved(t *testing.T) {
	prev := baseSnapshot()
	cur := baseSnapshot()
	cur.Owner.PredictionMarks = nil // owner explicitly retracted the mark

	d := diff(prev, cur)
	require.NotNil(t, d.Owner)
	require.Len(t, d.RemovedMarks, 1)
	assert.Equal(t, maze.Cell{X: 2, Y: 2}, d.RemovedMarks[0])
}

func TestDiffReportsNewMarkAsAppended(t *testing.T) {
	prev := baseSnapshot()
	cur := baseSnapshot()
	cur.Owner.PredictionMarks = append(cur.Owner.PredictionMarks,
		PredictionMark{Cell: maze.Cell{X: 5, Y: 5}, Active: true})

	d := diff(prev, cur)
	require.NotNil(t, d.Owner)
	require.Len(t, d.Owner.NewMarks, 1)
	assert.Equal(t, maze.Cell{X: 5, Y: 5}, d.Owner.NewMarks[0].Cell)
}

func TestDiffReportsConsumedPointAsNewlyConsumed(t *testing.T) {
	prev := baseSnapshot()
	cur := baseSnapshot()
	cur.Owner.Points = []PointEntity{{Cell: maze.Cell{X: 3, Y: 3}, Consumed: true}}

	d := diff(prev, cur)
	require.NotNil(t, d.Owner)
	require.Len(t, d.Owner.NewlyConsumedPoints, 1)
	assert.Equal(t, maze.Cell{X: 3, Y: 3}, d.Owner.NewlyConsumedPoints[0])
}

func TestDiffReportsNewTrapAsAppended(t *testing.T) {
	prev := baseSnapshot()
	cur := baseSnapshot()
	cur.Owner.Traps = append(cur.Owner.Traps, Trap{Cell: maze.Cell{X: 9, Y: 9}})

	d := diff(prev, cur)
	require.NotNil(t, d.Owner)
	require.Len(t, d.Owner.NewTraps, 1)
	assert.Equal(t, maze.Cell{X: 9, Y: 9}, d.Owner.NewTraps[0].Cell)
}

func TestDiffNoChangeYieldsNilOwnerDelta(t *testing.T) {
	prev := baseSnapshot()
	cur := baseSnapshot()

	d := diff(prev, cur)
	assert.Nil(t, d.Owner)
	assert.Nil(t, d.RemovedTraps)
	assert.Nil(t, d.RemovedMarks)
	assert.Nil(t, d.MazeEdgeChanges)
}
