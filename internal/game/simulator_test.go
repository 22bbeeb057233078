package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazegame/server/config"
	"github.com/mazegame/server/internal/maze"
)

func openRoom(size int) *maze.State {
	return &maze.State{
		Size:  size,
		Seed:  "sim-test",
		Cells: make([]maze.MazeCell, size*size),
		Start: maze.Cell{X: 0, Y: 0},
		Goal:  maze.Cell{X: size - 1, Y: size - 1},
	}
}

// fullyOpenMaze returns a size x size maze with every interior wall
// carved away, for simulator tests that want unobstructed movement.
func fullyOpenMaze(size int) *maze.State {
	m := openRoom(size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			m.Cells[y*size+x] = maze.MazeCell{X: x, Y: y}
		}
	}
	return m
}

func TestSimulatorMovesPlayerAlongOpenCorridor(t *testing.T) {
	m := fullyOpenMaze(20)
	owner := NewOwnerState(20, config.WallStockBySize[20])
	rt := NewMazeRuntime(m, owner)

	sim := NewSimulator()
	now := time.Now()
	input := PlayerInput{Forward: 1, Turn: 0, Seq: 1, ReceivedAt: now}

	startX := rt.Player.Position.X
	sim.Step(rt, input, 1, now, 300*time.Second)

	assert.Greater(t, rt.Player.Position.X, startX)
}

func TestSimulatorStaleInputTreatedAsZero(t *testing.T) {
	m := fullyOpenMaze(20)
	owner := NewOwnerState(20, config.WallStockBySize[20])
	rt := NewMazeRuntime(m, owner)

	sim := NewSimulator()
	now := time.Now()
	input := PlayerInput{Forward: 1, Turn: 0, Seq: 1, ReceivedAt: now.Add(-2 * time.Second)}

	startPos := rt.Player.Position
	sim.Step(rt, input, 1, now, 300*time.Second)

	assert.Equal(t, startPos, rt.Player.Position)
}

func TestSimulatorNeverCrossesASolidWall(t *testing.T) {
	m := openRoom(20) // every cell fully walled
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			m.Cells[y*20+x] = maze.MazeCell{X: x, Y: y, Walls: maze.Walls{Top: true, Right: true, Bottom: true, Left: true}}
		}
	}
	owner := NewOwnerState(20, config.WallStockBySize[20])
	rt := NewMazeRuntime(m, owner)

	sim := NewSimulator()
	now := time.Now()
	input := PlayerInput{Forward: 1, Turn: 0, Seq: 1, ReceivedAt: now}

	for i := int64(0); i < 40; i++ {
		sim.Step(rt, input, i, now, 300*time.Second)
	}

	cx := int(rt.Player.Position.X)
	cy := int(rt.Player.Position.Y)
	assert.Equal(t, 0, cx)
	assert.Equal(t, 0, cy)
}

func TestSimulatorGoalReachedAwardsBonus(t *testing.T) {
	m := fullyOpenMaze(20)
	owner := NewOwnerState(20, config.WallStockBySize[20])
	rt := NewMazeRuntime(m, owner)
	rt.Player.Position = maze.Vector2{X: 19.5, Y: 19.5} // already standing in the goal cell
	rt.TargetScore = 10
	rt.GoalBonus = 2

	sim := NewSimulator()
	now := time.Now()
	result := sim.Step(rt, PlayerInput{ReceivedAt: now}, 1, now, 300*time.Second)

	assert.True(t, result.GoalReached)
	assert.Equal(t, 2, rt.Player.Score)
}

func TestSimulatorTrapSlowsPlayer(t *testing.T) {
	m := fullyOpenMaze(20)
	owner := NewOwnerState(20, config.WallStockBySize[20])
	rt := NewMazeRuntime(m, owner)
	rt.Owner.Traps = append(rt.Owner.Traps, Trap{Cell: maze.Cell{X: 0, Y: 0}})

	sim := NewSimulator()
	now := time.Now()
	result := sim.Step(rt, PlayerInput{Forward: 0, Turn: 0, ReceivedAt: now}, 5, now, 300*time.Second)

	require.True(t, result.TrapTriggered)
	assert.True(t, rt.Owner.Traps[0].Consumed)
	assert.Greater(t, rt.Player.SlowUntilTick, int64(5))
}

func TestSimulatorPointPickupIncrementsScore(t *testing.T) {
	m := fullyOpenMaze(20)
	owner := NewOwnerState(20, config.WallStockBySize[20])
	rt := NewMazeRuntime(m, owner)
	rt.Points = []PointEntity{{Cell: maze.Cell{X: 0, Y: 0}}}

	sim := NewSimulator()
	now := time.Now()
	result := sim.Step(rt, PlayerInput{ReceivedAt: now}, 1, now, 300*time.Second)

	assert.Equal(t, 1, result.PointsGained)
	assert.Equal(t, 1, rt.Player.Score)
	assert.True(t, rt.Points[0].Consumed)
}

func TestSeedStreamIsDeterministic(t *testing.T) {
	a := seedStream("room-seed", "prediction", 1, 2)
	b := seedStream("room-seed", "prediction", 1, 2)
	c := seedStream("room-seed", "prediction", 1, 3)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
