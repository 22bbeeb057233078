package game

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/mazegame/server/config"
	"github.com/mazegame/server/internal/maze"
)

// PointEntity is an auto-generated collectible scattered through the
// maze at game start; collecting one increments the player's score by 1.
type PointEntity struct {
	Cell     maze.Cell `json:"cell"`
	Consumed bool      `json:"consumed"`
}

// MazeRuntime bundles everything the simulator advances per tick: the
// maze geometry, player kinematics, owner resources and the scattered
// point entities. Room owns one of these per active game.
type MazeRuntime struct {
	Maze        *maze.State
	Player      *PlayerKinematics
	Owner       *OwnerState
	Points      []PointEntity
	TargetScore int
	GoalBonus   int
}

// NewMazeRuntime builds the runtime state for a freshly generated maze:
// scatters point entities deterministically and computes target score.
func NewMazeRuntime(m *maze.State, owner *OwnerState) *MazeRuntime {
	reachable := maze.Reachable(m, m.Start)
	candidates := make([]maze.Cell, 0, len(reachable))
	startKey := m.Start.Y*m.Size + m.Start.X
	goalKey := m.Goal.Y*m.Size + m.Goal.X
	for key := range reachable {
		if key == startKey || key == goalKey {
			continue
		}
		y := key / m.Size
		x := key % m.Size
		candidates = append(candidates, maze.Cell{X: x, Y: y})
	}
	// Sort for determinism (map iteration order is random in Go).
	sortCells(candidates)

	numPoints := int(math.Round(float64(len(candidates)) * config.TargetPointRate))
	if numPoints > len(candidates) {
		numPoints = len(candidates)
	}

	rng := rand.New(rand.NewSource(seedStream(m.Seed, "points", 0)))
	rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	points := make([]PointEntity, numPoints)
	for i := 0; i < numPoints; i++ {
		points[i] = PointEntity{Cell: candidates[i]}
	}

	target := numPoints
	goalBonus := 0
	if target > 0 {
		goalBonus = int(math.Ceil(float64(target) / 5.0))
	}

	return &MazeRuntime{
		Maze: m,
		Player: &PlayerKinematics{
			Position: maze.Vector2{X: float64(m.Start.X) + 0.5, Y: float64(m.Start.Y) + 0.5},
		},
		Owner:       owner,
		Points:      points,
		TargetScore: target,
		GoalBonus:   goalBonus,
	}
}

func sortCells(cells []maze.Cell) {
	for i := 1; i < len(cells); i++ {
		for j := i; j > 0 && (cells[j].Y < cells[j-1].Y || (cells[j].Y == cells[j-1].Y && cells[j].X < cells[j-1].X)); j-- {
			cells[j], cells[j-1] = cells[j-1], cells[j]
		}
	}
}

// seedStream derives a deterministic int64 RNG seed from a room seed
// plus arbitrary disambiguating components (a stream name, a tick, an
// index). Same inputs always yield the same seed, as required by the
// determinism invariant.
func seedStream(roomSeed string, stream string, components ...int64) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(roomSeed))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(stream))
	for _, c := range components {
		var b [8]byte
		for i := 0; i < 8; i++ {
			b[i] = byte(c >> (8 * i))
		}
		_, _ = h.Write(b[:])
	}
	return int64(h.Sum64())
}

// Simulator advances player kinematics, trap effects, pickups and the
// goal check once per tick. It is deterministic: identical inputs and
// state always produce identical output.
type Simulator struct{}

// NewSimulator constructs a Simulator.
func NewSimulator() *Simulator { return &Simulator{} }

// StepResult reports what happened during a tick, for the room to act on.
type StepResult struct {
	GoalReached   bool
	TrapTriggered bool
	PredictionHit int // index into Owner.PredictionMarks, -1 if none
	PointsGained  int
}

// Step runs one deterministic tick. `tick` is the room's monotonic
// tick counter, used both for slowUntil bookkeeping and RNG seeding.
func (s *Simulator) Step(rt *MazeRuntime, input PlayerInput, tick int64, now time.Time, remainingPhase time.Duration) StepResult {
	result := StepResult{PredictionHit: -1}
	p := rt.Player

	// 1. Input sampling: stale input (>1s) is treated as zero.
	forward, turn := input.Forward, input.Turn
	if now.Sub(input.ReceivedAt) > time.Second {
		forward, turn = 0, 0
	}

	// 2. Angle update.
	p.Angle = wrapAngle(p.Angle + turn*config.TurnSpeed*config.TickInterval.Seconds())

	// 3. Velocity.
	slowActive := p.SlowUntilTick > tick
	effectiveSpeed := config.MoveSpeed
	if slowActive {
		effectiveSpeed *= config.TrapSpeedMultiplier
	}
	p.Velocity = maze.Vector2{
		X: math.Cos(p.Angle) * forward * effectiveSpeed,
		Y: math.Sin(p.Angle) * forward * effectiveSpeed,
	}

	// 4. Axis-separated collision.
	dt := config.TickInterval.Seconds()
	p.Position.X = moveAxis(rt.Maze, p.Position, p.Velocity.X*dt, true)
	p.Position.Y = moveAxisUpdateY(rt.Maze, p.Position, p.Velocity.Y*dt)

	cell := maze.Cell{X: int(math.Floor(p.Position.X)), Y: int(math.Floor(p.Position.Y))}

	// 5. Trap trigger.
	for i := range rt.Owner.Traps {
		t := &rt.Owner.Traps[i]
		if t.Consumed || t.Cell != cell {
			continue
		}
		t.Consumed = true
		slowDuration := remainingPhase / config.TrapDurationDivisor
		p.SlowUntilTick = tick + int64(slowDuration/config.TickInterval)
		result.TrapTriggered = true
		break
	}

	// 6. Prediction pickup.
	for i := range rt.Owner.PredictionMarks {
		m := &rt.Owner.PredictionMarks[i]
		if !m.Active || m.Cell != cell {
			continue
		}
		m.Active = false
		p.PredictionHits++
		result.PredictionHit = i

		rng := rand.New(rand.NewSource(seedStream(rt.Maze.Seed, "prediction", tick, int64(i))))
		if rng.Float64() < config.PredictionBonusWallProb {
			rt.Owner.WallStock++
		} else {
			rt.Owner.TrapCharges++
		}
		break
	}

	// 7. Point pickup.
	for i := range rt.Points {
		pt := &rt.Points[i]
		if pt.Consumed || pt.Cell != cell {
			continue
		}
		pt.Consumed = true
		p.Score++
		result.PointsGained++
	}

	// 8. Goal check.
	if cell == rt.Maze.Goal {
		p.Score += rt.GoalBonus
		result.GoalReached = true
	}

	return result
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// moveAxis advances one axis (X when isX, otherwise Y), using a binary
// search to find the largest collision-free offset if the full step
// would collide.
func moveAxis(m *maze.State, pos maze.Vector2, dx float64, isX bool) float64 {
	if dx == 0 {
		if isX {
			return pos.X
		}
		return pos.Y
	}
	start := pos.X
	if !isX {
		start = pos.Y
	}
	full := start + dx
	if !collides(m, withAxis(pos, isX, full)) {
		return full
	}

	lo, hi := 0.0, dx
	for i := 0; i < 12; i++ {
		mid := (lo + hi) / 2
		candidate := start + mid
		if collides(m, withAxis(pos, isX, candidate)) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return start + lo
}

// moveAxisUpdateY advances Y using the already-updated X so the two
// axes are resolved sequentially (axis-separated collision).
func moveAxisUpdateY(m *maze.State, pos maze.Vector2, dy float64) float64 {
	return moveAxis(m, pos, dy, false)
}

func withAxis(pos maze.Vector2, isX bool, v float64) maze.Vector2 {
	if isX {
		pos.X = v
	} else {
		pos.Y = v
	}
	return pos
}

// collides reports whether a disc of PlayerRadius centred at pos
// intersects any solid edge of its incident cells.
func collides(m *maze.State, pos maze.Vector2) bool {
	cx, cy := int(math.Floor(pos.X)), int(math.Floor(pos.Y))
	if !m.InBounds(cx, cy) {
		return true
	}
	r := config.PlayerRadius
	localX := pos.X - float64(cx)
	localY := pos.Y - float64(cy)

	if localX-r < 0 && m.HasWall(cx, cy, maze.SideLeft) {
		return true
	}
	if localX+r > 1 && m.HasWall(cx, cy, maze.SideRight) {
		return true
	}
	if localY-r < 0 && m.HasWall(cx, cy, maze.SideTop) {
		return true
	}
	if localY+r > 1 && m.HasWall(cx, cy, maze.SideBottom) {
		return true
	}
	return false
}
