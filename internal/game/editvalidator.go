package game

import (
	"time"

	"github.com/mazegame/server/config"
	"github.com/mazegame/server/internal/maze"
)

// ErrCode is the closed set of error codes surfaced to clients.
type ErrCode string

const (
	ErrInvalidPhase     ErrCode = "INVALID_PHASE"
	ErrCooldown         ErrCode = "COOLDOWN"
	ErrNoResource       ErrCode = "NO_RESOURCE"
	ErrForbiddenArea    ErrCode = "FORBIDDEN_AREA"
	ErrDisconnectsMaze  ErrCode = "DISCONNECTS_MAZE"
	ErrOutOfBounds      ErrCode = "OUT_OF_BOUNDS"
	ErrInvalidArg       ErrCode = "INVALID_ARG"
	ErrInvalidRoom      ErrCode = "INVALID_ROOM"
	ErrInvalidName      ErrCode = "INVALID_NAME"
	ErrRoomFull         ErrCode = "ROOM_FULL"
	ErrTakeover         ErrCode = "TAKEOVER"
	ErrNetworkError     ErrCode = "NETWORK_ERROR"
)

// ValidationError is returned by EditValidator checks; Code is always
// one of the closed ErrCode values above.
type ValidationError struct{ Code ErrCode }

func (e *ValidationError) Error() string { return string(e.Code) }

func fail(code ErrCode) error { return &ValidationError{Code: code} }

// EditValidator checks inbound owner/player commands against the
// invariants of spec.md section 4.3.
type EditValidator struct{}

// NewEditValidator constructs an EditValidator.
func NewEditValidator() *EditValidator { return &EditValidator{} }

// chebyshev returns the Chebyshev distance between two cells.
func chebyshev(a, b maze.Cell) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

func playerCell(rt *MazeRuntime) maze.Cell {
	return maze.Cell{X: int(rt.Player.Position.X), Y: int(rt.Player.Position.Y)}
}

// ValidatePlaceWall checks PLACE_WALL during prep or explore.
func (v *EditValidator) ValidatePlaceWall(rt *MazeRuntime, phase Phase, edge maze.Edge, now time.Time) error {
	if phase != PhasePrep && phase != PhaseExplore {
		return fail(ErrInvalidPhase)
	}
	if rt.Owner.WallStock <= 0 {
		return fail(ErrNoResource)
	}
	if now.Before(rt.Owner.EditCooldownUntil) {
		return fail(ErrCooldown)
	}
	if !rt.Maze.InBounds(edge.Cell.X, edge.Cell.Y) {
		return fail(ErrOutOfBounds)
	}
	if rt.Maze.HasWall(edge.Cell.X, edge.Cell.Y, edge.Side) {
		return fail(ErrInvalidArg)
	}
	if chebyshev(edge.Cell, playerCell(rt)) <= rt.Owner.ForbiddenDistance {
		return fail(ErrForbiddenArea)
	}

	trial := rt.Maze.Clone()
	trial.SetWall(edge.Cell.X, edge.Cell.Y, edge.Side, true)
	if !maze.IsConnected(trial) {
		return fail(ErrDisconnectsMaze)
	}
	return nil
}

// ApplyPlaceWall mutates state after ValidatePlaceWall has succeeded.
func (v *EditValidator) ApplyPlaceWall(rt *MazeRuntime, edge maze.Edge, now time.Time) {
	rt.Maze.SetWall(edge.Cell.X, edge.Cell.Y, edge.Side, true)
	rt.Owner.WallStock--
	rt.Owner.EditCooldownUntil = now.Add(config.OwnerEditCooldown)
}

// ValidateRemoveWall checks REMOVE_WALL during prep or explore.
func (v *EditValidator) ValidateRemoveWall(rt *MazeRuntime, phase Phase, edge maze.Edge, now time.Time) error {
	if phase != PhasePrep && phase != PhaseExplore {
		return fail(ErrInvalidPhase)
	}
	if rt.Owner.WallRemoveLeft <= 0 {
		return fail(ErrNoResource)
	}
	if now.Before(rt.Owner.EditCooldownUntil) {
		return fail(ErrCooldown)
	}
	if !rt.Maze.InBounds(edge.Cell.X, edge.Cell.Y) {
		return fail(ErrOutOfBounds)
	}
	if !rt.Maze.HasWall(edge.Cell.X, edge.Cell.Y, edge.Side) {
		return fail(ErrInvalidArg)
	}

	trial := rt.Maze.Clone()
	trial.SetWall(edge.Cell.X, edge.Cell.Y, edge.Side, false)
	if !maze.IsConnected(trial) {
		return fail(ErrDisconnectsMaze)
	}
	return nil
}

// ApplyRemoveWall mutates state after ValidateRemoveWall has succeeded.
func (v *EditValidator) ApplyRemoveWall(rt *MazeRuntime, edge maze.Edge, now time.Time) {
	rt.Maze.SetWall(edge.Cell.X, edge.Cell.Y, edge.Side, false)
	rt.Owner.WallRemoveLeft--
	rt.Owner.EditCooldownUntil = now.Add(config.OwnerEditCooldown)
}

// ValidatePlaceTrap checks PLACE_TRAP during prep only.
func (v *EditValidator) ValidatePlaceTrap(rt *MazeRuntime, phase Phase, cell maze.Cell, now time.Time) error {
	if phase != PhasePrep {
		return fail(ErrInvalidPhase)
	}
	if rt.Owner.TrapCharges <= 0 {
		return fail(ErrNoResource)
	}
	if now.Before(rt.Owner.EditCooldownUntil) {
		return fail(ErrCooldown)
	}
	if !rt.Maze.InBounds(cell.X, cell.Y) {
		return fail(ErrOutOfBounds)
	}
	if rt.Owner.ActiveTraps() >= config.MaxActiveTraps {
		return fail(ErrNoResource)
	}
	if chebyshev(cell, playerCell(rt)) <= rt.Owner.ForbiddenDistance {
		return fail(ErrForbiddenArea)
	}
	return nil
}

// ApplyPlaceTrap mutates state after ValidatePlaceTrap has succeeded.
func (v *EditValidator) ApplyPlaceTrap(rt *MazeRuntime, cell maze.Cell, tick int64, now time.Time) {
	rt.Owner.Traps = append(rt.Owner.Traps, Trap{Cell: cell, PlacedAtTick: tick})
	rt.Owner.TrapCharges--
	rt.Owner.EditCooldownUntil = now.Add(config.OwnerEditCooldown)
}

// ValidateMark checks O_MRK during prep only.
func (v *EditValidator) ValidateMark(rt *MazeRuntime, phase Phase, cell maze.Cell, active bool) error {
	if phase != PhasePrep {
		return fail(ErrInvalidPhase)
	}
	if !rt.Maze.InBounds(cell.X, cell.Y) {
		return fail(ErrOutOfBounds)
	}
	if active {
		if rt.Owner.ActivePredictions() >= rt.Owner.PredictionLimit {
			return fail(ErrNoResource)
		}
		for _, m := range rt.Owner.PredictionMarks {
			if m.Cell == cell {
				return fail(ErrInvalidArg)
			}
		}
		if chebyshev(cell, playerCell(rt)) <= rt.Owner.ForbiddenDistance {
			return fail(ErrForbiddenArea)
		}
		return nil
	}

	for _, m := range rt.Owner.PredictionMarks {
		if m.Cell == cell {
			return nil
		}
	}
	return fail(ErrInvalidArg)
}

// ApplyMark mutates state after ValidateMark has succeeded.
func (v *EditValidator) ApplyMark(rt *MazeRuntime, cell maze.Cell, active bool) {
	if active {
		rt.Owner.PredictionMarks = append(rt.Owner.PredictionMarks, PredictionMark{Cell: cell, Active: true})
		return
	}
	for i := range rt.Owner.PredictionMarks {
		if rt.Owner.PredictionMarks[i].Cell == cell {
			rt.Owner.PredictionMarks = append(rt.Owner.PredictionMarks[:i], rt.Owner.PredictionMarks[i+1:]...)
			return
		}
	}
}

// ValidateInput checks a P_INPUT command during explore only. Replayed
// or out-of-order sequence numbers are the caller's job to treat as a
// silent no-op (spec round-trip property), not an ERR — this only
// validates phase legality and numeric range.
func (v *EditValidator) ValidateInput(phase Phase, forward, turn float64) error {
	if phase != PhaseExplore {
		return fail(ErrInvalidPhase)
	}
	if forward < -1 || forward > 1 || turn < -1 || turn > 1 {
		return fail(ErrInvalidArg)
	}
	return nil
}

// ValidateStart checks O_START during lobby only.
func (v *EditValidator) ValidateStart(phase Phase, hasOwner, hasPlayer bool, mazeSize int) error {
	if phase != PhaseLobby {
		return fail(ErrInvalidPhase)
	}
	if !hasOwner || !hasPlayer {
		return fail(ErrInvalidArg)
	}
	supported := false
	for _, sz := range config.MazeSizes {
		if sz == mazeSize {
			supported = true
		}
	}
	if !supported {
		return fail(ErrInvalidArg)
	}
	return nil
}
