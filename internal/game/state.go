package game

import (
	"time"

	"github.com/mazegame/server/config"
	"github.com/mazegame/server/internal/maze"
)

// Role identifies which side of the asymmetric match a session plays.
type Role string

const (
	RoleOwner  Role = "owner"
	RolePlayer Role = "player"
)

// PlayerKinematics is the player's simulated physical state.
type PlayerKinematics struct {
	Position       maze.Vector2
	Velocity       maze.Vector2
	Angle          float64 // radians in (-pi, pi]
	PredictionHits int
	Score          int
	SlowUntilTick  int64 // 0 means not slowed
}

// PlayerInput is the most recently received movement intent.
type PlayerInput struct {
	Forward   float64
	Turn      float64
	Seq       int
	ReceivedAt time.Time
}

// Trap is an owner-placed hazard that slows the player once triggered.
type Trap struct {
	Cell         maze.Cell `json:"cell"`
	PlacedAtTick int64     `json:"placedAtTick"`
	Consumed     bool      `json:"consumed"`
}

// PredictionMark is an owner-placed cell that scores on first player entry.
type PredictionMark struct {
	Cell   maze.Cell `json:"cell"`
	Active bool      `json:"active"`
}

// OwnerState is the owner's editing resources and placed entities.
type OwnerState struct {
	WallStock         int
	WallRemoveLeft    int
	TrapCharges       int
	EditCooldownUntil time.Time
	PredictionLimit   int
	PredictionMarks   []PredictionMark
	Traps             []Trap
	ForbiddenDistance int
}

// ActivePredictions counts marks still active.
func (o *OwnerState) ActivePredictions() int {
	n := 0
	for _, m := range o.PredictionMarks {
		if m.Active {
			n++
		}
	}
	return n
}

// ActiveTraps counts traps not yet consumed.
func (o *OwnerState) ActiveTraps() int {
	n := 0
	for _, t := range o.Traps {
		if !t.Consumed {
			n++
		}
	}
	return n
}

// NewOwnerState builds the starting owner resource pool for a maze size.
func NewOwnerState(mazeSize int, wallStock int) *OwnerState {
	return &OwnerState{
		WallStock:       wallStock,
		WallRemoveLeft:  1,
		TrapCharges:     MaxActiveTrapsStartCharges,
		PredictionLimit: 3,
		ForbiddenDistance: 2,
		PredictionMarks: make([]PredictionMark, 0, 3),
		Traps:           make([]Trap, 0, config.MaxActiveTraps),
	}
}

// MaxActiveTrapsStartCharges is the number of trap charges an owner
// starts prep with — enough to fill the active-trap cap once plus one
// spare, matching the "two charges used across a prep+explore game"
// feel described by the forbidden-radius and cooldown scenarios.
const MaxActiveTrapsStartCharges = 3
