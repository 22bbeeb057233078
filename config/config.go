// Package config holds the fixed constants and server configuration for
// the maze game server. Values mirror the wire protocol exactly — they
// are shared with the client and must never drift silently.
package config

import "time"

// Network / simulation rates.
const (
	TickRate       = 20 // Hz
	TickInterval   = time.Second / TickRate
	ClientFrameCap = 30 // fps, informational only (client-side)
)

// View / rendering constants, carried for snapshot completeness even
// though rendering itself is out of scope.
const (
	FieldOfViewDeg = 90
	ViewRangeCells = 4
)

// Player kinematics.
const (
	MoveSpeed           = 2.0                         // cells/sec
	TurnSpeed           = 2 * 3.14159265358979323846 // rad/sec (2*pi)
	PlayerRadius        = 0.35                         // cells
	TrapSpeedMultiplier = 0.4
	TrapDurationDivisor = 5
)

// Owner resources / editing.
const (
	MaxActiveTraps    = 2
	OwnerEditCooldown = 1 * time.Second
	LatencyWarningMs  = 100
)

// WallStockBySize gives the starting wall stock for each supported maze size.
var WallStockBySize = map[int]int{
	20: 48,
	40: 140,
}

// Scoring.
const (
	TargetPointRate         = 0.65 // of reachable points
	GoalBonusRate           = 0.20 // of target score
	PredictionBonusWallProb = 0.7
	PredictionBonusTrapProb = 0.3
)

// Phase durations. Lobby and result are open-ended (zero means "no
// automatic expiry").
const (
	CountdownDuration = 3 * time.Second
	PrepDuration      = 60 * time.Second
	ExploreDuration   = 300 * time.Second
)

// Liveness / pause.
const (
	HeartbeatInterval = 5 * time.Second
	SessionTimeout    = 15 * time.Second
	DisconnectGrace   = 60 * time.Second
	AttachTimeout     = 5 * time.Second
)

// OwnerZoomLevels are the client zoom levels, carried through for
// snapshot/HUD completeness.
var OwnerZoomLevels = []float64{0.5, 0.75, 1, 1.5, 2, 3, 4}

// Room directory.
const (
	RoomCodeLength     = 6
	RoomCodeAlphabet   = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ" // Crockford-like, ambiguous chars removed
	MaxCodeGenAttempts = 64
	IdleRoomTTL        = 5 * time.Minute
	IdleSweepPeriod    = 30 * time.Second
)

// Nickname constraints (2..10 A-Z0-9_- chars).
const (
	MinNickLen = 2
	MaxNickLen = 10
)

// Supported maze sizes.
var MazeSizes = []int{20, 40}

// ServerConfig holds process-wide HTTP server settings.
type ServerConfig struct {
	Host       string
	Port       int
	EnableCORS bool
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:       "0.0.0.0",
		Port:       8080,
		EnableCORS: true,
	}
}
