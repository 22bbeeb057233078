package game

import (
	"time"

	"github.com/google/uuid"
)

// Conn is the network abstraction a Session writes to. Production code
// backs it with a gorilla/websocket connection; tests back it with an
// in-memory fake so the broadcast layer is testable without a socket.
type Conn interface {
	Send(data []byte) error
	Close(code string) error
	RemoteAddr() string
}

// Session is a single connected client attached to a Room.
type Session struct {
	ID   string
	Role Role
	Nick string
	Conn Conn

	LastAckSeq int64

	LastHeardAt    time.Time
	PingInFlightAt time.Time
	HasPingInFlight bool
	RTT            time.Duration

	// Absent is true once the session's connection has closed or it has
	// gone SessionTimeout without a message; while a game is running the
	// room enters a disconnect pause for it.
	Absent bool
}

// NewSession creates a Session with a fresh internal ID. The ID is
// never exposed as the room's join code (see SPEC_FULL.md section 10).
func NewSession(role Role, nick string, conn Conn, now time.Time) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Role:       role,
		Nick:       nick,
		Conn:       conn,
		LastAckSeq: -1,
		LastHeardAt: now,
	}
}
