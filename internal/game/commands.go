package game

import "github.com/mazegame/server/internal/maze"

// EditAction names the owner edit sub-commands carried by O_EDIT.
type EditAction string

const (
	ActionPlaceWall  EditAction = "PLACE_WALL"
	ActionRemoveWall EditAction = "REMOVE_WALL"
	ActionPlaceTrap  EditAction = "PLACE_TRAP"
)

// CmdStart is O_START.
type CmdStart struct{ MazeSize int }

// CmdEdit is O_EDIT.
type CmdEdit struct {
	Action EditAction
	Edge   maze.Edge
	Cell   maze.Cell
}

// CmdMark is O_MRK.
type CmdMark struct {
	Cell   maze.Cell
	Active bool
}

// CmdInput is P_INPUT.
type CmdInput struct {
	Forward float64
	Turn    float64
	Seq     int
}

// CmdPing is PING.
type CmdPing struct{ Ts int64 }

// CmdResync requests a full snapshot resend on the next broadcast.
type CmdResync struct{}

// Command is one inbound message attributed to the session that sent it.
type Command struct {
	Session *Session
	Body    interface{}
}
