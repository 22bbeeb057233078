// Package network decodes the JSON-over-WebSocket wire protocol into
// the game package's Command types, and carries the attach-time
// connection query parameters. The binary framing the teacher used for
// its racing protocol doesn't fit a JSON wire format, so this package
// is a from-scratch rewrite grounded on the same responsibility split
// (a thin Decode layer feeding typed messages into the room).
package network

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mazegame/server/internal/game"
	"github.com/mazegame/server/internal/maze"
)

// ErrUnknownType is returned for a message whose "type" field doesn't
// match any recognised inbound command.
var ErrUnknownType = errors.New("network: unknown message type")

// envelope is the shape every client->server message shares.
type envelope struct {
	Type string `json:"type"`
}

type startBody struct {
	MazeSize int `json:"mazeSize"`
}

type editBody struct {
	Edit struct {
		Action string     `json:"action"`
		Cell   *maze.Cell `json:"cell,omitempty"`
		Edge   *wireEdge  `json:"edge,omitempty"`
	} `json:"edit"`
}

type wireEdge struct {
	Cell maze.Cell `json:"cell"`
	Side string    `json:"side"`
}

type markBody struct {
	Cell   maze.Cell `json:"cell"`
	Active bool      `json:"active"`
}

type inputBody struct {
	Forward float64 `json:"forward"`
	Turn    float64 `json:"turn"`
	Seq     int     `json:"seq"`
}

type pingBody struct {
	Ts int64 `json:"ts"`
}

// DecodeCommand parses one inbound JSON frame into the game package's
// command body type. The returned value is suitable to wrap into a
// game.Command alongside the originating Session.
func DecodeCommand(data []byte) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("network: decode envelope: %w", err)
	}

	switch env.Type {
	case "O_START":
		var b startBody
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return game.CmdStart{MazeSize: b.MazeSize}, nil

	case "O_EDIT":
		var b editBody
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		action, err := decodeAction(b.Edit.Action)
		if err != nil {
			return nil, err
		}
		cmd := game.CmdEdit{Action: action}
		if b.Edit.Cell != nil {
			cmd.Cell = *b.Edit.Cell
		}
		if b.Edit.Edge != nil {
			side, err := decodeSide(b.Edit.Edge.Side)
			if err != nil {
				return nil, err
			}
			cmd.Edge = maze.Edge{Cell: b.Edit.Edge.Cell, Side: side}
		}
		return cmd, nil

	case "O_MRK":
		var b markBody
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return game.CmdMark{Cell: b.Cell, Active: b.Active}, nil

	case "P_INPUT":
		var b inputBody
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return game.CmdInput{Forward: b.Forward, Turn: b.Turn, Seq: b.Seq}, nil

	case "PING":
		var b pingBody
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return game.CmdPing{Ts: b.Ts}, nil

	case "RESYNC":
		return game.CmdResync{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeAction(s string) (game.EditAction, error) {
	switch s {
	case "PLACE_WALL":
		return game.ActionPlaceWall, nil
	case "REMOVE_WALL":
		return game.ActionRemoveWall, nil
	case "PLACE_TRAP":
		return game.ActionPlaceTrap, nil
	default:
		return "", fmt.Errorf("network: unknown edit action %q", s)
	}
}

func decodeSide(s string) (maze.Side, error) {
	switch s {
	case "top":
		return maze.SideTop, nil
	case "right":
		return maze.SideRight, nil
	case "bottom":
		return maze.SideBottom, nil
	case "left":
		return maze.SideLeft, nil
	default:
		return 0, fmt.Errorf("network: unknown edge side %q", s)
	}
}
