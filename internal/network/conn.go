package network

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mazegame/server/config"
	"github.com/mazegame/server/internal/game"
)

// ErrConnClosed is returned by Send once the connection has closed.
var ErrConnClosed = errors.New("network: connection closed")

const (
	writeWait      = 10 * time.Second
	readWait       = 60 * time.Second
	maxMessageSize = 8192
	sendBufferSize = 64
)

// ClientConnection adapts a gorilla/websocket connection to the
// game.Conn interface the room talks to, following the teacher's
// read-pump/write-pump goroutine split with a non-blocking buffered
// send channel so a slow client cannot stall the room loop.
type ClientConnection struct {
	ws       *websocket.Conn
	sendChan chan []byte
	done     chan struct{}

	room    *game.Room
	session *game.Session
}

// NewClientConnection wraps an upgraded WebSocket connection.
func NewClientConnection(ws *websocket.Conn) *ClientConnection {
	return &ClientConnection{
		ws:       ws,
		sendChan: make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// Send implements game.Conn: non-blocking, drops the message if the
// outbox is saturated rather than stalling the room's event loop.
func (c *ClientConnection) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.sendChan <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return nil // outbox full: next tick's state message supersedes this one
	}
}

// OutboxLen reports the current depth of the pending-send buffer, used
// by the broadcaster to decide when to downgrade to a full snapshot.
func (c *ClientConnection) OutboxLen() int {
	return len(c.sendChan)
}

// Close implements game.Conn.
func (c *ClientConnection) Close(code string) error {
	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}
	return c.ws.Close()
}

// RemoteAddr implements game.Conn.
func (c *ClientConnection) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Attach associates this connection with the room and session it has
// joined, then starts its read/write pumps.
func (c *ClientConnection) Attach(room *game.Room, session *game.Session) {
	c.room = room
	c.session = session
	go c.writePump()
	go c.readPump()
}

func (c *ClientConnection) writePump() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.sendChan:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *ClientConnection) readPump() {
	defer c.cleanup()

	c.ws.SetReadLimit(maxMessageSize)
	// The first client message (typically PING) must arrive within
	// AttachTimeout of the upgrade completing; once it does, later reads
	// fall back to the longer steady-state readWait/pong-driven deadline.
	c.ws.SetReadDeadline(time.Now().Add(config.AttachTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	first := true
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("network: read error from %s: %v", c.RemoteAddr(), err)
			}
			return
		}
		if first {
			first = false
			c.ws.SetReadDeadline(time.Now().Add(readWait))
		}
		c.handleMessage(data)
	}
}

func (c *ClientConnection) handleMessage(data []byte) {
	body, err := DecodeCommand(data)
	if err != nil {
		log.Printf("network: malformed message from %s: %v", c.RemoteAddr(), err)
		return
	}
	c.room.Submit(game.Command{Session: c.session, Body: body})
}

func (c *ClientConnection) cleanup() {
	if c.room != nil && c.session != nil {
		c.room.Detach(c.session.ID)
	}
	c.Close("read-closed")
}

// AttachParams is the parsed ?room=&role=&nick= query string from a
// WebSocket upgrade request.
type AttachParams struct {
	RoomCode string
	Role     game.Role
	Nick     string
}

// ParseAttachParams validates the query string: role must be owner or
// player, room must be non-empty, and nick must be config.MinNickLen to
// config.MaxNickLen characters from A-Z0-9_-.
func ParseAttachParams(r *http.Request) (AttachParams, error) {
	q := r.URL.Query()
	code := q.Get("room")
	roleStr := q.Get("role")
	nick := q.Get("nick")

	var role game.Role
	switch roleStr {
	case "owner":
		role = game.RoleOwner
	case "player":
		role = game.RolePlayer
	default:
		return AttachParams{}, fmt.Errorf("network: invalid role %q", roleStr)
	}

	if code == "" {
		return AttachParams{}, errors.New("network: missing room code")
	}
	if !validNick(nick) {
		return AttachParams{}, fmt.Errorf("network: invalid nick %q", nick)
	}

	return AttachParams{RoomCode: code, Role: role, Nick: nick}, nil
}

func validNick(nick string) bool {
	if len(nick) < config.MinNickLen || len(nick) > config.MaxNickLen {
		return false
	}
	for i := 0; i < len(nick); i++ {
		c := nick[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}
