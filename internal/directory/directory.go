// Package directory maintains the live set of rooms keyed by their
// short join code, mirroring the teacher's matchmaker room-code
// allocation and cleanup sweep, generalised from a single racing
// lobby to an arbitrary number of concurrent maze rooms.
package directory

import (
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/mazegame/server/config"
	"github.com/mazegame/server/internal/game"
	"github.com/mazegame/server/internal/maze"
)

// ErrUnknownRoom is returned when a join code has no matching room.
var ErrUnknownRoom = errors.New("directory: unknown room code")

// ErrCodeSpaceExhausted is returned if no free code could be generated
// within config.MaxCodeGenAttempts tries.
var ErrCodeSpaceExhausted = errors.New("directory: could not allocate a room code")

// Directory holds every live room, guarded by a single mutex held for
// map operations, code allocation and the idle sweep's scan over all
// rooms — actual room mutation happens on each room's own goroutine,
// never under this lock.
type Directory struct {
	mu      sync.Mutex
	rooms   map[string]*game.Room
	clock   game.Clock
	factory maze.Factory

	stopCh chan struct{}
}

// New constructs an empty Directory and starts its idle-room sweep.
func New(clock game.Clock, factory maze.Factory) *Directory {
	d := &Directory{
		rooms:   make(map[string]*game.Room),
		clock:   clock,
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go d.sweepLoop()
	return d
}

// Stop halts the idle sweep and every room's event loop.
func (d *Directory) Stop() {
	close(d.stopCh)
	d.mu.Lock()
	rooms := make([]*game.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.Unlock()
	for _, r := range rooms {
		r.Stop()
	}
}

// CreateRoom allocates a fresh join code and starts a new Room's event
// loop in its own goroutine.
func (d *Directory) CreateRoom() (*game.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	code, err := d.allocateCodeLocked()
	if err != nil {
		return nil, err
	}

	room := game.NewRoom(code, d.clock, d.factory)
	d.rooms[code] = room
	go room.Run()
	log.Printf("directory: created room %s", code)
	return room, nil
}

// Lookup finds a room by its user-facing code (case-insensitive).
func (d *Directory) Lookup(code string) (*game.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[normalizeCode(code)]
	if !ok {
		return nil, ErrUnknownRoom
	}
	return room, nil
}

// Evict removes a room from the directory and stops its event loop.
// Safe to call more than once for the same room.
func (d *Directory) Evict(code string) {
	d.mu.Lock()
	room, ok := d.rooms[code]
	if ok {
		delete(d.rooms, code)
	}
	d.mu.Unlock()
	if ok {
		room.Stop()
		log.Printf("directory: evicted room %s", code)
	}
}

// RoomCount reports how many rooms are currently tracked.
func (d *Directory) RoomCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

func (d *Directory) allocateCodeLocked() (string, error) {
	for attempt := 0; attempt < config.MaxCodeGenAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		if _, exists := d.rooms[code]; !exists {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

func randomCode() (string, error) {
	alphabet := config.RoomCodeAlphabet
	out := make([]byte, config.RoomCodeLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

func normalizeCode(code string) string {
	out := make([]byte, 0, len(code))
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// sweepLoop periodically evicts rooms that have had no attached
// sessions for longer than config.IdleRoomTTL.
func (d *Directory) sweepLoop() {
	ticker := time.NewTicker(config.IdleSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case now := <-ticker.C:
			d.sweepOnce(now)
		}
	}
}

func (d *Directory) sweepOnce(now time.Time) {
	d.mu.Lock()
	stale := make(map[string]*game.Room)
	for code, room := range d.rooms {
		if room.IdleFor(now) > config.IdleRoomTTL {
			stale[code] = room
		}
	}
	for code := range stale {
		delete(d.rooms, code)
	}
	d.mu.Unlock()

	for code, room := range stale {
		room.Stop()
		log.Printf("directory: sweeping idle room %s", code)
	}
}
