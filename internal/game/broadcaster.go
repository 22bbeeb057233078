package game

import (
	"encoding/json"
	"time"

	"github.com/mazegame/server/internal/maze"
)

// SessionInfo is the public-facing view of a Session carried in a Snapshot.
type SessionInfo struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Nick string `json:"nick"`
}

// PlayerSnapshot is the public view of PlayerKinematics.
type PlayerSnapshot struct {
	Position       maze.Vector2 `json:"position"`
	Velocity       maze.Vector2 `json:"velocity"`
	Angle          float64      `json:"angle"`
	PredictionHits int          `json:"predictionHits"`
	Score          int          `json:"score"`
}

// OwnerSnapshot is the public view of OwnerState plus runtime points.
type OwnerSnapshot struct {
	WallStock             int              `json:"wallStock"`
	WallRemoveLeft         int              `json:"wallRemoveLeft"`
	TrapCharges            int              `json:"trapCharges"`
	EditCooldownUntil      int64            `json:"editCooldownUntil"`
	EditCooldownDurationMs int64            `json:"editCooldownDuration"`
	ForbiddenDistance      int              `json:"forbiddenDistance"`
	PredictionLimit        int              `json:"predictionLimit"`
	PredictionHits         int              `json:"predictionHits"`
	PredictionMarks        []PredictionMark `json:"predictionMarks"`
	Traps                  []Trap           `json:"traps"`
	Points                 []PointEntity    `json:"points"`
}

// MazeSnapshot is the public view of maze.State.
type MazeSnapshot struct {
	Seed  string           `json:"seed"`
	Start maze.Cell        `json:"start"`
	Goal  maze.Cell        `json:"goal"`
	Cells []maze.MazeCell  `json:"cells"`
}

// Snapshot is the full authoritative room state sent to a client.
type Snapshot struct {
	RoomID                 string         `json:"roomId"`
	Phase                  Phase          `json:"phase"`
	PhaseEndsAt            *int64         `json:"phaseEndsAt,omitempty"`
	MazeSize               int            `json:"mazeSize"`
	UpdatedAt              int64          `json:"updatedAt"`
	CountdownDurationMs    int64          `json:"countdownDurationMs"`
	PrepDurationMs         int64          `json:"prepDurationMs"`
	ExploreDurationMs      int64          `json:"exploreDurationMs"`
	TargetScore            int            `json:"targetScore"`
	PointCompensationAward int            `json:"pointCompensationAward"`
	Paused                 bool           `json:"paused"`
	PauseReason            *PauseReason   `json:"pauseReason,omitempty"`
	PauseExpiresAt         *int64         `json:"pauseExpiresAt,omitempty"`
	PauseRemainingMs       *int64         `json:"pauseRemainingMs,omitempty"`
	PausePhase             *Phase         `json:"pausePhase,omitempty"`
	Sessions               []SessionInfo  `json:"sessions"`
	Player                 *PlayerSnapshot `json:"player,omitempty"`
	Owner                  *OwnerSnapshot  `json:"owner,omitempty"`
	Maze                   *MazeSnapshot   `json:"maze,omitempty"`
}

// Delta is the minimal difference between two snapshots. Every field
// is optional; only changed fields are populated. Removed traps/marks
// are carried as tombstone cell lists rather than diffed indices,
// since per-room state is small enough that this stays cheap.
type Delta struct {
	Phase                  *Phase          `json:"phase,omitempty"`
	PhaseEndsAt            *int64          `json:"phaseEndsAt,omitempty"`
	UpdatedAt              int64           `json:"updatedAt"`
	TargetScore            *int            `json:"targetScore,omitempty"`
	Paused                 *bool           `json:"paused,omitempty"`
	PauseReason            *PauseReason    `json:"pauseReason,omitempty"`
	PauseExpiresAt         *int64          `json:"pauseExpiresAt,omitempty"`
	PauseRemainingMs       *int64          `json:"pauseRemainingMs,omitempty"`
	PausePhase             *Phase          `json:"pausePhase,omitempty"`
	Sessions               []SessionInfo   `json:"sessions,omitempty"`
	Player                 *PlayerSnapshot `json:"player,omitempty"`
	Owner                  *OwnerDelta     `json:"owner,omitempty"`
	// Maze is populated only the first time a maze becomes part of the
	// snapshot (O_START materialising it); every later wall change
	// travels as MazeEdgeChanges instead of resending the whole grid.
	Maze                   *MazeSnapshot   `json:"maze,omitempty"`
	RemovedTraps           []maze.Cell     `json:"removedTraps,omitempty"`
	RemovedMarks           []maze.Cell     `json:"removedMarks,omitempty"`
	MazeEdgeChanges        []maze.MazeCell `json:"mazeEdgeChanges,omitempty"`
}

// OwnerDelta mirrors OwnerSnapshot's scalar fields as optionals, plus
// append-only lists for newly-placed traps/marks (removals, and traps
// that were merely consumed in place, travel via Delta's tombstone
// lists instead — a consumed trap is no longer a live hazard, which is
// the same wire-observable fact as a removed one).
type OwnerDelta struct {
	WallStock              *int             `json:"wallStock,omitempty"`
	WallRemoveLeft         *int             `json:"wallRemoveLeft,omitempty"`
	TrapCharges            *int             `json:"trapCharges,omitempty"`
	EditCooldownUntil      *int64           `json:"editCooldownUntil,omitempty"`
	PredictionHits         *int             `json:"predictionHits,omitempty"`
	NewTraps               []Trap           `json:"newTraps,omitempty"`
	NewMarks               []PredictionMark `json:"newMarks,omitempty"`
	NewlyConsumedPoints    []maze.Cell      `json:"newlyConsumedPoints,omitempty"`
}

// OutMessage is the envelope every server->client message shares.
type OutMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	MsgTypeState = "STATE"
	MsgTypePong  = "PONG"
	MsgTypeErr   = "ERR"
)

// StatePayload is the payload of a STATE message: exactly one of
// Snapshot or Changes is populated, selected by Full.
type StatePayload struct {
	Seq     int64   `json:"seq"`
	Full    bool    `json:"full"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Changes *Delta    `json:"changes,omitempty"`
}

// maxOutboxSize is the pending-send depth at which BuildMessage sends a
// full snapshot instead of a delta. It does not bound the queue itself,
// and messages already queued are not discarded.
const maxOutboxSize = 8

// Broadcaster builds STATE messages for each session from room state,
// reading each session's LastAckSeq and tracking the last snapshot sent
// to it.
type Broadcaster struct {
	lastSnapshot map[string]*Snapshot // by session ID
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{lastSnapshot: make(map[string]*Snapshot)}
}

// Forget drops broadcaster bookkeeping for a session that has left.
func (b *Broadcaster) Forget(sessionID string) {
	delete(b.lastSnapshot, sessionID)
}

// BuildMessage returns the STATE message to send to a given session,
// choosing full vs delta per the broadcaster's per-session history.
// outboxLen is the current depth of the session's pending-send queue;
// when it has reached maxOutboxSize the broadcaster forces a full snapshot.
func (b *Broadcaster) BuildMessage(sess *Session, seq int64, snap *Snapshot, outboxLen int) ([]byte, error) {
	prev, ok := b.lastSnapshot[sess.ID]

	full := !ok || sess.LastAckSeq < 0 || outboxLen >= maxOutboxSize
	var payload StatePayload
	payload.Seq = seq

	if full {
		payload.Full = true
		payload.Snapshot = snap
	} else {
		payload.Full = false
		payload.Changes = diff(prev, snap)
	}

	b.lastSnapshot[sess.ID] = snap

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(OutMessage{Type: MsgTypeState, Payload: rawPayload})
}

func diff(prev, cur *Snapshot) *Delta {
	d := &Delta{UpdatedAt: cur.UpdatedAt}

	if prev.Phase != cur.Phase {
		p := cur.Phase
		d.Phase = &p
	}
	if !int64PtrEqual(prev.PhaseEndsAt, cur.PhaseEndsAt) {
		d.PhaseEndsAt = cur.PhaseEndsAt
	}
	if prev.TargetScore != cur.TargetScore {
		t := cur.TargetScore
		d.TargetScore = &t
	}
	if prev.Paused != cur.Paused {
		p := cur.Paused
		d.Paused = &p
	}
	if !pauseReasonPtrEqual(prev.PauseReason, cur.PauseReason) {
		d.PauseReason = cur.PauseReason
	}
	if !int64PtrEqual(prev.PauseExpiresAt, cur.PauseExpiresAt) {
		d.PauseExpiresAt = cur.PauseExpiresAt
	}
	if !int64PtrEqual(prev.PauseRemainingMs, cur.PauseRemainingMs) {
		d.PauseRemainingMs = cur.PauseRemainingMs
	}
	if !phasePtrEqual(prev.PausePhase, cur.PausePhase) {
		d.PausePhase = cur.PausePhase
	}
	if !sessionsEqual(prev.Sessions, cur.Sessions) {
		d.Sessions = cur.Sessions
	}
	if !playerEqual(prev.Player, cur.Player) {
		d.Player = cur.Player
	}
	d.Owner, d.RemovedTraps, d.RemovedMarks = diffOwner(prev.Owner, cur.Owner)
	d.Maze, d.MazeEdgeChanges = diffMaze(prev.Maze, cur.Maze)

	return d
}

// diffMaze reports the maze-level delta between two snapshots. The
// first time a maze appears (O_START materialising it) the whole
// MazeSnapshot travels; on every later tick only the cells whose Walls
// actually differ are carried, keyed by their own (x,y) so the client
// patches its grid in place.
func diffMaze(prev, cur *MazeSnapshot) (*MazeSnapshot, []maze.MazeCell) {
	if cur == nil {
		return nil, nil
	}
	if prev == nil {
		return cur, nil
	}
	if len(prev.Cells) != len(cur.Cells) {
		// Different maze materialised entirely (new game); resend in full.
		return cur, nil
	}

	var changed []maze.MazeCell
	for i := range cur.Cells {
		if prev.Cells[i].Walls != cur.Cells[i].Walls {
			changed = append(changed, cur.Cells[i])
		}
	}
	return nil, changed
}

// diffOwner returns the scalar/append-only OwnerDelta plus the tombstone
// cell lists for traps that were consumed and prediction marks that
// were either triggered or explicitly removed by the owner. Traps and
// Points are append-only arrays mutated in place, so they are compared
// index-by-index; PredictionMarks can be removed from the middle of
// the slice (O_MRK deactivate), so they are compared by cell identity.
func diffOwner(prev, cur *OwnerSnapshot) (*OwnerDelta, []maze.Cell, []maze.Cell) {
	if prev == nil || cur == nil {
		return nil, nil, nil
	}
	od := &OwnerDelta{}
	changed := false

	if prev.WallStock != cur.WallStock {
		v := cur.WallStock
		od.WallStock = &v
		changed = true
	}
	if prev.WallRemoveLeft != cur.WallRemoveLeft {
		v := cur.WallRemoveLeft
		od.WallRemoveLeft = &v
		changed = true
	}
	if prev.TrapCharges != cur.TrapCharges {
		v := cur.TrapCharges
		od.TrapCharges = &v
		changed = true
	}
	if prev.EditCooldownUntil != cur.EditCooldownUntil {
		v := cur.EditCooldownUntil
		od.EditCooldownUntil = &v
		changed = true
	}
	if prev.PredictionHits != cur.PredictionHits {
		v := cur.PredictionHits
		od.PredictionHits = &v
		changed = true
	}

	if len(cur.Traps) > len(prev.Traps) {
		od.NewTraps = append(od.NewTraps, cur.Traps[len(prev.Traps):]...)
		changed = true
	}
	var removedTraps []maze.Cell
	for i := 0; i < len(prev.Traps) && i < len(cur.Traps); i++ {
		if !prev.Traps[i].Consumed && cur.Traps[i].Consumed {
			removedTraps = append(removedTraps, cur.Traps[i].Cell)
		}
	}
	if len(removedTraps) > 0 {
		changed = true
	}

	removedMarks := diffMarks(prev.PredictionMarks, cur.PredictionMarks)
	newMarks := diffNewMarks(prev.PredictionMarks, cur.PredictionMarks)
	if len(newMarks) > 0 {
		od.NewMarks = newMarks
		changed = true
	}
	if len(removedMarks) > 0 {
		changed = true
	}

	var newlyConsumed []maze.Cell
	for i := 0; i < len(prev.Points) && i < len(cur.Points); i++ {
		if !prev.Points[i].Consumed && cur.Points[i].Consumed {
			newlyConsumed = append(newlyConsumed, cur.Points[i].Cell)
		}
	}
	if len(newlyConsumed) > 0 {
		od.NewlyConsumedPoints = newlyConsumed
		changed = true
	}

	if !changed {
		od = nil
	}
	return od, removedTraps, removedMarks
}

// diffMarks returns cells whose prediction mark disappeared entirely or
// went from active to inactive between prev and cur.
func diffMarks(prev, cur []PredictionMark) []maze.Cell {
	curByCell := make(map[maze.Cell]PredictionMark, len(cur))
	for _, m := range cur {
		curByCell[m.Cell] = m
	}
	var removed []maze.Cell
	for _, p := range prev {
		c, ok := curByCell[p.Cell]
		if !ok || (p.Active && !c.Active) {
			removed = append(removed, p.Cell)
		}
	}
	return removed
}

// diffNewMarks returns marks present in cur but not in prev, by cell.
func diffNewMarks(prev, cur []PredictionMark) []PredictionMark {
	prevCells := make(map[maze.Cell]bool, len(prev))
	for _, m := range prev {
		prevCells[m.Cell] = true
	}
	var added []PredictionMark
	for _, m := range cur {
		if !prevCells[m.Cell] {
			added = append(added, m)
		}
	}
	return added
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func pauseReasonPtrEqual(a, b *PauseReason) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func phasePtrEqual(a, b *Phase) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sessionsEqual(a, b []SessionInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func playerEqual(a, b *PlayerSnapshot) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// nowMs converts a time.Time to milliseconds since epoch, the unit
// used throughout the wire protocol for timestamps.
func nowMs(t time.Time) int64 { return t.UnixMilli() }
