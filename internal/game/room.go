// Package game implements the per-room runtime: the phase state
// machine, the fixed-rate simulation tick, the owner edit validator,
// and the snapshot/delta broadcast pipeline. Each Room serializes all
// of its mutations onto a single goroutine's mailbox — there are no
// locks around Room state (spec's concurrency design note).
package game

import (
	"encoding/json"
	"log"
	"time"

	"github.com/mazegame/server/config"
	"github.com/mazegame/server/internal/maze"
)

// attachRequest is how a new WebSocket connection asks to join a Room.
type attachRequest struct {
	Role     Role
	Nick     string
	Conn     Conn
	ResultCh chan attachResult
}

type attachResult struct {
	Session *Session
	Err     error
}

// Room is the aggregate owning one maze runtime, one phase clock, two
// session slots (owner + player) and the simulation tick loop.
type Room struct {
	Code      string
	CreatedAt time.Time
	clock     Clock
	factory   maze.Factory

	sessions map[Role]*Session
	absentRole *Role

	runtime  *MazeRuntime
	mazeSize int

	phaseClock  *PhaseClock
	validator   *EditValidator
	simulator   *Simulator
	broadcaster *Broadcaster

	currentInput PlayerInput
	lastInputSeq int

	seq  int64
	tick int64

	emptySince *time.Time

	attachCh  chan attachRequest
	detachCh  chan string // session ID
	commandCh chan Command
	stopCh    chan struct{}
	stopped   bool
}

// NewRoom constructs a Room in the lobby phase with no maze materialised.
func NewRoom(code string, clock Clock, factory maze.Factory) *Room {
	now := clock.Now()
	es := now
	return &Room{
		Code:        code,
		CreatedAt:   now,
		clock:       clock,
		factory:     factory,
		sessions:    make(map[Role]*Session),
		phaseClock:  NewPhaseClock(),
		validator:   NewEditValidator(),
		simulator:   NewSimulator(),
		broadcaster: NewBroadcaster(),
		lastInputSeq: -1,
		emptySince:  &es,
		attachCh:    make(chan attachRequest),
		detachCh:    make(chan string, 8),
		commandCh:   make(chan Command, 64),
		stopCh:      make(chan struct{}),
	}
}

// Run is the Room's single-threaded event loop. Call it in its own
// goroutine; all other Room methods communicate with it over channels.
func (r *Room) Run() {
	ticker := time.NewTicker(config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case req := <-r.attachCh:
			r.handleAttach(req)
		case id := <-r.detachCh:
			r.handleDetach(id)
		case cmd := <-r.commandCh:
			r.handleCommand(cmd)
		case <-ticker.C:
			r.handleTick(r.clock.Now())
		}
	}
}

// Stop terminates the Room's loop and closes all attached sessions.
func (r *Room) Stop() {
	if r.stopped {
		return
	}
	r.stopped = true
	for _, sess := range r.sessions {
		if sess != nil && sess.Conn != nil {
			_ = sess.Conn.Close("room-closed")
		}
	}
	close(r.stopCh)
}

// Attach admits a new connection to the room, blocking until the room
// loop has processed it. Safe to call from any goroutine.
func (r *Room) Attach(role Role, nick string, conn Conn) (*Session, error) {
	req := attachRequest{Role: role, Nick: nick, Conn: conn, ResultCh: make(chan attachResult, 1)}
	r.attachCh <- req
	res := <-req.ResultCh
	return res.Session, res.Err
}

// Detach notifies the room that a session's connection has closed.
func (r *Room) Detach(sessionID string) {
	select {
	case r.detachCh <- sessionID:
	case <-r.stopCh:
	}
}

// Submit enqueues an inbound command from a session. Safe to call from
// any goroutine; the command is processed in FIFO order with all other
// room events.
func (r *Room) Submit(cmd Command) {
	select {
	case r.commandCh <- cmd:
	case <-r.stopCh:
	}
}

// HasSessions reports whether any session is currently attached.
func (r *Room) HasSessions() bool {
	return r.sessions[RoleOwner] != nil || r.sessions[RolePlayer] != nil
}

// IdleFor reports how long the room has had zero attached sessions.
func (r *Room) IdleFor(now time.Time) time.Duration {
	if r.HasSessions() || r.emptySince == nil {
		return 0
	}
	return now.Sub(*r.emptySince)
}

// ---- attach / detach ----

func (r *Room) handleAttach(req attachRequest) {
	now := r.clock.Now()

	existing := r.sessions[req.Role]
	switch {
	case existing == nil:
		sess := NewSession(req.Role, req.Nick, req.Conn, now)
		r.sessions[req.Role] = sess
		r.emptySince = nil
		r.broadcastFullTo(sess, now)
		req.ResultCh <- attachResult{Session: sess}

	case existing.Absent && existing.Nick == req.Nick:
		// Reconnect within grace: same identity resumes the same Session.
		existing.Conn = req.Conn
		existing.Absent = false
		existing.LastHeardAt = now
		if r.absentRole != nil && *r.absentRole == req.Role {
			r.absentRole = nil
			if r.phaseClock.Paused && r.phaseClock.PauseReason == PauseDisconnect {
				r.phaseClock.Resume(now)
			}
		}
		r.broadcastFullTo(existing, now)
		req.ResultCh <- attachResult{Session: existing}

	default:
		// Role already taken by a live (or differently-named) session: takeover.
		if existing.Conn != nil {
			_ = existing.Conn.Close("takeover")
		}
		r.broadcaster.Forget(existing.ID)
		sess := NewSession(req.Role, req.Nick, req.Conn, now)
		r.sessions[req.Role] = sess
		r.broadcastFullTo(sess, now)
		req.ResultCh <- attachResult{Session: sess}
	}

	r.bumpAndBroadcast(now)
}

func (r *Room) handleDetach(sessionID string) {
	now := r.clock.Now()

	for role, sess := range r.sessions {
		if sess == nil || sess.ID != sessionID {
			continue
		}
		sess.Conn = nil
		sess.Absent = true
		role := role
		r.absentRole = &role

		if r.runtime != nil && (r.phaseClock.Phase == PhaseCountdown || r.phaseClock.Phase == PhasePrep || r.phaseClock.Phase == PhaseExplore) {
			r.phaseClock.Pause(PauseDisconnect, config.DisconnectGrace, now)
		}
		r.bumpAndBroadcast(now)
		return
	}
}

// ---- command handling ----

func (r *Room) handleCommand(cmd Command) {
	now := r.clock.Now()
	sess := cmd.Session
	if sess != nil {
		sess.LastHeardAt = now
	}

	switch body := cmd.Body.(type) {
	case CmdPing:
		r.sendPong(sess, body.Ts)
		return

	case CmdResync:
		r.broadcaster.Forget(sess.ID)
		r.sendStateTo(sess, now)
		return

	case CmdStart:
		r.handleStart(sess, body, now)

	case CmdEdit:
		r.handleEdit(sess, body, now)

	case CmdMark:
		r.handleMark(sess, body, now)

	case CmdInput:
		r.handleInput(sess, body, now)
	}
}

func (r *Room) handleStart(sess *Session, body CmdStart, now time.Time) {
	if sess == nil || sess.Role != RoleOwner {
		return
	}
	_, hasOwner := r.sessions[RoleOwner]
	_, hasPlayer := r.sessions[RolePlayer]
	if err := r.validator.ValidateStart(r.phaseClock.Phase, hasOwner, hasPlayer, body.MazeSize); err != nil {
		r.sendErr(sess, err)
		return
	}

	m, err := r.factory.Generate(body.MazeSize, r.Code+"-"+sess.ID)
	if err != nil {
		r.sendErr(sess, &ValidationError{Code: ErrInvalidArg})
		return
	}

	owner := NewOwnerState(body.MazeSize, config.WallStockBySize[body.MazeSize])
	r.mazeSize = body.MazeSize
	r.runtime = NewMazeRuntime(m, owner)
	r.lastInputSeq = -1
	r.currentInput = PlayerInput{}

	r.phaseClock.Enter(PhaseCountdown, config.CountdownDuration, now)
	r.bumpAndBroadcast(now)
}

func (r *Room) handleEdit(sess *Session, body CmdEdit, now time.Time) {
	if sess == nil || sess.Role != RoleOwner || r.runtime == nil {
		return
	}

	var err error
	switch body.Action {
	case ActionPlaceWall:
		err = r.validator.ValidatePlaceWall(r.runtime, r.phaseClock.Phase, body.Edge, now)
		if err == nil {
			r.validator.ApplyPlaceWall(r.runtime, body.Edge, now)
		}
	case ActionRemoveWall:
		err = r.validator.ValidateRemoveWall(r.runtime, r.phaseClock.Phase, body.Edge, now)
		if err == nil {
			r.validator.ApplyRemoveWall(r.runtime, body.Edge, now)
		}
	case ActionPlaceTrap:
		err = r.validator.ValidatePlaceTrap(r.runtime, r.phaseClock.Phase, body.Cell, now)
		if err == nil {
			r.validator.ApplyPlaceTrap(r.runtime, body.Cell, r.tick, now)
		}
	}

	if err != nil {
		r.sendErr(sess, err)
		return
	}
	r.bumpAndBroadcast(now)
}

func (r *Room) handleMark(sess *Session, body CmdMark, now time.Time) {
	if sess == nil || sess.Role != RoleOwner || r.runtime == nil {
		return
	}
	if err := r.validator.ValidateMark(r.runtime, r.phaseClock.Phase, body.Cell, body.Active); err != nil {
		r.sendErr(sess, err)
		return
	}
	r.validator.ApplyMark(r.runtime, body.Cell, body.Active)
	r.bumpAndBroadcast(now)
}

func (r *Room) handleInput(sess *Session, body CmdInput, now time.Time) {
	if sess == nil || sess.Role != RolePlayer || r.runtime == nil {
		return
	}
	if body.Seq <= r.lastInputSeq {
		return // replayed/out-of-order input: no-op, not an error
	}
	if err := r.validator.ValidateInput(r.phaseClock.Phase, body.Forward, body.Turn); err != nil {
		r.sendErr(sess, err)
		return
	}
	r.lastInputSeq = body.Seq
	r.currentInput = PlayerInput{Forward: body.Forward, Turn: body.Turn, Seq: body.Seq, ReceivedAt: now}
}

// ---- tick ----

func (r *Room) handleTick(now time.Time) {
	r.tick++
	r.checkLiveness(now)

	event := r.phaseClock.Tick(now)
	switch event {
	case EventPauseTimeout:
		r.resolvePauseTimeout(now)
	case EventPhaseExpired:
		r.advancePhase(now)
	}

	if !r.phaseClock.Paused && r.phaseClock.Phase == PhaseExplore && r.runtime != nil {
		remaining := time.Duration(r.phaseClock.RemainingMs(now)) * time.Millisecond
		result := r.simulator.Step(r.runtime, r.currentInput, r.tick, now, remaining)
		if result.GoalReached {
			r.phaseClock.Enter(PhaseResult, 0, now)
		}
	}

	r.bumpAndBroadcast(now)
}

func (r *Room) checkLiveness(now time.Time) {
	for role, sess := range r.sessions {
		if sess == nil || sess.Absent {
			continue
		}
		if now.Sub(sess.LastHeardAt) > config.SessionTimeout {
			sess.Absent = true
			role := role
			r.absentRole = &role
			if r.runtime != nil {
				r.phaseClock.Pause(PauseDisconnect, config.DisconnectGrace, now)
			}
			continue
		}
		if !sess.HasPingInFlight && now.Sub(sess.LastHeardAt) >= config.HeartbeatInterval {
			sess.HasPingInFlight = true
			sess.PingInFlightAt = now
			r.sendPing(sess, now)
		}
	}
}

func (r *Room) advancePhase(now time.Time) {
	switch r.phaseClock.Phase {
	case PhaseCountdown:
		r.phaseClock.Enter(PhasePrep, config.PrepDuration, now)
	case PhasePrep:
		r.phaseClock.Enter(PhaseExplore, config.ExploreDuration, now)
	case PhaseExplore:
		r.phaseClock.Enter(PhaseResult, 0, now)
	}
}

// resolvePauseTimeout ends the game adversely for the absent side, per
// spec.md section 4.1's PauseTimeout transition. The compensation
// decision (SPEC_FULL.md / DESIGN.md open question b) is: the
// connected Player is awarded a compensation bonus only if the Owner
// is the absent side and the pause began during explore, since that is
// the only case where the Player was "actively playing" and stood to
// keep scoring had the match continued.
func (r *Room) resolvePauseTimeout(now time.Time) {
	pausedPhase := r.phaseClock.PausePhase
	absent := r.absentRole
	r.absentRole = nil

	if r.runtime != nil && absent != nil && *absent == RoleOwner && pausedPhase == PhaseExplore {
		if player, ok := r.sessions[RolePlayer]; ok && player != nil {
			r.runtime.Player.Score += r.pointCompensationAward()
		}
	}

	r.phaseClock.Enter(PhaseResult, 0, now)
}

func (r *Room) pointCompensationAward() int {
	if r.runtime == nil || r.runtime.TargetScore == 0 {
		return 0
	}
	award := r.runtime.TargetScore / 10
	if award == 0 {
		award = 1
	}
	return award
}

// ---- outbound ----

func (r *Room) bumpAndBroadcast(now time.Time) {
	r.seq++
	for _, sess := range r.sessions {
		if sess == nil || sess.Conn == nil {
			continue
		}
		r.sendStateTo(sess, now)
	}
}

func (r *Room) broadcastFullTo(sess *Session, now time.Time) {
	r.broadcaster.Forget(sess.ID)
	r.sendStateTo(sess, now)
}

func (r *Room) sendStateTo(sess *Session, now time.Time) {
	snap := r.buildSnapshot(now)
	outboxLen := 0
	if ol, ok := sess.Conn.(interface{ OutboxLen() int }); ok {
		outboxLen = ol.OutboxLen()
	}
	msg, err := r.broadcaster.BuildMessage(sess, r.seq, snap, outboxLen)
	if err != nil {
		log.Printf("room %s: encode state for %s: %v", r.Code, sess.ID, err)
		return
	}
	if err := sess.Conn.Send(msg); err != nil {
		log.Printf("room %s: send to %s: %v", r.Code, sess.ID, err)
		return
	}
	// The transport is ordered and reliable (WebSocket over TCP), so a
	// successful send is treated as an implicit ack of this seq — the
	// wire protocol has no separate client ACK message.
	sess.LastAckSeq = r.seq
}

func (r *Room) sendErr(sess *Session, err error) {
	ve, ok := err.(*ValidationError)
	code := ErrInvalidArg
	if ok {
		code = ve.Code
	}
	payload, _ := json.Marshal(struct {
		Code ErrCode `json:"code"`
	}{Code: code})
	msg, _ := json.Marshal(OutMessage{Type: MsgTypeErr, Payload: payload})
	_ = sess.Conn.Send(msg)
}

func (r *Room) sendPing(sess *Session, now time.Time) {
	payload, _ := json.Marshal(struct {
		Ts int64 `json:"ts"`
	}{Ts: now.UnixMilli()})
	msg, _ := json.Marshal(OutMessage{Type: "PING", Payload: payload})
	_ = sess.Conn.Send(msg)
}

func (r *Room) sendPong(sess *Session, ts int64) {
	if sess == nil || sess.Conn == nil {
		return
	}
	if sess.HasPingInFlight {
		sess.RTT = r.clock.Now().Sub(sess.PingInFlightAt)
		sess.HasPingInFlight = false
	}
	payload, _ := json.Marshal(struct {
		Ts int64 `json:"ts"`
	}{Ts: ts})
	msg, _ := json.Marshal(OutMessage{Type: MsgTypePong, Payload: payload})
	_ = sess.Conn.Send(msg)
}

// ---- snapshot assembly ----

func (r *Room) buildSnapshot(now time.Time) *Snapshot {
	snap := &Snapshot{
		RoomID:                 r.Code,
		Phase:                  r.phaseClock.Phase,
		MazeSize:               r.mazeSize,
		UpdatedAt:              nowMs(now),
		CountdownDurationMs:    config.CountdownDuration.Milliseconds(),
		PrepDurationMs:         config.PrepDuration.Milliseconds(),
		ExploreDurationMs:      config.ExploreDuration.Milliseconds(),
		Paused:                 r.phaseClock.Paused,
		Sessions:               r.sessionInfos(),
	}

	if r.phaseClock.HasDeadline {
		ms := nowMs(r.phaseClock.PhaseEndsAt)
		snap.PhaseEndsAt = &ms
	}
	if r.phaseClock.Paused {
		reason := r.phaseClock.PauseReason
		snap.PauseReason = &reason
		expMs := nowMs(r.phaseClock.PauseExpiresAt)
		snap.PauseExpiresAt = &expMs
		remMs := r.phaseClock.RemainingMs(now)
		snap.PauseRemainingMs = &remMs
		pp := r.phaseClock.PausePhase
		snap.PausePhase = &pp
	}

	if r.runtime != nil {
		snap.TargetScore = r.runtime.TargetScore
		snap.PointCompensationAward = r.pointCompensationAward()
		snap.Player = &PlayerSnapshot{
			Position:       r.runtime.Player.Position,
			Velocity:       r.runtime.Player.Velocity,
			Angle:          r.runtime.Player.Angle,
			PredictionHits: r.runtime.Player.PredictionHits,
			Score:          r.runtime.Player.Score,
		}
		snap.Owner = &OwnerSnapshot{
			WallStock:              r.runtime.Owner.WallStock,
			WallRemoveLeft:         r.runtime.Owner.WallRemoveLeft,
			TrapCharges:            r.runtime.Owner.TrapCharges,
			EditCooldownUntil:      nowMs(r.runtime.Owner.EditCooldownUntil),
			EditCooldownDurationMs: config.OwnerEditCooldown.Milliseconds(),
			ForbiddenDistance:      r.runtime.Owner.ForbiddenDistance,
			PredictionLimit:        r.runtime.Owner.PredictionLimit,
			PredictionHits:         r.runtime.Player.PredictionHits,
			// Slices are copied so a snapshot the broadcaster keeps for
			// diffing is not changed by later in-place edits.
			PredictionMarks: append(make([]PredictionMark, 0, len(r.runtime.Owner.PredictionMarks)), r.runtime.Owner.PredictionMarks...),
			Traps:           append(make([]Trap, 0, len(r.runtime.Owner.Traps)), r.runtime.Owner.Traps...),
			Points:          append(make([]PointEntity, 0, len(r.runtime.Points)), r.runtime.Points...),
		}
		snap.Maze = &MazeSnapshot{
			Seed:  r.runtime.Maze.Seed,
			Start: r.runtime.Maze.Start,
			Goal:  r.runtime.Maze.Goal,
			Cells: append(make([]maze.MazeCell, 0, len(r.runtime.Maze.Cells)), r.runtime.Maze.Cells...),
		}
	}

	return snap
}

func (r *Room) sessionInfos() []SessionInfo {
	infos := make([]SessionInfo, 0, 2)
	for _, role := range []Role{RoleOwner, RolePlayer} {
		if sess := r.sessions[role]; sess != nil {
			infos = append(infos, SessionInfo{ID: sess.ID, Role: sess.Role, Nick: sess.Nick})
		}
	}
	return infos
}
