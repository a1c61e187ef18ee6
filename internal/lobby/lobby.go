package lobby

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/lijuuu/CodeClashLobbyService/internal/backend"
	"github.com/lijuuu/CodeClashLobbyService/internal/model"
	"github.com/lijuuu/CodeClashLobbyService/internal/wss/broadcasts"
)

// Lobby is the in-memory authority for one challenge session. Its truth lives
// only here for its lifetime: WAITING -> IN_PROGRESS -> ENDED, never backward.
//
// One mutex serializes every handler for the lobby; inbound messages, timer
// firings and backend-call continuations all run under it. A handler that
// needs the backend releases the mutex around the call and re-checks its
// idempotency guard (started, ended) after re-acquiring, because any other
// event may have run in between.
type Lobby struct {
	mu sync.Mutex

	cid       string
	status    model.LobbyStatus
	started   bool
	ended     bool
	closed    bool
	createdAt time.Time

	table   *ParticipantTable
	timers  *TimerService
	gateway backend.Gateway
	clock   clockwork.Clock

	// onClose removes this lobby from the registry: inactivity close,
	// empty-WAITING cleanup or post-end retention expiry.
	onClose func(cid string)
}

func NewLobby(cid string, gateway backend.Gateway, clock clockwork.Clock, onClose func(string)) *Lobby {
	l := &Lobby{
		cid:       cid,
		status:    model.StatusWaiting,
		createdAt: clock.Now(),
		table:     NewParticipantTable(),
		timers:    NewTimerService(clock),
		gateway:   gateway,
		clock:     clock,
		onClose:   onClose,
	}
	l.timers.ArmInactivity(model.InactivityTimeout, l.handleInactivity)
	return l
}

func (l *Lobby) Cid() string {
	return l.cid
}

// Touch resets the WAITING-phase inactivity countdown. The router calls it
// for every inbound event referencing this lobby.
func (l *Lobby) Touch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == model.StatusWaiting {
		l.timers.TouchInactivity(model.InactivityTimeout)
	}
}

// Snapshot returns the current lobby state for join replies and the HTTP
// inspection endpoint.
func (l *Lobby) Snapshot() model.LobbyStatePayload {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Lobby) snapshotLocked() model.LobbyStatePayload {
	return model.LobbyStatePayload{
		Cid:          l.cid,
		Status:       l.status,
		Participants: l.table.OrderedActive(),
		RemainingMs:  l.timers.Remaining().Milliseconds(),
	}
}

// Join admits a connection under a username. Usernames already known to the
// lobby (active, grace-pending or completed) skip backend validation; an
// unseen username is admitted only if the backend allows it. The validation
// call runs outside the lock, so the lobby is re-checked afterwards.
func (l *Lobby) Join(ctx context.Context, username string, conn model.Conn) {
	l.mu.Lock()
	// the end checks run before any resume path: a grace-pending username
	// must not slide back into an ENDED lobby
	if reason, ok := l.rejectJoinLocked(); ok {
		l.mu.Unlock()
		broadcasts.SendError(conn, model.EventJoinError, reason)
		return
	}
	if l.resumeLocked(username, conn) {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	decision, err := l.gateway.ValidateAccess(ctx, l.cid, username)
	if err != nil {
		log.Warn().Err(err).Str("cid", l.cid).Str("username", username).Msg("access validation failed")
		broadcasts.SendError(conn, model.EventJoinError, "unable to validate challenge access")
		return
	}
	if !decision.Allowed {
		log.Info().Str("cid", l.cid).Str("username", username).Str("reason", decision.Reason).Msg("join rejected")
		broadcasts.SendError(conn, model.EventJoinError, decision.Reason)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// the lobby may have moved on while validation was in flight
	if reason, ok := l.rejectJoinLocked(); ok {
		broadcasts.SendError(conn, model.EventJoinError, reason)
		return
	}
	if l.resumeLocked(username, conn) {
		return
	}

	p := &model.Participant{Username: username, Conn: conn}
	l.table.AddActive(p)
	log.Info().Str("cid", l.cid).Str("username", username).Msg("participant joined")

	l.broadcastLocked(model.Event{
		Type:    model.EventPlayerJoined,
		Payload: model.PlayerEventPayload{Username: username},
	}, conn.ID())
	broadcasts.SendJSON(conn, model.Event{Type: model.EventLobbyState, Payload: l.snapshotLocked()})
}

// rejectJoinLocked reports whether the lobby no longer admits anyone, with
// the reason the join reply carries.
func (l *Lobby) rejectJoinLocked() (string, bool) {
	if l.ended {
		return "challenge has already ended", true
	}
	if l.closed {
		return "lobby is closed", true
	}
	return "", false
}

// resumeLocked handles joins by usernames the lobby already knows: a
// grace-window reconnect, a plain connection rebind, or a completed
// participant peeking back in. Returns true if the join was handled.
func (l *Lobby) resumeLocked(username string, conn model.Conn) bool {
	if dp, ok := l.table.Disconnected(username); ok {
		if dp.GraceTimer != nil {
			dp.GraceTimer.Stop()
		}
		p := l.table.Reconnect(username)
		p.Conn = conn
		log.Info().Str("cid", l.cid).Str("username", username).Msg("participant reconnected within grace window")

		l.broadcastLocked(model.Event{
			Type:    model.EventPlayerReconnected,
			Payload: model.PlayerEventPayload{Username: username},
		}, "")
		broadcasts.SendJSON(conn, model.Event{Type: model.EventLobbyState, Payload: l.snapshotLocked()})
		return true
	}

	if p, ok := l.table.Active(username); ok {
		p.Conn = conn
		broadcasts.SendJSON(conn, model.Event{Type: model.EventLobbyState, Payload: l.snapshotLocked()})
		return true
	}

	if l.table.IsCompleted(username) {
		broadcasts.SendJSON(conn, model.Event{Type: model.EventLobbyState, Payload: l.snapshotLocked()})
		return true
	}
	return false
}

// ToggleReady flips a participant's ready flag while WAITING and starts the
// challenge when that leaves every active participant ready. The started
// guard keeps racing toggles from starting twice.
func (l *Lobby) ToggleReady(ctx context.Context, username string) {
	l.mu.Lock()
	if l.status != model.StatusWaiting {
		l.mu.Unlock()
		return
	}
	p, ok := l.table.Active(username)
	if !ok {
		l.mu.Unlock()
		return
	}
	p.Ready = !p.Ready
	l.broadcastLocked(model.Event{
		Type:    model.EventPlayerReadyToggle,
		Payload: model.ReadyTogglePayload{Username: username, Ready: p.Ready},
	}, "")

	if l.started || l.table.ActiveCount() == 0 || !l.table.AllReady() {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.status = model.StatusInProgress
	l.timers.StopInactivity()
	log.Info().Str("cid", l.cid).Int("participants", l.table.ActiveCount()).Msg("all participants ready, challenge starting")
	l.mu.Unlock()

	// mirror the start remotely; the lobby yields here
	snapshot, err := l.gateway.StartChallenge(ctx, l.cid)
	if err != nil {
		log.Warn().Err(err).Str("cid", l.cid).Msg("start challenge mirror failed, continuing locally")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ended {
		// everyone left while the start call was in flight
		return
	}
	state := l.snapshotLocked()
	if snapshot != nil {
		state.Challenge = snapshot
	}
	l.broadcastLocked(model.Event{Type: model.EventLobbyState, Payload: state}, "")

	l.timers.StartChallenge(model.ChallengeDuration, model.TimerTickInterval, l.handleTick, l.handleExpiry)
	l.broadcastLocked(model.Event{
		Type:    model.EventTimerStarted,
		Payload: model.TimerStartedPayload{DurationMs: model.ChallengeDuration.Milliseconds()},
	}, "")
}

// SetRunning records the advisory code-running flag and broadcasts it. No
// state-machine effect.
func (l *Lobby) SetRunning(username string, running bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ended {
		return
	}
	p, ok := l.table.Active(username)
	if !ok {
		return
	}
	p.Running = running

	ev := model.EventPlayerCodeRunning
	if !running {
		ev = model.EventPlayerCodeFinished
	}
	l.broadcastLocked(model.Event{Type: ev, Payload: model.PlayerEventPayload{Username: username}}, "")
}

// RecordTestResults updates a participant's test run counters.
func (l *Lobby) RecordTestResults(username string, testsPassed int, score *int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ended {
		return
	}
	p, ok := l.table.Active(username)
	if !ok {
		return
	}
	p.TestsPassed = testsPassed
	if score != nil {
		p.LatestScore = *score
	}
	l.broadcastLocked(model.Event{
		Type: model.EventPlayerTestResults,
		Payload: model.TestResultsPayload{
			Username:    username,
			TestsPassed: p.TestsPassed,
			LatestScore: p.LatestScore,
		},
	}, "")
}

// RecordSubmission stores a submission. A full pass additionally tells the
// lobby the submitter is now eligible to end the challenge for themselves.
func (l *Lobby) RecordSubmission(username string, submittedResults, testsPassed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ended {
		return
	}
	p, ok := l.table.Active(username)
	if !ok {
		return
	}
	p.Submitted = true
	p.SubmittedResults = submittedResults
	p.SubmittedTestsPassed = testsPassed
	p.LatestScore = submittedResults

	l.broadcastLocked(model.Event{
		Type: model.EventPlayerCodeSubmitted,
		Payload: model.SubmissionPayload{
			Username:         username,
			SubmittedResults: submittedResults,
			TestsPassed:      testsPassed,
		},
	}, "")

	if testsPassed >= model.FullPassThreshold {
		l.broadcastLocked(model.Event{
			Type:    model.EventCanEndChallenge,
			Payload: model.PlayerEventPayload{Username: username},
		}, "")
	}
}

// EndChallengeForUser lets a fully-passed participant leave early: their
// record is frozen into the completed set and the rest of the lobby keeps
// going. If that drains the active set, the whole challenge ends. A
// participant who has not fully passed only gets their current progress back.
func (l *Lobby) EndChallengeForUser(ctx context.Context, username string) {
	l.mu.Lock()
	if l.status != model.StatusInProgress || l.ended {
		l.mu.Unlock()
		return
	}
	p, ok := l.table.Active(username)
	if !ok {
		l.mu.Unlock()
		return
	}
	if p.SubmittedTestsPassed < model.FullPassThreshold {
		broadcasts.SendJSON(p.Conn, model.Event{
			Type: model.EventCannotEndYet,
			Payload: model.CannotEndYetPayload{
				Username:             username,
				SubmittedTestsPassed: p.SubmittedTestsPassed,
				Required:             model.FullPassThreshold,
			},
		})
		l.mu.Unlock()
		return
	}

	cp, _ := l.table.Complete(username, l.clock.Now())
	log.Info().Str("cid", l.cid).Str("username", username).Int("finalScore", cp.FinalScore).Msg("participant completed early")

	l.broadcastLocked(model.Event{
		Type:    model.EventPlayerCompletedAndLeft,
		Payload: model.CompletionPayload{Username: username, FinalScore: cp.FinalScore},
	}, cp.Participant.Conn.ID())
	broadcasts.SendJSON(cp.Participant.Conn, model.Event{
		Type:    model.EventChallengeEndedForUser,
		Payload: model.CompletionPayload{Username: username, FinalScore: cp.FinalScore},
	})

	drained := l.table.ActiveCount() == 0
	l.mu.Unlock()

	if drained {
		l.finalize(ctx, "All players completed")
	}
}

// EndChallenge finalizes immediately on any participant's request.
func (l *Lobby) EndChallenge(ctx context.Context, username string) {
	l.finalize(ctx, fmt.Sprintf("Challenge ended by %s", username))
}

// Disconnect moves the participant bound to connID into the grace set. The
// record is kept intact so a reconnect within the window loses nothing.
func (l *Lobby) Disconnect(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ended {
		return
	}
	p, ok := l.table.ActiveByConnID(connID)
	if !ok {
		return
	}
	username := p.Username

	dp, _ := l.table.MoveToDisconnected(username, l.clock.Now())
	dp.GraceTimer = l.timers.NewGraceTimer(model.DisconnectGrace, func() {
		l.handleGraceExpiry(username)
	})
	log.Info().Str("cid", l.cid).Str("username", username).Msg("participant disconnected, grace window started")

	l.broadcastLocked(model.Event{
		Type:    model.EventPlayerDisconnected,
		Payload: model.PlayerEventPayload{Username: username},
	}, "")
}

// handleGraceExpiry makes a disconnect permanent once the grace window runs
// out, then cascades: an IN_PROGRESS lobby with nobody left ends, an empty
// WAITING lobby is deleted.
func (l *Lobby) handleGraceExpiry(username string) {
	l.mu.Lock()
	if l.ended {
		l.mu.Unlock()
		return
	}
	if !l.table.RemoveDisconnected(username) {
		// reconnected before the timer won the race
		l.mu.Unlock()
		return
	}
	log.Info().Str("cid", l.cid).Str("username", username).Msg("grace window expired, participant left")

	l.broadcastLocked(model.Event{
		Type:    model.EventPlayerLeft,
		Payload: model.PlayerEventPayload{Username: username},
	}, "")

	status := l.status
	empty := l.table.TotalPending() == 0
	l.mu.Unlock()

	switch {
	case status == model.StatusInProgress && empty:
		l.finalize(context.Background(), "All players disconnected")
	case status == model.StatusWaiting && empty:
		l.close()
	}
}

// handleInactivity closes a WAITING lobby that saw no events for the whole
// inactivity window.
func (l *Lobby) handleInactivity() {
	l.mu.Lock()
	if l.status != model.StatusWaiting {
		l.mu.Unlock()
		return
	}
	log.Info().Str("cid", l.cid).Msg("closing lobby after inactivity timeout")
	l.broadcastLocked(model.Event{
		Type:    model.EventLobbyClosed,
		Payload: model.ErrorPayload{Reason: "closed due to inactivity"},
	}, "")
	l.mu.Unlock()
	l.close()
}

func (l *Lobby) handleTick(remaining time.Duration) {
	l.mu.Lock()
	if l.ended {
		l.mu.Unlock()
		return
	}
	ms := remaining.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	l.broadcastLocked(model.Event{
		Type:    model.EventTimerUpdate,
		Payload: model.TimerUpdatePayload{RemainingMs: ms},
	}, "")
	l.mu.Unlock()
}

func (l *Lobby) handleExpiry() {
	l.finalize(context.Background(), "expired")
}

// finalize performs the one-way IN_PROGRESS -> ENDED transition: cancel the
// countdown, rank everyone, broadcast the results, mirror the end to the
// backend and schedule disposal. The ended guard makes every trigger past the
// first a no-op.
func (l *Lobby) finalize(ctx context.Context, reason string) {
	l.mu.Lock()
	if l.ended || l.status != model.StatusInProgress {
		l.mu.Unlock()
		return
	}
	l.ended = true
	l.status = model.StatusEnded
	l.timers.StopChallenge()
	l.timers.StopInactivity()

	scores := rankScores(l.table)
	log.Info().Str("cid", l.cid).Str("reason", reason).Int("ranked", len(scores)).Msg("challenge ended")

	l.broadcastEveryoneLocked(model.Event{
		Type:    model.EventChallengeEnded,
		Payload: model.ChallengeEndedPayload{Reason: reason, Results: scores},
	})
	l.timers.ScheduleDisposal(model.RetentionWindow, l.close)
	l.mu.Unlock()

	snapshot, err := l.gateway.EndChallenge(ctx, l.cid, scores)
	if err != nil {
		log.Warn().Err(err).Str("cid", l.cid).Msg("end challenge mirror failed")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcastEveryoneLocked(model.Event{
		Type:    model.EventChallengeEndedConfirmed,
		Payload: snapshot,
	})
}

// close tears the lobby down and removes it from the registry. The closed
// flag keeps a join suspended on validation from landing in the orphan.
func (l *Lobby) close() {
	l.mu.Lock()
	l.closed = true
	l.timers.StopAll()
	l.mu.Unlock()
	if l.onClose != nil {
		l.onClose(l.cid)
	}
}

// broadcastLocked fans an event out to active participants, optionally
// excluding the originator's connection.
func (l *Lobby) broadcastLocked(ev model.Event, exceptConnID string) {
	conns := make([]model.Conn, 0, l.table.ActiveCount())
	for _, p := range l.table.OrderedActive() {
		conns = append(conns, p.Conn)
	}
	broadcasts.ToAllExcept(conns, exceptConnID, ev)
}

// broadcastEveryoneLocked additionally reaches completed participants whose
// sockets are still open, so early finishers see the final results too.
func (l *Lobby) broadcastEveryoneLocked(ev model.Event) {
	conns := make([]model.Conn, 0, l.table.ActiveCount()+len(l.table.Completed()))
	for _, p := range l.table.OrderedActive() {
		conns = append(conns, p.Conn)
	}
	for _, cp := range l.table.Completed() {
		conns = append(conns, cp.Participant.Conn)
	}
	broadcasts.ToAll(conns, ev)
}
