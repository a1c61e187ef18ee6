package lobby

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lijuuu/CodeClashLobbyService/internal/model"
)

const eventually = 2 * time.Second

func newTestLobby(t *testing.T) (*Registry, *Lobby, *fakeGateway, *clockwork.FakeClock) {
	t.Helper()
	gw := newFakeGateway()
	clock := clockwork.NewFakeClock()
	registry := NewRegistry(gw, clock)
	lb := registry.GetOrCreate("abc")
	return registry, lb, gw, clock
}

func join(t *testing.T, lb *Lobby, username string) *fakeConn {
	t.Helper()
	conn := newFakeConn("conn-" + username)
	lb.Join(context.Background(), username, conn)
	require.Equal(t, 1, conn.countOfType(model.EventLobbyState), "joiner should receive lobby state")
	return conn
}

func startChallenge(t *testing.T, lb *Lobby, usernames ...string) {
	t.Helper()
	for _, username := range usernames {
		lb.ToggleReady(context.Background(), username)
	}
	require.Equal(t, model.StatusInProgress, lb.Snapshot().Status)
}

func TestJoinCreatesParticipantAndNotifiesOthers(t *testing.T) {
	_, lb, gw, _ := newTestLobby(t)

	connA := join(t, lb, "userA")
	connB := join(t, lb, "userB")

	validate, _, _ := gw.counts()
	assert.Equal(t, 2, validate)
	// the joiner does not hear about its own join
	assert.Equal(t, 1, connA.countOfType(model.EventPlayerJoined))
	assert.Equal(t, 0, connB.countOfType(model.EventPlayerJoined))

	snap := lb.Snapshot()
	require.Len(t, snap.Participants, 2)
	assert.Equal(t, "userA", snap.Participants[0].Username)
	assert.Equal(t, "userB", snap.Participants[1].Username)
}

func TestJoinRejectedByBackend(t *testing.T) {
	_, lb, gw, _ := newTestLobby(t)
	gw.denyReason = "user not registered for this challenge"

	conn := newFakeConn("conn-intruder")
	lb.Join(context.Background(), "intruder", conn)

	require.Equal(t, 1, conn.countOfType(model.EventJoinError))
	payload := conn.eventsOfType(model.EventJoinError)[0].Payload.(model.ErrorPayload)
	assert.Equal(t, "user not registered for this challenge", payload.Reason)
	assert.Empty(t, lb.Snapshot().Participants)
}

func TestJoinValidationErrorRejectsButKeepsLobby(t *testing.T) {
	_, lb, gw, _ := newTestLobby(t)
	gw.validateErr = assert.AnError

	conn := newFakeConn("conn-x")
	lb.Join(context.Background(), "userX", conn)

	assert.Equal(t, 1, conn.countOfType(model.EventJoinError))
	assert.Empty(t, lb.Snapshot().Participants)
}

func TestKnownUsernameSkipsValidation(t *testing.T) {
	_, lb, gw, _ := newTestLobby(t)
	join(t, lb, "userA")

	// same username on a fresh socket rebinds without a backend round trip
	rebound := newFakeConn("conn-userA-2")
	lb.Join(context.Background(), "userA", rebound)

	validate, _, _ := gw.counts()
	assert.Equal(t, 1, validate)
	assert.Equal(t, 1, rebound.countOfType(model.EventLobbyState))
	require.Len(t, lb.Snapshot().Participants, 1)
}

func TestAllReadyStartsExactlyOnce(t *testing.T) {
	_, lb, gw, _ := newTestLobby(t)
	connA := join(t, lb, "userA")
	connB := join(t, lb, "userB")

	var wg sync.WaitGroup
	for _, username := range []string{"userA", "userB"} {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			lb.ToggleReady(context.Background(), u)
		}(username)
	}
	wg.Wait()

	_, start, _ := gw.counts()
	assert.Equal(t, 1, start, "backend start must fire once")
	assert.Equal(t, model.StatusInProgress, lb.Snapshot().Status)

	for _, conn := range []*fakeConn{connA, connB} {
		started := conn.eventsOfType(model.EventTimerStarted)
		require.Len(t, started, 1)
		payload := started[0].Payload.(model.TimerStartedPayload)
		assert.Equal(t, int64(900000), payload.DurationMs)
	}
}

func TestReadyToggleOffPreventsStart(t *testing.T) {
	_, lb, gw, _ := newTestLobby(t)
	join(t, lb, "userA")
	join(t, lb, "userB")

	lb.ToggleReady(context.Background(), "userA")
	lb.ToggleReady(context.Background(), "userA") // back off
	lb.ToggleReady(context.Background(), "userB")

	_, start, _ := gw.counts()
	assert.Equal(t, 0, start)
	assert.Equal(t, model.StatusWaiting, lb.Snapshot().Status)
}

func TestReadyIgnoredOnceInProgress(t *testing.T) {
	_, lb, gw, _ := newTestLobby(t)
	join(t, lb, "userA")
	startChallenge(t, lb, "userA")

	lb.ToggleReady(context.Background(), "userA")
	_, start, _ := gw.counts()
	assert.Equal(t, 1, start)
}

func TestTimerTickBroadcastsRemaining(t *testing.T) {
	_, lb, _, clock := newTestLobby(t)
	connA := join(t, lb, "userA")
	startChallenge(t, lb, "userA")

	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return connA.countOfType(model.EventTimerUpdate) >= 1
	}, eventually, 10*time.Millisecond)

	payload := connA.eventsOfType(model.EventTimerUpdate)[0].Payload.(model.TimerUpdatePayload)
	assert.Equal(t, int64(899000), payload.RemainingMs)
}

func TestTimerExpiryEndsChallenge(t *testing.T) {
	_, lb, gw, clock := newTestLobby(t)
	connA := join(t, lb, "userA")
	startChallenge(t, lb, "userA")

	clock.Advance(model.ChallengeDuration + time.Second)

	require.Eventually(t, func() bool {
		return lb.Snapshot().Status == model.StatusEnded
	}, eventually, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, _, end := gw.counts()
		return end == 1
	}, eventually, 10*time.Millisecond)

	ended := connA.eventsOfType(model.EventChallengeEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, "expired", ended[0].Payload.(model.ChallengeEndedPayload).Reason)
}

func TestTestResultsAndSubmissionFlow(t *testing.T) {
	_, lb, _, _ := newTestLobby(t)
	connA := join(t, lb, "userA")
	connB := join(t, lb, "userB")
	startChallenge(t, lb, "userA", "userB")

	score := 90
	lb.RecordTestResults("userA", 9, &score)
	require.Equal(t, 1, connB.countOfType(model.EventPlayerTestResults))
	results := connB.eventsOfType(model.EventPlayerTestResults)[0].Payload.(model.TestResultsPayload)
	assert.Equal(t, 9, results.TestsPassed)
	assert.Equal(t, 90, results.LatestScore)

	// a partial submission does not unlock early completion
	lb.RecordSubmission("userA", 110, 11)
	assert.Equal(t, 0, connB.countOfType(model.EventCanEndChallenge))

	// the full pass does
	lb.RecordSubmission("userA", 150, 12)
	assert.Equal(t, 1, connA.countOfType(model.EventCanEndChallenge))
	assert.Equal(t, 1, connB.countOfType(model.EventCanEndChallenge))
}

func TestEarlyCompletionKeepsChallengeRunning(t *testing.T) {
	_, lb, gw, _ := newTestLobby(t)
	connA := join(t, lb, "userA")
	connB := join(t, lb, "userB")
	startChallenge(t, lb, "userA", "userB")

	lb.RecordSubmission("userA", 150, 12)
	lb.EndChallengeForUser(context.Background(), "userA")

	require.Equal(t, 1, connA.countOfType(model.EventChallengeEndedForUser))
	require.Equal(t, 1, connB.countOfType(model.EventPlayerCompletedAndLeft))
	assert.Equal(t, 0, connA.countOfType(model.EventPlayerCompletedAndLeft), "requester gets the distinct event only")

	// userB is still in, so the challenge keeps going
	assert.Equal(t, model.StatusInProgress, lb.Snapshot().Status)
	_, _, end := gw.counts()
	assert.Equal(t, 0, end)
}

func TestEarlyCompletionRequiresFullPass(t *testing.T) {
	_, lb, _, _ := newTestLobby(t)
	connA := join(t, lb, "userA")
	startChallenge(t, lb, "userA")

	lb.RecordSubmission("userA", 80, 8)
	lb.EndChallengeForUser(context.Background(), "userA")

	require.Equal(t, 1, connA.countOfType(model.EventCannotEndYet))
	payload := connA.eventsOfType(model.EventCannotEndYet)[0].Payload.(model.CannotEndYetPayload)
	assert.Equal(t, 8, payload.SubmittedTestsPassed)
	assert.Equal(t, 12, payload.Required)
	assert.Equal(t, model.StatusInProgress, lb.Snapshot().Status)
}

func TestLastEarlyCompletionEndsChallenge(t *testing.T) {
	_, lb, gw, _ := newTestLobby(t)
	connA := join(t, lb, "userA")
	startChallenge(t, lb, "userA")

	lb.RecordSubmission("userA", 150, 12)
	lb.EndChallengeForUser(context.Background(), "userA")

	assert.Equal(t, model.StatusEnded, lb.Snapshot().Status)
	_, _, end := gw.counts()
	assert.Equal(t, 1, end)

	// the completed participant still sees the final results
	ended := connA.eventsOfType(model.EventChallengeEnded)
	require.Len(t, ended, 1)
	results := ended[0].Payload.(model.ChallengeEndedPayload).Results
	require.Len(t, results, 1)
	assert.Equal(t, "userA", results[0].Username)
	assert.Equal(t, 150, results[0].Score)
	assert.Equal(t, 1, results[0].Rank)
}

func TestExplicitEndIsIdempotent(t *testing.T) {
	_, lb, gw, _ := newTestLobby(t)
	connA := join(t, lb, "userA")
	startChallenge(t, lb, "userA")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lb.EndChallenge(context.Background(), "userA")
		}()
	}
	wg.Wait()

	_, _, end := gw.counts()
	assert.Equal(t, 1, end, "backend end must fire once")
	assert.Equal(t, 1, connA.countOfType(model.EventChallengeEnded))
	assert.Equal(t, 1, connA.countOfType(model.EventChallengeEndedConfirmed))
}

func TestEndIgnoredWhileWaiting(t *testing.T) {
	_, lb, gw, _ := newTestLobby(t)
	join(t, lb, "userA")

	lb.EndChallenge(context.Background(), "userA")

	_, _, end := gw.counts()
	assert.Equal(t, 0, end)
	assert.Equal(t, model.StatusWaiting, lb.Snapshot().Status)
}

func TestReconnectWithinGraceRestoresState(t *testing.T) {
	_, lb, _, clock := newTestLobby(t)
	connA := join(t, lb, "userA")
	connB := join(t, lb, "userB")
	startChallenge(t, lb, "userA", "userB")

	lb.RecordSubmission("userB", 120, 12)
	lb.Disconnect(connB.ID())
	require.Equal(t, 1, connA.countOfType(model.EventPlayerDisconnected))

	clock.Advance(2 * time.Second) // still inside the 5s window

	reconnected := newFakeConn("conn-userB-2")
	lb.Join(context.Background(), "userB", reconnected)

	assert.Equal(t, 1, connA.countOfType(model.EventPlayerReconnected))
	assert.Equal(t, 0, connA.countOfType(model.EventPlayerLeft))

	lb.mu.Lock()
	p, ok := lb.table.Active("userB")
	lb.mu.Unlock()
	require.True(t, ok)
	assert.True(t, p.Ready, "ready flag survives the grace window")
	assert.True(t, p.Submitted)
	assert.Equal(t, 120, p.SubmittedResults)
	assert.Equal(t, 12, p.SubmittedTestsPassed)
	assert.Equal(t, "conn-userB-2", p.Conn.ID(), "connection reference rebinds")

	// the stale grace timer must not remove the restored participant
	clock.Advance(model.DisconnectGrace + time.Second)
	assert.Never(t, func() bool {
		return connA.countOfType(model.EventPlayerLeft) > 0
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestGraceExpiryRemovesParticipant(t *testing.T) {
	_, lb, _, clock := newTestLobby(t)
	connA := join(t, lb, "userA")
	connB := join(t, lb, "userB")
	startChallenge(t, lb, "userA", "userB")

	lb.Disconnect(connB.ID())
	clock.Advance(model.DisconnectGrace + time.Second)

	require.Eventually(t, func() bool {
		return connA.countOfType(model.EventPlayerLeft) == 1
	}, eventually, 10*time.Millisecond)

	// userA is still in, so the challenge keeps going
	assert.Equal(t, model.StatusInProgress, lb.Snapshot().Status)
}

func TestSoleParticipantDisconnectEndsChallenge(t *testing.T) {
	_, lb, gw, clock := newTestLobby(t)
	connA := join(t, lb, "userA")
	startChallenge(t, lb, "userA")

	lb.Disconnect(connA.ID())
	connA.close()
	clock.Advance(model.DisconnectGrace + time.Second)

	require.Eventually(t, func() bool {
		return lb.Snapshot().Status == model.StatusEnded
	}, eventually, 10*time.Millisecond)

	_, _, end := gw.counts()
	assert.Equal(t, 1, end)
	// the leave became permanent before the end fired, so nobody ranks
	assert.Empty(t, gw.scores())
}

func TestCascadeEndRanksGracePendingParticipant(t *testing.T) {
	_, lb, gw, _ := newTestLobby(t)
	connA := join(t, lb, "userA")
	join(t, lb, "userB")
	startChallenge(t, lb, "userA", "userB")

	lb.RecordSubmission("userA", 100, 10)
	lb.Disconnect(connA.ID())

	// userB completes while userA is still inside the grace window, draining
	// the active set and ending the whole challenge
	lb.RecordSubmission("userB", 150, 12)
	lb.EndChallengeForUser(context.Background(), "userB")

	require.Equal(t, model.StatusEnded, lb.Snapshot().Status)
	scores := gw.scores()
	require.Len(t, scores, 2)
	assert.Equal(t, "userB", scores[0].Username)
	assert.Equal(t, 1, scores[0].Rank)
	assert.Equal(t, "userA", scores[1].Username)
	assert.Equal(t, 100, scores[1].Score)
	assert.True(t, scores[1].GracePending)
}

func TestStaleDisconnectForReboundSocketIsIgnored(t *testing.T) {
	_, lb, _, _ := newTestLobby(t)
	connA := join(t, lb, "userA")

	rebound := newFakeConn("conn-userA-2")
	lb.Join(context.Background(), "userA", rebound)

	// the old socket's close arrives after the rebind
	lb.Disconnect(connA.ID())

	snap := lb.Snapshot()
	require.Len(t, snap.Participants, 1)
}

func TestInactivityClosesWaitingLobby(t *testing.T) {
	registry, lb, _, clock := newTestLobby(t)
	connA := join(t, lb, "userA")

	clock.Advance(model.InactivityTimeout + time.Second)

	require.Eventually(t, func() bool {
		_, ok := registry.Get("abc")
		return !ok
	}, eventually, 10*time.Millisecond)
	assert.Equal(t, 1, connA.countOfType(model.EventLobbyClosed))
}

func TestTouchDefersInactivityClose(t *testing.T) {
	registry, lb, _, clock := newTestLobby(t)
	join(t, lb, "userA")

	clock.Advance(model.InactivityTimeout - time.Second)
	lb.Touch()
	clock.Advance(2 * time.Second)

	assert.Never(t, func() bool {
		_, ok := registry.Get("abc")
		return !ok
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestEmptyWaitingLobbyIsDeletedAfterGrace(t *testing.T) {
	registry, lb, _, clock := newTestLobby(t)
	connA := join(t, lb, "userA")

	lb.Disconnect(connA.ID())
	clock.Advance(model.DisconnectGrace + time.Second)

	require.Eventually(t, func() bool {
		_, ok := registry.Get("abc")
		return !ok
	}, eventually, 10*time.Millisecond)
}

func TestEndedLobbyIsDisposedAfterRetention(t *testing.T) {
	registry, lb, _, clock := newTestLobby(t)
	join(t, lb, "userA")
	startChallenge(t, lb, "userA")

	lb.EndChallenge(context.Background(), "userA")
	require.Equal(t, model.StatusEnded, lb.Snapshot().Status)

	_, ok := registry.Get("abc")
	require.True(t, ok, "ended lobby sticks around through the retention window")

	clock.Advance(model.RetentionWindow + time.Second)
	require.Eventually(t, func() bool {
		_, ok := registry.Get("abc")
		return !ok
	}, eventually, 10*time.Millisecond)
}

func TestGracePendingJoinAfterEndIsRejected(t *testing.T) {
	_, lb, _, _ := newTestLobby(t)
	connA := join(t, lb, "userA")
	connB := join(t, lb, "userB")
	startChallenge(t, lb, "userA", "userB")

	lb.Disconnect(connB.ID())
	lb.EndChallenge(context.Background(), "userA")
	require.Equal(t, model.StatusEnded, lb.Snapshot().Status)

	// the grace window must not let userB slide back into the ended lobby
	returning := newFakeConn("conn-userB-2")
	lb.Join(context.Background(), "userB", returning)

	require.Equal(t, 1, returning.countOfType(model.EventJoinError))
	assert.Equal(t, 0, returning.countOfType(model.EventLobbyState))
	assert.Equal(t, 0, connA.countOfType(model.EventPlayerReconnected))

	lb.mu.Lock()
	_, active := lb.table.Active("userB")
	lb.mu.Unlock()
	assert.False(t, active, "ended lobby records must stay frozen")
}

func TestDisconnectCascadeReasonReachesEarlyFinisher(t *testing.T) {
	_, lb, _, clock := newTestLobby(t)
	connA := join(t, lb, "userA")
	connB := join(t, lb, "userB")
	startChallenge(t, lb, "userA", "userB")

	lb.RecordSubmission("userA", 150, 12)
	lb.EndChallengeForUser(context.Background(), "userA")
	require.Equal(t, model.StatusInProgress, lb.Snapshot().Status)

	lb.Disconnect(connB.ID())
	connB.close()
	clock.Advance(model.DisconnectGrace + time.Second)

	require.Eventually(t, func() bool {
		return connA.countOfType(model.EventChallengeEnded) == 1
	}, eventually, 10*time.Millisecond)
	payload := connA.eventsOfType(model.EventChallengeEnded)[0].Payload.(model.ChallengeEndedPayload)
	assert.Equal(t, "All players disconnected", payload.Reason)
}

func TestJoinAfterEndIsRejected(t *testing.T) {
	_, lb, _, _ := newTestLobby(t)
	join(t, lb, "userA")
	startChallenge(t, lb, "userA")
	lb.EndChallenge(context.Background(), "userA")

	conn := newFakeConn("conn-late")
	lb.Join(context.Background(), "lateUser", conn)
	require.Equal(t, 1, conn.countOfType(model.EventJoinError))
}

func TestJoinAbortsWhenLobbyClosesMidValidation(t *testing.T) {
	registry, lb, gw, clock := newTestLobby(t)
	gw.validateGate = make(chan struct{})

	conn := newFakeConn("conn-userA")
	done := make(chan struct{})
	go func() {
		lb.Join(context.Background(), "userA", conn)
		close(done)
	}()

	// wait until the join is suspended inside the validation call
	require.Eventually(t, func() bool {
		validate, _, _ := gw.counts()
		return validate == 1
	}, eventually, 10*time.Millisecond)

	// the inactivity timer closes the lobby while validation is in flight
	clock.Advance(model.InactivityTimeout + time.Second)
	require.Eventually(t, func() bool {
		_, ok := registry.Get("abc")
		return !ok
	}, eventually, 10*time.Millisecond)

	close(gw.validateGate)
	<-done

	// the resumed join must not land in the orphaned lobby
	assert.Equal(t, 1, conn.countOfType(model.EventJoinError))
	assert.Empty(t, lb.Snapshot().Participants)
}

func TestStartAbortsWhenLobbyEndsMidCall(t *testing.T) {
	_, lb, gw, clock := newTestLobby(t)
	connA := join(t, lb, "userA")
	gw.startGate = make(chan struct{})

	done := make(chan struct{})
	go func() {
		lb.ToggleReady(context.Background(), "userA")
		close(done)
	}()

	// wait until the toggle is suspended inside the backend call
	require.Eventually(t, func() bool {
		_, start, _ := gw.counts()
		return start == 1
	}, eventually, 10*time.Millisecond)

	// the sole participant drops and the grace window drains the lobby
	lb.Disconnect(connA.ID())
	clock.Advance(model.DisconnectGrace + time.Second)
	require.Eventually(t, func() bool {
		return lb.Snapshot().Status == model.StatusEnded
	}, eventually, 10*time.Millisecond)

	close(gw.startGate)
	<-done

	// the resumed handler must notice the end and never start the timer
	assert.Equal(t, 0, connA.countOfType(model.EventTimerStarted))
}
