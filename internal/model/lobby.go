package model

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	ChallengeDuration = 15 * time.Minute
	TimerTickInterval = time.Second
	DisconnectGrace   = 5 * time.Second
	RetentionWindow   = 30 * time.Second
	InactivityTimeout = 3 * time.Minute

	// FullPassThreshold is the number of test cases a submission must pass
	// before its owner may end the challenge for themselves.
	FullPassThreshold = 12
)

type LobbyStatus string

const (
	StatusWaiting    LobbyStatus = "WAITING"
	StatusInProgress LobbyStatus = "IN_PROGRESS"
	StatusEnded      LobbyStatus = "ENDED"
)

// Participant is one user's live record inside a lobby. The connection is
// referenced, never owned: it is rebound on reconnect and closed only by the
// transport layer.
type Participant struct {
	Username             string `json:"username"`
	Conn                 Conn   `json:"-"`
	Ready                bool   `json:"ready"`
	Running              bool   `json:"running"`
	TestsPassed          int    `json:"testsPassed"`
	Submitted            bool   `json:"submitted"`
	SubmittedResults     int    `json:"submittedResults"`
	SubmittedTestsPassed int    `json:"submittedTestsPassed"`
	LatestScore          int    `json:"latestScore"`
}

// DisconnectedParticipant holds a participant whose socket dropped, waiting
// out the grace window. The grace timer handle lives here so reconnection can
// cancel exactly the timer that would remove this record.
type DisconnectedParticipant struct {
	Participant    *Participant
	DisconnectedAt time.Time
	GraceTimer     clockwork.Timer
}

// CompletedParticipant is the frozen snapshot of a participant who ended the
// challenge for themselves before the lobby finished.
type CompletedParticipant struct {
	Participant *Participant
	CompletedAt time.Time
	FinalScore  int
}

// RankedScore is one row of the final leaderboard. GracePending marks entries
// whose owner was inside the disconnect-grace window when the challenge ended;
// they are ranked by their last known submitted score.
type RankedScore struct {
	Username     string `json:"username"`
	Score        int    `json:"score"`
	Rank         int    `json:"rank"`
	GracePending bool   `json:"gracePending,omitempty"`
	Time         int64  `json:"time,omitempty"`
}
