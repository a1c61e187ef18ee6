package backend

import (
	"context"

	"github.com/lijuuu/CodeClashLobbyService/internal/model"
)

// AccessDecision is the backend's verdict on a join attempt. Reason is a
// human-readable string forwarded verbatim to the rejected client.
type AccessDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

type SnapshotParticipant struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
	Time     int64  `json:"time"`
}

// ChallengeSnapshot is the backend's canonical record of a challenge.
type ChallengeSnapshot struct {
	Cid          string                `json:"cid"`
	Status       string                `json:"status"`
	StartDate    int64                 `json:"startDate"`
	EndDate      int64                 `json:"endDate"`
	Participants []SnapshotParticipant `json:"participants"`
}

// Gateway mirrors lobby lifecycle into the remote system of record.
// Start/end mirroring is best-effort: callers log failures and the local
// state machine advances regardless. Only ValidateAccess gates anything.
type Gateway interface {
	ValidateAccess(ctx context.Context, cid, username string) (AccessDecision, error)
	StartChallenge(ctx context.Context, cid string) (*ChallengeSnapshot, error)
	EndChallenge(ctx context.Context, cid string, scores []model.RankedScore) (*ChallengeSnapshot, error)
}
