package model

type EventType string

const (
	EventLobbyState              EventType = "lobbyState"
	EventPlayerJoined            EventType = "playerJoined"
	EventPlayerReadyToggle       EventType = "playerReadyToggle"
	EventPlayerCodeRunning       EventType = "playerCodeRunning"
	EventPlayerCodeFinished      EventType = "playerCodeFinished"
	EventPlayerTestResults       EventType = "playerTestResults"
	EventPlayerCodeSubmitted     EventType = "playerCodeSubmitted"
	EventCanEndChallenge         EventType = "canEndChallenge"
	EventPlayerCompletedAndLeft  EventType = "playerCompletedAndLeft"
	EventChallengeEndedForUser   EventType = "challengeEndedForUser"
	EventCannotEndYet            EventType = "cannotEndYet"
	EventPlayerDisconnected      EventType = "playerDisconnected"
	EventPlayerReconnected       EventType = "playerReconnected"
	EventPlayerLeft              EventType = "playerLeft"
	EventTimerStarted            EventType = "timerStarted"
	EventTimerUpdate             EventType = "timerUpdate"
	EventChallengeEnded          EventType = "challengeEnded"
	EventChallengeEndedConfirmed EventType = "challengeEndedConfirmed"
	EventLobbyClosed             EventType = "lobbyClosed"
	EventJoinError               EventType = "joinError"
)

// Event is the outbound envelope for every message the lobby pushes to
// clients, broadcast or unicast.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

type PlayerEventPayload struct {
	Username string `json:"username"`
}

type ReadyTogglePayload struct {
	Username string `json:"username"`
	Ready    bool   `json:"ready"`
}

type TestResultsPayload struct {
	Username    string `json:"username"`
	TestsPassed int    `json:"testsPassed"`
	LatestScore int    `json:"latestScore"`
}

type SubmissionPayload struct {
	Username         string `json:"username"`
	SubmittedResults int    `json:"submittedResults"`
	TestsPassed      int    `json:"testsPassed"`
}

type CompletionPayload struct {
	Username   string `json:"username"`
	FinalScore int    `json:"finalScore"`
}

type CannotEndYetPayload struct {
	Username             string `json:"username"`
	SubmittedTestsPassed int    `json:"submittedTestsPassed"`
	Required             int    `json:"required"`
}

type TimerStartedPayload struct {
	DurationMs int64 `json:"duration"`
}

type TimerUpdatePayload struct {
	RemainingMs int64 `json:"remaining"`
}

type ChallengeEndedPayload struct {
	Reason  string        `json:"reason"`
	Results []RankedScore `json:"results"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}

// LobbyStatePayload is the full lobby snapshot sent to a joining or
// reconnecting client, and served by the read-only HTTP endpoint. Challenge
// carries the backend's canonical record when one is available.
type LobbyStatePayload struct {
	Cid          string         `json:"cid"`
	Status       LobbyStatus    `json:"status"`
	Participants []*Participant `json:"participants"`
	RemainingMs  int64          `json:"remaining"`
	Challenge    any            `json:"challenge,omitempty"`
}
