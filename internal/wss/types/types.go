package wsstypes

import (
	"github.com/lijuuu/CodeClashLobbyService/internal/lobby"
	"github.com/lijuuu/CodeClashLobbyService/internal/model"
)

const (
	TypeJoin                = "join"
	TypeReady               = "ready"
	TypeCodeRunning         = "codeRunning"
	TypeCodeFinished        = "codeFinished"
	TypeTestResults         = "testResults"
	TypeCodeSubmitted       = "codeSubmitted"
	TypeEndChallenge        = "endChallenge"
	TypeEndChallengeForUser = "endChallengeForUser"
)

// InboundMessage is the flat wire format every client message uses. Numeric
// fields are pointers so handlers can tell "absent" from zero.
type InboundMessage struct {
	Type             string `json:"type"`
	Cid              string `json:"cid"`
	Username         string `json:"username"`
	TestsPassed      *int   `json:"testsPassed,omitempty"`
	SubmittedResults *int   `json:"submittedResults,omitempty"`
	Score            *int   `json:"score,omitempty"`
}

// WsContext carries one inbound message through dispatch.
type WsContext struct {
	Conn     model.Conn
	Msg      InboundMessage
	Registry *lobby.Registry
}
