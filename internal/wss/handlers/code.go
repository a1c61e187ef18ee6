package wsshandler

import (
	"context"

	"github.com/rs/zerolog/log"

	wsstypes "github.com/lijuuu/CodeClashLobbyService/internal/wss/types"
)

func CodeRunningHandler(ctx context.Context, wsctx *wsstypes.WsContext) error {
	lb := wsctx.Registry.GetOrCreate(wsctx.Msg.Cid)
	lb.SetRunning(wsctx.Msg.Username, true)
	return nil
}

func CodeFinishedHandler(ctx context.Context, wsctx *wsstypes.WsContext) error {
	lb := wsctx.Registry.GetOrCreate(wsctx.Msg.Cid)
	lb.SetRunning(wsctx.Msg.Username, false)
	return nil
}

// TestResultsHandler records a test run. Messages without a testsPassed
// count are dropped.
func TestResultsHandler(ctx context.Context, wsctx *wsstypes.WsContext) error {
	if wsctx.Msg.TestsPassed == nil {
		log.Debug().Str("cid", wsctx.Msg.Cid).Str("username", wsctx.Msg.Username).Msg("dropping testResults without testsPassed")
		return nil
	}
	lb := wsctx.Registry.GetOrCreate(wsctx.Msg.Cid)
	lb.RecordTestResults(wsctx.Msg.Username, *wsctx.Msg.TestsPassed, wsctx.Msg.Score)
	return nil
}

// CodeSubmittedHandler records a submission. Both submittedResults and
// testsPassed must be present.
func CodeSubmittedHandler(ctx context.Context, wsctx *wsstypes.WsContext) error {
	if wsctx.Msg.SubmittedResults == nil || wsctx.Msg.TestsPassed == nil {
		log.Debug().Str("cid", wsctx.Msg.Cid).Str("username", wsctx.Msg.Username).Msg("dropping codeSubmitted without results")
		return nil
	}
	lb := wsctx.Registry.GetOrCreate(wsctx.Msg.Cid)
	lb.RecordSubmission(wsctx.Msg.Username, *wsctx.Msg.SubmittedResults, *wsctx.Msg.TestsPassed)
	return nil
}
