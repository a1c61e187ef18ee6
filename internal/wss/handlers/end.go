package wsshandler

import (
	"context"

	wsstypes "github.com/lijuuu/CodeClashLobbyService/internal/wss/types"
)

// EndChallengeHandler finalizes the whole challenge on any participant's
// request.
func EndChallengeHandler(ctx context.Context, wsctx *wsstypes.WsContext) error {
	lb := wsctx.Registry.GetOrCreate(wsctx.Msg.Cid)
	lb.EndChallenge(ctx, wsctx.Msg.Username)
	return nil
}

// EndChallengeForUserHandler lets one fully-passed participant finish early.
func EndChallengeForUserHandler(ctx context.Context, wsctx *wsstypes.WsContext) error {
	lb := wsctx.Registry.GetOrCreate(wsctx.Msg.Cid)
	lb.EndChallengeForUser(ctx, wsctx.Msg.Username)
	return nil
}
