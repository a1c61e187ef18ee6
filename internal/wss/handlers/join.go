package wsshandler

import (
	"context"

	wsstypes "github.com/lijuuu/CodeClashLobbyService/internal/wss/types"
)

// JoinHandler admits the connection into its lobby, creating the lobby on
// first reference.
func JoinHandler(ctx context.Context, wsctx *wsstypes.WsContext) error {
	lb := wsctx.Registry.GetOrCreate(wsctx.Msg.Cid)
	lb.Join(ctx, wsctx.Msg.Username, wsctx.Conn)
	return nil
}

// ReadyHandler toggles readiness; the lobby decides whether that starts the
// challenge.
func ReadyHandler(ctx context.Context, wsctx *wsstypes.WsContext) error {
	lb := wsctx.Registry.GetOrCreate(wsctx.Msg.Cid)
	lb.ToggleReady(ctx, wsctx.Msg.Username)
	return nil
}
