package wss

import (
	"context"

	"github.com/rs/zerolog/log"

	wsshandler "github.com/lijuuu/CodeClashLobbyService/internal/wss/handlers"
	wsstypes "github.com/lijuuu/CodeClashLobbyService/internal/wss/types"
)

// HandlerFunc handles one validated inbound message.
type HandlerFunc func(ctx context.Context, wsctx *wsstypes.WsContext) error

// Dispatcher routes inbound messages to their handler by type. Unrecognized
// types are logged and ignored; the connection stays open either way.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
	}
}

func (d *Dispatcher) Register(msgType string, handler HandlerFunc) {
	d.handlers[msgType] = handler
}

func (d *Dispatcher) Dispatch(ctx context.Context, wsctx *wsstypes.WsContext) {
	handler, ok := d.handlers[wsctx.Msg.Type]
	if !ok {
		log.Debug().Str("type", wsctx.Msg.Type).Str("cid", wsctx.Msg.Cid).Msg("ignoring unknown event type")
		return
	}

	// any recognized event keeps its WAITING lobby alive
	if lb, ok := wsctx.Registry.Get(wsctx.Msg.Cid); ok {
		lb.Touch()
	}

	if err := handler(ctx, wsctx); err != nil {
		log.Error().Err(err).Str("type", wsctx.Msg.Type).Str("cid", wsctx.Msg.Cid).Msg("handler error")
	}
}

// NewRouter builds the dispatcher with every inbound type the protocol
// recognizes.
func NewRouter() *Dispatcher {
	d := NewDispatcher()
	d.Register(wsstypes.TypeJoin, wsshandler.JoinHandler)
	d.Register(wsstypes.TypeReady, wsshandler.ReadyHandler)
	d.Register(wsstypes.TypeCodeRunning, wsshandler.CodeRunningHandler)
	d.Register(wsstypes.TypeCodeFinished, wsshandler.CodeFinishedHandler)
	d.Register(wsstypes.TypeTestResults, wsshandler.TestResultsHandler)
	d.Register(wsstypes.TypeCodeSubmitted, wsshandler.CodeSubmittedHandler)
	d.Register(wsstypes.TypeEndChallenge, wsshandler.EndChallengeHandler)
	d.Register(wsstypes.TypeEndChallengeForUser, wsshandler.EndChallengeForUserHandler)
	return d
}
