package wss

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lijuuu/CodeClashLobbyService/internal/lobby"
	wsstypes "github.com/lijuuu/CodeClashLobbyService/internal/wss/types"
)

// NewUpgrader builds the websocket upgrader with an origin allowlist.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowedOrigins {
				if origin == o {
					return true
				}
			}
			return false
		},
	}
}

// Handler upgrades the request and runs the connection's read loop until the
// socket closes.
func Handler(dispatcher *Dispatcher, registry *lobby.Registry, upgrader websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := NewClient(sock)
		log.Debug().Str("connId", client.ID()).Msg("websocket connection established")
		defer sock.Close()

		readLoop(client, sock, dispatcher, registry)
	}
}

// readLoop processes one connection's messages in arrival order. Malformed
// payloads are dropped with the connection left open; a read error means the
// socket closed and hands the connection off to its lobby's disconnect path.
func readLoop(client *Client, sock *websocket.Conn, dispatcher *Dispatcher, registry *lobby.Registry) {
	var boundCid string

	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("connId", client.ID()).Str("cid", boundCid).Msg("websocket connection closed")
			client.markClosed()
			if boundCid != "" {
				if lb, ok := registry.Get(boundCid); ok {
					lb.Disconnect(client.ID())
				}
			}
			return
		}

		var msg wsstypes.InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Debug().Err(err).Str("connId", client.ID()).Msg("dropping malformed message")
			continue
		}
		if msg.Cid == "" || msg.Username == "" {
			log.Debug().Str("connId", client.ID()).Str("type", msg.Type).Msg("dropping message without cid or username")
			continue
		}
		boundCid = msg.Cid

		dispatcher.Dispatch(context.Background(), &wsstypes.WsContext{
			Conn:     client,
			Msg:      msg,
			Registry: registry,
		})
	}
}
