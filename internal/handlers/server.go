package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lijuuu/CodeClashLobbyService/internal/config"
	"github.com/lijuuu/CodeClashLobbyService/internal/lobby"
	"github.com/lijuuu/CodeClashLobbyService/internal/wss"
)

// StartServer wires the HTTP surface: the websocket endpoint plus a small
// read-only REST surface for inspection.
func StartServer(cfg config.Config, registry *lobby.Registry) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	dispatcher := wss.NewRouter()
	upgrader := wss.NewUpgrader(cfg.AllowedOrigins)

	r.GET("/ws", wss.Handler(dispatcher, registry, upgrader))
	r.GET("/health", HealthHandler(registry))
	r.GET("/lobbies/:challenge_id", GetLobbyHandler(registry))

	addr := ":" + cfg.HTTPPort
	log.Info().Str("addr", addr).Msg("starting lobby coordinator server")
	return r.Run(addr)
}

func HealthHandler(registry *lobby.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"lobbies": registry.Count(),
		})
	}
}

// GetLobbyHandler serves a lobby's in-memory snapshot.
func GetLobbyHandler(registry *lobby.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.Param("challenge_id")
		lb, ok := registry.Get(cid)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "lobby not found"})
			return
		}
		c.JSON(http.StatusOK, lb.Snapshot())
	}
}
