package main

import (
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lijuuu/CodeClashLobbyService/internal/backend"
	"github.com/lijuuu/CodeClashLobbyService/internal/config"
	"github.com/lijuuu/CodeClashLobbyService/internal/handlers"
	"github.com/lijuuu/CodeClashLobbyService/internal/lobby"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.LoadConfig()
	gateway := backend.NewHTTPGateway(cfg.BackendURL, cfg.BackendTimeout)
	registry := lobby.NewRegistry(gateway, clockwork.NewRealClock())

	if err := handlers.StartServer(cfg, registry); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
