package broadcasts

import (
	"github.com/rs/zerolog/log"

	"github.com/lijuuu/CodeClashLobbyService/internal/model"
)

// SendJSON delivers one event to a single connection. Connections that are
// no longer open are skipped silently.
func SendJSON(conn model.Conn, ev model.Event) error {
	if conn == nil || !conn.Open() {
		return nil
	}
	return conn.SendJSON(ev)
}

// SendError unicasts an event carrying only a human-readable reason.
func SendError(conn model.Conn, t model.EventType, reason string) error {
	return SendJSON(conn, model.Event{Type: t, Payload: model.ErrorPayload{Reason: reason}})
}

// ToAll fans an event out to every open connection in the list.
func ToAll(conns []model.Conn, ev model.Event) {
	ToAllExcept(conns, "", ev)
}

// ToAllExcept fans an event out, skipping the connection with the given id so
// an action is not echoed back to its originator.
func ToAllExcept(conns []model.Conn, exceptID string, ev model.Event) {
	for _, conn := range conns {
		if conn == nil || !conn.Open() {
			continue
		}
		if exceptID != "" && conn.ID() == exceptID {
			continue
		}
		if err := conn.SendJSON(ev); err != nil {
			log.Debug().Err(err).Str("type", string(ev.Type)).Msg("dropped broadcast to dead connection")
		}
	}
}
