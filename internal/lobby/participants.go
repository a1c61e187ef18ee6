package lobby

import (
	"time"

	"github.com/lijuuu/CodeClashLobbyService/internal/model"
)

// ParticipantTable keeps the three per-lobby record sets: active,
// disconnected-pending and completed. A username lives in exactly one set at
// a time. Insertion order is tracked explicitly because the final ranking
// breaks ties by table order. The table is not safe for concurrent use; the
// owning Lobby's lock guards it.
type ParticipantTable struct {
	active       map[string]*model.Participant
	activeOrder  []string
	disconnected map[string]*model.DisconnectedParticipant
	discOrder    []string
	completed    []*model.CompletedParticipant
}

func NewParticipantTable() *ParticipantTable {
	return &ParticipantTable{
		active:       make(map[string]*model.Participant),
		disconnected: make(map[string]*model.DisconnectedParticipant),
	}
}

func (t *ParticipantTable) AddActive(p *model.Participant) {
	t.active[p.Username] = p
	t.activeOrder = append(t.activeOrder, p.Username)
}

func (t *ParticipantTable) Active(username string) (*model.Participant, bool) {
	p, ok := t.active[username]
	return p, ok
}

// ActiveByConnID finds the active participant bound to a given connection id.
// Stale disconnect notifications for a rebound socket miss here on purpose.
func (t *ParticipantTable) ActiveByConnID(connID string) (*model.Participant, bool) {
	for _, username := range t.activeOrder {
		p := t.active[username]
		if p.Conn != nil && p.Conn.ID() == connID {
			return p, true
		}
	}
	return nil, false
}

// OrderedActive returns active participants in table order.
func (t *ParticipantTable) OrderedActive() []*model.Participant {
	out := make([]*model.Participant, 0, len(t.activeOrder))
	for _, username := range t.activeOrder {
		out = append(out, t.active[username])
	}
	return out
}

func (t *ParticipantTable) ActiveCount() int {
	return len(t.active)
}

// AllReady reports whether every active participant toggled ready. An empty
// table is never "all ready".
func (t *ParticipantTable) AllReady() bool {
	if len(t.active) == 0 {
		return false
	}
	for _, p := range t.active {
		if !p.Ready {
			return false
		}
	}
	return true
}

// MoveToDisconnected shifts an active participant into the grace set. The
// caller arms the grace timer on the returned record.
func (t *ParticipantTable) MoveToDisconnected(username string, at time.Time) (*model.DisconnectedParticipant, bool) {
	p, ok := t.active[username]
	if !ok {
		return nil, false
	}
	delete(t.active, username)
	t.activeOrder = removeName(t.activeOrder, username)

	dp := &model.DisconnectedParticipant{
		Participant:    p,
		DisconnectedAt: at,
	}
	t.disconnected[username] = dp
	t.discOrder = append(t.discOrder, username)
	return dp, true
}

func (t *ParticipantTable) Disconnected(username string) (*model.DisconnectedParticipant, bool) {
	dp, ok := t.disconnected[username]
	return dp, ok
}

func (t *ParticipantTable) OrderedDisconnected() []*model.DisconnectedParticipant {
	out := make([]*model.DisconnectedParticipant, 0, len(t.discOrder))
	for _, username := range t.discOrder {
		out = append(out, t.disconnected[username])
	}
	return out
}

func (t *ParticipantTable) DisconnectedCount() int {
	return len(t.disconnected)
}

// Reconnect restores a grace-pending participant into the active set with its
// record untouched. Returns nil if the username is not in the grace set.
func (t *ParticipantTable) Reconnect(username string) *model.Participant {
	dp, ok := t.disconnected[username]
	if !ok {
		return nil
	}
	delete(t.disconnected, username)
	t.discOrder = removeName(t.discOrder, username)

	t.active[username] = dp.Participant
	t.activeOrder = append(t.activeOrder, username)
	return dp.Participant
}

// RemoveDisconnected drops a grace-pending participant permanently.
func (t *ParticipantTable) RemoveDisconnected(username string) bool {
	if _, ok := t.disconnected[username]; !ok {
		return false
	}
	delete(t.disconnected, username)
	t.discOrder = removeName(t.discOrder, username)
	return true
}

// Complete freezes an active participant's record and moves it to the
// completed set. The final score is the submitted score at completion time.
func (t *ParticipantTable) Complete(username string, at time.Time) (*model.CompletedParticipant, bool) {
	p, ok := t.active[username]
	if !ok {
		return nil, false
	}
	delete(t.active, username)
	t.activeOrder = removeName(t.activeOrder, username)

	cp := &model.CompletedParticipant{
		Participant: p,
		CompletedAt: at,
		FinalScore:  p.SubmittedResults,
	}
	t.completed = append(t.completed, cp)
	return cp, true
}

func (t *ParticipantTable) Completed() []*model.CompletedParticipant {
	return t.completed
}

func (t *ParticipantTable) IsCompleted(username string) bool {
	for _, cp := range t.completed {
		if cp.Participant.Username == username {
			return true
		}
	}
	return false
}

// TotalPending counts participants who still hold a claim on the lobby:
// active plus disconnected-pending.
func (t *ParticipantTable) TotalPending() int {
	return len(t.active) + len(t.disconnected)
}

func removeName(names []string, username string) []string {
	for i, name := range names {
		if name == username {
			return append(names[:i], names[i+1:]...)
		}
	}
	return names
}
