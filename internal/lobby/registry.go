package lobby

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/lijuuu/CodeClashLobbyService/internal/backend"
)

// Registry owns every live lobby, keyed by challenge id. It is the single
// entry point for inbound events: the first event referencing an unseen cid
// creates its lobby, and lobbies remove themselves through their onClose
// callback when inactivity, emptiness or retention expiry retires them.
type Registry struct {
	mu      sync.Mutex
	lobbies map[string]*Lobby
	gateway backend.Gateway
	clock   clockwork.Clock
}

func NewRegistry(gateway backend.Gateway, clock clockwork.Clock) *Registry {
	return &Registry{
		lobbies: make(map[string]*Lobby),
		gateway: gateway,
		clock:   clock,
	}
}

// GetOrCreate returns the lobby for cid, creating it in WAITING if this is
// the first event to reference it. Lazy creation is intentional, not an
// error path.
func (r *Registry) GetOrCreate(cid string) *Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[cid]
	if !ok {
		l = NewLobby(cid, r.gateway, r.clock, r.Remove)
		r.lobbies[cid] = l
		log.Info().Str("cid", cid).Msg("lobby created")
	}
	return l
}

func (r *Registry) Get(cid string) (*Lobby, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[cid]
	return l, ok
}

// Remove drops a lobby from the registry.
func (r *Registry) Remove(cid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lobbies[cid]; ok {
		delete(r.lobbies, cid)
		log.Info().Str("cid", cid).Msg("lobby removed")
	}
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lobbies)
}
