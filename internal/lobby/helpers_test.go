package lobby

import (
	"context"
	"sync"

	"github.com/lijuuu/CodeClashLobbyService/internal/backend"
	"github.com/lijuuu/CodeClashLobbyService/internal/model"
)

// fakeConn records every event sent to it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	open   bool
	events []model.Event
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, open: true}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) SendJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev, ok := v.(model.Event); ok {
		c.events = append(c.events, ev)
	}
	return nil
}

func (c *fakeConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

func (c *fakeConn) eventsOfType(t model.EventType) []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) countOfType(t model.EventType) int {
	return len(c.eventsOfType(t))
}

// fakeGateway counts calls and can deny access, fail, or block the validate
// and start calls until released.
type fakeGateway struct {
	mu            sync.Mutex
	validateCalls int
	startCalls    int
	endCalls      int
	lastScores    []model.RankedScore

	denyReason   string
	validateErr  error
	startGate    chan struct{}
	validateGate chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{}
}

func (g *fakeGateway) ValidateAccess(ctx context.Context, cid, username string) (backend.AccessDecision, error) {
	g.mu.Lock()
	g.validateCalls++
	deny := g.denyReason
	err := g.validateErr
	gate := g.validateGate
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return backend.AccessDecision{}, err
	}
	if deny != "" {
		return backend.AccessDecision{Allowed: false, Reason: deny}, nil
	}
	return backend.AccessDecision{Allowed: true}, nil
}

func (g *fakeGateway) StartChallenge(ctx context.Context, cid string) (*backend.ChallengeSnapshot, error) {
	g.mu.Lock()
	g.startCalls++
	gate := g.startGate
	g.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return &backend.ChallengeSnapshot{Cid: cid, Status: "IN_PROGRESS"}, nil
}

func (g *fakeGateway) EndChallenge(ctx context.Context, cid string, scores []model.RankedScore) (*backend.ChallengeSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.endCalls++
	g.lastScores = scores
	return &backend.ChallengeSnapshot{Cid: cid, Status: "ENDED"}, nil
}

func (g *fakeGateway) counts() (validate, start, end int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.validateCalls, g.startCalls, g.endCalls
}

func (g *fakeGateway) scores() []model.RankedScore {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastScores
}
