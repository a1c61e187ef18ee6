package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lijuuu/CodeClashLobbyService/internal/model"
)

const (
	validateAccessQuery = `query validateChallengeAccess($cid: String!, $username: String!) {
  validateChallengeAccess(cid: $cid, username: $username) { allowed reason }
}`

	startChallengeMutation = `mutation startChallenge($cid: String!) {
  startChallenge(cid: $cid) { cid status startDate endDate participants { username score rank time } }
}`

	endChallengeMutation = `mutation endChallenge($cid: String!, $scores: [RankedScoreInput!]!) {
  endChallenge(cid: $cid, scores: $scores) { cid status startDate endDate participants { username score rank time } }
}`
)

// HTTPGateway talks to the backend's query/mutation endpoint over HTTP JSON.
type HTTPGateway struct {
	endpoint string
	client   *http.Client
}

func NewHTTPGateway(endpoint string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type requestEnvelope struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type responseEnvelope struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (g *HTTPGateway) do(ctx context.Context, query, field string, vars map[string]any, out any) error {
	requestID := uuid.New().String()

	body, err := json.Marshal(requestEnvelope{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	log.Debug().
		Str("requestId", requestID).
		Str("field", field).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("backend call finished")

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	var envelope responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("backend error: %s", envelope.Errors[0].Message)
	}

	raw, ok := envelope.Data[field]
	if !ok {
		return fmt.Errorf("backend response missing field %q", field)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal %q: %w", field, err)
	}
	return nil
}

func (g *HTTPGateway) ValidateAccess(ctx context.Context, cid, username string) (AccessDecision, error) {
	var decision AccessDecision
	err := g.do(ctx, validateAccessQuery, "validateChallengeAccess", map[string]any{
		"cid":      cid,
		"username": username,
	}, &decision)
	if err != nil {
		return AccessDecision{}, err
	}
	return decision, nil
}

func (g *HTTPGateway) StartChallenge(ctx context.Context, cid string) (*ChallengeSnapshot, error) {
	var snapshot ChallengeSnapshot
	err := g.do(ctx, startChallengeMutation, "startChallenge", map[string]any{
		"cid": cid,
	}, &snapshot)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (g *HTTPGateway) EndChallenge(ctx context.Context, cid string, scores []model.RankedScore) (*ChallengeSnapshot, error) {
	var snapshot ChallengeSnapshot
	err := g.do(ctx, endChallengeMutation, "endChallenge", map[string]any{
		"cid":    cid,
		"scores": scores,
	}, &snapshot)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
