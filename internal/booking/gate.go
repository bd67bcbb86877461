package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/korle-health/clinic-platform/pkg/logging"
)

// Decision is the prerequisite evaluator's verdict.
type Decision struct {
	CanProceed bool
	Reasons    []string
}

// PrerequisiteGate answers whether the patient may book at all (intake forms
// filed, contact verified). It is an external collaborator; the orchestrator
// always re-runs it server-side so a client skipping its own pre-check
// cannot bypass the gate.
type PrerequisiteGate interface {
	Evaluate(ctx context.Context, userID string) (Decision, error)
}

// HTTPGate consumes the eligibility service over HTTP.
type HTTPGate struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewHTTPGate creates a gate client.
func NewHTTPGate(baseURL string, logger *logging.Logger) *HTTPGate {
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPGate{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type gateResponse struct {
	CanProceed bool     `json:"can_proceed"`
	Reasons    []string `json:"reasons"`
}

// Evaluate queries the eligibility service for the user.
func (g *HTTPGate) Evaluate(ctx context.Context, userID string) (Decision, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/eligibility/"+userID, nil)
	if err != nil {
		return Decision{}, fmt.Errorf("booking: build gate request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("booking: gate unavailable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Decision{}, fmt.Errorf("booking: read gate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		g.logger.Error("eligibility gate returned error", "status", resp.StatusCode)
		return Decision{}, fmt.Errorf("booking: gate returned status %d", resp.StatusCode)
	}

	var body gateResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return Decision{}, fmt.Errorf("booking: decode gate response: %w", err)
	}
	return Decision{CanProceed: body.CanProceed, Reasons: body.Reasons}, nil
}

// StaticGate returns a fixed decision; used in tests and demo deployments.
type StaticGate struct {
	Decision Decision
	Err      error
}

// Evaluate returns the configured decision.
func (g StaticGate) Evaluate(ctx context.Context, userID string) (Decision, error) {
	return g.Decision, g.Err
}
