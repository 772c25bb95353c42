package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
	"github.com/autopeer-io/syncpeer/pkg/log"
)

// RegisterPath is the console endpoint agents announce themselves to.
const RegisterPath = "/api/v1/agents/register"

// Registrar announces the agent to the console and returns the id the
// console knows it by.
type Registrar interface {
	Register(ctx context.Context, reg *fleetv1alpha1.Registration) (string, error)
}

// HTTPRegistrar registers over the console HTTP API, retrying with a
// Fibonacci backoff.
type HTTPRegistrar struct {
	baseURL  string
	client   *http.Client
	backoff  time.Duration
	attempts uint64
}

var _ Registrar = (*HTTPRegistrar)(nil)

func NewHTTPRegistrar(baseURL string, client *http.Client) *HTTPRegistrar {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPRegistrar{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		backoff:  time.Second,
		attempts: 5,
	}
}

// WithBackoff sets the first retry delay and the total number of attempts.
func (r *HTTPRegistrar) WithBackoff(base time.Duration, attempts uint64) *HTTPRegistrar {
	r.backoff = base
	if attempts > 0 {
		r.attempts = attempts
	}
	return r
}

func (r *HTTPRegistrar) Register(ctx context.Context, reg *fleetv1alpha1.Registration) (string, error) {
	body, err := json.Marshal(reg)
	if err != nil {
		return "", err
	}

	var (
		id      string
		attempt int
	)
	b := retry.WithMaxRetries(r.attempts-1, retry.NewFibonacci(r.backoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		var err error
		id, err = r.post(ctx, body)
		if err != nil {
			log.Warn("Registration attempt failed", "attempt", attempt, "url", r.baseURL+RegisterPath, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("registration failed after %d attempts: %w", attempt, err)
	}

	log.Info("Registered with console", "agentID", id, "attempts", attempt)
	return id, nil
}

func (r *HTTPRegistrar) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+RegisterPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("console returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out fleetv1alpha1.RegistrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode registration response: %w", err)
	}
	if out.AgentID == "" {
		return "", fmt.Errorf("console returned no agent_id (status %q)", out.Status)
	}
	return out.AgentID, nil
}
