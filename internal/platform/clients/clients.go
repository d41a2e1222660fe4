// Package clients calls the collaborating services of the registry: the UIN
// generator and the notification broker. Both are plain JSON-over-HTTP endpoints
// guarded by a circuit breaker.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"registry/pkg/platform/circuit"
)

// ErrCircuitOpen is returned without calling the service while its breaker is open.
var ErrCircuitOpen = errors.New("circuit open")

const maxErrorBody = 512

type caller struct {
	base    string
	http    *http.Client
	breaker *circuit.Breaker
}

func newCaller(name, baseURL string, timeout time.Duration) caller {
	return caller{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		breaker: circuit.New(name, circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
	}
}

// post sends body as JSON and decodes a 2xx JSON response into out (if non-nil).
func (c caller) post(ctx context.Context, path string, body, out any) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("%s: %w", c.breaker.Name(), ErrCircuitOpen)
	}
	err := c.do(ctx, path, body, out)
	if err != nil && ctx.Err() == nil {
		c.breaker.RecordFailure()
		return err
	}
	if err == nil {
		c.breaker.RecordSuccess()
	}
	return err
}

func (c caller) do(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", c.breaker.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s returned %d: %s", c.breaker.Name(), resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.breaker.Name(), err)
	}
	return nil
}
