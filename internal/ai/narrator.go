// Package ai calls an external language-model service to produce free-text
// explanations for alerts and fraud rings. The narrative is decoration on top
// of the deterministic scoring; every failure here degrades to an empty
// explanation and never blocks alert generation.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// Narrator is an HTTP client for the narrative endpoint. It implements the
// combiner's optional Narrator collaborator.
type Narrator struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewNarrator creates a narrator for the given endpoint. A non-positive
// timeout falls back to 30 seconds.
func NewNarrator(endpoint, apiKey string, timeout time.Duration) *Narrator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Narrator{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// narrativeRequest is the wire format of an explanation request.
type narrativeRequest struct {
	Kind    string `json:"kind"` // "alert" or "ring"
	Prompt  string `json:"prompt"`
	Context any    `json:"context"`
}

// narrativeResponse is the wire format of an explanation response.
type narrativeResponse struct {
	Explanation string `json:"explanation"`
}

// ExplainAlert returns a short free-text explanation of why the alert fired.
func (n *Narrator) ExplainAlert(ctx context.Context, alert domain.LunarAlert) (string, error) {
	prompt := fmt.Sprintf(
		"Explain in two sentences why a %s fraud alert titled %q was raised for accounts %s.",
		alert.Severity, alert.Title, strings.Join(alert.EntityIDs, ", "),
	)
	return n.explain(ctx, narrativeRequest{
		Kind:    "alert",
		Prompt:  prompt,
		Context: alert,
	})
}

// ExplainRing returns a short free-text explanation of the detected ring.
func (n *Narrator) ExplainRing(ctx context.Context, ring domain.FraudRing) (string, error) {
	prompt := fmt.Sprintf(
		"Explain in two sentences why the %d accounts %s form a severity-%d coordinated trading ring.",
		len(ring.AccountIDs), strings.Join(ring.AccountIDs, ", "), ring.Severity,
	)
	return n.explain(ctx, narrativeRequest{
		Kind:    "ring",
		Prompt:  prompt,
		Context: ring,
	})
}

func (n *Narrator) explain(ctx context.Context, req narrativeRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("ai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ai: call narrative endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("ai: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ai: narrative endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var out narrativeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}

	return strings.TrimSpace(out.Explanation), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
