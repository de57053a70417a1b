package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// IdentityClient verifies bearer credentials against the identity provider
type IdentityClient struct {
	baseURL    string
	httpClient *http.Client
}

// verifyResponse represents a response from the identity provider
type verifyResponse struct {
	UserID string `json:"user_id"`
}

// NewIdentityClient creates a new identity provider client
func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Verify checks a bearer token with the identity provider and returns the
// user identifier it maps to. Any rejection or transport failure comes back
// as an error; callers treat all of them as an unauthenticated request.
func (c *IdentityClient) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/verify", c.baseURL), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request to identity provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("identity provider rejected token: status %d", resp.StatusCode)
	}

	var verifyResp verifyResponse
	if err := json.Unmarshal(body, &verifyResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if verifyResp.UserID == "" {
		return "", fmt.Errorf("identity provider returned empty user id")
	}

	return verifyResp.UserID, nil
}
