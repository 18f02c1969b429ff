// Package identity resolves bearer tokens against the external auth service.
//
// The token is opaque to the gateway; the collaborator owns validation and
// session state. Only "token -> user id" is consumed here.
package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/lumenchat/request-gateway/internal/gwerr"
)

// Client asks the auth collaborator who a bearer token belongs to.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds an identity client for the auth service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ResolveToken returns the user id owning the bearer token, or an
// unauthorized error for missing, expired or unknown tokens.
func (c *Client) ResolveToken(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", gwerr.New(gwerr.KindUnauthorized, "missing bearer token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/user", nil)
	if err != nil {
		return "", gwerr.New(gwerr.KindInternal, "build identity request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", gwerr.New(gwerr.KindInternal, "identity service unreachable: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", gwerr.New(gwerr.KindUnauthorized, "invalid bearer token")
	default:
		return "", gwerr.New(gwerr.KindInternal, "identity service returned %d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.ID == "" {
		return "", gwerr.New(gwerr.KindInternal, "malformed identity response")
	}
	return out.ID, nil
}
