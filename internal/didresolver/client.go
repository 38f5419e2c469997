package didresolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// httpError distinguishes the status-code branches the failure policy
// depends on (400 -> not found, 429 -> rate limited) from other failures.
type httpError struct {
	StatusCode int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("did resolver: upstream returned status %d", e.StatusCode)
}

// profileResponse is the getProfile response shape.
type profileResponse struct {
	Handle string `json:"handle"`
}

// profilesResponse is the getProfiles response shape.
type profilesResponse struct {
	Profiles []struct {
		DID    string `json:"did"`
		Handle string `json:"handle"`
	} `json:"profiles"`
}

// xrpcClient is the unauthenticated HTTP client for the public
// app.bsky.actor.getProfile/getProfiles endpoints. Request shape (manual
// query building, status-code branching, JSON decode) is grounded on the
// teacher's internal/bluesky/client.go, adapted to unauthenticated GETs.
type xrpcClient struct {
	httpClient *http.Client
	baseURL    string
}

func newXRPCClient(baseURL string, timeout time.Duration) *xrpcClient {
	return &xrpcClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

func (c *xrpcClient) getProfile(ctx context.Context, id string) (string, error) {
	u := fmt.Sprintf("%s/xrpc/app.bsky.actor.getProfile?actor=%s", c.baseURL, url.QueryEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build getProfile request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("getProfile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &httpError{StatusCode: resp.StatusCode}
	}

	var profile profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("decode getProfile response: %w", err)
	}
	return profile.Handle, nil
}

func (c *xrpcClient) getProfiles(ctx context.Context, ids []string) (map[string]string, error) {
	q := url.Values{}
	for _, id := range ids {
		q.Add("actors", id)
	}
	u := fmt.Sprintf("%s/xrpc/app.bsky.actor.getProfiles?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build getProfiles request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getProfiles request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httpError{StatusCode: resp.StatusCode}
	}

	var parsed profilesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode getProfiles response: %w", err)
	}

	result := make(map[string]string, len(parsed.Profiles))
	for _, p := range parsed.Profiles {
		result[p.DID] = p.Handle
	}
	return result, nil
}
