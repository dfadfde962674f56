package openstack

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
)

var (
	// ErrEndpointNotFound means the service catalog has no compute endpoint
	// matching the configured region and the public interface.
	ErrEndpointNotFound = errors.New("no matching compute endpoint in catalog")
	// ErrRequestFailed covers transport errors and non-success compute responses.
	ErrRequestFailed = errors.New("compute request failed")
	// ErrNotFoundRemote means the remote server no longer exists.
	ErrNotFoundRemote = errors.New("remote server not found")
)

const maxResponseBytes = 1 << 20

// Client talks to OpenStack-compatible identity and compute APIs. It owns the
// per-scope token cache; construct one per process and share it.
type Client struct {
	httpClient *http.Client
	tokens     *tokenCache
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		tokens:     newTokenCache(),
	}
}

// computeEndpoint resolves the compute service's public endpoint for the
// provider's region from a catalog.
func computeEndpoint(catalog []CatalogEntry, region string) (string, error) {
	region = strings.TrimSpace(region)
	for _, entry := range catalog {
		if !strings.EqualFold(entry.Type, "compute") {
			continue
		}
		for _, ep := range entry.Endpoints {
			if !strings.EqualFold(ep.Interface, "public") {
				continue
			}
			if region != "" && !strings.EqualFold(ep.Region, region) && !strings.EqualFold(ep.RegionID, region) {
				continue
			}
			url := strings.TrimRight(strings.TrimSpace(ep.URL), "/")
			if url != "" {
				return url, nil
			}
		}
	}
	if region != "" {
		return "", fmt.Errorf("%w (region %q)", ErrEndpointNotFound, region)
	}
	return "", ErrEndpointNotFound
}

// do issues one authenticated compute call and returns the raw status + body.
// Transport failures are reported as ErrRequestFailed; status handling is left
// to the caller.
func (c *Client) do(ctx context.Context, p Provider, scope ProjectScope, method, path string, payload any) (int, []byte, error) {
	tok, err := c.Acquire(ctx, p, scope)
	if err != nil {
		return 0, nil, err
	}
	base, err := computeEndpoint(tok.Catalog, p.Region)
	if err != nil {
		return 0, nil, err
	}
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+"/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("X-Auth-Token", tok.Value)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	return resp.StatusCode, respBody, nil
}

// Request issues an authenticated compute call and requires a 2xx response.
func (c *Client) Request(ctx context.Context, p Provider, scope ProjectScope, method, path string, payload any) ([]byte, error) {
	status, body, err := c.do(ctx, p, scope, method, path, payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: %s %s returned %d: %s", ErrRequestFailed, method, path, status, bodySnippet(body))
	}
	return body, nil
}

// ListServers returns detailed server records for the scoped project.
func (c *Client) ListServers(ctx context.Context, p Provider, scope ProjectScope) ([]Server, error) {
	body, err := c.Request(ctx, p, scope, http.MethodGet, "/servers/detail", nil)
	if err != nil {
		return nil, err
	}
	var parsed serverListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed server list: %v", ErrRequestFailed, err)
	}
	return parsed.Servers, nil
}

// GetServer fetches one server's details by its remote ID.
func (c *Client) GetServer(ctx context.Context, p Provider, scope ProjectScope, remoteID string) (*Server, error) {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return nil, fmt.Errorf("%w: server id is required", ErrRequestFailed)
	}
	status, body, err := c.do(ctx, p, scope, http.MethodGet, "/servers/"+remoteID, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFoundRemote, remoteID)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: get server %s returned %d: %s", ErrRequestFailed, remoteID, status, bodySnippet(body))
	}
	var parsed serverResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed server response: %v", ErrRequestFailed, err)
	}
	return &parsed.Server, nil
}

// serverAction posts one of nova's instance action verbs.
func (c *Client) serverAction(ctx context.Context, p Provider, scope ProjectScope, remoteID string, action any) error {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return fmt.Errorf("%w: server id is required", ErrRequestFailed)
	}
	_, err := c.Request(ctx, p, scope, http.MethodPost, "/servers/"+remoteID+"/action", action)
	return err
}

func (c *Client) StartServer(ctx context.Context, p Provider, scope ProjectScope, remoteID string) error {
	return c.serverAction(ctx, p, scope, remoteID, map[string]any{"os-start": nil})
}

func (c *Client) StopServer(ctx context.Context, p Provider, scope ProjectScope, remoteID string) error {
	return c.serverAction(ctx, p, scope, remoteID, map[string]any{"os-stop": nil})
}

func (c *Client) RebootServer(ctx context.Context, p Provider, scope ProjectScope, remoteID string, hard bool) error {
	kind := "SOFT"
	if hard {
		kind = "HARD"
	}
	return c.serverAction(ctx, p, scope, remoteID, map[string]any{"reboot": map[string]string{"type": kind}})
}

func bodySnippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	if text == "" {
		return "(empty body)"
	}
	return text
}
