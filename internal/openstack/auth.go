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
	"sync"
	"time"
)

// ErrAuthenticationFailed covers bad credentials, unreachable identity
// endpoints, and malformed token responses. Callers must not retry blindly.
var ErrAuthenticationFailed = errors.New("authentication failed")

// ErrIdentityUnreachable marks transport-level failures talking to the
// identity endpoint. Always wrapped together with ErrAuthenticationFailed;
// callers that only care about the broad category keep matching that.
var ErrIdentityUnreachable = errors.New("identity endpoint unreachable")

// Token is a scoped identity token plus the service catalog issued with it.
type Token struct {
	Value     string
	ExpiresAt time.Time
	Catalog   []CatalogEntry
}

type cacheKey struct {
	providerID int
	authURL    string
	scope      string
}

type tokenCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*Token
}

func newTokenCache() *tokenCache {
	return &tokenCache{entries: make(map[cacheKey]*Token)}
}

func (tc *tokenCache) get(key cacheKey, now time.Time) *Token {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	entry, ok := tc.entries[key]
	if !ok || !entry.ExpiresAt.After(now) {
		return nil
	}
	return entry
}

// put replaces the slot wholesale. Entries are never patched in place.
func (tc *tokenCache) put(key cacheKey, tok *Token) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.entries[key] = tok
}

func (tc *tokenCache) purge(key cacheKey) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	delete(tc.entries, key)
}

// Acquire returns a valid token for (provider, scope), authenticating against
// the provider's identity service when no usable cached entry exists.
//
// The cache is advisory: two concurrent misses for the same scope may both
// authenticate, and the last writer wins. That is harmless (tokens are not
// single-use) and avoids holding a lock across the network call.
func (c *Client) Acquire(ctx context.Context, p Provider, scope ProjectScope) (*Token, error) {
	key := cacheKey{providerID: p.ID, authURL: strings.TrimSpace(p.AuthURL), scope: scope.key()}
	if tok := c.tokens.get(key, time.Now()); tok != nil {
		return tok, nil
	}
	tok, err := c.authenticate(ctx, p, scope)
	if err != nil {
		return nil, err
	}
	c.tokens.put(key, tok)
	return tok, nil
}

// InvalidateToken drops any cached token for (provider, scope). Used after the
// compute API rejects a token the catalog said was still valid.
func (c *Client) InvalidateToken(p Provider, scope ProjectScope) {
	c.tokens.purge(cacheKey{providerID: p.ID, authURL: strings.TrimSpace(p.AuthURL), scope: scope.key()})
}

func identityTokensURL(p Provider) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(p.AuthURL), "/")
	if base == "" {
		return "", fmt.Errorf("auth url is required")
	}
	version := strings.TrimSpace(p.IdentityVersion)
	if version == "" {
		version = "3"
	}
	version = strings.TrimPrefix(strings.ToLower(version), "v")
	if !strings.HasSuffix(base, "/v"+version) {
		base += "/v" + version
	}
	return base + "/auth/tokens", nil
}

func buildAuthRequest(p Provider, scope ProjectScope) authRequest {
	userDomain := strings.TrimSpace(p.UserDomainName)
	if userDomain == "" {
		userDomain = "Default"
	}
	req := authRequest{
		Auth: authPayload{
			Identity: authIdentity{
				Methods: []string{"password"},
				Password: authPassword{
					User: authUser{
						Name:     p.Username,
						Domain:   authDomain{Name: userDomain},
						Password: p.Password,
					},
				},
			},
		},
	}
	if strings.TrimSpace(scope.ProjectID) != "" {
		req.Auth.Scope = &authScope{Project: authScopeProject{ID: strings.TrimSpace(scope.ProjectID)}}
	} else if strings.TrimSpace(scope.ProjectName) != "" {
		domain := strings.TrimSpace(scope.DomainName)
		if domain == "" {
			domain = userDomain
		}
		req.Auth.Scope = &authScope{Project: authScopeProject{
			Name:   strings.TrimSpace(scope.ProjectName),
			Domain: &authDomain{Name: domain},
		}}
	}
	return req
}

func (c *Client) authenticate(ctx context.Context, p Provider, scope ProjectScope) (*Token, error) {
	endpoint, err := identityTokensURL(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	payload, err := json.Marshal(buildAuthRequest(p, scope))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrAuthenticationFailed, ErrIdentityUnreachable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: identity returned %d: %s", ErrAuthenticationFailed, resp.StatusCode, bodySnippet(body))
	}
	value := strings.TrimSpace(resp.Header.Get("X-Subject-Token"))
	if value == "" {
		return nil, fmt.Errorf("%w: missing X-Subject-Token header", ErrAuthenticationFailed)
	}
	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed token response: %v", ErrAuthenticationFailed, err)
	}
	if parsed.Token.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("%w: token response missing expiry", ErrAuthenticationFailed)
	}
	return &Token{
		Value:     value,
		ExpiresAt: parsed.Token.ExpiresAt,
		Catalog:   parsed.Token.Catalog,
	}, nil
}
