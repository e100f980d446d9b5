package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotrelay/internal/shared"
	"golang.org/x/oauth2"
)

// Refresher performs OAuth2 token exchanges against the provider's token
// endpoint and keeps the [TokenStore] current.
type Refresher struct {
	config *oauth2.Config
	store  *TokenStore
	client *http.Client
	logger *log.Logger

	// mu serializes refresh grants; Spotify may revoke a refresh token
	// that is exchanged twice in parallel.
	mu sync.Mutex
}

// NewRefresher creates a Refresher for the given OAuth2 config and store.
func NewRefresher(config *oauth2.Config, store *TokenStore, client *http.Client, logger *log.Logger) *Refresher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Refresher{
		config: config,
		store:  store,
		client: client,
		logger: logger,
	}
}

// AuthCodeURL returns the provider authorize URL for the given state token.
func (r *Refresher) AuthCodeURL(state string) string {
	return r.config.AuthCodeURL(state)
}

// ExchangeCode performs the authorization_code grant and returns the
// resulting credential. The store is not mutated; the caller decides whether
// to install the credential.
func (r *Refresher) ExchangeCode(ctx context.Context, code string) (Credential, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)

	token, err := r.config.Exchange(ctx, code)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	return Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

// Refresh performs the refresh_token grant using the stored refresh token and
// writes the new access token into the store, preserving the stored refresh
// token unless the provider returns a new one.
//
// staleAccess is the access token the caller observed being rejected. When
// the store already holds a different access token, another caller refreshed
// first; that token is returned without a network call, so one expiry event
// produces at most one in-flight grant.
func (r *Refresher) Refresh(ctx context.Context, staleAccess string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.store.Get()
	if !ok {
		return "", shared.ErrNoRefreshToken
	}
	if cred.AccessToken != "" && cred.AccessToken != staleAccess {
		r.logger.Debug("refresh coalesced with concurrent caller")
		return cred.AccessToken, nil
	}
	if cred.RefreshToken == "" {
		return "", shared.ErrNoRefreshToken
	}

	token, err := r.grantRefresh(ctx, cred.RefreshToken)
	if err != nil {
		return "", err
	}

	next := Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: cred.RefreshToken,
	}
	if token.RefreshToken != "" {
		next.RefreshToken = token.RefreshToken
	}
	r.store.Set(next)

	r.logger.Debug("access token refreshed")
	return next.AccessToken, nil
}

// tokenResponse is the provider's token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// grantRefresh POSTs the refresh_token grant with client credentials
// presented via Basic auth.
func (r *Refresher) grantRefresh(ctx context.Context, refreshToken string) (*tokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.SetBasicAuth(r.config.ClientID, r.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: token endpoint unreachable: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("%w: malformed token response: %v", shared.ErrRefreshFailed, err)
	}

	if resp.StatusCode != http.StatusOK || token.AccessToken == "" {
		detail := token.Error
		if token.ErrorDesc != "" {
			detail = fmt.Sprintf("%s: %s", token.Error, token.ErrorDesc)
		}
		if detail == "" {
			detail = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", shared.ErrRefreshFailed, detail)
	}

	return &token, nil
}
