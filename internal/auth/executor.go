package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotrelay/internal/shared"
)

// RequestSpec describes one outbound API request. Body is held as bytes so
// the exact same request can be replayed after a refresh.
type RequestSpec struct {
	Method string
	URL    string
	Body   []byte
}

// Response is the raw result of an outbound request.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// OutcomeKind tags how an executed request concluded.
type OutcomeKind int

const (
	// OutcomeSuccess means the first attempt went through without a refresh.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRefreshedAndRetried means the token was refreshed and the
	// request reissued once; Response holds the retry's result, which may
	// itself be a failure that is not retried again.
	OutcomeRefreshedAndRetried
	// OutcomeReauthRequired means no usable credential exists and the user
	// must repeat the consent step.
	OutcomeReauthRequired
)

// Outcome is the tagged result of [Executor.Execute]. Response is nil for
// OutcomeReauthRequired.
type Outcome struct {
	Kind     OutcomeKind
	Response *Response
}

// Executor issues authenticated requests with automatic recovery from an
// expired access token: at most one refresh-and-retry cycle per call.
type Executor struct {
	store     *TokenStore
	refresher *Refresher
	client    *http.Client
	logger    *log.Logger
}

// NewExecutor creates an Executor over the given store and refresher.
func NewExecutor(store *TokenStore, refresher *Refresher, client *http.Client, logger *log.Logger) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Executor{
		store:     store,
		refresher: refresher,
		client:    client,
		logger:    logger,
	}
}

// Execute performs the request described by spec with the current access
// token as a bearer credential.
//
// With no credential at all the call short-circuits to OutcomeReauthRequired
// without touching the network. A credential holding only a refresh token
// (seeded deployment) is refreshed before the first attempt. An auth failure
// on the first attempt triggers one refresh and one retry; a failure on the
// retried request is surfaced as final. Non-auth failures never trigger a
// refresh: transport errors are returned as errors, HTTP-level errors are
// returned verbatim in the outcome's response.
func (e *Executor) Execute(ctx context.Context, spec RequestSpec) (Outcome, error) {
	cred, ok := e.store.Get()
	if !ok {
		return Outcome{Kind: OutcomeReauthRequired}, nil
	}

	access := cred.AccessToken
	if access == "" {
		refreshed, err := e.refresher.Refresh(ctx, "")
		if err != nil {
			return e.refreshOutcome(err)
		}
		access = refreshed
	}

	resp, err := e.do(ctx, spec, access)
	if err != nil {
		return Outcome{}, err
	}

	if !isAuthFailure(resp) {
		return Outcome{Kind: OutcomeSuccess, Response: resp}, nil
	}

	e.logger.Debug("access token rejected", "status", resp.StatusCode, "url", spec.URL)

	refreshed, err := e.refresher.Refresh(ctx, access)
	if err != nil {
		return e.refreshOutcome(err)
	}

	retry, err := e.do(ctx, spec, refreshed)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Kind: OutcomeRefreshedAndRetried, Response: retry}, nil
}

// refreshOutcome maps a refresh failure onto the executor's contract: an
// impossible or rejected refresh degrades gracefully to reauthorization,
// anything else (for example an unreachable token endpoint) propagates.
func (e *Executor) refreshOutcome(err error) (Outcome, error) {
	if errors.Is(err, shared.ErrNoRefreshToken) || errors.Is(err, shared.ErrRefreshFailed) {
		e.logger.Debug("refresh impossible, reauthorization required", "reason", err)
		return Outcome{Kind: OutcomeReauthRequired}, nil
	}
	return Outcome{}, err
}

func (e *Executor) do(ctx context.Context, spec RequestSpec, access string) (*Response, error) {
	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// apiError is the provider's error envelope.
type apiError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// isAuthFailure classifies a response as an expired-token failure.
//
// Status 401 is authoritative. Some endpoints signal expiry inconsistently
// with other 4xx codes, so for those the error body's message is inspected
// for an "expired" marker. 5xx and transport-level problems are never auth
// failures.
func isAuthFailure(resp *Response) bool {
	if resp.StatusCode == http.StatusUnauthorized {
		return true
	}
	if resp.StatusCode < 400 || resp.StatusCode >= 500 {
		return false
	}

	var payload apiError
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return false
	}

	return strings.Contains(strings.ToLower(payload.Error.Message), "expired")
}
