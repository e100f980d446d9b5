package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/desertthunder/spotrelay/internal/auth"
)

// ExchangeFunc exchanges an authorization code for a credential.
type ExchangeFunc func(ctx context.Context, code string) (auth.Credential, error)

// CallbackResult contains the result of a CLI OAuth authorization flow.
type CallbackResult struct {
	Credential auth.Credential
	err        error
}

func (r CallbackResult) Error() error {
	return r.err
}

// CallbackHandler handles the one-shot OAuth2 callback used by the CLI login
// flow. Implements the [Handler] interface for registration with a [Router].
type CallbackHandler struct {
	exchange   ExchangeFunc
	state      string
	resultChan chan CallbackResult
	once       sync.Once

	mu          sync.Mutex
	callbackHit bool
}

// NewCallbackHandler creates a CallbackHandler with the given exchange
// function and state token. The state token should be cryptographically
// random for CSRF protection.
func NewCallbackHandler(exchange ExchangeFunc, state string) *CallbackHandler {
	return &CallbackHandler{
		exchange:   exchange,
		state:      state,
		resultChan: make(chan CallbackResult, 1),
	}
}

// Routes returns the patterns this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"GET /callback"}
}

// ServeHTTP validates the state parameter, exchanges the authorization code,
// and delivers the result through the result channel. Only the first
// callback is processed.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	query := r.URL.Query()

	if query.Get("state") != h.state {
		h.send(CallbackResult{err: fmt.Errorf("invalid state parameter")})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("authorization failed: %s - %s", query.Get("error"), query.Get("error_description"))
		h.send(CallbackResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	cred, err := h.exchange(r.Context(), code)
	if err != nil {
		h.send(CallbackResult{err: fmt.Errorf("token exchange failed: %w", err)})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.send(CallbackResult{Credential: cred})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Authorization successful. You can close this window and return to the terminal.")
}

// send delivers the result through the channel (only once).
func (h *CallbackHandler) send(result CallbackResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the channel that receives exactly one flow result before
// being closed.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.resultChan
}
