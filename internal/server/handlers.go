package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotrelay/internal/auth"
	"github.com/desertthunder/spotrelay/internal/models"
	"github.com/desertthunder/spotrelay/internal/shared"
	"github.com/desertthunder/spotrelay/internal/spotify"
)

// HistoryStore records playback-control commands and lists recent ones.
// Implemented by repositories.HistoryRepository.
type HistoryStore interface {
	Record(action, trackURI string) error
	Recent(limit int) ([]*models.PlayEvent, error)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes the relay's uniform failure body: 500 {error, details}.
func writeError(w http.ResponseWriter, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, body)
}

// AuthHandler serves the login redirect and the OAuth2 callback for the
// long-running relay.
type AuthHandler struct {
	store     *auth.TokenStore
	refresher *auth.Refresher
	logger    *log.Logger

	mu    sync.Mutex
	state string
}

// NewAuthHandler creates an AuthHandler over the given store and refresher.
func NewAuthHandler(store *auth.TokenStore, refresher *auth.Refresher, logger *log.Logger) *AuthHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &AuthHandler{store: store, refresher: refresher, logger: logger}
}

// Routes returns the patterns this handler serves.
func (h *AuthHandler) Routes() []string {
	return []string{"GET /login", "GET /callback"}
}

// ServeHTTP dispatches to the login or callback flow.
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/login":
		h.login(w, r)
	case "/callback":
		h.callback(w, r)
	default:
		http.NotFound(w, r)
	}
}

// login redirects the browser to the provider's consent page with a fresh
// state token.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	state := shared.GenerateID()

	h.mu.Lock()
	h.state = state
	h.mu.Unlock()

	http.Redirect(w, r, h.refresher.AuthCodeURL(state), http.StatusFound)
}

// callback exchanges the authorization code, installs the credential, and
// returns the token pair as JSON.
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	h.mu.Lock()
	expected := h.state
	h.state = ""
	h.mu.Unlock()

	if expected != "" && query.Get("state") != expected {
		writeError(w, "invalid state parameter", nil)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.logger.Warn("authorization denied", "error", query.Get("error"))
		writeError(w, "authorization failed", errors.New(query.Get("error_description")))
		return
	}

	cred, err := h.refresher.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error("code exchange failed", "error", err)
		writeError(w, "token exchange failed", err)
		return
	}

	h.store.Set(cred)
	h.logger.Info("credential installed")

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  cred.AccessToken,
		"refresh_token": cred.RefreshToken,
	})
}

// PlayerHandler serves the relay's player surface.
type PlayerHandler struct {
	spotify *spotify.Service
	history HistoryStore
	logger  *log.Logger
}

// NewPlayerHandler creates a PlayerHandler. history may be nil, in which
// case commands are not recorded and the history route answers with an
// empty list.
func NewPlayerHandler(svc *spotify.Service, history HistoryStore, logger *log.Logger) *PlayerHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PlayerHandler{spotify: svc, history: history, logger: logger}
}

// Routes returns the patterns this handler serves.
func (h *PlayerHandler) Routes() []string {
	return []string{
		"GET /spotify",
		"GET /spotify/history",
		"PUT /spotify/stop",
		"PUT /spotify/play/{trackUri}",
	}
}

// ServeHTTP dispatches on the matched pattern.
func (h *PlayerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/spotify":
		h.overview(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/spotify/history":
		h.recentHistory(w, r)
	case r.Method == http.MethodPut && r.URL.Path == "/spotify/stop":
		h.stop(w, r)
	case r.Method == http.MethodPut && r.PathValue("trackUri") != "":
		h.play(w, r)
	default:
		http.NotFound(w, r)
	}
}

// overview returns the user's top tracks and current playback. A credential
// that cannot be silently refreshed redirects to /login.
func (h *PlayerHandler) overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	topTracks, err := h.spotify.TopTracks(ctx, 10)
	if err != nil {
		if errors.Is(err, shared.ErrReauthRequired) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		writeError(w, "failed to fetch top tracks", err)
		return
	}

	playing, err := h.spotify.CurrentlyPlaying(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrReauthRequired) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		writeError(w, "failed to fetch current playback", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"topTracks":        topTracks,
		"currentlyPlaying": playing,
	})
}

// stop pauses playback.
func (h *PlayerHandler) stop(w http.ResponseWriter, r *http.Request) {
	if err := h.spotify.Pause(r.Context()); err != nil {
		writeError(w, "failed to pause playback", err)
		return
	}

	h.record(models.ActionPause, "")

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Playback paused",
	})
}

// play starts playback of the track named in the path.
func (h *PlayerHandler) play(w http.ResponseWriter, r *http.Request) {
	trackURI, err := h.spotify.Play(r.Context(), r.PathValue("trackUri"))
	if err != nil {
		writeError(w, "failed to start playback", err)
		return
	}

	h.record(models.ActionPlay, trackURI)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Started playing: " + trackURI,
	})
}

// recentHistory lists the most recent playback commands.
func (h *PlayerHandler) recentHistory(w http.ResponseWriter, r *http.Request) {
	items := []map[string]any{}

	if h.history != nil {
		events, err := h.history.Recent(20)
		if err != nil {
			writeError(w, "failed to read history", err)
			return
		}
		for _, event := range events {
			item := map[string]any{
				"action": event.Action(),
				"at":     event.CreatedAt(),
			}
			if event.TrackURI() != "" {
				item["trackUri"] = event.TrackURI()
			}
			items = append(items, item)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"history": items,
	})
}

// record logs the command to history; failures are logged, never surfaced,
// so a broken history log cannot fail a playback command.
func (h *PlayerHandler) record(action, trackURI string) {
	if h.history == nil {
		return
	}
	if err := h.history.Record(action, trackURI); err != nil {
		h.logger.Warn("failed to record history", "action", action, "error", err)
	}
}
