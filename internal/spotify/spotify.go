package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotrelay/internal/auth"
	"github.com/desertthunder/spotrelay/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// Scopes cover reading top items, reading the current player state, and
// issuing playback commands.
var scopes = []string{
	"user-top-read",
	"user-read-currently-playing",
	"user-modify-playback-state",
}

// NewConfig builds the OAuth2 config for the Spotify accounts service.
func NewConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	if redirectURI == "" {
		redirectURI = "http://localhost:8888/callback"
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}
}

// Track is the projected track shape returned to relay clients.
type Track struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Artist string `json:"artist"`
	URI    string `json:"uri"`
}

type spotifyArtist struct {
	Name string `json:"name"`
}

type spotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []spotifyArtist `json:"artists"`
	URI     string          `json:"uri"`
}

type topTracksResponse struct {
	Items []spotifyTrack `json:"items"`
}

type currentlyPlayingResponse struct {
	Item      *spotifyTrack `json:"item"`
	IsPlaying bool          `json:"is_playing"`
}

// Service implements the relay's Spotify operations on top of the
// authenticated request executor.
type Service struct {
	executor *auth.Executor
	baseURL  string
	logger   *log.Logger
}

// NewService creates a Service. baseURL defaults to the public Spotify API.
func NewService(executor *auth.Executor, baseURL string, logger *log.Logger) *Service {
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Service{
		executor: executor,
		baseURL:  baseURL,
		logger:   logger,
	}
}

// TopTracks retrieves the user's top tracks, projected to [Track].
func (s *Service) TopTracks(ctx context.Context, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	resp, err := s.call(ctx, http.MethodGet, fmt.Sprintf("/me/top/tracks?limit=%d", limit), nil)
	if err != nil {
		return nil, err
	}

	var payload topTracksResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode top tracks: %w", err)
	}

	tracks := make([]Track, 0, len(payload.Items))
	for _, item := range payload.Items {
		tracks = append(tracks, projectTrack(item))
	}

	return tracks, nil
}

// CurrentlyPlaying retrieves the track playing right now, or nil when
// playback is idle (the API answers 204 with no body).
func (s *Service) CurrentlyPlaying(ctx context.Context) (*Track, error) {
	resp, err := s.call(ctx, http.MethodGet, "/me/player/currently-playing", nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return nil, nil
	}

	var payload currentlyPlayingResponse
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode player state: %w", err)
	}
	if payload.Item == nil {
		return nil, nil
	}

	track := projectTrack(*payload.Item)
	return &track, nil
}

// Pause pauses playback on the user's active device.
func (s *Service) Pause(ctx context.Context) error {
	_, err := s.call(ctx, http.MethodPut, "/me/player/pause", nil)
	return err
}

// Play starts playback of a single caller-nominated track. rawURI arrives
// URL-encoded from the inbound route and is decoded before the provider
// request body is built. Returns the decoded URI.
func (s *Service) Play(ctx context.Context, rawURI string) (string, error) {
	trackURI, err := url.PathUnescape(rawURI)
	if err != nil {
		return "", fmt.Errorf("%w: malformed track uri %q", shared.ErrInvalidInput, rawURI)
	}
	if trackURI == "" {
		return "", fmt.Errorf("%w: empty track uri", shared.ErrInvalidInput)
	}

	body, err := json.Marshal(map[string][]string{"uris": {trackURI}})
	if err != nil {
		return "", fmt.Errorf("failed to encode play request: %w", err)
	}

	if _, err := s.call(ctx, http.MethodPut, "/me/player/play", body); err != nil {
		return "", err
	}

	return trackURI, nil
}

// call executes one request through the executor and maps the outcome onto
// errors the handlers can branch on.
func (s *Service) call(ctx context.Context, method, path string, body []byte) (*auth.Response, error) {
	outcome, err := s.executor.Execute(ctx, auth.RequestSpec{
		Method: method,
		URL:    s.baseURL + path,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	if outcome.Kind == auth.OutcomeReauthRequired {
		return nil, shared.ErrReauthRequired
	}

	resp := outcome.Response
	if !resp.OK() {
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, resp.Body)
	}

	if outcome.Kind == auth.OutcomeRefreshedAndRetried {
		s.logger.Debug("request recovered via token refresh", "path", path)
	}

	return resp, nil
}

func projectTrack(t spotifyTrack) Track {
	track := Track{
		ID:   t.ID,
		Name: t.Name,
		URI:  t.URI,
	}
	if len(t.Artists) > 0 {
		track.Artist = t.Artists[0].Name
	}
	return track
}
