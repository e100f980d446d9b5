package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotrelay/internal/shared"
	tu "github.com/desertthunder/spotrelay/internal/testing"
	"golang.org/x/oauth2"
)

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "test_client_id",
		ClientSecret: "test_client_secret",
		RedirectURL:  "http://localhost:8888/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/authorize",
			TokenURL: tokenURL,
		},
	}
}

func testLogger() *log.Logger {
	return shared.NewLogger(io.Discard)
}

// tokenEndpoint fakes the provider token endpoint, counting grants and
// minting sequential access tokens A2, A3, ...
func tokenEndpoint(t *testing.T, calls *tu.Counter, rotatedRefresh string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()

		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("expected grant_type refresh_token, got %s", got)
		}
		if _, _, ok := r.BasicAuth(); !ok {
			t.Error("expected client credentials via Basic auth")
		}

		payload := map[string]any{
			"access_token": fmt.Sprintf("A%d", calls.Value()+1),
			"expires_in":   3600,
		}
		if rotatedRefresh != "" {
			payload["refresh_token"] = rotatedRefresh
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	})
}

func TestRefresher(t *testing.T) {
	t.Run("Refresh", func(t *testing.T) {
		t.Run("mints a new access token and preserves the refresh token", func(t *testing.T) {
			var calls tu.Counter
			provider := httptest.NewServer(tokenEndpoint(t, &calls, ""))
			defer provider.Close()

			store := NewTokenStore()
			store.Set(Credential{AccessToken: "A1", RefreshToken: "R1"})
			refresher := NewRefresher(testConfig(provider.URL), store, nil, testLogger())

			access, err := refresher.Refresh(context.Background(), "A1")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if access != "A2" {
				t.Errorf("expected access token A2, got %s", access)
			}

			cred, _ := store.Get()
			if cred.AccessToken != "A2" {
				t.Errorf("expected stored access token A2, got %s", cred.AccessToken)
			}
			if cred.RefreshToken != "R1" {
				t.Errorf("expected refresh token R1 to be preserved, got %s", cred.RefreshToken)
			}
		})

		t.Run("adopts a rotated refresh token", func(t *testing.T) {
			var calls tu.Counter
			provider := httptest.NewServer(tokenEndpoint(t, &calls, "R2"))
			defer provider.Close()

			store := NewTokenStore()
			store.Set(Credential{AccessToken: "A1", RefreshToken: "R1"})
			refresher := NewRefresher(testConfig(provider.URL), store, nil, testLogger())

			if _, err := refresher.Refresh(context.Background(), "A1"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			cred, _ := store.Get()
			if cred.RefreshToken != "R2" {
				t.Errorf("expected rotated refresh token R2, got %s", cred.RefreshToken)
			}
		})

		t.Run("is idempotent when the provider does not rotate", func(t *testing.T) {
			var calls tu.Counter
			provider := httptest.NewServer(tokenEndpoint(t, &calls, ""))
			defer provider.Close()

			store := NewTokenStore()
			store.Set(Credential{AccessToken: "A1", RefreshToken: "R1"})
			refresher := NewRefresher(testConfig(provider.URL), store, nil, testLogger())

			first, err := refresher.Refresh(context.Background(), "A1")
			if err != nil {
				t.Fatalf("first refresh failed: %v", err)
			}
			second, err := refresher.Refresh(context.Background(), first)
			if err != nil {
				t.Fatalf("second refresh failed: %v", err)
			}

			if first == "" || second == "" || first == second {
				t.Errorf("expected two distinct valid tokens, got %q and %q", first, second)
			}
			cred, _ := store.Get()
			if cred.RefreshToken != "R1" {
				t.Errorf("expected refresh token R1 to be unchanged, got %s", cred.RefreshToken)
			}
			if calls.Value() != 2 {
				t.Errorf("expected 2 grants, got %d", calls.Value())
			}
		})

		t.Run("coalesces callers holding an already-replaced token", func(t *testing.T) {
			var calls tu.Counter
			provider := httptest.NewServer(tokenEndpoint(t, &calls, ""))
			defer provider.Close()

			store := NewTokenStore()
			store.Set(Credential{AccessToken: "A1", RefreshToken: "R1"})
			refresher := NewRefresher(testConfig(provider.URL), store, nil, testLogger())

			fresh, err := refresher.Refresh(context.Background(), "A1")
			if err != nil {
				t.Fatalf("refresh failed: %v", err)
			}

			// A second caller that also observed A1 expiring must receive
			// the winner's token without a second grant.
			coalesced, err := refresher.Refresh(context.Background(), "A1")
			if err != nil {
				t.Fatalf("coalesced refresh failed: %v", err)
			}
			if coalesced != fresh {
				t.Errorf("expected coalesced token %s, got %s", fresh, coalesced)
			}
			if calls.Value() != 1 {
				t.Errorf("expected exactly 1 grant, got %d", calls.Value())
			}
		})

		t.Run("fails immediately without a refresh token", func(t *testing.T) {
			var calls tu.Counter
			provider := httptest.NewServer(tokenEndpoint(t, &calls, ""))
			defer provider.Close()

			store := NewTokenStore()
			store.Set(Credential{AccessToken: "A1"})
			refresher := NewRefresher(testConfig(provider.URL), store, nil, testLogger())

			_, err := refresher.Refresh(context.Background(), "A1")
			if !errors.Is(err, shared.ErrNoRefreshToken) {
				t.Errorf("expected ErrNoRefreshToken, got %v", err)
			}
			if calls.Value() != 0 {
				t.Errorf("expected zero grants, got %d", calls.Value())
			}
		})

		t.Run("fails immediately on an empty store", func(t *testing.T) {
			refresher := NewRefresher(testConfig("http://invalid.test"), NewTokenStore(), nil, testLogger())

			_, err := refresher.Refresh(context.Background(), "")
			if !errors.Is(err, shared.ErrNoRefreshToken) {
				t.Errorf("expected ErrNoRefreshToken, got %v", err)
			}
		})

		t.Run("leaves the store untouched when the provider rejects the grant", func(t *testing.T) {
			provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{
					"error":             "invalid_grant",
					"error_description": "Refresh token revoked",
				})
			}))
			defer provider.Close()

			store := NewTokenStore()
			store.Set(Credential{AccessToken: "A1", RefreshToken: "R1"})
			refresher := NewRefresher(testConfig(provider.URL), store, nil, testLogger())

			_, err := refresher.Refresh(context.Background(), "A1")
			if !errors.Is(err, shared.ErrRefreshFailed) {
				t.Fatalf("expected ErrRefreshFailed, got %v", err)
			}

			cred, _ := store.Get()
			if cred.AccessToken != "A1" || cred.RefreshToken != "R1" {
				t.Error("expected store to be unchanged after a rejected refresh")
			}
		})

		t.Run("reports an unreachable token endpoint", func(t *testing.T) {
			store := NewTokenStore()
			store.Set(Credential{AccessToken: "A1", RefreshToken: "R1"})

			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}
			refresher := NewRefresher(testConfig("http://provider.test/token"), store, client, testLogger())

			_, err := refresher.Refresh(context.Background(), "A1")
			if !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})
	})

	t.Run("ExchangeCode", func(t *testing.T) {
		t.Run("returns both tokens on success", func(t *testing.T) {
			provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := r.ParseForm(); err != nil {
					t.Fatalf("failed to parse form: %v", err)
				}
				if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
					t.Errorf("expected grant_type authorization_code, got %s", got)
				}
				if got := r.PostForm.Get("code"); got != "test_code" {
					t.Errorf("expected code test_code, got %s", got)
				}

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"access_token":  "A1",
					"refresh_token": "R1",
					"expires_in":    3600,
				})
			}))
			defer provider.Close()

			refresher := NewRefresher(testConfig(provider.URL), NewTokenStore(), nil, testLogger())

			cred, err := refresher.ExchangeCode(context.Background(), "test_code")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if cred.AccessToken != "A1" || cred.RefreshToken != "R1" {
				t.Errorf("unexpected credential: %+v", cred)
			}
		})

		t.Run("wraps provider rejection", func(t *testing.T) {
			provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			}))
			defer provider.Close()

			refresher := NewRefresher(testConfig(provider.URL), NewTokenStore(), nil, testLogger())

			_, err := refresher.ExchangeCode(context.Background(), "expired_code")
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
		})
	})

	t.Run("AuthCodeURL", func(t *testing.T) {
		refresher := NewRefresher(testConfig("https://accounts.example.com/api/token"), NewTokenStore(), nil, testLogger())

		url := refresher.AuthCodeURL("test_state")
		if url == "" {
			t.Fatal("expected auth URL to be generated")
		}
		for _, want := range []string{"accounts.example.com", "test_client_id", "test_state"} {
			if !strings.Contains(url, want) {
				t.Errorf("auth URL should contain %q: %s", want, url)
			}
		}
	})
}
