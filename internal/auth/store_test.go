package auth

import (
	"fmt"
	"sync"
	"testing"
)

func TestTokenStore(t *testing.T) {
	t.Run("Get", func(t *testing.T) {
		t.Run("empty store reports no credential", func(t *testing.T) {
			store := NewTokenStore()

			cred, ok := store.Get()
			if ok {
				t.Error("expected no credential in a fresh store")
			}
			if cred.AccessToken != "" || cred.RefreshToken != "" {
				t.Error("expected zero credential")
			}
		})

		t.Run("returns most recently written credential", func(t *testing.T) {
			store := NewTokenStore()
			store.Set(Credential{AccessToken: "A1", RefreshToken: "R1"})
			store.Set(Credential{AccessToken: "A2", RefreshToken: "R1"})

			cred, ok := store.Get()
			if !ok {
				t.Fatal("expected credential to be present")
			}
			if cred.AccessToken != "A2" {
				t.Errorf("expected access token A2, got %s", cred.AccessToken)
			}
			if cred.RefreshToken != "R1" {
				t.Errorf("expected refresh token R1, got %s", cred.RefreshToken)
			}
		})
	})

	t.Run("Set", func(t *testing.T) {
		t.Run("concurrent writers never produce a torn record", func(t *testing.T) {
			store := NewTokenStore()

			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					pair := fmt.Sprintf("%d", n)
					store.Set(Credential{AccessToken: "A" + pair, RefreshToken: "R" + pair})
				}(i)
			}
			wg.Wait()

			cred, ok := store.Get()
			if !ok {
				t.Fatal("expected credential to be present")
			}
			// Both fields must come from the same write.
			if cred.AccessToken[1:] != cred.RefreshToken[1:] {
				t.Errorf("torn credential: %s / %s", cred.AccessToken, cred.RefreshToken)
			}
		})
	})

	t.Run("SeedRefreshToken", func(t *testing.T) {
		t.Run("primes an empty store", func(t *testing.T) {
			store := NewTokenStore()
			store.SeedRefreshToken("R1")

			cred, ok := store.Get()
			if !ok {
				t.Fatal("expected seeded credential")
			}
			if cred.AccessToken != "" {
				t.Error("expected no access token after seeding")
			}
			if cred.RefreshToken != "R1" {
				t.Errorf("expected refresh token R1, got %s", cred.RefreshToken)
			}
		})

		t.Run("empty token is a no-op", func(t *testing.T) {
			store := NewTokenStore()
			store.SeedRefreshToken("")

			if _, ok := store.Get(); ok {
				t.Error("expected store to remain empty")
			}
		})

		t.Run("does not overwrite an obtained credential", func(t *testing.T) {
			store := NewTokenStore()
			store.Set(Credential{AccessToken: "A1", RefreshToken: "R1"})
			store.SeedRefreshToken("R2")

			cred, _ := store.Get()
			if cred.RefreshToken != "R1" {
				t.Errorf("expected refresh token R1, got %s", cred.RefreshToken)
			}
		})
	})
}
