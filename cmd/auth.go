package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/spotrelay/internal/auth"
	"github.com/desertthunder/spotrelay/internal/server"
	"github.com/desertthunder/spotrelay/internal/shared"
	"github.com/urfave/cli/v3"
)

// authFlowTimeout bounds how long the CLI waits for the user to finish the
// browser consent step.
const authFlowTimeout = 3 * time.Minute

// Auth runs the interactive OAuth2 login flow: a temporary callback server
// on the redirect URI's port, the system browser pointed at the consent
// page, and the resulting token pair printed for seeding deployments.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	if err := config.Validate(); err != nil {
		return err
	}

	redirect, err := url.Parse(config.Credentials.Spotify.RedirectURI)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("%w: invalid redirect_uri %q", shared.ErrInvalidConfig, config.Credentials.Spotify.RedirectURI)
	}

	_, refresher, _ := r.credentialStack(config)
	state := shared.GenerateID()

	handler := server.NewCallbackHandler(func(ctx context.Context, code string) (auth.Credential, error) {
		return refresher.ExchangeCode(ctx, code)
	}, state)

	router := server.NewBasicRouter()
	router.Handler(handler)

	srv := &http.Server{Addr: redirect.Host, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("callback server failed", "error", err)
		}
	}()
	defer srv.Close()

	authURL := refresher.AuthCodeURL(state)
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL to authorize:\n%s\n", authURL)
	} else {
		r.logger.Info("opening browser for authorization")
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
			r.writePlain("Open this URL to authorize:\n%s\n", authURL)
		}
	}

	select {
	case result := <-handler.Result():
		if err := result.Error(); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
		}
		r.logger.Info("authorization complete")
		return r.writeJSON(map[string]string{
			"access_token":  result.Credential.AccessToken,
			"refresh_token": result.Credential.RefreshToken,
		}, true)
	case <-time.After(authFlowTimeout):
		return fmt.Errorf("%w: timed out waiting for authorization", shared.ErrAuthFailed)
	case <-ctx.Done():
		return ctx.Err()
	}
}
