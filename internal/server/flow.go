package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/plexist/internal/shared"
)

// Flow runs one authorization code flow on the loopback listener named in
// the OAuth2 config's redirect URL.
type Flow struct {
	config  *oauth2.Config
	handler *CallbackHandler
	logger  *log.Logger
}

// NewFlow creates a Flow. The state token is generated fresh per flow.
func NewFlow(config *oauth2.Config, logger *log.Logger) *Flow {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	state := shared.GenerateID()
	return &Flow{
		config:  config,
		handler: NewCallbackHandler(config, state),
		logger:  logger.With("component", "oauth"),
	}
}

// AuthURL returns the provider consent page the user must visit.
func (f *Flow) AuthURL() string {
	return f.config.AuthCodeURL(f.handler.state, oauth2.AccessTypeOffline)
}

// Wait serves the callback endpoint until the redirect arrives, the context
// is cancelled, or the timeout elapses, and returns the exchanged token.
func (f *Flow) Wait(ctx context.Context, timeout time.Duration) (*oauth2.Token, error) {
	redirect, err := url.Parse(f.config.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/callback"
	}

	mux := http.NewServeMux()
	mux.Handle(callbackPath, f.handler)

	srv := &http.Server{Addr: redirect.Host, Handler: mux}
	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	f.logger.Info("waiting for authorization callback", "addr", redirect.Host, "path", callbackPath)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-f.handler.Result():
		if err := result.Error(); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
		}
		return result.Token, nil
	case err := <-errChan:
		return nil, fmt.Errorf("callback listener failed: %w", err)
	case <-timer.C:
		return nil, fmt.Errorf("%w: timed out waiting for authorization", shared.ErrAuthFailed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
