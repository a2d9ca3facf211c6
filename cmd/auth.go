package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/plexist/internal/models"
	"github.com/desertthunder/plexist/internal/server"
	"github.com/desertthunder/plexist/internal/services"
	"github.com/desertthunder/plexist/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin runs the OAuth authorization-code flow for a service and stores
// the resulting credential. Only Spotify uses OAuth; Plex and Deezer are
// configured through config.toml.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	service := strings.ToLower(cmd.StringArg("service"))
	if service == "" {
		return fmt.Errorf("%w: service name (e.g. spotify)", shared.ErrMissingArgument)
	}
	if service != "spotify" {
		return fmt.Errorf("%w: %s does not use OAuth, set its credentials in config.toml", shared.ErrInvalidArgument, service)
	}

	spotify := r.config.Credentials.Spotify
	if spotify.ClientID == "" || spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret", shared.ErrMissingCredentials)
	}

	environment, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer environment.Close()

	flow := server.NewFlow(services.SpotifyOAuthConfig(
		spotify.ClientID, spotify.ClientSecret, spotify.RedirectURI), r.logger)

	r.writePlain("Open this URL in your browser to authorize:\n\n  %s\n\n", flow.AuthURL())
	r.logger.Info("waiting for OAuth callback", "redirect_uri", spotify.RedirectURI)

	timeout := time.Duration(cmd.Int("timeout")) * time.Second
	token, err := flow.Wait(ctx, timeout)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	cred := models.Credential{
		Service:      service,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	if err := environment.manager.Save(cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}

	r.logger.Info("authentication successful", "service", service)
	r.writePlain("✓ Authenticated with %s\n", service)
	return nil
}

// AuthStatus prints the stored credential state for every known service.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	environment, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer environment.Close()

	now := time.Now()
	for _, service := range []string{"spotify", "deezer", "plex"} {
		cred, err := environment.creds.Get(service)
		if err != nil {
			return fmt.Errorf("failed to read credential: %w", err)
		}

		switch {
		case service == "deezer":
			r.writePlain("%-8s no credentials needed (public API)\n", service)
		case service == "plex" && r.config.Credentials.Plex.Token != "":
			r.writePlain("%-8s token configured in config.toml\n", service)
		case cred == nil:
			r.writePlain("%-8s not authenticated\n", service)
		case cred.Expired(now):
			r.writePlain("%-8s token expired %s (refresh on next sync)\n", service, cred.Expiry.Format(time.RFC3339))
		case cred.Expiry.IsZero():
			r.writePlain("%-8s authenticated (token does not expire)\n", service)
		default:
			r.writePlain("%-8s authenticated, token valid until %s\n", service, cred.Expiry.Format(time.RFC3339))
		}
	}
	return nil
}

// AuthLogout removes the stored credential for a service.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	service := strings.ToLower(cmd.StringArg("service"))
	if service == "" {
		return fmt.Errorf("%w: service name", shared.ErrMissingArgument)
	}

	environment, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer environment.Close()

	if err := environment.creds.Delete(service); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	r.writePlain("✓ Credentials removed for %s\n", service)
	return nil
}
