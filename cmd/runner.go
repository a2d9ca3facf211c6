package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plexist/internal/auth"
	"github.com/desertthunder/plexist/internal/executor"
	"github.com/desertthunder/plexist/internal/repositories"
	"github.com/desertthunder/plexist/internal/services"
	"github.com/desertthunder/plexist/internal/shared"
	"github.com/desertthunder/plexist/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	configPath string
	config     *shared.Config
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	ConfigPath string
	Config     *shared.Config
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		configPath: opts.ConfigPath,
		config:     opts.Config,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, syncCommand, reportCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger swaps the runner's logger. Used by the TUI to redirect logs.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// env bundles the wiring a sync or auth command needs: the database, the
// repositories built on it, the credential manager, and the engine.
type env struct {
	db      *sql.DB
	states  *repositories.SyncStateRepository
	liked   *repositories.LikedTrackRepository
	creds   *repositories.CredentialRepository
	manager *auth.Manager
	exec    *executor.Executor
	engine  *tasks.Engine
}

func (e *env) Close() error {
	return e.db.Close()
}

// bootstrap opens the database, wires repositories, the credential manager
// and the executor, and registers every configured provider.
func (r *Runner) bootstrap() (*env, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	creds := repositories.NewCredentialRepository(db)
	manager := auth.NewManager(creds, r.logger)

	if plex := r.config.Credentials.Plex; plex.Token != "" {
		manager.RegisterStatic("plex", plex.Token)
		services.Register(services.NewPlexProvider(manager, plex.URL))
	}
	if spotify := r.config.Credentials.Spotify; spotify.ClientID != "" {
		manager.RegisterOAuth("spotify", services.SpotifyOAuthConfig(
			spotify.ClientID, spotify.ClientSecret, spotify.RedirectURI))
		services.Register(services.NewSpotifyProvider(manager, spotify.UserID))
	}
	if deezer := r.config.Credentials.Deezer; deezer.UserID != "" || len(deezer.PlaylistIDs) > 0 {
		services.Register(services.NewDeezerProvider(deezer.UserID, deezer.PlaylistIDs))
	}

	exec := executor.New(r.config.Limits, r.logger)
	exec.SetAuthHandler(manager)

	states := repositories.NewSyncStateRepository(db)
	liked := repositories.NewLikedTrackRepository(db)
	engine := tasks.NewEngine(*r.config, exec, states, liked, r.logger)

	return &env{
		db:      db,
		states:  states,
		liked:   liked,
		creds:   creds,
		manager: manager,
		exec:    exec,
		engine:  engine,
	}, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return err
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
