package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/plexist/internal/shared"
	"github.com/desertthunder/plexist/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the live dashboard for one sync cycle.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	if len(r.config.Sync.Pairs) == 0 {
		return fmt.Errorf("%w: no sync pairs configured", shared.ErrMissingConfig)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/plexist-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	environment, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer environment.Close()

	if err := ui.Run(ctx, environment.engine); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
