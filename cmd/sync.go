package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/plexist/internal/formatter"
	"github.com/desertthunder/plexist/internal/shared"
	"github.com/urfave/cli/v3"
)

// SyncRun executes sync cycles for every configured pair. With --once a
// single cycle runs and the summary is printed; otherwise the engine loops
// until the context is cancelled.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	if len(r.config.Sync.Pairs) == 0 {
		return fmt.Errorf("%w: no sync pairs configured", shared.ErrMissingConfig)
	}

	environment, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer environment.Close()

	if cmd.Bool("once") {
		summary, err := environment.engine.SyncCycle(ctx, nil)
		if err != nil {
			return fmt.Errorf("sync cycle failed: %w", err)
		}
		return r.writePlain("%s", formatter.FormatCycleSummary(summary))
	}

	r.logger.Info("starting sync loop",
		"pairs", r.config.Sync.Pairs, "interval", r.config.Sync.Interval())

	if err := environment.engine.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// SyncStatus prints the recorded sync state for every playlist pair.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	environment, err := r.bootstrap()
	if err != nil {
		return err
	}
	defer environment.Close()

	states, err := environment.states.List()
	if err != nil {
		return fmt.Errorf("failed to list sync states: %w", err)
	}

	if cmd.Bool("json") {
		type entry struct {
			Source         string `json:"source"`
			SourcePlaylist string `json:"source_playlist"`
			Dest           string `json:"dest"`
			DestPlaylist   string `json:"dest_playlist"`
			Tracks         int    `json:"tracks"`
			SyncedAt       string `json:"synced_at"`
		}
		entries := make([]entry, 0, len(states))
		for _, s := range states {
			entries = append(entries, entry{
				Source:         s.Pair.SourceService,
				SourcePlaylist: s.Pair.SourcePlaylistID,
				Dest:           s.Pair.DestService,
				DestPlaylist:   s.Pair.DestPlaylistID,
				Tracks:         len(s.TrackIDs),
				SyncedAt:       s.SyncedAt.Format("2006-01-02 15:04:05"),
			})
		}
		return r.writeJSON(entries, true)
	}

	if len(states) == 0 {
		return r.writePlain("No playlists synced yet. Run 'plexist sync run' first.\n")
	}

	for _, s := range states {
		r.writePlain("%s  %d tracks  last synced %s\n",
			s.Pair.String(), len(s.TrackIDs), s.SyncedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
