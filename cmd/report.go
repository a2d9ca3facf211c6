package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/plexist/internal/shared"
	"github.com/urfave/cli/v3"
)

// ReportList lists missing-track report files written by previous sync runs.
func (r *Runner) ReportList(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	dir := r.config.Sync.MissingDir
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return r.writePlain("No reports yet (directory %s does not exist).\n", dir)
	}
	if err != nil {
		return fmt.Errorf("failed to read report directory: %w", err)
	}

	found := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "missing_") {
			continue
		}
		found++
		r.writePlain("%s\n", filepath.Join(dir, entry.Name()))
	}
	if found == 0 {
		return r.writePlain("No reports in %s. Every track resolved, or no sync has run.\n", dir)
	}
	return nil
}

// ReportShow prints the report file for one playlist.
func (r *Runner) ReportShow(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	playlist := cmd.StringArg("playlist")
	if playlist == "" {
		return fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	dir := r.config.Sync.MissingDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read report directory: %w", err)
	}

	// Match by sanitized name so users can pass the playlist title as-is.
	want := "missing_" + strings.ToLower(playlist)
	for _, entry := range entries {
		name := strings.ToLower(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
		if name != want {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read report: %w", err)
		}
		return r.writePlain("%s", string(data))
	}

	return fmt.Errorf("%w: no report for playlist %q in %s", shared.ErrInvalidArgument, playlist, dir)
}
