// package formatter writes missing-track reports and renders cycle
// summaries for the CLI.
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/plexist/internal/models"
	"github.com/desertthunder/plexist/internal/shared"
)

// FormatCSV is the missing_format config value for CSV reports.
const FormatCSV = "csv"

// FormatJSON is the missing_format config value for JSON reports.
const FormatJSON = "json"

// MissingToCSV renders missing tracks with columns: Playlist, Title, Artist, Album, Reason
func MissingToCSV(missing []models.MissingTrack) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Playlist", "Title", "Artist", "Album", "Reason"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range missing {
		record := []string{
			track.SourcePlaylist,
			track.Title,
			track.Artist,
			track.Album,
			track.Reason,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// MissingToJSON renders missing tracks as a pretty-printed JSON array.
func MissingToJSON(missing []models.MissingTrack) ([]byte, error) {
	if missing == nil {
		missing = []models.MissingTrack{}
	}
	return shared.MarshalJSON(missing, true)
}

// reportPath derives the per-playlist report filename inside dir. Playlist
// names are sanitized so they are safe as filenames.
func reportPath(dir, playlist, format string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, playlist)
	return filepath.Join(dir, fmt.Sprintf("missing_%s.%s", name, format))
}

// WriteMissingReport writes the report file for one source playlist, or
// deletes a stale report when every track resolved this cycle.
func WriteMissingReport(dir, playlist, format string, missing []models.MissingTrack) (string, error) {
	path := reportPath(dir, playlist, format)

	if len(missing) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to remove stale report: %w", err)
		}
		return "", nil
	}

	var data []byte
	var err error
	switch format {
	case FormatJSON:
		data, err = MissingToJSON(missing)
	case FormatCSV:
		data, err = MissingToCSV(missing)
	default:
		return "", fmt.Errorf("unsupported missing-track format: %s", format)
	}
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// CycleSummary aggregates one sync cycle's outcome across all pairs.
type CycleSummary struct {
	Playlists     int
	Failed        int
	TracksAdded   int
	TracksRemoved int
	Unresolved    int
	AuthFailures  []string
	Elapsed       string
}

// FormatCycleSummary renders a one-screen summary for the CLI.
func FormatCycleSummary(s CycleSummary) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Synced %d playlist(s)", s.Playlists)
	if s.Failed > 0 {
		fmt.Fprintf(&buf, " (%d failed)", s.Failed)
	}
	if s.Elapsed != "" {
		fmt.Fprintf(&buf, " in %s", s.Elapsed)
	}
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "  added:      %d\n", s.TracksAdded)
	fmt.Fprintf(&buf, "  removed:    %d\n", s.TracksRemoved)
	fmt.Fprintf(&buf, "  unresolved: %d\n", s.Unresolved)

	if len(s.AuthFailures) > 0 {
		fmt.Fprintf(&buf, "  auth failures: %s\n", strings.Join(s.AuthFailures, ", "))
	}
	return buf.String()
}
