package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/plexist/internal/models"
	"github.com/desertthunder/plexist/internal/shared"
)

// SyncStateRepository persists the per-pair record of engine-managed tracks.
//
// The managed set distinguishes engine additions from user additions: only
// tracks found here may ever be removed from a destination playlist.
type SyncStateRepository struct {
	db *sql.DB
}

// NewSyncStateRepository creates a new SyncStateRepository with the given database connection
func NewSyncStateRepository(db *sql.DB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

// Get returns the stored state for a pair, or nil when the pair has never
// completed a sync.
func (r *SyncStateRepository) Get(pair models.PairKey) (*models.SyncState, error) {
	query := `
		SELECT track_ids, synced_at FROM sync_state
		WHERE source_service = ? AND source_playlist_id = ?
		  AND dest_service = ? AND dest_playlist_id = ?
	`

	var rawIDs string
	var syncedAt time.Time
	err := r.db.QueryRow(query,
		pair.SourceService, pair.SourcePlaylistID,
		pair.DestService, pair.DestPlaylistID,
	).Scan(&rawIDs, &syncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync state: %w", err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(rawIDs), &ids); err != nil {
		return nil, fmt.Errorf("failed to decode track ids for %s: %w", pair, err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &models.SyncState{Pair: pair, TrackIDs: set, SyncedAt: syncedAt}, nil
}

// Put upserts a pair's state. Writes carrying a SyncedAt older than the
// stored row are rejected so a stalled cycle cannot clobber a newer one.
func (r *SyncStateRepository) Put(state models.SyncState) error {
	existing, err := r.Get(state.Pair)
	if err != nil {
		return err
	}
	if existing != nil && state.SyncedAt.Before(existing.SyncedAt) {
		return fmt.Errorf("stale sync state for %s: %v is before %v",
			state.Pair, state.SyncedAt, existing.SyncedAt)
	}

	ids := make([]string, 0, len(state.TrackIDs))
	for id := range state.TrackIDs {
		ids = append(ids, id)
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode track ids: %w", err)
	}

	query := `
		INSERT INTO sync_state (
			id, source_service, source_playlist_id,
			dest_service, dest_playlist_id, track_ids, synced_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_service, source_playlist_id, dest_service, dest_playlist_id)
		DO UPDATE SET track_ids = excluded.track_ids, synced_at = excluded.synced_at
	`
	_, err = r.db.Exec(query,
		shared.GenerateID(),
		state.Pair.SourceService, state.Pair.SourcePlaylistID,
		state.Pair.DestService, state.Pair.DestPlaylistID,
		string(raw), state.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sync state: %w", err)
	}
	return nil
}

// List returns every stored pair state, most recently synced first.
func (r *SyncStateRepository) List() ([]models.SyncState, error) {
	query := `
		SELECT source_service, source_playlist_id, dest_service, dest_playlist_id,
		       track_ids, synced_at
		FROM sync_state
		ORDER BY synced_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync state: %w", err)
	}
	defer rows.Close()

	var states []models.SyncState
	for rows.Next() {
		var st models.SyncState
		var rawIDs string
		err := rows.Scan(
			&st.Pair.SourceService, &st.Pair.SourcePlaylistID,
			&st.Pair.DestService, &st.Pair.DestPlaylistID,
			&rawIDs, &st.SyncedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync state: %w", err)
		}
		var ids []string
		if err := json.Unmarshal([]byte(rawIDs), &ids); err != nil {
			return nil, fmt.Errorf("failed to decode track ids for %s: %w", st.Pair, err)
		}
		st.TrackIDs = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			st.TrackIDs[id] = struct{}{}
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// Delete drops a pair's state, for example when a pair is retired from the
// configuration.
func (r *SyncStateRepository) Delete(pair models.PairKey) error {
	query := `
		DELETE FROM sync_state
		WHERE source_service = ? AND source_playlist_id = ?
		  AND dest_service = ? AND dest_playlist_id = ?
	`
	_, err := r.db.Exec(query,
		pair.SourceService, pair.SourcePlaylistID,
		pair.DestService, pair.DestPlaylistID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete sync state: %w", err)
	}
	return nil
}
