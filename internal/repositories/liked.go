package repositories

import (
	"database/sql"
	"fmt"
)

// LikedTrackRepository records which destination tracks carry a rating
// pushed by the liked-tracks sync. The record lets a later cycle clear
// ratings for tracks the user un-liked at the source without touching
// ratings the user set themselves.
type LikedTrackRepository struct {
	db *sql.DB
}

// NewLikedTrackRepository creates a new LikedTrackRepository with the given database connection
func NewLikedTrackRepository(db *sql.DB) *LikedTrackRepository {
	return &LikedTrackRepository{db: db}
}

// Synced returns the set of destination-native IDs previously rated for a
// (destination, source) pair.
func (r *LikedTrackRepository) Synced(destService, sourceService string) (map[string]struct{}, error) {
	query := `
		SELECT native_id FROM liked_tracks
		WHERE dest_service = ? AND source_service = ?
	`
	rows, err := r.db.Query(query, destService, sourceService)
	if err != nil {
		return nil, fmt.Errorf("failed to query liked tracks: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan liked track: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Add records a rated track. Re-adding an existing row is a no-op.
func (r *LikedTrackRepository) Add(destService, nativeID, sourceService string) error {
	query := `
		INSERT OR IGNORE INTO liked_tracks (dest_service, native_id, source_service)
		VALUES (?, ?, ?)
	`
	_, err := r.db.Exec(query, destService, nativeID, sourceService)
	if err != nil {
		return fmt.Errorf("failed to record liked track: %w", err)
	}
	return nil
}

// Remove forgets a rated track after its rating has been cleared.
func (r *LikedTrackRepository) Remove(destService, nativeID, sourceService string) error {
	query := `
		DELETE FROM liked_tracks
		WHERE dest_service = ? AND native_id = ? AND source_service = ?
	`
	_, err := r.db.Exec(query, destService, nativeID, sourceService)
	if err != nil {
		return fmt.Errorf("failed to remove liked track: %w", err)
	}
	return nil
}
