// Package repositories implements SQLite persistence for the sync engine.
//
// Key Implementations:
//   - [SyncStateRepository] : per-pair record of the tracks the engine manages
//   - [CredentialRepository] : token material written back on every refresh
//   - [LikedTrackRepository] : ratings previously pushed for liked tracks
//
// Every repository holds a *sql.DB opened through [shared.NewDatabase] and
// assumes migrations have already run.
package repositories
