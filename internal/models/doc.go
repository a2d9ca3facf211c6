// Package models defines domain entities shared across the sync engine.
//
// The package contains two categories of types:
//
// 1. Service DTOs: Lightweight structs representing external service data
//   - [Playlist] : Basic playlist metadata from music services
//   - [PlaylistExport] : Playlist with complete track listing
//   - [Track] : Song metadata with ISRC for cross-service matching
//
// 2. Engine types: Values produced and consumed by the sync pipeline
//   - [Match] : A source track resolved to a destination-native identifier
//   - [EditPlan] : Ordered additions/removals for one destination playlist
//   - [SyncState] : Durable record of what the engine last placed in a playlist
//   - [Credential] : Token material owned by the credential manager
//   - [MissingTrack] : One record of the per-cycle missing-track report
//
// Everything here is plain data; behavior lives in the matcher, reconciler,
// and tasks packages.
package models
