// Package services contains the provider adapters the sync engine talks to.
//
// [Provider] is the single capability interface; each service implements it
// and registers itself under its lowercase name. New services are added by
// implementing the interface, not by extending a base client:
//
//   - [SpotifyProvider] : source, OAuth2 user tokens via a [TokenProvider]
//   - [DeezerProvider]  : source, public JSON API, no authentication
//   - [PlexProvider]    : destination, token-header API with playlist writes
//     and track ratings
//
// Adapters translate HTTP failures into [shared.StatusError] so the executor
// and credential manager can classify them, and keep add/remove operations
// idempotent so retries are safe.
package services
