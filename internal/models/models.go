// package models defines the data model for the playlist sync engine
package models

import (
	"fmt"
	"strings"
	"time"
)

// Track is a service-agnostic description of a song.
//
// Immutable once fetched from a service. Duration is in seconds and optional
// (zero means unknown), as are Album and ISRC.
type Track struct {
	Title    string
	Artist   string
	Album    string
	Duration int    // Duration in seconds, 0 if unknown
	ISRC     string // International Standard Recording Code for matching
}

// ISRCEqual reports whether two tracks carry the same non-empty ISRC,
// compared case-insensitively.
func ISRCEqual(a, b Track) bool {
	return a.ISRC != "" && b.ISRC != "" && strings.EqualFold(a.ISRC, b.ISRC)
}

// TrackRef is a track as listed by a specific service: metadata plus the
// service's native identifier. Source listings and catalog search results
// both come back as TrackRefs.
type TrackRef struct {
	NativeID string
	Track    Track
}

// Confidence tags how a track was resolved against a destination catalog.
type Confidence int

const (
	ConfidenceNone  Confidence = iota // unresolved, no native ID
	ConfidenceExact                   // ISRC match
	ConfidenceFuzzy                   // metadata match
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceExact:
		return "exact"
	case ConfidenceFuzzy:
		return "fuzzy"
	default:
		return "unresolved"
	}
}

// Match pairs a source Track with the destination service's native track
// identifier. NativeID is empty iff Confidence is ConfidenceNone.
type Match struct {
	Track      Track
	NativeID   string
	Confidence Confidence
}

// Resolved reports whether the match carries a destination identifier.
func (m Match) Resolved() bool {
	return m.Confidence != ConfidenceNone && m.NativeID != ""
}

// Playlist represents a music playlist from any service.
type Playlist struct {
	ID          string
	Name        string
	Description string
	Poster      string
	TrackCount  int
}

// PlaylistExport represents a playlist with all its tracks.
type PlaylistExport struct {
	Playlist Playlist
	Tracks   []Track
}

// EditPlan is the set of changes needed to bring one destination playlist in
// line with its source.
//
// Additions are ordered as they should appear; Removals are native IDs to
// drop. When RewriteOrder is set the apply step reissues the full ordered
// list instead of incremental edits.
type EditPlan struct {
	Additions    []Match
	Removals     []string
	RewriteOrder bool
}

// Empty reports whether the plan changes nothing.
func (p EditPlan) Empty() bool {
	return len(p.Additions) == 0 && len(p.Removals) == 0 && !p.RewriteOrder
}

// Validate rejects plans that both add and remove the same native ID. The
// reconciler never produces such a plan; detecting one aborts only the
// affected playlist's apply step.
func (p EditPlan) Validate() error {
	removing := make(map[string]struct{}, len(p.Removals))
	for _, id := range p.Removals {
		removing[id] = struct{}{}
	}
	for _, m := range p.Additions {
		if _, ok := removing[m.NativeID]; ok {
			return fmt.Errorf("edit plan adds and removes native ID %s", m.NativeID)
		}
	}
	return nil
}

// PairKey identifies one configured source playlist → destination playlist
// mapping.
type PairKey struct {
	SourceService    string
	SourcePlaylistID string
	DestService      string
	DestPlaylistID   string
}

func (k PairKey) String() string {
	return fmt.Sprintf("%s:%s->%s:%s", k.SourceService, k.SourcePlaylistID, k.DestService, k.DestPlaylistID)
}

// SyncState is the durable record of the last successful sync for a pair.
//
// TrackIDs holds the destination-native track IDs the engine itself placed in
// the playlist; only those are ever eligible for removal. SyncedAt never
// decreases between successful cycles for the same pair.
type SyncState struct {
	Pair     PairKey
	TrackIDs map[string]struct{}
	SyncedAt time.Time
}

// Contains reports whether the engine previously synced the given native ID.
func (s *SyncState) Contains(nativeID string) bool {
	if s == nil {
		return false
	}
	_, ok := s.TrackIDs[nativeID]
	return ok
}

// Credential holds one service's token material. Owned by the credential
// manager; provider adapters receive a valid access token on demand and never
// persist it themselves.
type Credential struct {
	Service      string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Expired reports whether the access token is past its expiry. A zero expiry
// means the token does not expire (API keys, Plex tokens).
func (c Credential) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

// Missing-track report reasons.
const (
	ReasonNoISRCMatch   = "no-isrc-match"
	ReasonLowConfidence = "low-confidence"
	ReasonSearchFailed  = "search-failed"
)

// MissingTrack is one unresolved track in the missing-track report.
type MissingTrack struct {
	SourcePlaylist string `json:"source_playlist"`
	Title          string `json:"title"`
	Artist         string `json:"artist"`
	Album          string `json:"album,omitempty"`
	Reason         string `json:"reason"`
}
