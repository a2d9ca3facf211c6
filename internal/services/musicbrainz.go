// MusicBrainz ISRC lookups.
//
// The open MusicBrainz web service maps an ISRC to the MBIDs of the
// recordings, release tracks, and releases that carry it. Plex tags
// library tracks with mbid:// GUIDs, so those identifiers give a second
// exact-match route when the library has no ISRC GUID for a track.
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	musicBrainzBaseURL   = "https://musicbrainz.org/ws/2"
	musicBrainzUserAgent = "plexist/0.3.0 (https://github.com/desertthunder/plexist)"
)

type mbTrack struct {
	ID string `json:"id"`
}

type mbMedia struct {
	Tracks []mbTrack `json:"tracks"`
}

type mbRelease struct {
	ID    string    `json:"id"`
	Media []mbMedia `json:"media"`
}

type mbRecording struct {
	ID       string      `json:"id"`
	Releases []mbRelease `json:"releases"`
}

type mbISRCResponse struct {
	Recordings []mbRecording `json:"recordings"`
}

// MusicBrainzClient resolves ISRCs against the MusicBrainz web service. It
// implements [matcher.ISRCResolver]. MusicBrainz asks anonymous clients to
// stay under one request per second; callers are expected to route lookups
// through a rate-limited executor.
type MusicBrainzClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewMusicBrainzClient creates a client against the public MusicBrainz API.
func NewMusicBrainzClient() *MusicBrainzClient {
	return &MusicBrainzClient{
		httpClient: http.DefaultClient,
		baseURL:    musicBrainzBaseURL,
	}
}

// LookupISRC returns every MBID associated with an ISRC, ordered from
// recording IDs through release-track IDs to release IDs. An ISRC unknown
// to MusicBrainz yields an empty result, not an error.
func (c *MusicBrainzClient) LookupISRC(ctx context.Context, isrc string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/isrc/%s?fmt=json&inc=releases+media",
		c.baseURL, url.PathEscape(strings.ToUpper(strings.TrimSpace(isrc))))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", musicBrainzUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, nil
	}

	var payload mbISRCResponse
	if err := decodeResponse(resp, &payload); err != nil {
		return nil, err
	}
	return collectMBIDs(payload), nil
}

// collectMBIDs flattens a lookup response into a deduplicated identifier
// list, strongest first: a recording MBID names the exact performance, a
// release-track MBID one pressing of it, a release MBID only the album.
func collectMBIDs(payload mbISRCResponse) []string {
	seen := map[string]struct{}{}
	var recordings, releaseTracks, releases []string
	add := func(bucket *[]string, id string) {
		id = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(id), "mbid://"))
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		*bucket = append(*bucket, id)
	}

	for _, rec := range payload.Recordings {
		add(&recordings, rec.ID)
		for _, rel := range rec.Releases {
			for _, media := range rel.Media {
				for _, track := range media.Tracks {
					add(&releaseTracks, track.ID)
				}
			}
			add(&releases, rel.ID)
		}
	}
	return append(append(recordings, releaseTracks...), releases...)
}
