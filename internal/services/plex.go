// Plex Media Server implementation of [Provider]
//
// Plex is the sync destination: playlist writes, ordering, ratings, posters.
// All requests authenticate with an X-Plex-Token and ask for JSON responses.
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/desertthunder/plexist/internal/models"
	"github.com/desertthunder/plexist/internal/shared"
)

const plexIdentifier = "com.plexapp.plugins.library"

type plexGuid struct {
	ID string `json:"id"`
}

type plexMetadata struct {
	RatingKey        string     `json:"ratingKey"`
	PlaylistItemID   int64      `json:"playlistItemID"`
	Title            string     `json:"title"`
	GrandparentTitle string     `json:"grandparentTitle"`
	ParentTitle      string     `json:"parentTitle"`
	Summary          string     `json:"summary"`
	Duration         int        `json:"duration"`
	LeafCount        int        `json:"leafCount"`
	UserRating       float64    `json:"userRating"`
	Guid             []plexGuid `json:"Guid"`
}

type plexDirectory struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

type plexMediaContainer struct {
	MachineIdentifier string          `json:"machineIdentifier"`
	Metadata          []plexMetadata  `json:"Metadata"`
	Directory         []plexDirectory `json:"Directory"`
}

type plexResponse struct {
	MediaContainer plexMediaContainer `json:"MediaContainer"`
}

// PlexProvider implements [Provider] against a Plex Media Server. It is the
// only writable provider.
type PlexProvider struct {
	tokens     TokenProvider
	httpClient *http.Client
	baseURL    string

	mu        sync.Mutex
	machineID string
	musicKey  string
}

// NewPlexProvider creates a Plex destination for the server at baseURL.
func NewPlexProvider(tokens TokenProvider, baseURL string) *PlexProvider {
	return &PlexProvider{
		tokens:     tokens,
		httpClient: http.DefaultClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (p *PlexProvider) Name() string { return "plex" }

func (p *PlexProvider) Writable() bool { return true }

func (p *PlexProvider) doRequest(ctx context.Context, method, endpoint string, result any) error {
	token, err := p.tokens.Token(ctx, p.Name())
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decodeResponse(resp, result)
}

// identity fetches and caches the server's machine identifier, needed to
// build library item URIs for playlist writes.
func (p *PlexProvider) identity(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.machineID != "" {
		return p.machineID, nil
	}

	var root plexResponse
	if err := p.doRequest(ctx, http.MethodGet, "/", &root); err != nil {
		return "", err
	}
	if root.MediaContainer.MachineIdentifier == "" {
		return "", fmt.Errorf("%w: plex server did not report a machine identifier", shared.ErrAPIRequest)
	}
	p.machineID = root.MediaContainer.MachineIdentifier
	return p.machineID, nil
}

// musicSection finds and caches the first music library section.
func (p *PlexProvider) musicSection(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.musicKey != "" {
		return p.musicKey, nil
	}

	var sections plexResponse
	if err := p.doRequest(ctx, http.MethodGet, "/library/sections", &sections); err != nil {
		return "", err
	}
	for _, dir := range sections.MediaContainer.Directory {
		if dir.Type == "artist" {
			p.musicKey = dir.Key
			return p.musicKey, nil
		}
	}
	return "", fmt.Errorf("%w: plex server has no music library", shared.ErrAPIRequest)
}

func (p *PlexProvider) ListPlaylists(ctx context.Context, filter PlaylistFilter) ([]models.Playlist, error) {
	var resp plexResponse
	if err := p.doRequest(ctx, http.MethodGet, "/playlists?playlistType=audio", &resp); err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(filter.PlaylistIDs))
	for _, id := range filter.PlaylistIDs {
		wanted[id] = struct{}{}
	}

	playlists := make([]models.Playlist, 0, len(resp.MediaContainer.Metadata))
	for _, item := range resp.MediaContainer.Metadata {
		if len(wanted) > 0 {
			if _, ok := wanted[item.RatingKey]; !ok {
				continue
			}
		}
		playlists = append(playlists, models.Playlist{
			ID:          item.RatingKey,
			Name:        item.Title,
			Description: item.Summary,
			TrackCount:  item.LeafCount,
		})
	}
	return playlists, nil
}

func (p *PlexProvider) ListTracks(ctx context.Context, playlistID string) ([]models.TrackRef, error) {
	items, err := p.playlistItems(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	refs := make([]models.TrackRef, 0, len(items))
	for _, item := range items {
		refs = append(refs, plexTrackRef(item))
	}
	return refs, nil
}

func (p *PlexProvider) playlistItems(ctx context.Context, playlistID string) ([]plexMetadata, error) {
	var resp plexResponse
	endpoint := fmt.Sprintf("/playlists/%s/items", url.PathEscape(playlistID))
	if err := p.doRequest(ctx, http.MethodGet, endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Metadata, nil
}

// SearchByISRC filters the music library on track GUIDs of the form
// isrc://XXXX.
func (p *PlexProvider) SearchByISRC(ctx context.Context, isrc string) ([]models.TrackRef, error) {
	section, err := p.musicSection(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("type", "10")
	query.Set("track.guid", "isrc://"+strings.ToUpper(isrc))

	var resp plexResponse
	endpoint := fmt.Sprintf("/library/sections/%s/all?%s", url.PathEscape(section), query.Encode())
	if err := p.doRequest(ctx, http.MethodGet, endpoint, &resp); err != nil {
		return nil, err
	}
	return plexTrackRefs(resp.MediaContainer.Metadata), nil
}

// SearchByMBID filters the music library on track GUIDs of the form
// "mbid://<id>". Plex writes those tags when a library is matched against
// MusicBrainz.
func (p *PlexProvider) SearchByMBID(ctx context.Context, mbid string) ([]models.TrackRef, error) {
	section, err := p.musicSection(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("type", "10")
	query.Set("track.guid", "mbid://"+strings.ToLower(mbid))

	var resp plexResponse
	endpoint := fmt.Sprintf("/library/sections/%s/all?%s", url.PathEscape(section), query.Encode())
	if err := p.doRequest(ctx, http.MethodGet, endpoint, &resp); err != nil {
		return nil, err
	}
	return plexTrackRefs(resp.MediaContainer.Metadata), nil
}

func (p *PlexProvider) SearchByMetadata(ctx context.Context, title, artist, album string) ([]models.TrackRef, error) {
	section, err := p.musicSection(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("type", "10")
	query.Set("title", title)
	if artist != "" {
		query.Set("grandparentTitle", artist)
	}
	query.Set("limit", "25")

	var resp plexResponse
	endpoint := fmt.Sprintf("/library/sections/%s/all?%s", url.PathEscape(section), query.Encode())
	if err := p.doRequest(ctx, http.MethodGet, endpoint, &resp); err != nil {
		return nil, err
	}

	// A title+artist filter can be too strict when Plex tags differ;
	// fall back to title-only before giving up.
	if len(resp.MediaContainer.Metadata) == 0 && artist != "" {
		query.Del("grandparentTitle")
		endpoint = fmt.Sprintf("/library/sections/%s/all?%s", url.PathEscape(section), query.Encode())
		if err := p.doRequest(ctx, http.MethodGet, endpoint, &resp); err != nil {
			return nil, err
		}
	}
	return plexTrackRefs(resp.MediaContainer.Metadata), nil
}

// itemsURI builds the server URI Plex expects for playlist create/add calls.
func (p *PlexProvider) itemsURI(ctx context.Context, nativeIDs []string) (string, error) {
	machineID, err := p.identity(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("server://%s/%s/library/metadata/%s",
		machineID, plexIdentifier, strings.Join(nativeIDs, ",")), nil
}

func (p *PlexProvider) CreatePlaylist(ctx context.Context, name, description, poster string) (string, error) {
	uri, err := p.itemsURI(ctx, nil)
	if err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("type", "audio")
	query.Set("title", name)
	query.Set("smart", "0")
	query.Set("uri", uri)

	var resp plexResponse
	if err := p.doRequest(ctx, http.MethodPost, "/playlists?"+query.Encode(), &resp); err != nil {
		return "", err
	}
	if len(resp.MediaContainer.Metadata) == 0 {
		return "", fmt.Errorf("%w: plex returned no playlist metadata", shared.ErrAPIRequest)
	}
	id := resp.MediaContainer.Metadata[0].RatingKey

	if description != "" {
		if err := p.SetDescription(ctx, id, description); err != nil {
			return "", err
		}
	}
	if poster != "" {
		if err := p.SetPoster(ctx, id, poster); err != nil {
			return "", err
		}
	}
	return id, nil
}

// SetDescription updates a playlist's summary text.
func (p *PlexProvider) SetDescription(ctx context.Context, playlistID, description string) error {
	query := url.Values{}
	query.Set("summary", description)
	endpoint := fmt.Sprintf("/playlists/%s?%s", url.PathEscape(playlistID), query.Encode())
	return p.doRequest(ctx, http.MethodPut, endpoint, nil)
}

// SetPoster points a playlist's poster at an image URL.
func (p *PlexProvider) SetPoster(ctx context.Context, playlistID, posterURL string) error {
	query := url.Values{}
	query.Set("url", posterURL)
	endpoint := fmt.Sprintf("/playlists/%s/posters?%s", url.PathEscape(playlistID), query.Encode())
	return p.doRequest(ctx, http.MethodPost, endpoint, nil)
}

func (p *PlexProvider) AddTracks(ctx context.Context, playlistID string, nativeIDs []string) error {
	if len(nativeIDs) == 0 {
		return nil
	}

	// Skip tracks already present so retried adds stay idempotent.
	items, err := p.playlistItems(ctx, playlistID)
	if err != nil {
		return err
	}
	present := make(map[string]struct{}, len(items))
	for _, item := range items {
		present[item.RatingKey] = struct{}{}
	}
	missing := make([]string, 0, len(nativeIDs))
	for _, id := range nativeIDs {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	uri, err := p.itemsURI(ctx, missing)
	if err != nil {
		return err
	}
	query := url.Values{}
	query.Set("uri", uri)
	endpoint := fmt.Sprintf("/playlists/%s/items?%s", url.PathEscape(playlistID), query.Encode())
	return p.doRequest(ctx, http.MethodPut, endpoint, nil)
}

func (p *PlexProvider) RemoveTracks(ctx context.Context, playlistID string, nativeIDs []string) error {
	if len(nativeIDs) == 0 {
		return nil
	}

	items, err := p.playlistItems(ctx, playlistID)
	if err != nil {
		return err
	}
	itemIDs := make(map[string]int64, len(items))
	for _, item := range items {
		itemIDs[item.RatingKey] = item.PlaylistItemID
	}

	for _, id := range nativeIDs {
		itemID, ok := itemIDs[id]
		if !ok {
			// Already gone; removal is idempotent.
			continue
		}
		endpoint := fmt.Sprintf("/playlists/%s/items/%d", url.PathEscape(playlistID), itemID)
		if err := p.doRequest(ctx, http.MethodDelete, endpoint, nil); err != nil {
			return err
		}
	}
	return nil
}

// SetOrder rewrites the playlist to exactly the given ordered list. Plex has
// no bulk reorder call, so the playlist is cleared and refilled in one pass.
func (p *PlexProvider) SetOrder(ctx context.Context, playlistID string, nativeIDs []string) error {
	endpoint := fmt.Sprintf("/playlists/%s/items", url.PathEscape(playlistID))
	if err := p.doRequest(ctx, http.MethodDelete, endpoint, nil); err != nil {
		return err
	}
	if len(nativeIDs) == 0 {
		return nil
	}

	uri, err := p.itemsURI(ctx, nativeIDs)
	if err != nil {
		return err
	}
	query := url.Values{}
	query.Set("uri", uri)
	return p.doRequest(ctx, http.MethodPut, endpoint+"?"+query.Encode(), nil)
}

// RateTrack sets a track's user rating. Plex ratings run 0-10, so stars are
// doubled; 0 clears the rating.
func (p *PlexProvider) RateTrack(ctx context.Context, nativeID string, stars float64) error {
	query := url.Values{}
	query.Set("key", nativeID)
	query.Set("identifier", plexIdentifier)
	query.Set("rating", fmt.Sprintf("%g", stars*2))
	return p.doRequest(ctx, http.MethodPut, "/:/rate?"+query.Encode(), nil)
}

func plexTrackRef(m plexMetadata) models.TrackRef {
	var isrc string
	for _, guid := range m.Guid {
		if rest, ok := strings.CutPrefix(guid.ID, "isrc://"); ok {
			isrc = rest
			break
		}
	}
	return models.TrackRef{
		NativeID: m.RatingKey,
		Track: models.Track{
			Title:    m.Title,
			Artist:   m.GrandparentTitle,
			Album:    m.ParentTitle,
			Duration: m.Duration / 1000,
			ISRC:     isrc,
		},
	}
}

func plexTrackRefs(items []plexMetadata) []models.TrackRef {
	refs := make([]models.TrackRef, 0, len(items))
	for _, item := range items {
		refs = append(refs, plexTrackRef(item))
	}
	return refs
}
