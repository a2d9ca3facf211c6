// package matcher resolves source tracks against a destination catalog.
// Resolution tries an ISRC-scoped search first, then falls back to scored
// metadata matching over normalized title and artist text.
package matcher

import (
	"context"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plexist/internal/models"
	"github.com/desertthunder/plexist/internal/shared"
)

// CatalogSearch is the subset of a provider the matcher needs. Satisfied by
// any [services.Provider].
type CatalogSearch interface {
	SearchByISRC(ctx context.Context, isrc string) ([]models.TrackRef, error)
	SearchByMetadata(ctx context.Context, title, artist, album string) ([]models.TrackRef, error)
}

// MBIDSearch is implemented by catalogs that also index tracks by
// MusicBrainz identifier, like Plex libraries tagged with mbid:// GUIDs.
type MBIDSearch interface {
	SearchByMBID(ctx context.Context, mbid string) ([]models.TrackRef, error)
}

// ISRCResolver maps an ISRC to MusicBrainz identifiers, strongest first.
// Implemented by [services.MusicBrainzClient].
type ISRCResolver interface {
	LookupISRC(ctx context.Context, isrc string) ([]string, error)
}

// Config holds the scoring weights and acceptance rules. Zero values fall
// back to the defaults, so Config{} is usable as-is.
type Config struct {
	TitleWeight    float64
	ArtistWeight   float64
	AlbumWeight    float64
	DurationWeight float64

	// Threshold is the minimum composite score for a fuzzy match.
	Threshold float64
	// Margin rejects a fuzzy match when the runner-up scores within this
	// distance of the best candidate.
	Margin float64
	// DurationWindow is the duration gap, in seconds, at which the
	// duration component has decayed to zero.
	DurationWindow int
}

const (
	defaultTitleWeight    = 0.5
	defaultArtistWeight   = 0.35
	defaultAlbumWeight    = 0.1
	defaultDurationWeight = 0.05
	defaultThreshold      = 0.72
	defaultMargin         = 0.03
	defaultDurationWindow = 5
)

func (c Config) withDefaults() Config {
	if c.TitleWeight == 0 {
		c.TitleWeight = defaultTitleWeight
	}
	if c.ArtistWeight == 0 {
		c.ArtistWeight = defaultArtistWeight
	}
	if c.AlbumWeight == 0 {
		c.AlbumWeight = defaultAlbumWeight
	}
	if c.DurationWeight == 0 {
		c.DurationWeight = defaultDurationWeight
	}
	if c.Threshold == 0 {
		c.Threshold = defaultThreshold
	}
	if c.Margin == 0 {
		c.Margin = defaultMargin
	}
	if c.DurationWindow == 0 {
		c.DurationWindow = defaultDurationWindow
	}
	return c
}

// Matcher resolves tracks against one destination catalog.
type Matcher struct {
	catalog  CatalogSearch
	config   Config
	logger   *log.Logger
	resolver ISRCResolver
}

// New builds a Matcher over the given catalog.
func New(catalog CatalogSearch, config Config, logger *log.Logger) *Matcher {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Matcher{
		catalog: catalog,
		config:  config.withDefaults(),
		logger:  logger.With("component", "matcher"),
	}
}

// SetISRCResolver enables the MusicBrainz stage: when the direct ISRC
// lookup misses and the catalog can search by MBID, the ISRC is translated
// to MusicBrainz identifiers and each one tried as a GUID. Lookup and
// search failures fall through to metadata matching.
func (m *Matcher) SetISRCResolver(r ISRCResolver) { m.resolver = r }

// Result pairs a match attempt with the reason it failed, when it did.
// Reason is empty for resolved tracks.
type Result struct {
	Match  models.Match
	Reason string
}

// Resolve matches a single source track against the catalog.
//
// Tracks carrying an ISRC are looked up by identifier first; an ISRC hit is
// always an exact match, with ties broken by closest duration. When a
// resolver is configured a missed ISRC is retried through its MusicBrainz
// identifiers before giving up on identifier matching. Without an
// identifier hit the matcher searches by metadata and scores each
// candidate; the best candidate wins only when it clears the threshold
// and beats the runner-up by the ambiguity margin. Search failures
// degrade the track to unresolved rather than failing the batch.
func (m *Matcher) Resolve(ctx context.Context, track models.Track) Result {
	if track.ISRC != "" {
		refs, err := m.catalog.SearchByISRC(ctx, track.ISRC)
		if err != nil {
			m.logger.Warn("isrc search failed", "isrc", track.ISRC, "err", err)
			return Result{
				Match:  models.Match{Track: track, Confidence: models.ConfidenceNone},
				Reason: models.ReasonSearchFailed,
			}
		}
		// Some catalogs echo a different ISRC for regional re-releases;
		// drop those rather than trusting the lookup blindly.
		kept := refs[:0]
		for _, ref := range refs {
			if ref.Track.ISRC == "" || models.ISRCEqual(track, ref.Track) {
				kept = append(kept, ref)
			}
		}
		if ref, ok := bestByDuration(track, kept); ok {
			return Result{Match: models.Match{
				Track:      track,
				NativeID:   ref.NativeID,
				Confidence: models.ConfidenceExact,
			}}
		}
		if ref, ok := m.resolveByMBID(ctx, track); ok {
			return Result{Match: models.Match{
				Track:      track,
				NativeID:   ref.NativeID,
				Confidence: models.ConfidenceExact,
			}}
		}
	}

	refs, err := m.catalog.SearchByMetadata(ctx, track.Title, track.Artist, track.Album)
	if err != nil {
		m.logger.Warn("metadata search failed", "title", track.Title, "err", err)
		return Result{
			Match:  models.Match{Track: track, Confidence: models.ConfidenceNone},
			Reason: models.ReasonSearchFailed,
		}
	}
	if len(refs) == 0 {
		return m.unresolved(track)
	}

	best, runnerUp := m.rank(track, refs)
	if best.score < m.config.Threshold {
		m.logger.Debug("best candidate below threshold",
			"title", track.Title, "score", best.score)
		return m.unresolved(track)
	}
	if runnerUp != nil && best.score-runnerUp.score < m.config.Margin {
		m.logger.Debug("ambiguous candidates rejected",
			"title", track.Title, "best", best.score, "runner_up", runnerUp.score)
		return m.unresolved(track)
	}

	return Result{Match: models.Match{
		Track:      track,
		NativeID:   best.ref.NativeID,
		Confidence: models.ConfidenceFuzzy,
	}}
}

// resolveByMBID translates the track's ISRC into MusicBrainz identifiers
// and searches the catalog for each, strongest first. Returns false when
// the stage is not configured, the catalog cannot search by MBID, or
// nothing matched.
func (m *Matcher) resolveByMBID(ctx context.Context, track models.Track) (models.TrackRef, bool) {
	if m.resolver == nil {
		return models.TrackRef{}, false
	}
	byMBID, ok := m.catalog.(MBIDSearch)
	if !ok {
		return models.TrackRef{}, false
	}

	mbids, err := m.resolver.LookupISRC(ctx, track.ISRC)
	if err != nil {
		m.logger.Debug("musicbrainz lookup failed", "isrc", track.ISRC, "err", err)
		return models.TrackRef{}, false
	}
	for _, mbid := range mbids {
		refs, err := byMBID.SearchByMBID(ctx, mbid)
		if err != nil {
			m.logger.Debug("mbid search failed", "mbid", mbid, "err", err)
			continue
		}
		if ref, ok := bestByDuration(track, refs); ok {
			return ref, true
		}
	}
	return models.TrackRef{}, false
}

// ResolveAll matches every track in order, returning one result per input.
func (m *Matcher) ResolveAll(ctx context.Context, tracks []models.Track) []Result {
	results := make([]Result, 0, len(tracks))
	for _, track := range tracks {
		if ctx.Err() != nil {
			break
		}
		results = append(results, m.Resolve(ctx, track))
	}
	return results
}

func (m *Matcher) unresolved(track models.Track) Result {
	reason := models.ReasonLowConfidence
	if track.ISRC != "" {
		reason = models.ReasonNoISRCMatch
	}
	return Result{
		Match:  models.Match{Track: track, Confidence: models.ConfidenceNone},
		Reason: reason,
	}
}

type candidate struct {
	ref   models.TrackRef
	score float64
}

// rank scores every candidate and returns the best and runner-up. The
// runner-up is nil when only one candidate exists.
func (m *Matcher) rank(track models.Track, refs []models.TrackRef) (candidate, *candidate) {
	best := candidate{score: -1}
	var runnerUp *candidate
	for _, ref := range refs {
		c := candidate{ref: ref, score: m.Score(track, ref.Track)}
		if c.score > best.score {
			if best.score >= 0 {
				prev := best
				runnerUp = &prev
			}
			best = c
		} else if runnerUp == nil || c.score > runnerUp.score {
			c := c
			runnerUp = &c
		}
	}
	return best, runnerUp
}

// Score computes the weighted similarity of two tracks in [0, 1]. The
// duration component decays linearly with the gap between the two
// durations, reaching zero at the window edge.
func (m *Matcher) Score(source, cand models.Track) float64 {
	score := m.config.TitleWeight * similarity(Normalize(source.Title), Normalize(cand.Title))
	score += m.config.ArtistWeight * similarity(Normalize(source.Artist), Normalize(cand.Artist))
	score += m.config.AlbumWeight * similarity(Normalize(source.Album), Normalize(cand.Album))
	if source.Duration > 0 && cand.Duration > 0 {
		window := m.config.DurationWindow
		if diff := absInt(source.Duration - cand.Duration); diff < window {
			score += m.config.DurationWeight * (1 - float64(diff)/float64(window))
		}
	}
	return score
}

// bestByDuration picks the ISRC hit whose duration is closest to the source
// track. On a tie the first hit wins.
func bestByDuration(track models.Track, refs []models.TrackRef) (models.TrackRef, bool) {
	if len(refs) == 0 {
		return models.TrackRef{}, false
	}
	best := refs[0]
	bestDelta := durationDelta(track, best)
	for _, ref := range refs[1:] {
		if d := durationDelta(track, ref); d < bestDelta {
			best, bestDelta = ref, d
		}
	}
	return best, true
}

func durationDelta(track models.Track, ref models.TrackRef) int {
	if track.Duration == 0 || ref.Track.Duration == 0 {
		return 1 << 30
	}
	return absInt(track.Duration - ref.Track.Duration)
}

var (
	parentheticalRe = regexp.MustCompile(`\s*[(\[][^)\]]*[)\]]`)
	featRe          = regexp.MustCompile(`(?i)\s+(feat\.?|ft\.?|featuring)\s+.*$`)
	punctRe         = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	spaceRe         = regexp.MustCompile(`\s+`)
)

// Normalize lowercases text and strips parenthetical suffixes, featured
// artist credits, and punctuation so "Song (Remastered 2011)" compares equal
// to "song".
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = parentheticalRe.ReplaceAllString(s, " ")
	s = featRe.ReplaceAllString(s, " ")
	s = punctRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// similarity is 1 minus the normalized Levenshtein distance. Two empty
// strings count as identical.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	dist := levenshtein(a, b)
	longest := max(len([]rune(a)), len([]rune(b)))
	return 1 - float64(dist)/float64(longest)
}

// levenshtein computes edit distance over runes with a two-row table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
