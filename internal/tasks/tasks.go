// package tasks orchestrates sync cycles between source and destination
// music services.
//
// The core abstraction is Engine, which walks every configured service pair
// through a per-playlist state machine: fetch source, match, fetch
// destination, reconcile, apply, persist. Pairs run concurrently and fail
// independently; one pair's error never aborts the cycle. Operations emit
// progress updates via channels for non-blocking status reporting to CLI/UI
// layers.
package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/plexist/internal/executor"
	"github.com/desertthunder/plexist/internal/formatter"
	"github.com/desertthunder/plexist/internal/matcher"
	"github.com/desertthunder/plexist/internal/models"
	"github.com/desertthunder/plexist/internal/reconciler"
	"github.com/desertthunder/plexist/internal/services"
	"github.com/desertthunder/plexist/internal/shared"
)

// StateStore is the sync-state persistence surface the engine needs.
// Satisfied by [repositories.SyncStateRepository].
type StateStore interface {
	Get(pair models.PairKey) (*models.SyncState, error)
	Put(state models.SyncState) error
}

// LikedStore tracks which destination tracks carry engine-pushed ratings.
// Satisfied by [repositories.LikedTrackRepository].
type LikedStore interface {
	Synced(destService, sourceService string) (map[string]struct{}, error)
	Add(destService, nativeID, sourceService string) error
	Remove(destService, nativeID, sourceService string) error
}

// pairOutcome accumulates one playlist's sync result for the cycle summary.
type pairOutcome struct {
	added      int
	removed    int
	unresolved int
	failed     bool
}

// Engine runs sync cycles over the configured service pairs.
type Engine struct {
	config shared.Config
	exec   *executor.Executor
	states StateStore
	liked  LikedStore
	match  matcher.Config
	mbid   matcher.ISRCResolver
	logger *log.Logger

	// lookup resolves service names to providers. Overridable in tests;
	// defaults to the process registry.
	lookup func(name string) (services.Provider, bool)
}

// NewEngine creates an Engine. The liked store may be nil when liked-tracks
// sync is disabled.
func NewEngine(config shared.Config, exec *executor.Executor, states StateStore, liked LikedStore, logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	e := &Engine{
		config: config,
		exec:   exec,
		states: states,
		liked:  liked,
		logger: logger.With("component", "engine"),
		lookup: services.Lookup,
	}
	if config.Sync.MusicBrainz {
		e.mbid = executorResolver{exec: exec, client: services.NewMusicBrainzClient()}
	}
	return e
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run executes sync cycles until the context is cancelled, sleeping the
// configured interval between cycles.
func (e *Engine) Run(ctx context.Context, progress chan<- ProgressUpdate) error {
	for {
		summary, err := e.SyncCycle(ctx, progress)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error("cycle failed", "err", err)
		} else {
			e.logger.Info("cycle complete",
				"playlists", summary.Playlists, "failed", summary.Failed,
				"added", summary.TracksAdded, "removed", summary.TracksRemoved,
				"unresolved", summary.Unresolved)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.config.Sync.Interval()):
		}
	}
}

// SyncCycle runs every configured pair once. Pairs run concurrently; a
// failing pair is counted in the summary and does not disturb the others.
func (e *Engine) SyncCycle(ctx context.Context, progress chan<- ProgressUpdate) (formatter.CycleSummary, error) {
	start := time.Now()
	var summary formatter.CycleSummary
	if len(e.config.Sync.Pairs) == 0 {
		return summary, fmt.Errorf("%w: no sync pairs configured", shared.ErrMissingConfig)
	}

	var mu sync.Mutex
	authFailed := map[string]struct{}{}
	var wg sync.WaitGroup

	for _, raw := range e.config.Sync.Pairs {
		sourceName, destName, err := shared.ParsePair(raw)
		if err != nil {
			return summary, err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			outcomes, err := e.syncPair(ctx, sourceName, destName, progress)

			mu.Lock()
			defer mu.Unlock()
			for _, o := range outcomes {
				summary.Playlists++
				if o.failed {
					summary.Failed++
					continue
				}
				summary.TracksAdded += o.added
				summary.TracksRemoved += o.removed
				summary.Unresolved += o.unresolved
			}
			if err != nil {
				e.logger.Error("pair failed", "source", sourceName, "dest", destName, "err", err)
				if shared.IsAuthFailure(err) {
					// A pair failure can come from either side; the
					// executor tags the error with the service whose
					// credentials were rejected.
					authFailed[shared.AuthFailureService(err, sourceName)] = struct{}{}
				}
			}
		}()
	}
	wg.Wait()

	if e.config.Sync.LikedTracks && e.liked != nil {
		if err := e.syncAllLiked(ctx, progress); err != nil {
			e.logger.Error("liked-tracks sync failed", "err", err)
		}
	}

	for service := range authFailed {
		summary.AuthFailures = append(summary.AuthFailures, service)
	}
	summary.Elapsed = time.Since(start).Round(time.Second).String()
	return summary, nil
}

// syncPair syncs every playlist of one source service into the destination.
func (e *Engine) syncPair(ctx context.Context, sourceName, destName string, progress chan<- ProgressUpdate) ([]pairOutcome, error) {
	source, ok := e.lookup(sourceName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownService, sourceName)
	}
	dest, ok := e.lookup(destName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownService, destName)
	}
	if !dest.Writable() {
		return nil, fmt.Errorf("%w: %s cannot be a destination", shared.ErrInvalidPair, destName)
	}

	filter := e.sourceFilter(sourceName)
	playlists, err := executor.Call(ctx, e.exec, sourceName, func(ctx context.Context) ([]models.Playlist, error) {
		return source.ListPlaylists(ctx, filter)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s playlists: %w", sourceName, err)
	}

	destIndex, err := e.destPlaylists(ctx, dest)
	if err != nil {
		return nil, err
	}

	outcomes := make([]pairOutcome, 0, len(playlists))
	for _, pl := range playlists {
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}
		outcome, err := e.syncPlaylist(ctx, source, dest, pl, destIndex, progress)
		if err != nil {
			e.logger.Error("playlist sync failed",
				"source", sourceName, "playlist", pl.Name, "err", err)
			outcome.failed = true
			if shared.IsAuthFailure(err) {
				outcomes = append(outcomes, outcome)
				return outcomes, err
			}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// sourceFilter narrows source playlists from configured credentials, e.g.
// Deezer's explicit playlist ID list.
func (e *Engine) sourceFilter(sourceName string) services.PlaylistFilter {
	switch sourceName {
	case "spotify":
		return services.PlaylistFilter{UserID: e.config.Credentials.Spotify.UserID}
	case "deezer":
		return services.PlaylistFilter{
			UserID:      e.config.Credentials.Deezer.UserID,
			PlaylistIDs: e.config.Credentials.Deezer.PlaylistIDs,
		}
	default:
		return services.PlaylistFilter{}
	}
}

// destPlaylists indexes the destination's playlists by lowercase name for
// the case-insensitive match-or-create step.
func (e *Engine) destPlaylists(ctx context.Context, dest services.Provider) (map[string]models.Playlist, error) {
	playlists, err := executor.Call(ctx, e.exec, dest.Name(), func(ctx context.Context) ([]models.Playlist, error) {
		return dest.ListPlaylists(ctx, services.PlaylistFilter{})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s playlists: %w", dest.Name(), err)
	}
	index := make(map[string]models.Playlist, len(playlists))
	for _, pl := range playlists {
		index[strings.ToLower(pl.Name)] = pl
	}
	return index, nil
}

// executorCatalog routes matcher searches through the executor so catalog
// lookups share the destination's rate limit and retry policy.
type executorCatalog struct {
	exec    *executor.Executor
	dest    services.Provider
	service string
}

func (c executorCatalog) SearchByISRC(ctx context.Context, isrc string) ([]models.TrackRef, error) {
	return executor.Call(ctx, c.exec, c.service, func(ctx context.Context) ([]models.TrackRef, error) {
		return c.dest.SearchByISRC(ctx, isrc)
	})
}

func (c executorCatalog) SearchByMetadata(ctx context.Context, title, artist, album string) ([]models.TrackRef, error) {
	return executor.Call(ctx, c.exec, c.service, func(ctx context.Context) ([]models.TrackRef, error) {
		return c.dest.SearchByMetadata(ctx, title, artist, album)
	})
}

func (c executorCatalog) SearchByMBID(ctx context.Context, mbid string) ([]models.TrackRef, error) {
	byMBID, ok := c.dest.(matcher.MBIDSearch)
	if !ok {
		return nil, nil
	}
	return executor.Call(ctx, c.exec, c.service, func(ctx context.Context) ([]models.TrackRef, error) {
		return byMBID.SearchByMBID(ctx, mbid)
	})
}

// executorResolver routes MusicBrainz lookups through the executor under
// the "musicbrainz" per-service limit.
type executorResolver struct {
	exec   *executor.Executor
	client *services.MusicBrainzClient
}

func (r executorResolver) LookupISRC(ctx context.Context, isrc string) ([]string, error) {
	return executor.Call(ctx, r.exec, "musicbrainz", func(ctx context.Context) ([]string, error) {
		return r.client.LookupISRC(ctx, isrc)
	})
}

// newMatcher builds a matcher over the destination, with the MusicBrainz
// stage enabled when configured and the destination indexes MBID GUIDs.
func (e *Engine) newMatcher(dest services.Provider) *matcher.Matcher {
	catalog := executorCatalog{exec: e.exec, dest: dest, service: dest.Name()}
	m := matcher.New(catalog, e.match, e.logger)
	if e.mbid != nil {
		if _, ok := dest.(matcher.MBIDSearch); ok {
			m.SetISRCResolver(e.mbid)
		}
	}
	return m
}

// exportPlaylist fetches a playlist's full track listing through the
// executor under the source service's limits.
func (e *Engine) exportPlaylist(ctx context.Context, p services.Provider, pl models.Playlist) (models.PlaylistExport, error) {
	refs, err := executor.Call(ctx, e.exec, p.Name(), func(ctx context.Context) ([]models.TrackRef, error) {
		return p.ListTracks(ctx, pl.ID)
	})
	if err != nil {
		return models.PlaylistExport{}, err
	}

	tracks := make([]models.Track, 0, len(refs))
	for _, ref := range refs {
		tracks = append(tracks, ref.Track)
	}
	return models.PlaylistExport{Playlist: pl, Tracks: tracks}, nil
}

// matchTracks resolves every source track against the destination catalog,
// fanning out up to the in-flight cap. Results keep source order.
func (e *Engine) matchTracks(ctx context.Context, m *matcher.Matcher, pair models.PairKey, tracks []models.Track, progress chan<- ProgressUpdate) ([]matcher.Result, error) {
	workers := int(e.config.Limits.MaxInFlight)
	if workers <= 0 {
		workers = 4
	}

	results := make([]matcher.Result, len(tracks))
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range tracks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = m.Resolve(gctx, tracks[i])
			e.sendProgress(progress, matchingUpdate(pair, int(done.Add(1)), len(tracks), &tracks[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// syncPlaylist walks one playlist through the full state machine. Sync
// state is persisted only after every edit has been confirmed, so a crash
// mid-apply re-plans from the old state instead of orphaning tracks.
func (e *Engine) syncPlaylist(ctx context.Context, source, dest services.Provider, pl models.Playlist, destIndex map[string]models.Playlist, progress chan<- ProgressUpdate) (pairOutcome, error) {
	var outcome pairOutcome
	pair := models.PairKey{
		SourceService:    source.Name(),
		SourcePlaylistID: pl.ID,
		DestService:      dest.Name(),
	}

	e.sendProgress(progress, fetchSourceUpdate(pair, pl.Name))
	export, err := e.exportPlaylist(ctx, source, pl)
	if err != nil {
		e.sendProgress(progress, failedUpdate(pair, err))
		return outcome, fmt.Errorf("failed to fetch source tracks: %w", err)
	}
	tracks := export.Tracks

	e.sendProgress(progress, matchingUpdate(pair, 0, len(tracks), nil))
	results, err := e.matchTracks(ctx, e.newMatcher(dest), pair, tracks, progress)
	if err != nil {
		return outcome, err
	}

	destPl, err := e.ensureDestPlaylist(ctx, dest, pl, destIndex)
	if err != nil {
		e.sendProgress(progress, failedUpdate(pair, err))
		return outcome, err
	}
	pair.DestPlaylistID = destPl.ID

	e.sendProgress(progress, fetchDestUpdate(pair, destPl.Name))
	current, err := executor.Call(ctx, e.exec, dest.Name(), func(ctx context.Context) ([]models.TrackRef, error) {
		return dest.ListTracks(ctx, destPl.ID)
	})
	if err != nil {
		e.sendProgress(progress, failedUpdate(pair, err))
		return outcome, fmt.Errorf("failed to fetch destination tracks: %w", err)
	}

	prior, err := e.states.Get(pair)
	if err != nil {
		return outcome, err
	}

	e.sendProgress(progress, reconcilingUpdate(pair))
	plan, missing := reconciler.Plan(results, current, prior, e.config.Sync.AppendOnly)
	if err := plan.Validate(); err != nil {
		e.sendProgress(progress, failedUpdate(pair, err))
		return outcome, fmt.Errorf("%w: %v", shared.ErrInvalidPlan, err)
	}

	if !plan.Empty() {
		e.sendProgress(progress, applyingUpdate(pair, plan))
		if err := e.applyPlan(ctx, dest, destPl.ID, plan, results, current); err != nil {
			e.sendProgress(progress, failedUpdate(pair, err))
			return outcome, err
		}

		e.sendProgress(progress, persistingUpdate(pair))
		if err := e.states.Put(reconciler.NextState(pair, results, time.Now())); err != nil {
			return outcome, err
		}
	}

	if err := e.writeMissingReport(pl.Name, missing); err != nil {
		e.logger.Warn("failed to write missing-track report", "playlist", pl.Name, "err", err)
	}

	outcome.added = len(plan.Additions)
	outcome.removed = len(plan.Removals)
	outcome.unresolved = len(missing)
	e.sendProgress(progress, doneUpdate(pair, outcome.added, outcome.removed, outcome.unresolved))
	return outcome, nil
}

// ensureDestPlaylist finds the destination playlist by case-insensitive
// name, creating it when absent. Description and poster updates follow the
// configuration.
func (e *Engine) ensureDestPlaylist(ctx context.Context, dest services.Provider, pl models.Playlist, destIndex map[string]models.Playlist) (models.Playlist, error) {
	description := ""
	if e.config.Sync.AddDescription {
		description = pl.Description
	}
	poster := ""
	if e.config.Sync.AddPoster {
		poster = pl.Poster
	}

	if existing, ok := destIndex[strings.ToLower(pl.Name)]; ok {
		return existing, nil
	}

	id, err := executor.Call(ctx, e.exec, dest.Name(), func(ctx context.Context) (string, error) {
		return dest.CreatePlaylist(ctx, pl.Name, description, poster)
	})
	if err != nil {
		return models.Playlist{}, fmt.Errorf("failed to create destination playlist %q: %w", pl.Name, err)
	}

	created := models.Playlist{ID: id, Name: pl.Name, Description: description}
	destIndex[strings.ToLower(pl.Name)] = created
	e.logger.Info("created destination playlist", "name", pl.Name, "id", id)
	return created, nil
}

// applyPlan executes an edit plan. A full order rewrite replaces removals
// and additions in one pass; otherwise removals run before additions so a
// rename-style change never doubles tracks mid-apply.
func (e *Engine) applyPlan(ctx context.Context, dest services.Provider, playlistID string, plan models.EditPlan, results []matcher.Result, current []models.TrackRef) error {
	service := dest.Name()

	if plan.RewriteOrder {
		order := finalOrder(results, current, plan.Removals)
		return e.exec.Do(ctx, service, func(ctx context.Context) error {
			return dest.SetOrder(ctx, playlistID, order)
		})
	}

	if len(plan.Removals) > 0 {
		err := e.exec.Do(ctx, service, func(ctx context.Context) error {
			return dest.RemoveTracks(ctx, playlistID, plan.Removals)
		})
		if err != nil {
			return fmt.Errorf("failed to remove tracks: %w", err)
		}
	}

	if len(plan.Additions) > 0 {
		ids := make([]string, 0, len(plan.Additions))
		for _, m := range plan.Additions {
			ids = append(ids, m.NativeID)
		}
		err := e.exec.Do(ctx, service, func(ctx context.Context) error {
			return dest.AddTracks(ctx, playlistID, ids)
		})
		if err != nil {
			return fmt.Errorf("failed to add tracks: %w", err)
		}
	}
	return nil
}

// finalOrder builds the complete rewrite list: managed tracks in source
// order, then unmanaged (user-added) tracks in their existing order.
func finalOrder(results []matcher.Result, current []models.TrackRef, removals []string) []string {
	removed := make(map[string]struct{}, len(removals))
	for _, id := range removals {
		removed[id] = struct{}{}
	}

	var order []string
	managed := make(map[string]struct{})
	for _, res := range results {
		if !res.Match.Resolved() {
			continue
		}
		if _, dup := managed[res.Match.NativeID]; dup {
			continue
		}
		managed[res.Match.NativeID] = struct{}{}
		order = append(order, res.Match.NativeID)
	}
	for _, ref := range current {
		if _, ok := managed[ref.NativeID]; ok {
			continue
		}
		if _, gone := removed[ref.NativeID]; gone {
			continue
		}
		order = append(order, ref.NativeID)
	}
	return order
}

// writeMissingReport honors the configured report format, including "both"
// and "none".
func (e *Engine) writeMissingReport(playlist string, missing []models.MissingTrack) error {
	format := e.config.Sync.MissingFormat
	if format == "" || format == "none" {
		return nil
	}
	for i := range missing {
		missing[i].SourcePlaylist = playlist
	}

	formats := []string{format}
	if format == "both" {
		formats = []string{formatter.FormatCSV, formatter.FormatJSON}
	}
	for _, f := range formats {
		if _, err := formatter.WriteMissingReport(e.config.Sync.MissingDir, playlist, f, missing); err != nil {
			return err
		}
	}
	return nil
}
