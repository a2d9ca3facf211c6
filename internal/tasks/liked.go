package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/plexist/internal/executor"
	"github.com/desertthunder/plexist/internal/models"
	"github.com/desertthunder/plexist/internal/services"
	"github.com/desertthunder/plexist/internal/shared"
)

// likedStars is the rating pushed for a liked track (five stars).
const likedStars = 5.0

// syncAllLiked mirrors liked tracks for every configured pair whose source
// exposes them.
func (e *Engine) syncAllLiked(ctx context.Context, progress chan<- ProgressUpdate) error {
	seen := map[string]struct{}{}
	for _, raw := range e.config.Sync.Pairs {
		sourceName, destName, err := shared.ParsePair(raw)
		if err != nil {
			return err
		}
		key := sourceName + ":" + destName
		if _, done := seen[key]; done {
			continue
		}
		seen[key] = struct{}{}

		if err := e.syncLiked(ctx, sourceName, destName, progress); err != nil {
			e.logger.Error("liked sync failed", "source", sourceName, "dest", destName, "err", err)
		}
	}
	return nil
}

// syncLiked pushes the source's liked tracks onto the destination as
// five-star ratings, and clears ratings the engine set for tracks that are
// no longer liked. Ratings the user set themselves are never touched.
func (e *Engine) syncLiked(ctx context.Context, sourceName, destName string, progress chan<- ProgressUpdate) error {
	source, ok := e.lookup(sourceName)
	if !ok {
		return fmt.Errorf("unknown source service %s", sourceName)
	}
	dest, ok := e.lookup(destName)
	if !ok {
		return fmt.Errorf("unknown destination service %s", destName)
	}
	likedSource, ok := source.(services.LikedSource)
	if !ok {
		e.logger.Debug("source does not expose liked tracks", "service", sourceName)
		return nil
	}

	liked, err := executor.Call(ctx, e.exec, sourceName, func(ctx context.Context) ([]models.Track, error) {
		return likedSource.LikedTracks(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to fetch liked tracks: %w", err)
	}
	e.sendProgress(progress, likedUpdate(sourceName, len(liked)))

	m := e.newMatcher(dest)

	previous, err := e.liked.Synced(destName, sourceName)
	if err != nil {
		return err
	}

	stillLiked := make(map[string]struct{}, len(liked))
	for _, track := range liked {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res := m.Resolve(ctx, track)
		if !res.Match.Resolved() {
			continue
		}
		nativeID := res.Match.NativeID
		stillLiked[nativeID] = struct{}{}

		if _, already := previous[nativeID]; already {
			continue
		}
		err := e.exec.Do(ctx, destName, func(ctx context.Context) error {
			return dest.RateTrack(ctx, nativeID, likedStars)
		})
		if err != nil {
			// One rejected rating should not strand the rest of the
			// pass; the track is retried on the next cycle.
			e.logger.Error("failed to rate liked track",
				"dest", destName, "track", nativeID, "err", err)
			continue
		}
		if err := e.liked.Add(destName, nativeID, sourceName); err != nil {
			return err
		}
	}

	// Clear ratings we pushed for tracks the user un-liked at the source.
	for nativeID := range previous {
		if _, keep := stillLiked[nativeID]; keep {
			continue
		}
		err := e.exec.Do(ctx, destName, func(ctx context.Context) error {
			return dest.RateTrack(ctx, nativeID, 0)
		})
		if err != nil {
			e.logger.Error("failed to clear pushed rating",
				"dest", destName, "track", nativeID, "err", err)
			continue
		}
		if err := e.liked.Remove(destName, nativeID, sourceName); err != nil {
			return err
		}
	}
	return nil
}
