// package reconciler turns match results and the destination's current
// contents into a minimal edit plan. Plans never touch tracks the engine did
// not add itself, so anything the user placed in a destination playlist by
// hand survives every sync.
package reconciler

import (
	"time"

	"github.com/desertthunder/plexist/internal/matcher"
	"github.com/desertthunder/plexist/internal/models"
)

// Plan computes the edits that take the destination playlist from its
// current contents to the desired state.
//
// Additions are resolved tracks not already present. Removals are tracks
// that are present, were added by a previous sync (recorded in prior), and
// no longer appear in the source; tracks absent from prior are treated as
// user additions and are never removed. In append-only mode nothing is ever
// removed or reordered. Unresolved tracks come back as missing-track
// reports instead of edits.
func Plan(desired []matcher.Result, current []models.TrackRef, prior *models.SyncState, appendOnly bool) (models.EditPlan, []models.MissingTrack) {
	var missing []models.MissingTrack
	resolvedIDs := make(map[string]struct{})
	var desiredOrder []string

	for _, res := range desired {
		if !res.Match.Resolved() {
			missing = append(missing, models.MissingTrack{
				Title:  res.Match.Track.Title,
				Artist: res.Match.Track.Artist,
				Album:  res.Match.Track.Album,
				Reason: res.Reason,
			})
			continue
		}
		if _, dup := resolvedIDs[res.Match.NativeID]; dup {
			continue
		}
		resolvedIDs[res.Match.NativeID] = struct{}{}
		desiredOrder = append(desiredOrder, res.Match.NativeID)
	}

	currentIDs := make(map[string]struct{}, len(current))
	for _, ref := range current {
		currentIDs[ref.NativeID] = struct{}{}
	}

	var plan models.EditPlan
	for _, res := range desired {
		if !res.Match.Resolved() {
			continue
		}
		if _, present := currentIDs[res.Match.NativeID]; !present {
			plan.Additions = append(plan.Additions, res.Match)
			currentIDs[res.Match.NativeID] = struct{}{}
		}
	}

	if !appendOnly {
		for _, ref := range current {
			if _, wanted := resolvedIDs[ref.NativeID]; wanted {
				continue
			}
			if !prior.Contains(ref.NativeID) {
				continue
			}
			plan.Removals = append(plan.Removals, ref.NativeID)
		}
		plan.RewriteOrder = needsReorder(desiredOrder, current, plan.Removals)
	}

	return plan, missing
}

// needsReorder reports whether the tracks surviving the edit appear in the
// destination in a different relative order than the source prescribes.
// Tracks the engine does not manage are ignored when comparing.
func needsReorder(desiredOrder []string, current []models.TrackRef, removals []string) bool {
	removed := make(map[string]struct{}, len(removals))
	for _, id := range removals {
		removed[id] = struct{}{}
	}
	wantRank := make(map[string]int, len(desiredOrder))
	for i, id := range desiredOrder {
		wantRank[id] = i
	}

	lastRank := -1
	for _, ref := range current {
		if _, gone := removed[ref.NativeID]; gone {
			continue
		}
		rank, managed := wantRank[ref.NativeID]
		if !managed {
			continue
		}
		if rank < lastRank {
			return true
		}
		lastRank = rank
	}
	return false
}

// NextState records the managed track set after a confirmed apply. The set
// is every desired track that resolved, which is exactly what the engine
// now owns in the destination.
func NextState(pair models.PairKey, desired []matcher.Result, now time.Time) models.SyncState {
	ids := make(map[string]struct{})
	for _, res := range desired {
		if res.Match.Resolved() {
			ids[res.Match.NativeID] = struct{}{}
		}
	}
	return models.SyncState{Pair: pair, TrackIDs: ids, SyncedAt: now.UTC()}
}
