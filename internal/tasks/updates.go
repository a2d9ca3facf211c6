package tasks

import (
	"fmt"

	"github.com/desertthunder/plexist/internal/models"
	"github.com/desertthunder/plexist/internal/shared"
)

// ProgressUpdate represents a progress event during a sync cycle.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Pair    models.PairKey // Pair this update belongs to
	Phase   Phase          // Current state-machine phase
	Step    int            // Current step number within phase
	Total   int            // Total steps in this phase
	Message string         // Human-readable message for display
	Data    any            // Optional phase-specific data for advanced UIs
}

// Phase enumerates the per-playlist sync state machine.
type Phase int

const (
	Idle Phase = iota
	FetchingSource
	MatchingTracks
	FetchingDestination
	Reconciling
	Applying
	PersistingState
	SyncingLiked
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case FetchingSource:
		return "fetching_source"
	case MatchingTracks:
		return "matching_tracks"
	case FetchingDestination:
		return "fetching_destination"
	case Reconciling:
		return "reconciling"
	case Applying:
		return "applying"
	case PersistingState:
		return "persisting_state"
	case SyncingLiked:
		return "syncing_liked"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

func fetchSourceUpdate(pair models.PairKey, name string) ProgressUpdate {
	return ProgressUpdate{
		Pair:    pair,
		Phase:   FetchingSource,
		Message: fmt.Sprintf("Fetching source playlist (%s)...", name),
		Data:    name,
	}
}

func matchingUpdate(pair models.PairKey, step, total int, track *models.Track) ProgressUpdate {
	if track == nil {
		return ProgressUpdate{
			Pair:    pair,
			Phase:   MatchingTracks,
			Total:   total,
			Message: fmt.Sprintf("Matching %d tracks...", total),
		}
	}
	return ProgressUpdate{
		Pair:  pair,
		Phase: MatchingTracks,
		Step:  step,
		Total: total,
		Message: fmt.Sprintf("[%d/%d] %s - %s (%s)", step, total,
			track.Artist, track.Title, shared.FormatDuration(track.Duration)),
	}
}

func fetchDestUpdate(pair models.PairKey, name string) ProgressUpdate {
	return ProgressUpdate{
		Pair:    pair,
		Phase:   FetchingDestination,
		Message: fmt.Sprintf("Fetching destination playlist (%s)...", name),
	}
}

func reconcilingUpdate(pair models.PairKey) ProgressUpdate {
	return ProgressUpdate{
		Pair:    pair,
		Phase:   Reconciling,
		Message: "Computing edit plan...",
	}
}

func applyingUpdate(pair models.PairKey, plan models.EditPlan) ProgressUpdate {
	return ProgressUpdate{
		Pair:  pair,
		Phase: Applying,
		Message: fmt.Sprintf("Applying edits (+%d -%d, reorder=%t)...",
			len(plan.Additions), len(plan.Removals), plan.RewriteOrder),
		Data: plan,
	}
}

func persistingUpdate(pair models.PairKey) ProgressUpdate {
	return ProgressUpdate{
		Pair:    pair,
		Phase:   PersistingState,
		Message: "Recording sync state...",
	}
}

func doneUpdate(pair models.PairKey, added, removed, unresolved int) ProgressUpdate {
	return ProgressUpdate{
		Pair:    pair,
		Phase:   Done,
		Message: fmt.Sprintf("Done: +%d -%d, %d unresolved", added, removed, unresolved),
		Data:    [3]int{added, removed, unresolved},
	}
}

func failedUpdate(pair models.PairKey, err error) ProgressUpdate {
	return ProgressUpdate{
		Pair:    pair,
		Phase:   Failed,
		Message: fmt.Sprintf("Failed: %v", err),
	}
}

func likedUpdate(service string, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncingLiked,
		Total:   total,
		Message: fmt.Sprintf("Syncing %d liked tracks from %s...", total, service),
	}
}
