package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/plexist/internal/models"
)

type fakeCatalog struct {
	isrcHits     map[string][]models.TrackRef
	mbidHits     map[string][]models.TrackRef
	metadataHits []models.TrackRef
	isrcErr      error
	mbidErr      error
	metadataErr  error
}

func (f *fakeCatalog) SearchByISRC(ctx context.Context, isrc string) ([]models.TrackRef, error) {
	if f.isrcErr != nil {
		return nil, f.isrcErr
	}
	return f.isrcHits[isrc], nil
}

func (f *fakeCatalog) SearchByMBID(ctx context.Context, mbid string) ([]models.TrackRef, error) {
	if f.mbidErr != nil {
		return nil, f.mbidErr
	}
	return f.mbidHits[mbid], nil
}

func (f *fakeCatalog) SearchByMetadata(ctx context.Context, title, artist, album string) ([]models.TrackRef, error) {
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	return f.metadataHits, nil
}

type fakeResolver struct {
	mbids map[string][]string
	err   error
}

func (f *fakeResolver) LookupISRC(ctx context.Context, isrc string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.mbids[isrc], nil
}

func ref(id string, t models.Track) models.TrackRef {
	return models.TrackRef{NativeID: id, Track: t}
}

func TestNormalize(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Bohemian Rhapsody", "bohemian rhapsody"},
		{"strips parenthetical", "Song (Remastered 2011)", "song"},
		{"strips brackets", "Song [Live]", "song"},
		{"strips feat credit", "Track feat. Someone Else", "track"},
		{"strips ft credit", "Track ft Someone", "track"},
		{"strips punctuation", "Don't Stop Me Now!", "dont stop me now"},
		{"collapses whitespace", "a   b\tc", "a b c"},
		{"empty", "", ""},
	}
	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			if got := Normalize(c.input); got != c.want {
				t.Errorf("Normalize(%q) = %q, want %q", c.input, got, c.want)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	tc := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "hello", "hello", 1},
		{"both empty", "", "", 1},
		{"one empty", "hello", "", 0},
		{"disjoint", "abc", "xyz", 0},
	}
	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			if got := similarity(c.a, c.b); got != c.want {
				t.Errorf("similarity(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
			}
		})
	}

	t.Run("single edit", func(t *testing.T) {
		got := similarity("kitten", "sitten")
		if got <= 0.8 || got >= 0.9 {
			t.Errorf("similarity(kitten, sitten) = %v, want 5/6", got)
		}
	})
}

func TestResolveISRC(t *testing.T) {
	track := models.Track{Title: "Song", Artist: "Artist", ISRC: "USUM71703861", Duration: 200}

	t.Run("single hit is exact", func(t *testing.T) {
		cat := &fakeCatalog{isrcHits: map[string][]models.TrackRef{
			"USUM71703861": {ref("plex-1", models.Track{Title: "Song", Duration: 200})},
		}}
		m := New(cat, Config{}, nil)
		res := m.Resolve(context.Background(), track)
		if res.Match.Confidence != models.ConfidenceExact {
			t.Fatalf("expected exact confidence, got %v", res.Match.Confidence)
		}
		if res.Match.NativeID != "plex-1" {
			t.Errorf("NativeID = %q, want plex-1", res.Match.NativeID)
		}
	})

	t.Run("tie broken by closest duration", func(t *testing.T) {
		cat := &fakeCatalog{isrcHits: map[string][]models.TrackRef{
			"USUM71703861": {
				ref("radio-edit", models.Track{Title: "Song", Duration: 180}),
				ref("album-cut", models.Track{Title: "Song", Duration: 201}),
			},
		}}
		m := New(cat, Config{}, nil)
		res := m.Resolve(context.Background(), track)
		if res.Match.NativeID != "album-cut" {
			t.Errorf("NativeID = %q, want album-cut", res.Match.NativeID)
		}
		if res.Match.Confidence != models.ConfidenceExact {
			t.Errorf("tie-broken ISRC hit should stay exact, got %v", res.Match.Confidence)
		}
	})

	t.Run("equal deltas keep first hit", func(t *testing.T) {
		cat := &fakeCatalog{isrcHits: map[string][]models.TrackRef{
			"USUM71703861": {
				ref("first", models.Track{Duration: 198}),
				ref("second", models.Track{Duration: 202}),
			},
		}}
		m := New(cat, Config{}, nil)
		res := m.Resolve(context.Background(), track)
		if res.Match.NativeID != "first" {
			t.Errorf("NativeID = %q, want first", res.Match.NativeID)
		}
	})

	t.Run("no hit falls back to metadata", func(t *testing.T) {
		cat := &fakeCatalog{
			metadataHits: []models.TrackRef{
				ref("plex-2", models.Track{Title: "Song", Artist: "Artist", Duration: 200}),
			},
		}
		m := New(cat, Config{}, nil)
		res := m.Resolve(context.Background(), track)
		if res.Match.Confidence != models.ConfidenceFuzzy {
			t.Fatalf("expected fuzzy fallback, got %v (reason %q)", res.Match.Confidence, res.Reason)
		}
	})

	t.Run("search failure degrades to unresolved", func(t *testing.T) {
		cat := &fakeCatalog{isrcErr: errors.New("boom")}
		m := New(cat, Config{}, nil)
		res := m.Resolve(context.Background(), track)
		if res.Match.Resolved() {
			t.Fatal("expected unresolved result")
		}
		if res.Reason != models.ReasonSearchFailed {
			t.Errorf("Reason = %q, want %q", res.Reason, models.ReasonSearchFailed)
		}
	})
}

func TestResolveMBID(t *testing.T) {
	track := models.Track{Title: "Song", Artist: "Artist", ISRC: "USUM71703861", Duration: 200}

	t.Run("missed isrc retried through musicbrainz ids", func(t *testing.T) {
		cat := &fakeCatalog{mbidHits: map[string][]models.TrackRef{
			"rec-1": {ref("plex-9", models.Track{Title: "Song", Duration: 200})},
		}}
		m := New(cat, Config{}, nil)
		m.SetISRCResolver(&fakeResolver{mbids: map[string][]string{
			"USUM71703861": {"rec-1", "rel-1"},
		}})
		res := m.Resolve(context.Background(), track)
		if res.Match.Confidence != models.ConfidenceExact {
			t.Fatalf("expected exact confidence, got %v (reason %q)", res.Match.Confidence, res.Reason)
		}
		if res.Match.NativeID != "plex-9" {
			t.Errorf("NativeID = %q, want plex-9", res.Match.NativeID)
		}
	})

	t.Run("stronger identifier wins over weaker", func(t *testing.T) {
		cat := &fakeCatalog{mbidHits: map[string][]models.TrackRef{
			"rec-1": {ref("recording-hit", models.Track{Duration: 200})},
			"rel-1": {ref("release-hit", models.Track{Duration: 200})},
		}}
		m := New(cat, Config{}, nil)
		m.SetISRCResolver(&fakeResolver{mbids: map[string][]string{
			"USUM71703861": {"rec-1", "rel-1"},
		}})
		res := m.Resolve(context.Background(), track)
		if res.Match.NativeID != "recording-hit" {
			t.Errorf("NativeID = %q, want recording-hit", res.Match.NativeID)
		}
	})

	t.Run("lookup failure falls back to metadata", func(t *testing.T) {
		cat := &fakeCatalog{metadataHits: []models.TrackRef{
			ref("plex-2", models.Track{Title: "Song", Artist: "Artist", Duration: 200}),
		}}
		m := New(cat, Config{}, nil)
		m.SetISRCResolver(&fakeResolver{err: errors.New("service unavailable")})
		res := m.Resolve(context.Background(), track)
		if res.Match.Confidence != models.ConfidenceFuzzy {
			t.Fatalf("expected fuzzy fallback, got %v", res.Match.Confidence)
		}
	})

	t.Run("direct isrc hit skips the stage", func(t *testing.T) {
		cat := &fakeCatalog{
			isrcHits: map[string][]models.TrackRef{
				"USUM71703861": {ref("direct", models.Track{Duration: 200})},
			},
			mbidHits: map[string][]models.TrackRef{
				"rec-1": {ref("indirect", models.Track{Duration: 200})},
			},
		}
		m := New(cat, Config{}, nil)
		m.SetISRCResolver(&fakeResolver{mbids: map[string][]string{
			"USUM71703861": {"rec-1"},
		}})
		res := m.Resolve(context.Background(), track)
		if res.Match.NativeID != "direct" {
			t.Errorf("NativeID = %q, want direct", res.Match.NativeID)
		}
	})

	t.Run("no resolver keeps identifier miss unresolved", func(t *testing.T) {
		m := New(&fakeCatalog{}, Config{}, nil)
		res := m.Resolve(context.Background(), track)
		if res.Match.Resolved() {
			t.Fatal("expected unresolved result")
		}
		if res.Reason != models.ReasonNoISRCMatch {
			t.Errorf("Reason = %q, want %q", res.Reason, models.ReasonNoISRCMatch)
		}
	})
}

func TestResolveMetadata(t *testing.T) {
	track := models.Track{Title: "Bohemian Rhapsody", Artist: "Queen", Album: "A Night at the Opera", Duration: 354}

	t.Run("clear winner accepted", func(t *testing.T) {
		cat := &fakeCatalog{metadataHits: []models.TrackRef{
			ref("good", models.Track{Title: "Bohemian Rhapsody", Artist: "Queen", Album: "A Night at the Opera", Duration: 355}),
			ref("bad", models.Track{Title: "Another One Bites the Dust", Artist: "Queen", Album: "The Game", Duration: 215}),
		}}
		m := New(cat, Config{}, nil)
		res := m.Resolve(context.Background(), track)
		if res.Match.NativeID != "good" {
			t.Fatalf("NativeID = %q, want good", res.Match.NativeID)
		}
		if res.Match.Confidence != models.ConfidenceFuzzy {
			t.Errorf("Confidence = %v, want fuzzy", res.Match.Confidence)
		}
	})

	t.Run("below threshold rejected", func(t *testing.T) {
		cat := &fakeCatalog{metadataHits: []models.TrackRef{
			ref("bad", models.Track{Title: "Completely Different", Artist: "Nobody", Album: "Nothing", Duration: 100}),
		}}
		m := New(cat, Config{}, nil)
		res := m.Resolve(context.Background(), track)
		if res.Match.Resolved() {
			t.Fatal("expected rejection below threshold")
		}
		if res.Reason != models.ReasonLowConfidence {
			t.Errorf("Reason = %q, want %q", res.Reason, models.ReasonLowConfidence)
		}
	})

	t.Run("ambiguous candidates rejected", func(t *testing.T) {
		// Two near-identical catalog entries score within the margin of
		// each other, so neither may win.
		cat := &fakeCatalog{metadataHits: []models.TrackRef{
			ref("a", models.Track{Title: "Bohemian Rhapsody", Artist: "Queen", Album: "A Night at the Opera", Duration: 354}),
			ref("b", models.Track{Title: "Bohemian Rhapsody", Artist: "Queen", Album: "A Night at the Opera", Duration: 353}),
		}}
		m := New(cat, Config{}, nil)
		res := m.Resolve(context.Background(), track)
		if res.Match.Resolved() {
			t.Fatalf("expected ambiguity rejection, got match %q", res.Match.NativeID)
		}
	})

	t.Run("no candidates", func(t *testing.T) {
		m := New(&fakeCatalog{}, Config{}, nil)
		res := m.Resolve(context.Background(), track)
		if res.Match.Resolved() {
			t.Fatal("expected unresolved result")
		}
	})
}

func scoreNear(got, want float64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}

func TestScore(t *testing.T) {
	m := New(&fakeCatalog{}, Config{}, nil)

	t.Run("identical tracks score 1", func(t *testing.T) {
		track := models.Track{Title: "Song", Artist: "Artist", Album: "Album", Duration: 200}
		if got := m.Score(track, track); !scoreNear(got, 1) {
			t.Errorf("Score = %v, want 1", got)
		}
	})

	t.Run("duration component decays inside the window", func(t *testing.T) {
		a := models.Track{Title: "Song", Artist: "Artist", Album: "Album", Duration: 200}
		for _, tc := range []struct {
			diff int
			want float64
		}{
			{1, 0.99},
			{2, 0.98},
			{4, 0.96},
			{5, 0.95},
		} {
			b := a
			b.Duration = a.Duration + tc.diff
			if got := m.Score(a, b); !scoreNear(got, tc.want) {
				t.Errorf("Score at %ds apart = %v, want %v", tc.diff, got, tc.want)
			}
		}
	})

	t.Run("duration outside window loses its weight", func(t *testing.T) {
		a := models.Track{Title: "Song", Artist: "Artist", Album: "Album", Duration: 200}
		b := a
		b.Duration = 230
		if got := m.Score(a, b); !scoreNear(got, 0.95) {
			t.Errorf("Score = %v, want 0.95", got)
		}
	})

	t.Run("remaster suffix does not penalize", func(t *testing.T) {
		a := models.Track{Title: "Song", Artist: "Artist", Album: "Album", Duration: 200}
		b := a
		b.Title = "Song (2011 Remaster)"
		if got := m.Score(a, b); !scoreNear(got, 1) {
			t.Errorf("Score = %v, want 1", got)
		}
	})
}

func TestResolveAll(t *testing.T) {
	cat := &fakeCatalog{
		isrcHits: map[string][]models.TrackRef{
			"ISRC1": {ref("one", models.Track{Duration: 100})},
		},
	}
	m := New(cat, Config{}, nil)

	tracks := []models.Track{
		{Title: "Hit", ISRC: "ISRC1", Duration: 100},
		{Title: "Miss", ISRC: "ISRC2", Duration: 100},
	}
	results := m.ResolveAll(context.Background(), tracks)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Match.Resolved() {
		t.Error("first track should resolve by ISRC")
	}
	if results[1].Match.Resolved() {
		t.Error("second track should be unresolved")
	}
}
