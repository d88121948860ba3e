package pipeline

import (
	"testing"
	"time"

	"github.com/Mono-TV/upcoming-content/models"
	"github.com/Mono-TV/upcoming-content/services/metadata"
)

func TestMergeRecordScrapedFieldsWin(t *testing.T) {
	rec := models.SourceRecord{
		Title:          "Local Title",
		Window:         models.WindowTheatreCurrent,
		RawReleaseDate: "27 Jun 2026",
		ReleaseDate:    time.Date(2026, 6, 27, 0, 0, 0, 0, time.UTC),
		VideoFormats:   []string{"IMAX", "3D"},
		Deeplinks:      map[string]string{"Netflix": "https://deep.test/1"},
	}
	cand := &models.ResolvedCandidate{
		TMDBID:      42,
		MediaType:   models.MediaTypeMovie,
		ReleaseDate: "2026-07-15",
		Overview:    "From the provider.",
	}

	out := mergeRecord(rec, cand, metadata.DefaultArtworkPolicy())
	if out.Title != "Local Title" {
		t.Fatalf("scraped title must win, got %q", out.Title)
	}
	if out.ReleaseDate != "27 Jun 2026" {
		t.Fatalf("scraped date must win, got %q", out.ReleaseDate)
	}
	if !out.SortDate.Equal(rec.ReleaseDate) {
		t.Fatalf("sort date must come from the parsed scrape, got %v", out.SortDate)
	}
	if len(out.VideoFormats) != 2 || out.Deeplinks["Netflix"] == "" {
		t.Fatalf("scraped extras lost: %+v", out)
	}
	if out.Overview != "From the provider." {
		t.Fatal("candidate must fill fields the scrape lacks")
	}
}

func TestMergeRecordProviderDateFillsGap(t *testing.T) {
	rec := models.SourceRecord{Title: "X", Window: models.WindowOTTUpcoming, RawReleaseDate: "Coming Soon", DateUnparsed: true}
	cand := &models.ResolvedCandidate{TMDBID: 1, ReleaseDate: "2026-10-05"}

	out := mergeRecord(rec, cand, metadata.DefaultArtworkPolicy())
	if out.ReleaseDate != "Coming Soon" {
		t.Fatalf("raw scraped date must be displayed, got %q", out.ReleaseDate)
	}
	if out.DateUnparsed || !out.SortDate.Equal(time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("provider date must back the sort key, got unparsed=%v sort=%v", out.DateUnparsed, out.SortDate)
	}
}

func TestMergeRecordNilCandidate(t *testing.T) {
	rec := models.SourceRecord{Title: "Alone", Window: models.WindowOTTReleased, SourceURL: "https://s.test"}
	out := mergeRecord(rec, nil, metadata.DefaultArtworkPolicy())
	if out.Title != "Alone" || out.TMDBID != 0 || !out.DateUnparsed {
		t.Fatalf("unexpected record %+v", out)
	}
}

func TestMergeRecordArtworkGalleryCapped(t *testing.T) {
	cand := &models.ResolvedCandidate{TMDBID: 1}
	for i := 0; i < 10; i++ {
		cand.Posters = append(cand.Posters, models.PosterCandidate{
			FilePath: "/p" + string(rune('a'+i)) + ".jpg", Language: "en", VoteAverage: float64(i),
		})
	}
	out := mergeRecord(models.SourceRecord{Title: "X", Window: models.WindowOTTReleased}, cand, metadata.DefaultArtworkPolicy())
	if len(out.AllPosters) != maxGalleryImages {
		t.Fatalf("expected gallery capped at %d, got %d", maxGalleryImages, len(out.AllPosters))
	}
	if out.Posters == nil || out.PosterURLMedium == "" || out.PosterLanguage != "en" {
		t.Fatalf("primary poster fields missing: %+v", out)
	}
	// Best poster is the highest-rated English one.
	if out.Posters.Original != "https://image.tmdb.org/t/p/original/pj.jpg" {
		t.Fatalf("unexpected best poster %q", out.Posters.Original)
	}
}

func TestUnionPlatforms(t *testing.T) {
	got := unionPlatforms([]string{"Netflix", "Zee5"}, []string{"Zee5", "Sony LIV"})
	want := []string{"Netflix", "Zee5", "Sony LIV"}
	if len(got) != len(want) {
		t.Fatalf("unexpected union %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
