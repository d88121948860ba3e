package metadata

import (
	"testing"

	"github.com/Mono-TV/upcoming-content/models"
)

func TestArtworkPreferenceBeatsQuality(t *testing.T) {
	policy := ArtworkPolicy{Preferred: []string{"hi", "en", "none"}}
	candidates := []models.PosterCandidate{
		{FilePath: "/a.jpg", Language: "zh", VoteAverage: 9.0},
		{FilePath: "/b.jpg", Language: "hi", VoteAverage: 6.0},
	}

	best, ok := policy.Best(candidates)
	if !ok {
		t.Fatal("expected a best candidate")
	}
	if best.FilePath != "/b.jpg" {
		t.Fatalf("expected preferred-language poster /b.jpg, got %s", best.FilePath)
	}
}

func TestArtworkQualityBreaksTiesWithinLanguage(t *testing.T) {
	policy := DefaultArtworkPolicy()
	candidates := []models.PosterCandidate{
		{FilePath: "/low.jpg", Language: "en", VoteAverage: 4.2},
		{FilePath: "/high.jpg", Language: "en", VoteAverage: 7.8},
	}

	best, _ := policy.Best(candidates)
	if best.FilePath != "/high.jpg" {
		t.Fatalf("expected the higher-rated poster, got %s", best.FilePath)
	}
}

func TestArtworkUntaggedMatchesNoneSlot(t *testing.T) {
	policy := ArtworkPolicy{Preferred: []string{"none", "en"}}
	candidates := []models.PosterCandidate{
		{FilePath: "/en.jpg", Language: "en", VoteAverage: 9.9},
		{FilePath: "/untagged.jpg", Language: "", VoteAverage: 1.0},
	}

	best, _ := policy.Best(candidates)
	if best.FilePath != "/untagged.jpg" {
		t.Fatalf("expected untagged poster to rank first, got %s", best.FilePath)
	}
}

func TestArtworkAvoidedLanguagesRankLast(t *testing.T) {
	policy := ArtworkPolicy{Preferred: []string{"en"}}
	candidates := []models.PosterCandidate{
		{FilePath: "/fr.jpg", Language: "fr", VoteAverage: 9.5},
		{FilePath: "/zh.jpg", Language: "zh", VoteAverage: 8.0},
		{FilePath: "/en.jpg", Language: "en", VoteAverage: 2.0},
	}

	ranked := policy.Rank(candidates)
	want := []string{"/en.jpg", "/fr.jpg", "/zh.jpg"}
	for i, fp := range want {
		if ranked[i].FilePath != fp {
			t.Fatalf("position %d: expected %s, got %s", i, fp, ranked[i].FilePath)
		}
	}
}

func TestArtworkRankDeterministic(t *testing.T) {
	policy := DefaultArtworkPolicy()
	candidates := []models.PosterCandidate{
		{FilePath: "/b.jpg", Language: "en", VoteAverage: 5.0},
		{FilePath: "/a.jpg", Language: "en", VoteAverage: 5.0},
	}

	first := policy.Rank(candidates)
	second := policy.Rank([]models.PosterCandidate{candidates[1], candidates[0]})
	for i := range first {
		if first[i].FilePath != second[i].FilePath {
			t.Fatalf("ordering depends on input order at position %d", i)
		}
	}
	if first[0].FilePath != "/a.jpg" {
		t.Fatalf("expected FilePath tie-break, got %s first", first[0].FilePath)
	}
}

func TestPosterSetLadder(t *testing.T) {
	set := PosterSet(models.PosterCandidate{FilePath: "/x.jpg", Language: "en"})
	if set.Thumbnail != "https://image.tmdb.org/t/p/w92/x.jpg" {
		t.Errorf("unexpected thumbnail url: %s", set.Thumbnail)
	}
	if set.Original != "https://image.tmdb.org/t/p/original/x.jpg" {
		t.Errorf("unexpected original url: %s", set.Original)
	}
	if set.Language != "en" {
		t.Errorf("expected language en, got %q", set.Language)
	}
}
