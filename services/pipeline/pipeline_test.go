package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Mono-TV/upcoming-content/models"
	"github.com/Mono-TV/upcoming-content/services/metadata"
	"github.com/Mono-TV/upcoming-content/services/normalize"
	"github.com/Mono-TV/upcoming-content/services/overrides"
	"github.com/Mono-TV/upcoming-content/services/store"
	"github.com/Mono-TV/upcoming-content/services/youtube"
)

type fakeResolver struct {
	mu           sync.Mutex
	resolveCalls []string
	fetchCalls   []int64
	byTitle      map[string]*models.ResolvedCandidate
	byID         map[int64]*models.ResolvedCandidate
	err          error
}

func (f *fakeResolver) Resolve(_ context.Context, title, year string, _ models.MediaType) (*models.ResolvedCandidate, error) {
	f.mu.Lock()
	f.resolveCalls = append(f.resolveCalls, title)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if c, ok := f.byTitle[title]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, metadata.ErrNotFound
}

func (f *fakeResolver) FetchByID(_ context.Context, id int64, _ models.MediaType) (*models.ResolvedCandidate, error) {
	f.mu.Lock()
	f.fetchCalls = append(f.fetchCalls, id)
	f.mu.Unlock()
	if c, ok := f.byID[id]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, metadata.ErrNotFound
}

func (f *fakeResolver) Artwork() metadata.ArtworkPolicy {
	return metadata.DefaultArtworkPolicy()
}

type fakeTrailers struct {
	mu      sync.Mutex
	calls   []string
	trailer *youtube.Trailer
	err     error
}

func (f *fakeTrailers) FindTrailer(_ context.Context, title, _ string) (*youtube.Trailer, error) {
	f.mu.Lock()
	f.calls = append(f.calls, title)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.trailer, nil
}

type fakePosters struct {
	url string
	err error
}

func (f *fakePosters) Poster(context.Context, string) (string, error) {
	return f.url, f.err
}

type fakeWriter struct {
	mu        sync.Mutex
	written   map[models.ContentWindow][]models.MergedContentRecord
	summaries []models.RunSummary
	writeErr  error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{written: map[models.ContentWindow][]models.MergedContentRecord{}}
}

func (f *fakeWriter) Write(window models.ContentWindow, records []models.MergedContentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written[window] = records
	return nil
}

func (f *fakeWriter) Read(window models.ContentWindow) (store.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items, ok := f.written[window]
	if !ok {
		return store.Envelope{}, errors.New("no artifact")
	}
	return store.Envelope{Window: window, Count: len(items), Items: items}, nil
}

func (f *fakeWriter) WriteSummary(summary models.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, summary)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func emptyTable(t *testing.T) *overrides.Table {
	t.Helper()
	table, err := overrides.Parse([]byte(`{"corrections":{}}`), discard())
	if err != nil {
		t.Fatalf("parse empty table: %v", err)
	}
	return table
}

func kalkiCandidate() *models.ResolvedCandidate {
	return &models.ResolvedCandidate{
		Provider:  "tmdb",
		TMDBID:    603,
		IMDBID:    "tt1234567",
		MediaType: models.MediaTypeMovie,
		Year:      "2026",
		Overview:  "An epic.",
		Posters:   []models.PosterCandidate{{FilePath: "/en.jpg", Language: "en", VoteAverage: 5.0}},
		TrailerID: "off1",
		Platforms: []string{"Netflix"},
	}
}

func TestRunMergesScrapedAndResolved(t *testing.T) {
	resolver := &fakeResolver{byTitle: map[string]*models.ResolvedCandidate{"Kalki 2898 AD": kalkiCandidate()}}
	writer := newFakeWriter()
	p := New(emptyTable(t), resolver, nil, nil, writer, 2, discard())

	raws := []normalize.RawRecord{{
		Title:          "Kalki 2898 AD (Telugu)",
		RawReleaseDate: "27 Jun 2026",
		Platforms:      []string{"prime video"},
		SourceURL:      "https://source.test/kalki",
	}}
	summary, err := p.Run(context.Background(), models.WindowOTTUpcoming, raws)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Processed != 1 || summary.Resolved != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	items := writer.written[models.WindowOTTUpcoming]
	if len(items) != 1 {
		t.Fatalf("expected 1 written record, got %d", len(items))
	}
	got := items[0]
	// The scraped title survives verbatim after cleanup; the provider's
	// naming never replaces it.
	if got.Title != "Kalki 2898 AD" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if got.TMDBID != 603 || got.IMDBID != "tt1234567" {
		t.Fatalf("candidate fields missing: %+v", got)
	}
	// Scraped platform first, provider platform appended.
	if len(got.Platforms) != 2 || got.Platforms[0] != "Amazon Prime Video" || got.Platforms[1] != "Netflix" {
		t.Fatalf("unexpected platforms %v", got.Platforms)
	}
	if got.ReleaseDate != "27 Jun 2026" {
		t.Fatalf("scraped date must win, got %q", got.ReleaseDate)
	}
	if got.YouTubeID != "off1" || got.YouTubeURL != "https://www.youtube.com/watch?v=off1" {
		t.Fatalf("unexpected trailer fields %q %q", got.YouTubeID, got.YouTubeURL)
	}
	if got.PosterURLMedium == "" {
		t.Fatal("expected poster ladder from candidate artwork")
	}
	if summary.PlatformCounts["Netflix"] != 1 || summary.PlatformCounts["Amazon Prime Video"] != 1 {
		t.Fatalf("unexpected platform counts %v", summary.PlatformCounts)
	}
}

func TestRunOverrideForcesFetchByID(t *testing.T) {
	resolver := &fakeResolver{byID: map[int64]*models.ResolvedCandidate{777: {TMDBID: 777, MediaType: models.MediaTypeTV}}}
	writer := newFakeWriter()
	table, err := overrides.Parse([]byte(`{"corrections":{"Mirzapur":{"tmdb_id":777,"tmdb_media_type":"tv","reason":"remake collision"}}}`), discard())
	if err != nil {
		t.Fatalf("parse table: %v", err)
	}
	p := New(table, resolver, nil, nil, writer, 1, discard())

	_, err = p.Run(context.Background(), models.WindowOTTUpcoming, []normalize.RawRecord{{Title: "Mirzapur"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(resolver.resolveCalls) != 0 {
		t.Fatalf("override must skip search, got resolve calls %v", resolver.resolveCalls)
	}
	if len(resolver.fetchCalls) != 1 || resolver.fetchCalls[0] != 777 {
		t.Fatalf("expected fetch of 777, got %v", resolver.fetchCalls)
	}
	if writer.written[models.WindowOTTUpcoming][0].TMDBID != 777 {
		t.Fatal("forced record not written")
	}
}

func TestRunKeepsUnresolvedRecords(t *testing.T) {
	resolver := &fakeResolver{}
	writer := newFakeWriter()
	p := New(emptyTable(t), resolver, nil, nil, writer, 1, discard())

	summary, err := p.Run(context.Background(), models.WindowTheatreUpcoming, []normalize.RawRecord{{
		Title:          "Totally Unknown Film",
		SourceImageURL: "https://source.test/img.jpg",
	}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Resolved != 0 || summary.Processed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	got := writer.written[models.WindowTheatreUpcoming][0]
	if got.Title != "Totally Unknown Film" || got.TMDBID != 0 {
		t.Fatalf("unexpected record %+v", got)
	}
	// Last poster fallback: the scraped image.
	if got.PosterURLMedium != "https://source.test/img.jpg" {
		t.Fatalf("expected scraped image fallback, got %q", got.PosterURLMedium)
	}
}

func TestRunRejectsEmptyTitles(t *testing.T) {
	writer := newFakeWriter()
	p := New(emptyTable(t), &fakeResolver{}, nil, nil, writer, 1, discard())

	summary, err := p.Run(context.Background(), models.WindowOTTReleased, []normalize.RawRecord{
		{Title: "   (Hindi)  "},
		{Title: "Real Title"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Rejected != 1 || summary.Processed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRunDedupesRicherRecordWins(t *testing.T) {
	writer := newFakeWriter()
	p := New(emptyTable(t), &fakeResolver{}, nil, nil, writer, 1, discard())

	raws := []normalize.RawRecord{
		{Title: "Devara", SourceURL: "https://a.test"},
		{Title: "DEVARA", SourceURL: "https://b.test", Platforms: []string{"Netflix"}, RawReleaseDate: "2026-10-01"},
	}
	summary, err := p.Run(context.Background(), models.WindowOTTUpcoming, raws)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Duplicates != 1 || summary.Processed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	got := writer.written[models.WindowOTTUpcoming][0]
	if got.SourceURL != "https://b.test" {
		t.Fatalf("expected the richer observation to win, got %q", got.SourceURL)
	}
}

func TestRunTrailerFallbackOnlyWhenMissing(t *testing.T) {
	withTrailer := kalkiCandidate()
	without := &models.ResolvedCandidate{TMDBID: 9, MediaType: models.MediaTypeMovie, Year: "2026"}
	resolver := &fakeResolver{byTitle: map[string]*models.ResolvedCandidate{
		"Has Trailer": withTrailer,
		"No Trailer":  without,
	}}
	trailers := &fakeTrailers{trailer: &youtube.Trailer{VideoID: "ytfall00001", Title: "Official Trailer"}}
	writer := newFakeWriter()
	p := New(emptyTable(t), resolver, trailers, nil, writer, 1, discard())

	_, err := p.Run(context.Background(), models.WindowOTTUpcoming, []normalize.RawRecord{
		{Title: "Has Trailer"},
		{Title: "No Trailer"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(trailers.calls) != 1 || trailers.calls[0] != "No Trailer" {
		t.Fatalf("expected fallback only for the record without a trailer, got %v", trailers.calls)
	}
	for _, rec := range writer.written[models.WindowOTTUpcoming] {
		if rec.YouTubeID == "" {
			t.Fatalf("record %q left without trailer", rec.Title)
		}
	}
}

func TestRunPosterFallbackChain(t *testing.T) {
	cand := &models.ResolvedCandidate{TMDBID: 9, IMDBID: "tt0000009", MediaType: models.MediaTypeMovie}
	resolver := &fakeResolver{byTitle: map[string]*models.ResolvedCandidate{"Posterless": cand}}
	posters := &fakePosters{url: "https://imdb.test/poster.jpg"}
	writer := newFakeWriter()
	p := New(emptyTable(t), resolver, nil, posters, writer, 1, discard())

	_, err := p.Run(context.Background(), models.WindowOTTUpcoming, []normalize.RawRecord{{Title: "Posterless"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := writer.written[models.WindowOTTUpcoming][0]
	if got.PosterURLMedium != "https://imdb.test/poster.jpg" {
		t.Fatalf("expected imdb poster fallback, got %q", got.PosterURLMedium)
	}
}

func TestRunCountsPartialResolutions(t *testing.T) {
	cand := &models.ResolvedCandidate{TMDBID: 9, MediaType: models.MediaTypeMovie}
	resolver := &fakeResolver{byTitle: map[string]*models.ResolvedCandidate{"Bare Record": cand}}
	writer := newFakeWriter()
	p := New(emptyTable(t), resolver, nil, nil, writer, 1, discard())

	summary, err := p.Run(context.Background(), models.WindowOTTUpcoming, []normalize.RawRecord{{Title: "Bare Record"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Resolved != 1 || summary.PartiallyResolved != 1 {
		t.Fatalf("expected a partial resolution, got %+v", summary)
	}
}

func TestRunAbortsOnStoreFailure(t *testing.T) {
	writer := newFakeWriter()
	writer.writeErr = errors.New("disk full")
	p := New(emptyTable(t), &fakeResolver{}, nil, nil, writer, 1, discard())

	_, err := p.Run(context.Background(), models.WindowOTTUpcoming, []normalize.RawRecord{{Title: "Anything"}})
	var se *StageError
	if !errors.As(err, &se) || se.Kind != KindStoreWriteFailure {
		t.Fatalf("expected store write StageError, got %v", err)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	resolver := &fakeResolver{byTitle: map[string]*models.ResolvedCandidate{"Kalki 2898 AD": kalkiCandidate()}}
	writer := newFakeWriter()
	p := New(emptyTable(t), resolver, nil, nil, writer, 2, discard())
	p.now = func() time.Time { return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) }

	raws := []normalize.RawRecord{
		{Title: "Kalki 2898 AD", RawReleaseDate: "27 Jun 2026"},
		{Title: "Another Film", RawReleaseDate: "1 Oct 2026"},
	}
	if _, err := p.Run(context.Background(), models.WindowOTTUpcoming, raws); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first := writer.written[models.WindowOTTUpcoming]
	if _, err := p.Run(context.Background(), models.WindowOTTUpcoming, raws); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	second := writer.written[models.WindowOTTUpcoming]

	if len(first) != len(second) {
		t.Fatalf("run not idempotent: %d vs %d records", len(first), len(second))
	}
	for i := range first {
		if first[i].Title != second[i].Title || first[i].TMDBID != second[i].TMDBID {
			t.Fatalf("record %d differs between runs", i)
		}
	}
}

func TestRefreshTrailersFillsOnlyMissing(t *testing.T) {
	writer := newFakeWriter()
	writer.written[models.WindowOTTReleased] = []models.MergedContentRecord{
		{Title: "Keeps Existing", Window: models.WindowOTTReleased, YouTubeID: "keep0000001"},
		{Title: "Gets Filled", Window: models.WindowOTTReleased},
	}
	trailers := &fakeTrailers{trailer: &youtube.Trailer{VideoID: "newid000001"}}
	p := New(emptyTable(t), &fakeResolver{}, trailers, nil, writer, 1, discard())

	filled, err := p.RefreshTrailers(context.Background(), models.WindowOTTReleased)
	if err != nil {
		t.Fatalf("RefreshTrailers failed: %v", err)
	}
	if filled != 1 {
		t.Fatalf("expected 1 filled trailer, got %d", filled)
	}
	if len(trailers.calls) != 1 || trailers.calls[0] != "Gets Filled" {
		t.Fatalf("unexpected trailer lookups %v", trailers.calls)
	}
	var byTitle = map[string]string{}
	for _, rec := range writer.written[models.WindowOTTReleased] {
		byTitle[rec.Title] = rec.YouTubeID
	}
	if byTitle["Keeps Existing"] != "keep0000001" || byTitle["Gets Filled"] != "newid000001" {
		t.Fatalf("unexpected trailer state %v", byTitle)
	}
}
