// Package pipeline orchestrates one enrichment run: normalize the scraped
// records, collapse duplicates, resolve each title against the metadata
// provider under a bounded worker pool, merge, and write the window
// artifact. Per-record failures degrade that record; only a failed artifact
// write fails the run.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/Mono-TV/upcoming-content/models"
	"github.com/Mono-TV/upcoming-content/services/imdb"
	"github.com/Mono-TV/upcoming-content/services/metadata"
	"github.com/Mono-TV/upcoming-content/services/normalize"
	"github.com/Mono-TV/upcoming-content/services/overrides"
	"github.com/Mono-TV/upcoming-content/services/store"
	"github.com/Mono-TV/upcoming-content/services/youtube"
)

// Resolver is the metadata lookup surface the pipeline needs.
type Resolver interface {
	Resolve(ctx context.Context, title, year string, hint models.MediaType) (*models.ResolvedCandidate, error)
	FetchByID(ctx context.Context, tmdbID int64, mediaType models.MediaType) (*models.ResolvedCandidate, error)
	Artwork() metadata.ArtworkPolicy
}

// TrailerFinder is the trailer fallback, consulted when the metadata record
// has no trailer.
type TrailerFinder interface {
	FindTrailer(ctx context.Context, title, year string) (*youtube.Trailer, error)
}

// PosterFinder is the last poster fallback, consulted by IMDb id.
type PosterFinder interface {
	Poster(ctx context.Context, imdbID string) (string, error)
}

// ArtifactWriter persists window artifacts and run summaries.
type ArtifactWriter interface {
	Write(window models.ContentWindow, records []models.MergedContentRecord) error
	Read(window models.ContentWindow) (store.Envelope, error)
	WriteSummary(summary models.RunSummary) error
}

type Pipeline struct {
	overrides *overrides.Table
	resolver  Resolver
	trailers  TrailerFinder
	posters   PosterFinder
	writer    ArtifactWriter
	workers   int
	log       *slog.Logger

	// now is swappable so dedup date proximity is testable.
	now func() time.Time
}

// New wires a pipeline. trailers and posters may be nil, disabling those
// fallbacks.
func New(table *overrides.Table, resolver Resolver, trailers TrailerFinder, posters PosterFinder, writer ArtifactWriter, workers int, log *slog.Logger) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = slog.Default().With("component", "pipeline")
	}
	if table == nil {
		table = &overrides.Table{}
	}
	return &Pipeline{
		overrides: table,
		resolver:  resolver,
		trailers:  trailers,
		posters:   posters,
		writer:    writer,
		workers:   workers,
		log:       log,
		now:       time.Now,
	}
}

// Run executes one full enrichment pass for a window.
func (p *Pipeline) Run(ctx context.Context, window models.ContentWindow, raws []normalize.RawRecord) (models.RunSummary, error) {
	started := p.now()
	summary := models.RunSummary{
		RunID:     uuid.NewString(),
		Window:    window,
		StartedAt: started,
	}
	log := p.log.With("run_id", summary.RunID, "window", window)
	log.Info("run started", "records", len(raws))

	var records []models.SourceRecord
	for _, raw := range raws {
		rec, err := normalize.Normalize(raw, window)
		if err != nil {
			summary.Rejected++
			log.Warn("record rejected", "error", stageErr("normalize", KindRejectedInput, raw.Title, err))
			continue
		}
		records = append(records, rec)
	}

	records, dupes := p.dedupe(records, log)
	summary.Duplicates = dupes
	summary.Processed = len(records)

	merged := make([]models.MergedContentRecord, len(records))
	var mu sync.Mutex

	workers := pool.New().WithMaxGoroutines(p.workers)
	for i, rec := range records {
		workers.Go(func() {
			out, resolved, partial := p.enrich(ctx, rec, log)
			mu.Lock()
			merged[i] = out
			if resolved {
				summary.Resolved++
			}
			if partial {
				summary.PartiallyResolved++
			}
			mu.Unlock()
		})
	}
	workers.Wait()

	summary.PlatformCounts = platformCounts(merged)

	if err := p.writer.Write(window, merged); err != nil {
		werr := stageErr("store", KindStoreWriteFailure, "", err)
		log.Error("artifact write failed", "error", werr)
		return summary, werr
	}

	summary.ElapsedSeconds = p.now().Sub(started).Seconds()
	if err := p.writer.WriteSummary(summary); err != nil {
		log.Warn("summary write failed", "error", err)
	}
	log.Info("run finished",
		"processed", summary.Processed,
		"resolved", summary.Resolved,
		"partial", summary.PartiallyResolved,
		"rejected", summary.Rejected,
		"duplicates", summary.Duplicates,
		"elapsed_seconds", summary.ElapsedSeconds)
	return summary, nil
}

// dedupe collapses records sharing a folded title. The richer observation
// wins; on a tie the one whose date sits closest to the run date does, since
// stale listings tend to carry last season's dates.
func (p *Pipeline) dedupe(records []models.SourceRecord, log *slog.Logger) ([]models.SourceRecord, int) {
	byTitle := make(map[string]int, len(records))
	out := records[:0]
	dupes := 0
	for _, rec := range records {
		key := normalize.Fold(rec.Title)
		idx, seen := byTitle[key]
		if !seen {
			byTitle[key] = len(out)
			out = append(out, rec)
			continue
		}
		dupes++
		kept := out[idx]
		if p.prefer(rec, kept) {
			log.Warn("duplicate title, replacing earlier record",
				"title", rec.Title, "kept_source", rec.SourceURL, "dropped_source", kept.SourceURL)
			out[idx] = rec
		} else {
			log.Warn("duplicate title, keeping earlier record",
				"title", kept.Title, "kept_source", kept.SourceURL, "dropped_source", rec.SourceURL)
		}
	}
	return out, dupes
}

// prefer reports whether a should replace b as the kept observation.
func (p *Pipeline) prefer(a, b models.SourceRecord) bool {
	if ac, bc := a.ScrapedFieldCount(), b.ScrapedFieldCount(); ac != bc {
		return ac > bc
	}
	now := p.now()
	return dateProximity(a, now) < dateProximity(b, now)
}

func dateProximity(rec models.SourceRecord, now time.Time) time.Duration {
	if rec.DateUnparsed || rec.ReleaseDate.IsZero() {
		return 1<<63 - 1
	}
	d := now.Sub(rec.ReleaseDate)
	if d < 0 {
		d = -d
	}
	return d
}

// enrich resolves and merges one record. Returns the merged record plus
// whether resolution succeeded and whether the result is missing a poster or
// trailer.
func (p *Pipeline) enrich(ctx context.Context, rec models.SourceRecord, log *slog.Logger) (models.MergedContentRecord, bool, bool) {
	cand, err := p.resolve(ctx, rec)
	if err != nil {
		kind := classifyResolveError(err)
		log.Warn("resolution failed, keeping scraped data only",
			"error", stageErr("resolve", kind, rec.Title, err))
		cand = nil
	}

	out := mergeRecord(rec, cand, p.resolver.Artwork())

	if out.YouTubeID == "" && p.trailers != nil {
		if trailer, terr := p.trailers.FindTrailer(ctx, out.Title, out.Year); terr == nil {
			setTrailer(&out, trailer.VideoID, trailer.Title)
		} else if !errors.Is(terr, youtube.ErrNoTrailer) {
			log.Warn("trailer fallback failed", "error", stageErr("trailer", KindProviderUnavailable, rec.Title, terr))
		}
	}

	if out.PosterURLMedium == "" {
		p.fallbackPoster(ctx, &out, log)
	}

	resolved := cand != nil
	partial := resolved && (out.PosterURLMedium == "" || out.YouTubeID == "")
	return out, resolved, partial
}

// resolve picks the lookup strategy: a manual override with a forced TMDB id
// skips search entirely; otherwise search with whatever the scrape knows.
func (p *Pipeline) resolve(ctx context.Context, rec models.SourceRecord) (*models.ResolvedCandidate, error) {
	entry, forced := p.overrides.Lookup(rec.Title)
	if forced && entry.TMDBID != 0 {
		cand, err := p.resolver.FetchByID(ctx, entry.TMDBID, entry.TMDBMediaType)
		if err != nil {
			return nil, err
		}
		if cand.IMDBID == "" {
			cand.IMDBID = entry.IMDBID
		}
		return cand, nil
	}

	year := ""
	if forced && entry.Year != "" {
		year = entry.Year
	} else if !rec.DateUnparsed && !rec.ReleaseDate.IsZero() {
		year = rec.ReleaseDate.Format("2006")
	}

	var hint models.MediaType
	if rec.Window.Theatrical() {
		hint = models.MediaTypeMovie
	}

	cand, err := p.resolver.Resolve(ctx, rec.Title, year, hint)
	if err != nil {
		return nil, err
	}
	if forced && cand.IMDBID == "" {
		cand.IMDBID = entry.IMDBID
	}
	return cand, nil
}

// fallbackPoster runs the artwork fallback chain: IMDb lookup, then the
// scraped source image.
func (p *Pipeline) fallbackPoster(ctx context.Context, out *models.MergedContentRecord, log *slog.Logger) {
	if p.posters != nil && out.IMDBID != "" {
		url, err := p.posters.Poster(ctx, out.IMDBID)
		if err == nil && url != "" {
			out.PosterURLMedium = url
			out.PosterURLLarge = url
			return
		}
		if err != nil && !errors.Is(err, imdb.ErrNoPoster) {
			log.Debug("imdb poster fallback failed", "imdb_id", out.IMDBID, "error", err)
		}
	}
	if out.SourceImageURL != "" {
		out.PosterURLMedium = out.SourceImageURL
		out.PosterURLLarge = out.SourceImageURL
	}
}

func classifyResolveError(err error) ErrorKind {
	if errors.Is(err, metadata.ErrNotFound) {
		return KindResolutionMiss
	}
	if metadata.IsThrottled(err) {
		return KindProviderThrottled
	}
	return KindProviderUnavailable
}

// RefreshTrailers rewrites an existing window artifact, filling trailers for
// records that lack one. Nothing else in the artifact changes.
func (p *Pipeline) RefreshTrailers(ctx context.Context, window models.ContentWindow) (int, error) {
	if p.trailers == nil {
		return 0, errors.New("pipeline: no trailer client configured")
	}
	doc, err := p.writer.Read(window)
	if err != nil {
		return 0, err
	}

	filled := 0
	for i := range doc.Items {
		item := &doc.Items[i]
		restoreSortFields(item)
		if item.YouTubeID != "" {
			continue
		}
		trailer, terr := p.trailers.FindTrailer(ctx, item.Title, item.Year)
		if terr != nil {
			if !errors.Is(terr, youtube.ErrNoTrailer) {
				p.log.Warn("trailer refresh failed", "title", item.Title, "error", terr)
			}
			continue
		}
		setTrailer(item, trailer.VideoID, trailer.Title)
		filled++
	}

	if err := p.writer.Write(window, doc.Items); err != nil {
		return filled, stageErr("store", KindStoreWriteFailure, "", err)
	}
	p.log.Info("trailer refresh finished", "window", window, "filled", filled, "records", len(doc.Items))
	return filled, nil
}

// restoreSortFields re-derives the sort keys lost on artifact round-trip,
// since SortDate is not part of the frontend contract.
func restoreSortFields(item *models.MergedContentRecord) {
	if item.ReleaseDate == "" {
		item.DateUnparsed = true
		return
	}
	if t, ok := normalize.ParseDate(item.ReleaseDate); ok {
		item.SortDate = t
		return
	}
	item.DateUnparsed = true
}

func platformCounts(records []models.MergedContentRecord) map[string]int {
	counts := make(map[string]int)
	for _, rec := range records {
		for _, platform := range rec.Platforms {
			counts[platform]++
		}
	}
	if len(counts) == 0 {
		return nil
	}
	return counts
}
