package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Mono-TV/upcoming-content/models"
	"github.com/Mono-TV/upcoming-content/services/normalize"
)

// ErrNotFound is returned when no usable candidate exists for a title.
// Cached like a success so reruns don't repeat doomed searches.
var ErrNotFound = errors.New("metadata: no matching title")

// Config carries what the resolver needs from the runtime configuration.
type Config struct {
	APIKey        string
	Language      string
	Region        string
	BaseURL       string
	CacheDir      string
	CacheTTLHours int
	NoCache       bool
	RatePerSec    float64
	HTTPClient    *http.Client
	Artwork       ArtworkPolicy
	Logger        *slog.Logger
}

// Service resolves titles against TMDB with a persistent response cache and
// single-in-flight coalescing per resolution key.
type Service struct {
	tmdb    *tmdbClient
	cache   *fileCache
	artwork ArtworkPolicy
	log     *slog.Logger

	inflightMu sync.Mutex
	inflight   map[string]*inflightResolve
}

type inflightResolve struct {
	wg     sync.WaitGroup
	result *models.ResolvedCandidate
	err    error
}

func NewService(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = slog.Default().With("component", "metadata")
	}
	cache := newFileCache(cfg.CacheDir, cfg.CacheTTLHours)
	if cfg.NoCache {
		cache = newDisabledCache()
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	if cfg.RatePerSec <= 0 {
		limiter = rate.NewLimiter(4, 4)
	}
	artwork := cfg.Artwork
	if len(artwork.Preferred) == 0 {
		artwork = DefaultArtworkPolicy()
	}
	return &Service{
		tmdb:     newTMDBClient(cfg.APIKey, cfg.Language, cfg.Region, cfg.BaseURL, cfg.HTTPClient, limiter),
		cache:    cache,
		artwork:  artwork,
		log:      log,
		inflight: make(map[string]*inflightResolve),
	}
}

// Artwork exposes the active selection policy so the merger applies the same
// ordering to fallback-sourced candidates.
func (s *Service) Artwork() ArtworkPolicy {
	return s.artwork
}

// ClearCache drops all cached provider responses.
func (s *Service) ClearCache() error {
	return s.cache.clear()
}

// cachedResolution is the cache entry shape; NotFound entries are cached too
// so repeat misses stay off the network.
type cachedResolution struct {
	NotFound  bool                      `json:"not_found,omitempty"`
	Candidate *models.ResolvedCandidate `json:"candidate,omitempty"`
}

// Resolve searches for a title (year and media-type hint disambiguate
// remakes and regional versions) and assembles a full candidate. Concurrent
// calls with the same normalized (title, year) share one underlying lookup.
func (s *Service) Resolve(ctx context.Context, title, year string, hint models.MediaType) (*models.ResolvedCandidate, error) {
	if !s.tmdb.isConfigured() {
		return nil, fmt.Errorf("metadata: tmdb api key not configured")
	}
	key := cacheKey("tmdb", "resolve", normalize.Fold(title), year, string(hint))

	s.inflightMu.Lock()
	if existing, ok := s.inflight[key]; ok {
		s.inflightMu.Unlock()
		existing.wg.Wait()
		return cloneCandidate(existing.result), existing.err
	}
	flight := &inflightResolve{}
	flight.wg.Add(1)
	s.inflight[key] = flight
	s.inflightMu.Unlock()

	flight.result, flight.err = s.resolveUncoalesced(ctx, key, title, year, hint)
	flight.wg.Done()

	s.inflightMu.Lock()
	delete(s.inflight, key)
	s.inflightMu.Unlock()

	return cloneCandidate(flight.result), flight.err
}

func (s *Service) resolveUncoalesced(ctx context.Context, key, title, year string, hint models.MediaType) (*models.ResolvedCandidate, error) {
	var cached cachedResolution
	if ok, _ := s.cache.get(key, &cached); ok {
		if cached.NotFound {
			return nil, ErrNotFound
		}
		return cached.Candidate, nil
	}

	results, err := s.search(ctx, title, year, hint)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		_ = s.cache.set(key, cachedResolution{NotFound: true})
		return nil, ErrNotFound
	}

	best := pickBestResult(results, year, hint)
	for _, r := range results {
		if r.ID != best.ID {
			s.log.Debug("discarded search candidate",
				"title", title, "candidate_id", r.ID, "candidate_title", r.displayTitle(), "candidate_year", r.year())
		}
	}

	cand := s.fetchCandidate(ctx, best.ID, best.MediaType)
	if cand.Year == "" {
		cand.Year = best.year()
	}
	_ = s.cache.set(key, cachedResolution{Candidate: cand})
	return cand, nil
}

// FetchByID fetches a known provider record directly, skipping search. Used
// for manual overrides: the forced id still goes through full enrichment.
func (s *Service) FetchByID(ctx context.Context, tmdbID int64, mediaType models.MediaType) (*models.ResolvedCandidate, error) {
	if !s.tmdb.isConfigured() {
		return nil, fmt.Errorf("metadata: tmdb api key not configured")
	}
	if mediaType == "" {
		mediaType = models.MediaTypeMovie
	}
	key := cacheKey("tmdb", "fetch", strconv.FormatInt(tmdbID, 10), string(mediaType))

	var cached cachedResolution
	if ok, _ := s.cache.get(key, &cached); ok {
		if cached.NotFound {
			return nil, ErrNotFound
		}
		return cloneCandidate(cached.Candidate), nil
	}

	// Probe the record first so a bad forced id is a miss, not a zero record.
	if _, err := s.tmdb.details(ctx, string(mediaType), tmdbID); err != nil {
		if errors.Is(err, errTMDBNotFound) {
			_ = s.cache.set(key, cachedResolution{NotFound: true})
			return nil, ErrNotFound
		}
		return nil, err
	}

	cand := s.fetchCandidate(ctx, tmdbID, string(mediaType))
	_ = s.cache.set(key, cachedResolution{Candidate: cand})
	return cloneCandidate(cand), nil
}

// search picks the endpoint by hint; with no hint it uses multi search and
// falls back to a year-scoped movie search when multi finds nothing.
func (s *Service) search(ctx context.Context, title, year string, hint models.MediaType) ([]tmdbSearchItem, error) {
	switch hint {
	case models.MediaTypeMovie:
		return s.tmdb.searchMovie(ctx, title, year)
	case models.MediaTypeTV:
		return s.tmdb.searchTV(ctx, title, year)
	}
	results, err := s.tmdb.searchMulti(ctx, title)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && year != "" {
		return s.tmdb.searchMovie(ctx, title, year)
	}
	return results, nil
}

// pickBestResult applies the tie-break order: media type matching the hint,
// closest release year, highest vote count, then popularity. ID is the final
// tie-break so the choice is stable.
func pickBestResult(results []tmdbSearchItem, year string, hint models.MediaType) tmdbSearchItem {
	best := results[0]
	for _, r := range results[1:] {
		if betterResult(r, best, year, hint) {
			best = r
		}
	}
	return best
}

func betterResult(a, b tmdbSearchItem, year string, hint models.MediaType) bool {
	if hint != "" {
		am, bm := a.MediaType == string(hint), b.MediaType == string(hint)
		if am != bm {
			return am
		}
	}
	if year != "" {
		ad, bd := yearDistance(a.year(), year), yearDistance(b.year(), year)
		if ad != bd {
			return ad < bd
		}
	}
	if a.VoteCount != b.VoteCount {
		return a.VoteCount > b.VoteCount
	}
	if a.Popularity != b.Popularity {
		return a.Popularity > b.Popularity
	}
	return a.ID < b.ID
}

func yearDistance(candidate, target string) int {
	const unknown = 1 << 16
	cy, err1 := strconv.Atoi(candidate)
	ty, err2 := strconv.Atoi(target)
	if err1 != nil || err2 != nil {
		return unknown
	}
	d := cy - ty
	if d < 0 {
		d = -d
	}
	return d
}

// fetchCandidate assembles the full candidate for a known id. Every
// sub-fetch failure is logged and leaves its fields empty; partial data
// always beats discarding the record.
func (s *Service) fetchCandidate(ctx context.Context, id int64, mediaType string) *models.ResolvedCandidate {
	cand := &models.ResolvedCandidate{
		Provider:  "tmdb",
		TMDBID:    id,
		MediaType: models.MediaType(mediaType),
	}

	if d, err := s.tmdb.details(ctx, mediaType, id); err != nil {
		s.log.Warn("details fetch failed", "tmdb_id", id, "media_type", mediaType, "error", err)
	} else {
		cand.Overview = d.Overview
		cand.Status = d.Status
		cand.Rating = d.VoteAverage
		cand.VoteCount = d.VoteCount
		cand.Popularity = d.Popularity
		cand.OriginalLanguage = d.OriginalLanguage
		if d.OriginalTitle != "" {
			cand.OriginalTitle = d.OriginalTitle
		} else {
			cand.OriginalTitle = d.OriginalName
		}
		for _, g := range d.Genres {
			cand.Genres = append(cand.Genres, g.Name)
		}
		if mediaType == "movie" {
			cand.RuntimeMinutes = d.Runtime
		} else {
			if len(d.EpisodeRunTime) > 0 {
				cand.RuntimeMinutes = d.EpisodeRunTime[0]
			}
			cand.NumberOfSeasons = d.NumberOfSeasons
			cand.NumberOfEpisodes = d.NumberOfEpisodes
		}
		cand.ReleaseDate = d.ReleaseDate
		if cand.ReleaseDate == "" {
			cand.ReleaseDate = d.FirstAirDate
		}
		if len(cand.ReleaseDate) >= 4 {
			cand.Year = cand.ReleaseDate[:4]
		}
	}

	if imdbID, err := s.tmdb.externalIDs(ctx, mediaType, id); err != nil {
		s.log.Warn("external ids fetch failed", "tmdb_id", id, "error", err)
	} else {
		cand.IMDBID = imdbID
	}

	if imgs, err := s.tmdb.images(ctx, mediaType, id); err != nil {
		s.log.Warn("images fetch failed", "tmdb_id", id, "error", err)
	} else {
		cand.Posters = toPosterCandidates(imgs.Posters)
		cand.Backdrops = toPosterCandidates(imgs.Backdrops)
	}

	if credits, err := s.tmdb.credits(ctx, mediaType, id); err != nil {
		s.log.Warn("credits fetch failed", "tmdb_id", id, "error", err)
	} else {
		for i, c := range credits.Cast {
			if i >= 10 {
				break
			}
			entry := models.CastEntry{Name: c.Name, Character: c.Character}
			if c.ProfilePath != "" {
				entry.PhotoURL = imageURL("w185", c.ProfilePath)
			}
			cand.Cast = append(cand.Cast, entry)
		}
		for _, c := range credits.Crew {
			switch c.Job {
			case "Director":
				cand.Directors = append(cand.Directors, c.Name)
			case "Writer", "Screenplay":
				if len(cand.Writers) < 5 {
					cand.Writers = append(cand.Writers, c.Name)
				}
			}
		}
	}

	if videos, err := s.tmdb.videos(ctx, mediaType, id); err != nil {
		s.log.Warn("videos fetch failed", "tmdb_id", id, "error", err)
	} else if trailer, ok := pickTrailer(videos); ok {
		cand.TrailerID = trailer.Key
		cand.TrailerTitle = trailer.Name
	}

	if platforms, err := s.tmdb.watchProviders(ctx, mediaType, id); err != nil {
		s.log.Warn("watch providers fetch failed", "tmdb_id", id, "error", err)
	} else {
		cand.Platforms = platforms
	}

	return cand
}

// pickTrailer takes the first official YouTube trailer, falling back to any
// YouTube trailer.
func pickTrailer(videos []tmdbVideo) (tmdbVideo, bool) {
	var first *tmdbVideo
	for i, v := range videos {
		if v.Type != "Trailer" || v.Site != "YouTube" {
			continue
		}
		if v.Official {
			return v, true
		}
		if first == nil {
			first = &videos[i]
		}
	}
	if first != nil {
		return *first, true
	}
	return tmdbVideo{}, false
}

func toPosterCandidates(imgs []tmdbImage) []models.PosterCandidate {
	out := make([]models.PosterCandidate, 0, len(imgs))
	for _, img := range imgs {
		if img.FilePath == "" {
			continue
		}
		out = append(out, models.PosterCandidate{
			FilePath:    img.FilePath,
			Language:    img.ISO639,
			VoteAverage: img.VoteAverage,
			VoteCount:   img.VoteCount,
		})
	}
	return out
}

// cloneCandidate returns a shallow copy so coalesced callers can't mutate a
// shared result.
func cloneCandidate(c *models.ResolvedCandidate) *models.ResolvedCandidate {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
