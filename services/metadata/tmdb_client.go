package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

// Minimal TMDB v3 client covering the endpoints the resolver needs: search,
// details, external ids, images, credits, videos, watch providers.

const tmdbImageBaseURL = "https://image.tmdb.org/t/p"

// errTMDBNotFound marks a 404 from a fetch-by-id endpoint.
var errTMDBNotFound = errors.New("tmdb: not found")

type tmdbClient struct {
	apiKey   string
	language string
	region   string
	baseURL  string
	httpc    *http.Client
	limiter  *rate.Limiter

	// retryBase is the first backoff step (doubled per attempt, Retry-After
	// wins when larger). Tests shrink it to avoid real sleeps.
	retryBase   time.Duration
	maxAttempts uint
}

func newTMDBClient(apiKey, language, region, baseURL string, httpc *http.Client, limiter *rate.Limiter) *tmdbClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = "https://api.themoviedb.org/3"
	}
	if limiter == nil {
		limiter = rate.NewLimiter(4, 4)
	}
	return &tmdbClient{
		apiKey:      apiKey,
		language:    language,
		region:      region,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpc:       httpc,
		limiter:     limiter,
		retryBase:   time.Second,
		maxAttempts: 4,
	}
}

func (c *tmdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

// httpStatusError carries the status and any Retry-After signal so the
// backoff policy can honor the server's ask.
type httpStatusError struct {
	status     int
	retryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("tmdb: http %d", e.status)
}

// IsThrottled reports whether an error chain ends in a provider 429, after
// the client's own retries were exhausted.
func IsThrottled(err error) bool {
	var se *httpStatusError
	return errors.As(err, &se) && se.status == http.StatusTooManyRequests
}

func retryAfterDelay(resp *http.Response) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// doGET performs a rate-limited GET with bounded exponential backoff on 429
// and 5xx. A 404 surfaces as errTMDBNotFound; other 4xx fail immediately.
func (c *tmdbClient) doGET(ctx context.Context, path string, q url.Values, v any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("api_key", c.apiKey)
	u := c.baseURL + path + "?" + q.Encode()

	return retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusOK:
				return json.NewDecoder(resp.Body).Decode(v)
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(errTMDBNotFound)
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
				return &httpStatusError{status: resp.StatusCode, retryAfter: retryAfterDelay(resp)}
			default:
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
				return retry.Unrecoverable(fmt.Errorf("tmdb get %s failed: %s: %s", path, resp.Status, strings.TrimSpace(string(body))))
			}
		},
		retry.Context(ctx),
		retry.Attempts(c.maxAttempts),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			backoff := c.retryBase << n
			var se *httpStatusError
			if errors.As(err, &se) && se.retryAfter > backoff {
				return se.retryAfter
			}
			return backoff
		}),
	)
}

type tmdbSearchItem struct {
	ID               int64   `json:"id"`
	MediaType        string  `json:"media_type"`
	Title            string  `json:"title"`
	Name             string  `json:"name"`
	OriginalTitle    string  `json:"original_title"`
	OriginalName     string  `json:"original_name"`
	OriginalLanguage string  `json:"original_language"`
	Overview         string  `json:"overview"`
	ReleaseDate      string  `json:"release_date"`
	FirstAirDate     string  `json:"first_air_date"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
}

// displayTitle returns the movie or TV title, whichever is set.
func (i tmdbSearchItem) displayTitle() string {
	if i.Title != "" {
		return i.Title
	}
	return i.Name
}

func (i tmdbSearchItem) releaseDate() string {
	if i.ReleaseDate != "" {
		return i.ReleaseDate
	}
	return i.FirstAirDate
}

func (i tmdbSearchItem) year() string {
	d := i.releaseDate()
	if len(d) >= 4 {
		return d[:4]
	}
	return ""
}

type tmdbSearchResponse struct {
	Page         int              `json:"page"`
	Results      []tmdbSearchItem `json:"results"`
	TotalResults int              `json:"total_results"`
}

func (c *tmdbClient) searchMovie(ctx context.Context, query, year string) ([]tmdbSearchItem, error) {
	q := url.Values{"query": {query}, "language": {c.language}}
	if year != "" {
		q.Set("year", year)
	}
	var resp tmdbSearchResponse
	if err := c.doGET(ctx, "/search/movie", q, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Results {
		resp.Results[i].MediaType = "movie"
	}
	return resp.Results, nil
}

func (c *tmdbClient) searchTV(ctx context.Context, query, year string) ([]tmdbSearchItem, error) {
	q := url.Values{"query": {query}, "language": {c.language}}
	if year != "" {
		q.Set("first_air_date_year", year)
	}
	var resp tmdbSearchResponse
	if err := c.doGET(ctx, "/search/tv", q, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Results {
		resp.Results[i].MediaType = "tv"
	}
	return resp.Results, nil
}

func (c *tmdbClient) searchMulti(ctx context.Context, query string) ([]tmdbSearchItem, error) {
	q := url.Values{"query": {query}, "language": {c.language}}
	var resp tmdbSearchResponse
	if err := c.doGET(ctx, "/search/multi", q, &resp); err != nil {
		return nil, err
	}
	// search/multi mixes in person results; only titles are usable.
	out := resp.Results[:0]
	for _, r := range resp.Results {
		if r.MediaType == "movie" || r.MediaType == "tv" {
			out = append(out, r)
		}
	}
	return out, nil
}

type tmdbDetails struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Name             string `json:"name"`
	OriginalTitle    string `json:"original_title"`
	OriginalName     string `json:"original_name"`
	OriginalLanguage string `json:"original_language"`
	Overview         string `json:"overview"`
	Genres           []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Runtime          int     `json:"runtime"`
	EpisodeRunTime   []int   `json:"episode_run_time"`
	NumberOfSeasons  int     `json:"number_of_seasons"`
	NumberOfEpisodes int     `json:"number_of_episodes"`
	ReleaseDate      string  `json:"release_date"`
	FirstAirDate     string  `json:"first_air_date"`
	Status           string  `json:"status"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
}

func (c *tmdbClient) details(ctx context.Context, mediaType string, id int64) (*tmdbDetails, error) {
	var d tmdbDetails
	q := url.Values{"language": {c.language}}
	if err := c.doGET(ctx, fmt.Sprintf("/%s/%d", mediaType, id), q, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *tmdbClient) externalIDs(ctx context.Context, mediaType string, id int64) (string, error) {
	var resp struct {
		IMDBID string `json:"imdb_id"`
	}
	if err := c.doGET(ctx, fmt.Sprintf("/%s/%d/external_ids", mediaType, id), nil, &resp); err != nil {
		return "", err
	}
	return resp.IMDBID, nil
}

type tmdbImage struct {
	FilePath    string  `json:"file_path"`
	ISO639      string  `json:"iso_639_1"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
}

type tmdbImagesResponse struct {
	Posters   []tmdbImage `json:"posters"`
	Backdrops []tmdbImage `json:"backdrops"`
}

func (c *tmdbClient) images(ctx context.Context, mediaType string, id int64) (*tmdbImagesResponse, error) {
	var resp tmdbImagesResponse
	if err := c.doGET(ctx, fmt.Sprintf("/%s/%d/images", mediaType, id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type tmdbCredits struct {
	Cast []struct {
		Name        string `json:"name"`
		Character   string `json:"character"`
		ProfilePath string `json:"profile_path"`
		Order       int    `json:"order"`
	} `json:"cast"`
	Crew []struct {
		Name string `json:"name"`
		Job  string `json:"job"`
	} `json:"crew"`
}

func (c *tmdbClient) credits(ctx context.Context, mediaType string, id int64) (*tmdbCredits, error) {
	var resp tmdbCredits
	if err := c.doGET(ctx, fmt.Sprintf("/%s/%d/credits", mediaType, id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type tmdbVideo struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
}

func (c *tmdbClient) videos(ctx context.Context, mediaType string, id int64) ([]tmdbVideo, error) {
	var resp struct {
		Results []tmdbVideo `json:"results"`
	}
	q := url.Values{"language": {c.language}}
	if err := c.doGET(ctx, fmt.Sprintf("/%s/%d/videos", mediaType, id), q, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// streamingProviders maps TMDB watch-provider ids to the canonical platform
// names the scrapers use, so provider-sourced platforms merge cleanly.
var streamingProviders = map[int]string{
	8:   "Netflix",
	9:   "Amazon Prime Video",
	122: "Jio Hotstar",
	232: "Zee5",
	237: "Sony LIV",
	309: "Sun NXT",
	350: "Apple TV+",
	532: "Aha Video",
}

func (c *tmdbClient) watchProviders(ctx context.Context, mediaType string, id int64) ([]string, error) {
	var resp struct {
		Results map[string]struct {
			Flatrate []struct {
				ProviderID   int    `json:"provider_id"`
				ProviderName string `json:"provider_name"`
			} `json:"flatrate"`
		} `json:"results"`
	}
	if err := c.doGET(ctx, fmt.Sprintf("/%s/%d/watch/providers", mediaType, id), nil, &resp); err != nil {
		return nil, err
	}
	region, ok := resp.Results[c.region]
	if !ok {
		return nil, nil
	}
	var platforms []string
	for _, p := range region.Flatrate {
		name, known := streamingProviders[p.ProviderID]
		if !known {
			continue
		}
		if !containsString(platforms, name) {
			platforms = append(platforms, name)
		}
	}
	return platforms, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// imageURL builds a TMDB image URL for the given size tier.
func imageURL(size, filePath string) string {
	if filePath == "" {
		return ""
	}
	return tmdbImageBaseURL + "/" + size + filePath
}
