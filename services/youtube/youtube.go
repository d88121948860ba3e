// Package youtube finds official trailers for titles whose metadata record
// came back without one. With an API key it uses the Data API search
// endpoint and scores candidates; without one it falls back to scraping the
// public results page for the first video id.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mono-TV/upcoming-content/services/normalize"
)

// ErrNoTrailer is returned when no candidate clears the score threshold.
var ErrNoTrailer = errors.New("youtube: no acceptable trailer")

const (
	apiBaseURL     = "https://www.googleapis.com/youtube/v3"
	resultsBaseURL = "https://www.youtube.com/results"

	// scoreThreshold is the minimum candidate score; below it a wrong video
	// is worse than no video.
	scoreThreshold = 30
)

type Trailer struct {
	VideoID string
	Title   string
}

type Client struct {
	apiKey     string
	apiURL     string
	resultsURL string
	httpc      *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

func New(apiKey string, httpc *http.Client, limiter *rate.Limiter, log *slog.Logger) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	if limiter == nil {
		limiter = rate.NewLimiter(2, 1)
	}
	if log == nil {
		log = slog.Default().With("component", "youtube")
	}
	return &Client{
		apiKey:     apiKey,
		apiURL:     apiBaseURL,
		resultsURL: resultsBaseURL,
		httpc:      httpc,
		limiter:    limiter,
		log:        log,
	}
}

// FindTrailer searches for "{title} {year} official trailer" and returns the
// best-scoring candidate, or ErrNoTrailer.
func (c *Client) FindTrailer(ctx context.Context, title, year string) (*Trailer, error) {
	query := strings.TrimSpace(title + " " + year + " official trailer")
	if c.apiKey != "" {
		return c.searchAPI(ctx, query, title, year)
	}
	return c.scrapeResults(ctx, query)
}

type searchItem struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		Title        string `json:"title"`
		ChannelTitle string `json:"channelTitle"`
	} `json:"snippet"`
}

func (c *Client) searchAPI(ctx context.Context, query, title, year string) (*Trailer, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{
		"part":       {"snippet"},
		"q":          {query},
		"type":       {"video"},
		"maxResults": {"10"},
		"key":        {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("youtube search: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Items []searchItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("youtube search: decode: %w", err)
	}

	best := -1
	var pick *Trailer
	for _, item := range payload.Items {
		if item.ID.VideoID == "" {
			continue
		}
		score := scoreCandidate(item.Snippet.Title, item.Snippet.ChannelTitle, title, year)
		c.log.Debug("trailer candidate", "video_id", item.ID.VideoID, "video_title", item.Snippet.Title, "score", score)
		if score > best {
			best = score
			pick = &Trailer{VideoID: item.ID.VideoID, Title: item.Snippet.Title}
		}
	}
	if pick == nil || best < scoreThreshold {
		return nil, ErrNoTrailer
	}
	return pick, nil
}

// videoIDPattern matches embedded video ids in the results page markup.
var videoIDPattern = regexp.MustCompile(`"videoId":"([A-Za-z0-9_-]{11})"`)

// scrapeResults is the keyless path: fetch the public results page and take
// the first embedded video id. No snippet data is available, so the score
// gate does not apply here.
func (c *Client) scrapeResults(ctx context.Context, query string) (*Trailer, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resultsURL+"?search_query="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube results page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube results page: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	m := videoIDPattern.FindSubmatch(body)
	if m == nil {
		return nil, ErrNoTrailer
	}
	return &Trailer{VideoID: string(m[1])}, nil
}

// unwantedKeywords mark videos that rank well in search but are never the
// trailer itself.
var unwantedKeywords = []string{"reaction", "review", "fan made", "fan-made", "recap"}

// scoreCandidate rates how likely a search hit is the official trailer.
// Containment of the full title dominates, then trailer wording, release
// year, and an official-looking channel. Unwanted formats are penalized
// hard enough that they can't clear the threshold on keywords alone.
func scoreCandidate(videoTitle, channelTitle, title, year string) int {
	vt := normalize.Fold(videoTitle)
	ct := normalize.Fold(channelTitle)
	ft := normalize.Fold(title)

	score := 0
	if ft != "" && strings.Contains(vt, ft) {
		score += 30
	} else if majorityWordsPresent(vt, ft) {
		score += 20
	}
	if strings.Contains(vt, "trailer") || strings.Contains(vt, "teaser") {
		score += 15
	}
	if year != "" && strings.Contains(vt, year) {
		score += 10
	}
	if strings.Contains(ct, ft) || strings.Contains(ct, "official") {
		score += 20
	}
	for _, kw := range unwantedKeywords {
		if strings.Contains(vt, kw) {
			score -= 30
			break
		}
	}
	return score
}

// majorityWordsPresent reports whether more than half of the title's words
// appear in the video title. Catches "Movie: Part One" style renames.
func majorityWordsPresent(videoTitle, title string) bool {
	words := strings.Fields(title)
	if len(words) == 0 {
		return false
	}
	hits := 0
	for _, w := range words {
		if strings.Contains(videoTitle, w) {
			hits++
		}
	}
	return hits*2 > len(words)
}
