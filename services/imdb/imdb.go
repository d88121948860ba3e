// Package imdb is the last resort of the artwork fallback chain: when the
// metadata record has no usable poster, look one up by IMDb id.
package imdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

// ErrNoPoster is returned when the id is unknown or has no poster on file.
var ErrNoPoster = errors.New("imdb: no poster available")

type Client struct {
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter
	log     *slog.Logger

	retryBase time.Duration
}

func New(baseURL string, httpc *http.Client, limiter *rate.Limiter, log *slog.Logger) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	if limiter == nil {
		limiter = rate.NewLimiter(2, 1)
	}
	if log == nil {
		log = slog.Default().With("component", "imdb")
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		httpc:     httpc,
		limiter:   limiter,
		log:       log,
		retryBase: time.Second,
	}
}

func (c *Client) isConfigured() bool {
	return c != nil && c.baseURL != ""
}

// Poster returns the poster URL for an IMDb title id. Transient upstream
// failures get a single retry; a missing title is final.
func (c *Client) Poster(ctx context.Context, imdbID string) (string, error) {
	if !c.isConfigured() {
		return "", ErrNoPoster
	}
	if !strings.HasPrefix(imdbID, "tt") {
		return "", fmt.Errorf("imdb: malformed id %q", imdbID)
	}

	var posterURL string
	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/movie/"+imdbID, nil)
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
				var payload struct {
					Poster string `json:"poster"`
				}
				if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
					return retry.Unrecoverable(fmt.Errorf("imdb: decode: %w", err))
				}
				posterURL = payload.Poster
				return nil
			case resp.StatusCode == http.StatusNotFound:
				return retry.Unrecoverable(ErrNoPoster)
			case resp.StatusCode >= 500:
				io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
				return fmt.Errorf("imdb: http %d", resp.StatusCode)
			default:
				return retry.Unrecoverable(fmt.Errorf("imdb: http %d", resp.StatusCode))
			}
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.LastErrorOnly(true),
		retry.Delay(c.retryBase),
		retry.DelayType(retry.FixedDelay),
	)
	if err != nil {
		return "", err
	}
	if posterURL == "" || posterURL == "N/A" {
		return "", ErrNoPoster
	}
	return posterURL, nil
}
