package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/Mono-TV/upcoming-content/config"
	"github.com/Mono-TV/upcoming-content/models"
	"github.com/Mono-TV/upcoming-content/services/imdb"
	"github.com/Mono-TV/upcoming-content/services/metadata"
	"github.com/Mono-TV/upcoming-content/services/normalize"
	"github.com/Mono-TV/upcoming-content/services/overrides"
	"github.com/Mono-TV/upcoming-content/services/pipeline"
	"github.com/Mono-TV/upcoming-content/services/store"
	"github.com/Mono-TV/upcoming-content/services/youtube"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enrichment pipeline and write the window artifacts",
	Long: `Run reads scraped listings from the input file, resolves each title
against TMDB (honoring the manual override table), fills missing trailers and
posters from the fallback chain, and atomically replaces the JSON artifact of
each processed window.

Per-record failures degrade that record and are reported in the run summary;
only a failed artifact write exits non-zero.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().String("input", "scraped.json", "scraped listings file (window name -> records)")
	runCmd.Flags().String("window", "", "process a single window (ott_released, ott_upcoming, theatre_current, theatre_upcoming)")
	runCmd.Flags().Bool("trailers-only", false, "only fill missing trailers in existing artifacts")
	runCmd.Flags().Bool("clear-cache", false, "drop cached provider responses before running")

	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	windows, err := selectedWindows(cmd)
	if err != nil {
		return err
	}

	p, resolver, err := buildPipeline(cfg, log)
	if err != nil {
		return err
	}

	if clear, _ := cmd.Flags().GetBool("clear-cache"); clear {
		if err := resolver.ClearCache(); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		log.Info("provider cache cleared")
	}

	if trailersOnly, _ := cmd.Flags().GetBool("trailers-only"); trailersOnly {
		for _, window := range windows {
			filled, err := p.RefreshTrailers(cmd.Context(), window)
			if err != nil {
				return err
			}
			log.Info("trailers refreshed", "window", window, "filled", filled)
		}
		return nil
	}

	inputPath, _ := cmd.Flags().GetString("input")
	input, err := readInput(inputPath)
	if err != nil {
		return err
	}

	for _, window := range windows {
		raws, ok := input[window]
		if !ok {
			log.Warn("input carries no records for window", "window", window)
			continue
		}
		if _, err := p.Run(cmd.Context(), window, raws); err != nil {
			return err
		}
	}
	return nil
}

// buildPipeline wires the pipeline from configuration. The resolver is also
// returned so cache maintenance flags can reach it.
func buildPipeline(cfg config.Config, log *slog.Logger) (*pipeline.Pipeline, *metadata.Service, error) {
	table, err := overrides.Load(cfg.OverridesPath, log.With("component", "overrides"))
	if err != nil {
		return nil, nil, err
	}

	httpc := &http.Client{Timeout: cfg.RequestTimeout}

	resolver := metadata.NewService(metadata.Config{
		APIKey:        cfg.TMDBAPIKey,
		Language:      cfg.Language,
		Region:        cfg.Region,
		BaseURL:       cfg.TMDBBaseURL,
		CacheDir:      cfg.CacheDir,
		CacheTTLHours: cfg.CacheTTLHours,
		NoCache:       cfg.NoCache,
		RatePerSec:    cfg.TMDBRatePerSec,
		HTTPClient:    httpc,
		Artwork:       metadata.ArtworkPolicy{Preferred: cfg.PosterLanguages},
		Logger:        log.With("component", "metadata"),
	})

	otherLimiter := rate.NewLimiter(rate.Limit(cfg.OtherRatePerSec), 1)
	trailers := youtube.New(cfg.YouTubeAPIKey, httpc, otherLimiter, log.With("component", "youtube"))

	var posters pipeline.PosterFinder
	if cfg.IMDBAPIURL != "" {
		posters = imdb.New(cfg.IMDBAPIURL, httpc, otherLimiter, log.With("component", "imdb"))
	}

	writer := store.NewWriter(afero.NewOsFs(), cfg.OutputDir, log.With("component", "store"))

	p := pipeline.New(table, resolver, trailers, posters, writer, cfg.Workers, log.With("component", "pipeline"))
	return p, resolver, nil
}

func selectedWindows(cmd *cobra.Command) ([]models.ContentWindow, error) {
	name, _ := cmd.Flags().GetString("window")
	if name == "" {
		return models.Windows(), nil
	}
	window := models.ContentWindow(name)
	if !window.Valid() {
		return nil, fmt.Errorf("unknown window %q (valid: ott_released, ott_upcoming, theatre_current, theatre_upcoming)", name)
	}
	return []models.ContentWindow{window}, nil
}

// readInput loads the scraped listings file: a JSON object keyed by window
// name, each value a list of raw records.
func readInput(path string) (map[models.ContentWindow][]normalize.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}
	var input map[models.ContentWindow][]normalize.RawRecord
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("parse input %s: %w", path, err)
	}
	for window := range input {
		if !window.Valid() {
			return nil, fmt.Errorf("input %s: unknown window %q", path, window)
		}
	}
	return input, nil
}
