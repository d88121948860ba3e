package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything a pipeline run needs: provider credentials,
// matching policy, concurrency limits, and filesystem locations.
type Config struct {
	// TMDB (primary metadata provider)
	TMDBAPIKey  string `mapstructure:"tmdb_api_key"`
	TMDBBaseURL string `mapstructure:"tmdb_base_url"`
	Region      string `mapstructure:"region"`
	Language    string `mapstructure:"language"`

	// YouTube (trailer fallback). Empty API key switches the client to the
	// unauthenticated search strategy.
	YouTubeAPIKey string `mapstructure:"youtube_api_key"`

	// IMDb fallback API (qdMovie-style, self-hosted). Empty disables it.
	IMDBAPIURL string `mapstructure:"imdb_api_url"`

	// PosterLanguages is the poster language preference order. The literal
	// "none" entry stands for images with no language tag.
	PosterLanguages []string `mapstructure:"poster_languages"`

	// Concurrency and rate limits.
	Workers         int     `mapstructure:"workers"`
	TMDBRatePerSec  float64 `mapstructure:"tmdb_rate_per_sec"`
	OtherRatePerSec float64 `mapstructure:"other_rate_per_sec"`

	// Filesystem locations.
	CacheDir      string `mapstructure:"cache_dir"`
	CacheTTLHours int    `mapstructure:"cache_ttl_hours"`
	NoCache       bool   `mapstructure:"no_cache"`
	OutputDir     string `mapstructure:"output_dir"`
	OverridesPath string `mapstructure:"overrides_path"`
	LogFile       string `mapstructure:"log_file"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Default returns the configuration used when nothing is set in the
// environment or config file.
func Default() Config {
	return Config{
		TMDBBaseURL:     "https://api.themoviedb.org/3",
		Region:          "IN",
		Language:        "en-US",
		PosterLanguages: []string{"en", "hi", "ta", "te", "ml", "kn", "bn", "mr", "pa", "gu", "none"},
		Workers:         4,
		TMDBRatePerSec:  4,
		OtherRatePerSec: 2,
		CacheDir:        ".cache",
		CacheTTLHours:   24,
		OutputDir:       "data",
		OverridesPath:   "manual_corrections.json",
		RequestTimeout:  15 * time.Second,
	}
}

// Load builds a Config from viper, layering environment variables
// (UPCOMING_CONTENT_*) and an optional yaml config file over the defaults.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()

	v.SetDefault("tmdb_base_url", cfg.TMDBBaseURL)
	v.SetDefault("region", cfg.Region)
	v.SetDefault("language", cfg.Language)
	v.SetDefault("poster_languages", cfg.PosterLanguages)
	v.SetDefault("workers", cfg.Workers)
	v.SetDefault("tmdb_rate_per_sec", cfg.TMDBRatePerSec)
	v.SetDefault("other_rate_per_sec", cfg.OtherRatePerSec)
	v.SetDefault("cache_dir", cfg.CacheDir)
	v.SetDefault("cache_ttl_hours", cfg.CacheTTLHours)
	v.SetDefault("output_dir", cfg.OutputDir)
	v.SetDefault("overrides_path", cfg.OverridesPath)
	v.SetDefault("request_timeout", cfg.RequestTimeout)

	v.SetEnvPrefix("UPCOMING_CONTENT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields a run cannot proceed without.
func (c Config) Validate() error {
	if c.TMDBAPIKey == "" {
		return fmt.Errorf("tmdb_api_key is required (set UPCOMING_CONTENT_TMDB_API_KEY)")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.TMDBRatePerSec <= 0 {
		return fmt.Errorf("tmdb_rate_per_sec must be positive, got %v", c.TMDBRatePerSec)
	}
	if len(c.PosterLanguages) == 0 {
		return fmt.Errorf("poster_languages must not be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	return nil
}
