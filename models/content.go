package models

import "time"

// ContentWindow identifies one of the four mutually exclusive partitions the
// frontend renders as separate rows. Every merged record belongs to exactly one.
type ContentWindow string

const (
	WindowOTTReleased     ContentWindow = "ott_released"
	WindowOTTUpcoming     ContentWindow = "ott_upcoming"
	WindowTheatreCurrent  ContentWindow = "theatre_current"
	WindowTheatreUpcoming ContentWindow = "theatre_upcoming"
)

// Windows lists all content windows in pipeline order.
func Windows() []ContentWindow {
	return []ContentWindow{WindowOTTReleased, WindowOTTUpcoming, WindowTheatreCurrent, WindowTheatreUpcoming}
}

// Valid reports whether w is one of the known partitions.
func (w ContentWindow) Valid() bool {
	switch w {
	case WindowOTTReleased, WindowOTTUpcoming, WindowTheatreCurrent, WindowTheatreUpcoming:
		return true
	}
	return false
}

// Released reports whether the window holds content that is already out,
// which determines the output sort direction (newest-first vs earliest-first).
func (w ContentWindow) Released() bool {
	return w == WindowOTTReleased || w == WindowTheatreCurrent
}

// Theatrical reports whether the window carries theatre-specific fields
// (video formats like IMAX/3D).
func (w ContentWindow) Theatrical() bool {
	return w == WindowTheatreCurrent || w == WindowTheatreUpcoming
}

type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// SourceRecord is one scraped observation of a title, already normalized.
// Immutable once produced; discarded after the merge.
type SourceRecord struct {
	Title          string            `json:"title"`
	Window         ContentWindow     `json:"content_type"`
	RawReleaseDate string            `json:"release_date_raw,omitempty"`
	ReleaseDate    time.Time         `json:"-"`
	DateUnparsed   bool              `json:"-"`
	Platforms      []string          `json:"platforms,omitempty"`
	Deeplinks      map[string]string `json:"deeplinks,omitempty"`
	VideoFormats   []string          `json:"video_formats,omitempty"`
	SourceURL      string            `json:"source_url,omitempty"`
	SourceImageURL string            `json:"source_image_url,omitempty"`
}

// ScrapedFieldCount counts the optional scraped fields that carry data.
// Used by the dedup policy to pick the richer of two observations.
func (r SourceRecord) ScrapedFieldCount() int {
	n := 0
	if len(r.Platforms) > 0 {
		n++
	}
	if len(r.Deeplinks) > 0 {
		n++
	}
	if len(r.VideoFormats) > 0 {
		n++
	}
	if r.SourceURL != "" {
		n++
	}
	if r.SourceImageURL != "" {
		n++
	}
	if !r.DateUnparsed && !r.ReleaseDate.IsZero() {
		n++
	}
	return n
}

// PosterCandidate is one artwork option from a metadata provider.
// Language is the ISO 639-1 tag; empty means the image carries no language
// tag (usually textless art).
type PosterCandidate struct {
	FilePath    string  `json:"file_path"`
	Language    string  `json:"language,omitempty"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count,omitempty"`
}

type CastEntry struct {
	Name      string `json:"name"`
	Character string `json:"character,omitempty"`
	PhotoURL  string `json:"profile_path,omitempty"`
}

// ImageSet is the size ladder the frontend picks from for a single image.
type ImageSet struct {
	Thumbnail string `json:"thumbnail,omitempty"`
	Small     string `json:"small,omitempty"`
	Medium    string `json:"medium,omitempty"`
	Large     string `json:"large,omitempty"`
	XLarge    string `json:"xlarge,omitempty"`
	Original  string `json:"original,omitempty"`
	Language  string `json:"language,omitempty"`
}

// ResolvedCandidate is the ephemeral output of one metadata lookup. Produced
// per record, never persisted standalone.
type ResolvedCandidate struct {
	Provider         string
	TMDBID           int64
	IMDBID           string
	MediaType        MediaType
	Year             string
	ReleaseDate      string
	Overview         string
	Genres           []string
	RuntimeMinutes   int
	Rating           float64
	VoteCount        int
	Popularity       float64
	OriginalTitle    string
	OriginalLanguage string
	Status           string
	NumberOfSeasons  int
	NumberOfEpisodes int
	Platforms        []string
	Posters          []PosterCandidate
	Backdrops        []PosterCandidate
	Cast             []CastEntry
	Directors        []string
	Writers          []string
	TrailerID        string
	TrailerTitle     string
}

// MergedContentRecord is the canonical output record, one per distinct
// (title, window). Field names follow the JSON artifact the frontend reads.
type MergedContentRecord struct {
	Title          string            `json:"title"`
	Window         ContentWindow     `json:"content_type"`
	ReleaseDate    string            `json:"release_date,omitempty"`
	Platforms      []string          `json:"platforms,omitempty"`
	Deeplinks      map[string]string `json:"deeplinks,omitempty"`
	VideoFormats   []string          `json:"video_formats,omitempty"`
	SourceURL      string            `json:"source_url,omitempty"`
	SourceImageURL string            `json:"source_image_url,omitempty"`

	TMDBID           int64     `json:"tmdb_id,omitempty"`
	TMDBMediaType    MediaType `json:"tmdb_media_type,omitempty"`
	IMDBID           string    `json:"imdb_id,omitempty"`
	Overview         string    `json:"overview,omitempty"`
	Genres           []string  `json:"genres,omitempty"`
	Runtime          int       `json:"runtime,omitempty"`
	Rating           float64   `json:"tmdb_rating,omitempty"`
	VoteCount        int       `json:"tmdb_vote_count,omitempty"`
	Popularity       float64   `json:"popularity,omitempty"`
	OriginalTitle    string    `json:"original_title,omitempty"`
	OriginalLanguage string    `json:"original_language,omitempty"`
	Status           string    `json:"status,omitempty"`
	NumberOfSeasons  int       `json:"number_of_seasons,omitempty"`
	NumberOfEpisodes int       `json:"number_of_episodes,omitempty"`
	Year             string    `json:"year,omitempty"`

	Posters         *ImageSet   `json:"posters,omitempty"`
	PosterURLMedium string      `json:"poster_url_medium,omitempty"`
	PosterURLLarge  string      `json:"poster_url_large,omitempty"`
	PosterLanguage  string      `json:"poster_language,omitempty"`
	AllPosters      []ImageSet  `json:"all_posters,omitempty"`
	Backdrops       *ImageSet   `json:"backdrops,omitempty"`
	BackdropURL     string      `json:"backdrop_url,omitempty"`
	AllBackdrops    []ImageSet  `json:"all_backdrops,omitempty"`
	Cast            []CastEntry `json:"cast,omitempty"`
	Directors       []string    `json:"directors,omitempty"`
	Writers         []string    `json:"writers,omitempty"`

	YouTubeID    string `json:"youtube_id,omitempty"`
	YouTubeURL   string `json:"youtube_url,omitempty"`
	YouTubeTitle string `json:"youtube_title,omitempty"`

	// Retained for sorting; not part of the frontend contract.
	SortDate     time.Time `json:"-"`
	DateUnparsed bool      `json:"-"`
}

// RunSummary is the operator-facing report for one pipeline run.
type RunSummary struct {
	RunID             string         `json:"run_id"`
	Window            ContentWindow  `json:"window"`
	Processed         int            `json:"processed"`
	Resolved          int            `json:"resolved"`
	PartiallyResolved int            `json:"partially_resolved"`
	Rejected          int            `json:"rejected"`
	Duplicates        int            `json:"duplicates"`
	PlatformCounts    map[string]int `json:"platform_counts,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	ElapsedSeconds    float64        `json:"elapsed_seconds"`
}
