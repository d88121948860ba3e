package normalize

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/mozillazg/go-unidecode"

	"github.com/Mono-TV/upcoming-content/models"
)

// ErrEmptyTitle is returned when a record's title is empty after cleanup.
// This is the only hard rejection in the pipeline.
var ErrEmptyTitle = errors.New("empty title after cleanup")

// RawRecord is the shape scrapers hand over before normalization.
type RawRecord struct {
	Title          string               `json:"title"`
	RawReleaseDate string               `json:"release_date"`
	Platforms      []string             `json:"platforms"`
	Deeplinks      map[string]string    `json:"deeplinks,omitempty"`
	VideoFormats   []string             `json:"video_formats,omitempty"`
	SourceURL      string               `json:"source_url,omitempty"`
	SourceImageURL string               `json:"image_url,omitempty"`
	Window         models.ContentWindow `json:"content_type,omitempty"`
}

// dateFormats is the ordered list of release date layouts seen across the
// source sites. First successful parse wins.
var dateFormats = []string{
	"2 Jan 2006",
	"Jan 2, 2006",
	"2006-01-02",
	"2 January 2006",
	"January 2, 2006",
}

var parentheses = regexp.MustCompile(`\([^)]*\)`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize converts a raw scraped record into a SourceRecord. A record
// whose title is empty after cleanup is rejected with ErrEmptyTitle; an
// unparseable date is kept raw with DateUnparsed set, never dropped.
func Normalize(raw RawRecord, window models.ContentWindow) (models.SourceRecord, error) {
	title := CleanTitle(raw.Title)
	if title == "" {
		return models.SourceRecord{}, ErrEmptyTitle
	}
	if raw.Window != "" {
		window = raw.Window
	}

	rec := models.SourceRecord{
		Title:          title,
		Window:         window,
		RawReleaseDate: strings.TrimSpace(raw.RawReleaseDate),
		Platforms:      Platforms(raw.Platforms),
		Deeplinks:      raw.Deeplinks,
		SourceURL:      strings.TrimSpace(raw.SourceURL),
		SourceImageURL: strings.TrimSpace(raw.SourceImageURL),
	}
	if window.Theatrical() {
		rec.VideoFormats = VideoFormats(raw.VideoFormats)
	}

	if rec.RawReleaseDate != "" {
		if t, ok := ParseDate(rec.RawReleaseDate); ok {
			rec.ReleaseDate = t
		} else {
			rec.DateUnparsed = true
		}
	}
	return rec, nil
}

// CleanTitle applies the single deterministic title cleanup rule: trim,
// keep only the primary segment before a pipe separator, strip
// parenthesized segments, collapse whitespace runs, and trim stray
// separator punctuation.
func CleanTitle(title string) string {
	s := strings.TrimSpace(title)
	if i := strings.Index(s, "|"); i >= 0 {
		s = s[:i]
	}
	s = parentheses.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.Trim(s, " -:")
	return s
}

// Fold returns the lowercase ASCII fold of a cleaned title. Used for cache
// keys and duplicate comparison only; the display title is never folded.
func Fold(title string) string {
	return strings.ToLower(strings.TrimSpace(unidecode.Unidecode(title)))
}

// ParseDate tries the known date layouts in order.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// platformAliases maps the naming variants the source sites use to one
// canonical platform name. The "Platform N" entries are placeholder ids one
// of the sources emits instead of names.
var platformAliases = map[string]string{
	"prime video":        "Amazon Prime Video",
	"amazon prime":       "Amazon Prime Video",
	"amazon prime video": "Amazon Prime Video",
	"hotstar":            "Jio Hotstar",
	"disney+ hotstar":    "Jio Hotstar",
	"disney plus":        "Jio Hotstar",
	"jiocinema":          "Jio Hotstar",
	"jio hotstar":        "Jio Hotstar",
	"sonyliv":            "Sony LIV",
	"sony liv":           "Sony LIV",
	"zee5":               "Zee5",
	"netflix":            "Netflix",
	"apple tv":           "Apple TV+",
	"apple tv+":          "Apple TV+",
	"aha":                "Aha Video",
	"aha video":          "Aha Video",
	"sun nxt":            "Sun NXT",
	"mx player":          "MX Player",
	"youtube":            "YouTube",
	"mubi":               "Mubi",
	"manorama max":       "Manorama MAX",
	"platform 2":         "Aha Video",
	"platform 4":         "Amazon Prime Video",
	"platform 5":         "Apple TV+",
	"platform 6":         "Sun NXT",
	"platform 8":         "Zee5",
	"platform 10":        "Jio Hotstar",
	"platform 24":        "Mubi",
	"platform 25":        "MX Player",
	"platform 27":        "Manorama MAX",
	"platform 30":        "Netflix",
	"platform 49":        "YouTube",
	"platform 53":        "Sony LIV",
}

// Platforms maps known aliases to canonical names and collapses duplicates
// preserving first-seen order. Unknown names pass through unchanged.
func Platforms(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = whitespaceRun.ReplaceAllString(strings.TrimSpace(name), " ")
		if name == "" {
			continue
		}
		if canonical, ok := platformAliases[strings.ToLower(name)]; ok {
			name = canonical
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// videoFormatPattern matches the theatrical exhibition formats the booking
// sites advertise.
var videoFormatPattern = regexp.MustCompile(`(?i)\b(IMAX\s*3D|IMAX\s*2D|IMAX|DOLBY\s*CINEMA\s*3D|DOLBY\s*CINEMA|DOLBY\s*ATMOS|4DX\s*3D|4DX|MX4D\s*3D|MX4D|ICE\s*3D|ICE|3D\s*SCREEN\s*X|SCREEN\s*X|3D|2D)\b`)

// VideoFormats normalizes theatrical format strings (IMAX, 3D, 4DX...) to
// uppercase canonical tokens, dropping anything unrecognized.
func VideoFormats(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		for _, m := range videoFormatPattern.FindAllString(s, -1) {
			f := strings.ToUpper(whitespaceRun.ReplaceAllString(strings.TrimSpace(m), " "))
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
