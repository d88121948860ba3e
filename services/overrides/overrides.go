package overrides

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/Mono-TV/upcoming-content/models"
)

// Entry is one manually curated correction: a scraped title forced to a
// specific provider record. Reason is documentation only.
type Entry struct {
	TMDBID        int64            `json:"tmdb_id,omitempty"`
	TMDBMediaType models.MediaType `json:"tmdb_media_type,omitempty"`
	IMDBID        string           `json:"imdb_id,omitempty"`
	Year          string           `json:"imdb_year,omitempty"`
	Reason        string           `json:"reason,omitempty"`
}

// Table is the override lookup, loaded once at pipeline start and read-only
// for the rest of the run.
type Table struct {
	entries map[string]Entry
}

// file mirrors the manual_corrections.json artifact layout.
type file struct {
	Comment      string           `json:"_comment,omitempty"`
	Instructions string           `json:"_instructions,omitempty"`
	Corrections  map[string]Entry `json:"corrections"`
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeKey(title string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(title), " ")
}

// Load reads the override table from path. A missing file yields an empty
// table. Duplicate title keys (after whitespace normalization) are an error
// naming each duplicate: silently shadowing an earlier correction is how bad
// matches sneak back in.
func Load(path string, log *slog.Logger) (*Table, error) {
	if log == nil {
		log = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("no override table found", "path", path)
			return &Table{entries: map[string]Entry{}}, nil
		}
		return nil, fmt.Errorf("read overrides %s: %w", path, err)
	}
	return Parse(data, log)
}

// Parse decodes and validates an override document.
func Parse(data []byte, log *slog.Logger) (*Table, error) {
	if log == nil {
		log = slog.Default()
	}
	var doc file
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}

	// encoding/json keeps the last value for a repeated object key, so the
	// raw corrections object is rescanned token by token for repeats.
	duplicates, err := duplicateKeys(data)
	if err != nil {
		return nil, fmt.Errorf("scan overrides: %w", err)
	}

	entries := make(map[string]Entry, len(doc.Corrections))
	for title, entry := range doc.Corrections {
		key := normalizeKey(title)
		if key == "" {
			return nil, fmt.Errorf("override with empty title key")
		}
		if entry.TMDBID == 0 && entry.IMDBID == "" {
			return nil, fmt.Errorf("override %q carries no forced id", key)
		}
		if _, ok := entries[key]; ok {
			duplicates = append(duplicates, key)
			continue
		}
		entries[key] = entry
	}
	if len(duplicates) > 0 {
		sort.Strings(duplicates)
		return nil, fmt.Errorf("duplicate override keys: %s", strings.Join(duplicates, ", "))
	}

	log.Info("loaded override table", "entries", len(entries))
	return &Table{entries: entries}, nil
}

// duplicateKeys walks the raw document and returns title keys that appear
// more than once inside the corrections object.
func duplicateKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	// Walk the top-level object looking for the "corrections" field.
	if _, err := dec.Token(); err != nil { // opening '{'
		return nil, err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := tok.(string)
		if name != "corrections" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}

		tok, err = dec.Token()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return nil, fmt.Errorf("corrections must be an object")
		}

		seen := make(map[string]bool)
		var dups []string
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key := normalizeKey(keyTok.(string))
			if seen[key] {
				dups = append(dups, key)
			}
			seen[key] = true
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
		}
		return dups, nil
	}
	return nil, nil
}

// Lookup returns the override for a cleaned title, exact match only. Fuzzy
// matching is deliberately absent: ambiguity is resolved by a human editing
// the table.
func (t *Table) Lookup(title string) (Entry, bool) {
	e, ok := t.entries[normalizeKey(title)]
	return e, ok
}

// Len reports the number of loaded overrides.
func (t *Table) Len() int {
	return len(t.entries)
}
