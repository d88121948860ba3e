// Package store writes the per-window JSON artifacts the frontend serves.
// Writes are atomic: the full document goes to a temp file in the output
// directory and is renamed over the previous artifact, so readers never see
// a torn file.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/Mono-TV/upcoming-content/models"
)

// Envelope is the artifact document: run metadata plus the ordered records.
type Envelope struct {
	GeneratedAt time.Time                    `json:"generated_at"`
	Window      models.ContentWindow         `json:"window"`
	Count       int                          `json:"count"`
	Items       []models.MergedContentRecord `json:"items"`
}

type Writer struct {
	fs  afero.Fs
	dir string
	log *slog.Logger

	// now is swappable so tests can pin GeneratedAt.
	now func() time.Time
}

func NewWriter(fs afero.Fs, dir string, log *slog.Logger) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if log == nil {
		log = slog.Default().With("component", "store")
	}
	return &Writer{fs: fs, dir: dir, log: log, now: time.Now}
}

// Write sorts the records for the window's display order and replaces the
// window artifact atomically.
func (w *Writer) Write(window models.ContentWindow, records []models.MergedContentRecord) error {
	if !window.Valid() {
		return fmt.Errorf("store: invalid window %q", window)
	}
	SortRecords(window, records)

	doc := Envelope{
		GeneratedAt: w.now().UTC(),
		Window:      window,
		Count:       len(records),
		Items:       records,
	}
	if doc.Items == nil {
		doc.Items = []models.MergedContentRecord{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", window, err)
	}
	data = append(data, '\n')

	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", w.dir, err)
	}
	final := filepath.Join(w.dir, string(window)+".json")
	tmp := final + ".tmp"
	if err := afero.WriteFile(w.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", tmp, err)
	}
	if err := w.fs.Rename(tmp, final); err != nil {
		_ = w.fs.Remove(tmp)
		return fmt.Errorf("store: rename %s: %w", final, err)
	}
	w.log.Info("wrote window artifact", "window", window, "count", len(records), "path", final)
	return nil
}

// Read loads the current artifact for a window. Used by the trailer refresh
// mode, which rewrites an existing artifact instead of rebuilding it.
func (w *Writer) Read(window models.ContentWindow) (Envelope, error) {
	var doc Envelope
	if !window.Valid() {
		return doc, fmt.Errorf("store: invalid window %q", window)
	}
	path := filepath.Join(w.dir, string(window)+".json")
	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		return doc, fmt.Errorf("store: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("store: parse %s: %w", path, err)
	}
	return doc, nil
}

// WriteSummary writes the run report next to the window artifacts.
func (w *Writer) WriteSummary(summary models.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal summary: %w", err)
	}
	data = append(data, '\n')
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", w.dir, err)
	}
	path := filepath.Join(w.dir, fmt.Sprintf("summary_%s.json", summary.Window))
	if err := afero.WriteFile(w.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	return nil
}

// SortRecords orders records for display: released windows newest first,
// upcoming windows soonest first. Records whose source date never parsed go
// last so guesses don't interleave with real dates. Title breaks ties.
func SortRecords(window models.ContentWindow, records []models.MergedContentRecord) {
	newestFirst := window.Released()
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.DateUnparsed != b.DateUnparsed {
			return !a.DateUnparsed
		}
		if !a.DateUnparsed && !a.SortDate.Equal(b.SortDate) {
			if newestFirst {
				return a.SortDate.After(b.SortDate)
			}
			return a.SortDate.Before(b.SortDate)
		}
		return a.Title < b.Title
	})
}
