package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/guarzo/pokepack/internal/catalog"
	"github.com/guarzo/pokepack/internal/model"
)

// MaxReportedDuplicates caps Result.DuplicateIDs.
const MaxReportedDuplicates = 10

// partialPatterns are the file names produced by ingest runs.
var partialPatterns = []string{
	"cards-temp-*.json",
	"cards-retry-*.json",
}

// MergeError aborts a merge. The canonical catalog is left untouched.
type MergeError struct {
	Reason string
}

func (e *MergeError) Error() string {
	return "merge: " + e.Reason
}

type Result struct {
	Cards          int
	Duplicates     int
	DuplicateIDs   []string
	MissingID      int
	ProcessedFiles []string
	SkippedFiles   []string
	RemovedFiles   []string
	SizeMB         float64
}

// Candidates lists the files a merge would consume, partial files first in
// name order and the canonical catalog last.
func Candidates(dir string) ([]string, error) {
	seen := make(map[string]bool)
	var partials []string
	for _, pattern := range partialPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				partials = append(partials, m)
			}
		}
	}
	sort.Strings(partials)

	canonical := filepath.Join(dir, catalog.FileName)
	if _, err := os.Stat(canonical); err == nil {
		partials = append(partials, canonical)
	}
	return partials, nil
}

// Dedupe keeps the first card seen for every id. Cards without an id are
// dropped and counted in missing.
func Dedupe(cards []model.Card) (unique []model.Card, duplicateIDs []string, missing int) {
	seen := make(map[string]struct{}, len(cards))
	unique = make([]model.Card, 0, len(cards))
	for _, c := range cards {
		if c.ID == "" {
			missing++
			continue
		}
		if _, dup := seen[c.ID]; dup {
			duplicateIDs = append(duplicateIDs, c.ID)
			continue
		}
		seen[c.ID] = struct{}{}
		unique = append(unique, c)
	}
	return unique, duplicateIDs, missing
}

// SortByID orders cards ascending by id, byte-wise.
func SortByID(cards []model.Card) {
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
}

// Canonicalize is Dedupe followed by SortByID.
func Canonicalize(cards []model.Card) ([]model.Card, []string, int) {
	unique, dups, missing := Dedupe(cards)
	SortByID(unique)
	return unique, dups, missing
}

// Merger folds every partial result in Dir into the canonical catalog.
type Merger struct {
	Files catalog.Files
	// Keep disables deletion of consumed partial files.
	Keep bool
	Now  func() time.Time
}

func New(dir string) *Merger {
	return &Merger{Files: catalog.Files{Dir: dir}, Now: time.Now}
}

func (m *Merger) Merge(ctx context.Context) (Result, error) {
	var res Result

	paths, err := Candidates(m.Files.Dir)
	if err != nil {
		return res, fmt.Errorf("find merge candidates: %w", err)
	}
	if len(paths) == 0 {
		return res, &MergeError{Reason: "no card files found in " + m.Files.Dir}
	}
	slog.Info("merging card files", "files", len(paths))

	var all []model.Card
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := filepath.Base(path)
		cards, missing, err := readLoose(path)
		if err != nil {
			slog.Warn("skipping card file", "file", name, "error", err)
			res.SkippedFiles = append(res.SkippedFiles, name)
			continue
		}
		slog.Info("loaded card file", "file", name, "cards", len(cards))
		res.MissingID += missing
		res.ProcessedFiles = append(res.ProcessedFiles, name)
		all = append(all, cards...)
	}
	if len(res.ProcessedFiles) == 0 {
		return res, &MergeError{Reason: "no card file could be parsed"}
	}

	unique, dups, missing := Canonicalize(all)
	res.MissingID += missing
	res.Cards = len(unique)
	res.Duplicates = len(dups)
	if len(dups) > MaxReportedDuplicates {
		dups = dups[:MaxReportedDuplicates]
	}
	res.DuplicateIDs = dups

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	summary, err := m.Files.Save(unique, now())
	if err != nil {
		return res, fmt.Errorf("save merged catalog: %w", err)
	}
	res.SizeMB = catalog.FileSizeMB(m.Files.CatalogPath())

	if !m.Keep {
		res.RemovedFiles = m.removeConsumed(res.ProcessedFiles)
	}

	slog.Info("merge complete",
		"unique_cards", res.Cards,
		"duplicates", res.Duplicates,
		"missing_id", res.MissingID,
		"size_mb", fmt.Sprintf("%.2f", res.SizeMB))
	if len(res.DuplicateIDs) > 0 {
		slog.Info("duplicate ids", "sample", res.DuplicateIDs)
	}
	catalog.LogSummary(summary)

	for _, issue := range Validate(unique, DefaultValidateSample) {
		slog.Warn("catalog validation", "issue", issue)
	}
	return res, nil
}

func (m *Merger) removeConsumed(processed []string) []string {
	var removed []string
	for _, name := range processed {
		if name == catalog.FileName || name == catalog.SummaryFileName {
			continue
		}
		if err := os.Remove(filepath.Join(m.Files.Dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("could not remove merged file", "file", name, "error", err)
			continue
		}
		removed = append(removed, name)
	}
	return removed
}

// readLoose parses a JSON array of cards one element at a time, so that a
// single malformed record counts as missing instead of failing the file. A
// non-empty array without a single card object is not a card file.
func readLoose(path string) ([]model.Card, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		return nil, 0, errors.New("not a JSON array")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("parse: %w", err)
	}

	cards := make([]model.Card, 0, len(raw))
	missing := 0
	for _, r := range raw {
		var c model.Card
		if !bytes.HasPrefix(bytes.TrimSpace(r), []byte("{")) {
			missing++
			continue
		}
		if err := json.Unmarshal(r, &c); err != nil {
			missing++
			continue
		}
		cards = append(cards, c)
	}
	if len(raw) > 0 && len(cards) == 0 {
		return nil, 0, errors.New("array holds no card records")
	}
	return cards, missing, nil
}
