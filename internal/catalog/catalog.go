package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/guarzo/pokepack/internal/model"
)

const (
	FileName        = "cards.json"
	SummaryFileName = "cards-summary.json"
	BackupFileName  = "cards-backup.json"
)

// Files locates the canonical catalog and its companions inside one data
// directory. Exactly one operation may write them at a time.
type Files struct {
	Dir string
}

func (f Files) CatalogPath() string { return filepath.Join(f.Dir, FileName) }
func (f Files) SummaryPath() string { return filepath.Join(f.Dir, SummaryFileName) }
func (f Files) BackupPath() string  { return filepath.Join(f.Dir, BackupFileName) }

// Load reads the canonical catalog.
func (f Files) Load() ([]model.Card, error) {
	return ReadCards(f.CatalogPath())
}

// Save writes cards as the canonical catalog and rewrites the summary.
func (f Files) Save(cards []model.Card, now time.Time) (model.Summary, error) {
	if err := WriteJSON(f.CatalogPath(), cards); err != nil {
		return model.Summary{}, fmt.Errorf("write catalog: %w", err)
	}
	summary := Summarize(cards, now)
	if err := WriteJSON(f.SummaryPath(), summary); err != nil {
		return summary, fmt.Errorf("write summary: %w", err)
	}
	return summary, nil
}

// LoadSummary reads the summary file.
func (f Files) LoadSummary() (model.Summary, error) {
	var s model.Summary
	err := ReadJSON(f.SummaryPath(), &s)
	return s, err
}

// Backup copies the canonical catalog to the backup file. It reports false
// when there is no catalog to back up.
func (f Files) Backup() (bool, error) {
	if _, err := os.Stat(f.CatalogPath()); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := copyFile(f.CatalogPath(), f.BackupPath()); err != nil {
		return false, fmt.Errorf("backup catalog: %w", err)
	}
	return true, nil
}

// Restore copies the backup over the canonical catalog and recomputes the summary.
func (f Files) Restore(now time.Time) error {
	cards, err := ReadCards(f.BackupPath())
	if err != nil {
		return fmt.Errorf("restore catalog: %w", err)
	}
	if _, err := f.Save(cards, now); err != nil {
		return fmt.Errorf("restore catalog: %w", err)
	}
	return nil
}

// ReadCards parses a JSON array of cards.
func ReadCards(path string) ([]model.Card, error) {
	var cards []model.Card
	if err := ReadJSON(path, &cards); err != nil {
		return nil, err
	}
	if cards == nil {
		return nil, fmt.Errorf("%s: not a card array", filepath.Base(path))
	}
	return cards, nil
}

func ReadJSON(path string, into any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteJSON writes v pretty-printed to path. The data goes to a temp file in
// the same directory first and is renamed into place, so readers never see a
// half-written file.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Summarize derives the summary record from a catalog.
func Summarize(cards []model.Card, now time.Time) model.Summary {
	sets := make(map[string]struct{})
	rarities := make(map[string]struct{})
	types := make(map[string]struct{})
	s := model.Summary{TotalCards: len(cards), LastUpdated: now.UTC()}

	for _, c := range cards {
		if name := c.SetName(); name != "" {
			sets[name] = struct{}{}
		}
		if c.Rarity != "" {
			rarities[c.Rarity] = struct{}{}
		}
		for _, t := range c.Types {
			types[t] = struct{}{}
		}
		if c.HasImage() {
			s.CardsWithImages++
		}
		if c.HasPrices() {
			s.CardsWithPrices++
		}
	}

	s.Sets = len(sets)
	s.Rarities = sortedKeys(rarities)
	s.Types = sortedKeys(types)
	return s
}

// LogSummary writes the summary at info level.
func LogSummary(s model.Summary) {
	slog.Info("catalog summary",
		"total_cards", s.TotalCards,
		"sets", s.Sets,
		"rarities", len(s.Rarities),
		"types", len(s.Types),
		"with_images", s.CardsWithImages,
		"with_prices", s.CardsWithPrices)
}

// FileSizeMB returns the size of path in megabytes, or 0 if it cannot be read.
func FileSizeMB(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(info.Size()) / 1024 / 1024
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
