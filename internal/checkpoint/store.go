package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/guarzo/pokepack/internal/catalog"
	"github.com/guarzo/pokepack/internal/model"
)

const (
	ProgressFileName = "scrape-progress.json"
	FailuresFileName = "scrape-failures.json"

	// Label prefixes used by the ingest runs.
	PrefixTemp      = "temp-"
	PrefixTempBatch = "temp-batch-"
	PrefixRetry     = "retry-"
)

// ErrNotFound is returned when a checkpoint, progress marker or failure
// ledger does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists partial scrape results next to the canonical catalog.
// Every write replaces the whole file.
type Store struct {
	dir string
	now func() time.Time
}

func New(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Path returns the file name used for a checkpoint label, e.g.
// "temp-20" becomes cards-temp-20.json.
func (s *Store) Path(label string) string {
	return filepath.Join(s.dir, "cards-"+label+".json")
}

// Checkpoint writes a full snapshot of the cards collected so far.
func (s *Store) Checkpoint(cards []model.Card, label string) error {
	if cards == nil {
		cards = []model.Card{}
	}
	if err := catalog.WriteJSON(s.Path(label), cards); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", label, err)
	}
	return nil
}

func (s *Store) LoadCheckpoint(label string) ([]model.Card, error) {
	cards, err := catalog.ReadCards(s.Path(label))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", label, err)
	}
	return cards, nil
}

func (s *Store) SaveProgress(p model.Progress) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = s.now().UTC()
	}
	if p.FailedPages == nil {
		p.FailedPages = []int{}
	}
	if err := catalog.WriteJSON(filepath.Join(s.dir, ProgressFileName), p); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

func (s *Store) LoadProgress() (model.Progress, error) {
	var p model.Progress
	err := catalog.ReadJSON(filepath.Join(s.dir, ProgressFileName), &p)
	if errors.Is(err, os.ErrNotExist) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, fmt.Errorf("load progress: %w", err)
	}
	return p, nil
}

func (s *Store) ClearProgress() error {
	return removeIfExists(filepath.Join(s.dir, ProgressFileName))
}

// SaveFailures records the pages that exhausted their retries. An empty
// list clears the ledger instead.
func (s *Store) SaveFailures(mode string, pages []int) error {
	if len(pages) == 0 {
		return s.ClearFailures()
	}
	sorted := append([]int(nil), pages...)
	sort.Ints(sorted)
	ledger := model.FailureLedger{Mode: mode, FailedPages: sorted, Timestamp: s.now().UTC()}
	if err := catalog.WriteJSON(filepath.Join(s.dir, FailuresFileName), ledger); err != nil {
		return fmt.Errorf("write failure ledger: %w", err)
	}
	return nil
}

func (s *Store) LoadFailures() (model.FailureLedger, error) {
	var l model.FailureLedger
	err := catalog.ReadJSON(filepath.Join(s.dir, FailuresFileName), &l)
	if errors.Is(err, os.ErrNotExist) {
		return l, ErrNotFound
	}
	if err != nil {
		return l, fmt.Errorf("load failure ledger: %w", err)
	}
	return l, nil
}

func (s *Store) ClearFailures() error {
	return removeIfExists(filepath.Join(s.dir, FailuresFileName))
}

// Remove deletes one checkpoint. A missing file is not an error.
func (s *Store) Remove(label string) error {
	return removeIfExists(s.Path(label))
}

// RemoveMatching deletes every checkpoint whose label starts with prefix
// and returns the removed file names.
func (s *Store) RemoveMatching(prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "cards-"+prefix+"*.json"))
	if err != nil {
		return nil, err
	}

	var removed []string
	var errs []error
	for _, path := range matches {
		if err := removeIfExists(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, filepath.Base(path))
	}
	return removed, errors.Join(errs...)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
