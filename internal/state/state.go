// Package state persists the interactive account document (seed, holding,
// tranche step, and the append-only trade log) as a flat JSON file that is
// read once at startup and rewritten wholesale on every change.
package state

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"locline/internal/domain"
)

// DefaultSeed is the seed of the example account used when no state file
// exists or the existing one cannot be read.
const DefaultSeed = 37000

// Document is the on-disk shape of the account state.
type Document struct {
	Seed   float64              `json:"seed"`
	Qty    int64                `json:"qty"`
	Avg    float64              `json:"avg"`
	Step   int                  `json:"step"`
	Cash   float64              `json:"cash"`
	Trades []domain.TradeRecord `json:"trades"`
}

// Store holds the account document in memory with JSON persistence. Any
// read failure (missing file, malformed JSON) falls back to the default
// example account rather than surfacing an error.
type Store struct {
	mu       sync.Mutex
	doc      Document
	filePath string
	log      *slog.Logger
}

// NewStore creates a Store, loading persisted state from filePath.
func NewStore(filePath string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		filePath: filePath,
		log:      log.With("component", "state"),
	}
	s.load()
	return s
}

// Account returns the current account state.
func (s *Store) Account() domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Account{
		Seed:     s.doc.Seed,
		Cash:     s.doc.Cash,
		Qty:      s.doc.Qty,
		AvgPrice: s.doc.Avg,
		Step:     s.doc.Step,
	}
}

// Trades returns a copy of the trade log.
func (s *Store) Trades() []domain.TradeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TradeRecord, len(s.doc.Trades))
	copy(out, s.doc.Trades)
	return out
}

// SetAccount replaces the account fields and persists, leaving the trade
// log untouched.
func (s *Store) SetAccount(a domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(a)
	s.flush()
}

// ApplyTrade replaces the account fields, appends the trade record, and
// persists, all as one write.
func (s *Store) ApplyTrade(a domain.Account, rec domain.TradeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(a)
	s.doc.Trades = append(s.doc.Trades, rec)
	s.flush()
}

func (s *Store) setLocked(a domain.Account) {
	s.doc.Seed = a.Seed
	s.doc.Cash = a.Cash
	s.doc.Qty = a.Qty
	s.doc.Avg = a.AvgPrice
	s.doc.Step = a.Step
}

// load reads the JSON file into memory, falling back to the example
// account on any failure.
func (s *Store) load() {
	defaults := domain.NewAccount(DefaultSeed)
	s.setLocked(defaults)

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("reading state file, starting from defaults", "error", err)
		}
		return
	}

	var loaded Document
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.log.Warn("parsing state file, starting from defaults", "error", err)
		return
	}
	if loaded.Step < 1 {
		loaded.Step = 1
	}
	s.doc = loaded
	s.log.Info("loaded account state", "seed", loaded.Seed, "qty", loaded.Qty, "trades", len(loaded.Trades))
}

// flush writes the in-memory document to disk. Must be called with mu held.
func (s *Store) flush() {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		s.log.Error("marshalling state", "error", err)
		return
	}
	if err := os.WriteFile(s.filePath, data, 0o644); err != nil {
		s.log.Error("writing state file", "error", err)
	}
}
