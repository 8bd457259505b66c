// Package store provides crash-safe bet ledger persistence using JSON files.
//
// Each bet is stored as a separate file: bet_<id>.json, where id is the
// record's UUID. Writes use atomic file replacement (write to .tmp, then
// rename) so a record is never left half written. The bet workflow saves a
// record when its transaction is accepted by the node and again when the
// receipt settles it; the API reads them back.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"azuro-bet/pkg/types"
)

const (
	filePrefix = "bet_"
	fileSuffix = ".json"
)

// ErrInvalidID is returned for a record id that is not a UUID.
var ErrInvalidID = errors.New("invalid bet id")

// Store persists bet records to JSON files in a designated directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	dir string     // directory containing bet_*.json files
	mu  sync.Mutex // serializes all file operations
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// SaveBet atomically writes rec, replacing any earlier version.
func (s *Store) SaveBet(rec types.BetRecord) error {
	path, err := s.path(rec.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal bet: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write bet: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadBet reads one record. Returns nil, nil if no record exists.
func (s *Store) LoadBet(id string) (*types.BetRecord, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read bet: %w", err)
	}

	var rec types.BetRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal bet: %w", err)
	}
	return &rec, nil
}

// ListBets returns every record, newest first.
func (s *Store) ListBets() ([]types.BetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}

	var out []types.BetRecord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read bet %s: %w", name, err)
		}
		var rec types.BetRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal bet %s: %w", name, err)
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// path maps a record id to its file. Only UUIDs are accepted so an id can
// never escape the store directory.
func (s *Store) path(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidID, id, err)
	}
	return filepath.Join(s.dir, filePrefix+parsed.String()+fileSuffix), nil
}
