package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kikiluvv/ezclips/pkg/util"
)

// JSONStore keeps the ledger in a single JSON object file. The file is
// re-read on every call so edits made by other tools are honored, and
// rewritten atomically through a temp file on every change.
type JSONStore struct {
	mu   sync.Mutex
	path string
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) IsProcessed(name string) (bool, error) {
	_, err := s.Get(name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *JSONStore) Get(name string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return Entry{}, err
	}
	e, ok := entries[name]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *JSONStore) Record(name string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	entries[name] = e
	return s.save(entries)
}

func (s *JSONStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := entries[name]; !ok {
		return nil
	}
	delete(entries, name)
	return s.save(entries)
}

func (s *JSONStore) All() (map[string]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) load() (map[string]Entry, error) {
	entries := make(map[string]Entry)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return entries, nil
	}

	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *JSONStore) save(entries map[string]Entry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := util.EnsureDir(dir); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	tmp, err := util.TempFile(dir, ".ledger-", ".json")
	if err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	defer util.CleanupFiles(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}

	return os.Rename(tmp.Name(), s.path)
}
