package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// stateDocument is the on-disk layout of a FileStore.
type stateDocument struct {
	LastTitle string                `json:"lastTitle,omitempty"`
	Batches   map[string]BatchState `json:"batches,omitempty"`
}

// FileStore keeps client state in one JSON file: the placeholders of every
// title with a batch in flight, plus the last title the user worked on.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) LoadBatch(titleID string) (BatchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return BatchState{}, err
	}
	return doc.Batches[titleID], nil
}

// SaveBatch stores state for titleID. A state with no placeholders is
// removed rather than written, keeping only its sequence counter.
func (s *FileStore) SaveBatch(titleID string, state BatchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	if doc.Batches == nil {
		doc.Batches = make(map[string]BatchState)
	}
	if len(state.Placeholders) == 0 {
		state = BatchState{NextSeq: state.NextSeq}
	}
	doc.Batches[titleID] = state
	return s.write(doc)
}

func (s *FileStore) LastTitle() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return "", err
	}
	return doc.LastTitle, nil
}

func (s *FileStore) SetLastTitle(titleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.LastTitle = titleID
	return s.write(doc)
}

func (s *FileStore) read() (stateDocument, error) {
	var doc stateDocument
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FileStore) write(doc stateDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// MemoryStore is a Store that forgets everything on exit.
type MemoryStore struct {
	mu      sync.Mutex
	batches map[string]BatchState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{batches: make(map[string]BatchState)}
}

func (s *MemoryStore) LoadBatch(titleID string) (BatchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.batches[titleID]
	state.Placeholders = append([]Placeholder(nil), state.Placeholders...)
	return state, nil
}

func (s *MemoryStore) SaveBatch(titleID string, state BatchState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.Placeholders = append([]Placeholder(nil), state.Placeholders...)
	s.batches[titleID] = state
	return nil
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
