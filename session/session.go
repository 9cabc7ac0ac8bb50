// Package session holds the per-project conversation log.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Fenix46/VibeCLI/errors"
	"github.com/google/uuid"
)

// MaxTurns bounds the log; older turns are pruned first.
const MaxTurns = 50

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one immutable entry of the conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the ordered, size-bounded conversation log of one project.
// It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	id         string
	projectDir string
	turns      []Turn
	path       string
}

type storeFile struct {
	ID         string `json:"id"`
	ProjectDir string `json:"project_dir"`
	Turns      []Turn `json:"turns"`
}

// Path returns where the context of projectDir is persisted.
func Path(projectDir string) string {
	return filepath.Join(projectDir, ".vibecli", "context.json")
}

// New creates an empty store for projectDir without touching disk.
func New(projectDir string) *Store {
	return &Store{
		id:         uuid.NewString(),
		projectDir: projectDir,
		path:       Path(projectDir),
	}
}

// Open loads the persisted context of projectDir, or returns an empty store if none exists.
func Open(projectDir string) (*Store, error) {
	s := New(projectDir)
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not read context file %s", s.path)
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "could not parse context file %s", s.path)
	}
	if f.ID != "" {
		s.id = f.ID
	}
	s.turns = f.Turns
	s.prune()
	return s, nil
}

// Reset deletes the persisted context of projectDir. A missing file is not an error.
func Reset(projectDir string) error {
	err := os.Remove(Path(projectDir))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "could not remove context file")
	}
	return nil
}

func (s *Store) ID() string { return s.id }

func (s *Store) ProjectDir() string { return s.projectDir }

// AppendTurn adds a turn, pruning the oldest ones beyond MaxTurns.
// A zero timestamp is set to now.
func (s *Store) AppendTurn(t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	s.prune()
}

func (s *Store) prune() {
	if over := len(s.turns) - MaxTurns; over > 0 {
		s.turns = append([]Turn(nil), s.turns[over:]...)
	}
}

// RecentTurns returns a copy of the last limit turns in chronological order.
// A limit <= 0 returns every turn.
func (s *Store) RecentTurns(limit int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.turns) > limit {
		start = len(s.turns) - limit
	}
	return append([]Turn(nil), s.turns[start:]...)
}

// Turns returns a copy of the whole log.
func (s *Store) Turns() []Turn { return s.RecentTurns(0) }

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Clear empties the log in memory. Call Save to persist it.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Save writes the log to disk.
func (s *Store) Save() error {
	s.mu.RLock()
	f := storeFile{ID: s.id, ProjectDir: s.projectDir, Turns: s.turns}
	if f.Turns == nil {
		f.Turns = []Turn{}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return errors.Wrapf(err, "failed to serialize context")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrapf(err, "could not create context directory")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrapf(err, "could not write context file %s", s.path)
	}
	return nil
}
