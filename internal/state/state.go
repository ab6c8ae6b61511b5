// Package state persists the set of already-notified seminar keys.
//
// The on-disk shape is a small JSON document:
//
//	{"sent": ["<key>", ...], "last_sent_at": "..."}
//
// A missing file means nothing was sent yet (the documented first-run
// behavior). A file that exists but cannot be decoded is a fatal
// condition: the run refuses to guess and never overwrites a possibly
// recoverable file with an empty one.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"seminarcal/internal/model"
)

// ErrCorrupt marks a state file that exists but cannot be decoded.
var ErrCorrupt = errors.New("state file is corrupt")

// Store reads and writes the sent-state file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

type stateFile struct {
	Sent       []string  `json:"sent"`
	LastSentAt time.Time `json:"last_sent_at,omitzero"`
}

// Load reads the persisted state. A missing file yields an empty state,
// not an error.
func (s *Store) Load() (model.SentState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.NewSentState(), nil
		}
		return model.SentState{}, fmt.Errorf("read state %s: %w", s.path, err)
	}

	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return model.SentState{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	st := model.NewSentState()
	st.LastSentAt = sf.LastSentAt
	for _, k := range sf.Sent {
		st.Sent[k] = struct{}{}
	}
	return st, nil
}

// Commit extends the state with the given keys and persists it via an
// atomic temp-file + rename. It must only be called after the send was
// confirmed; a crash between send success and Commit is an accepted rare
// duplicate-notification risk. The reverse ordering (commit before send)
// would silently drop seminars on a transient send failure.
func (s *Store) Commit(st model.SentState, keys []string, sentAt time.Time) (model.SentState, error) {
	next := st.With(keys, sentAt)
	if err := s.save(next); err != nil {
		return st, err
	}
	return next, nil
}

func (s *Store) save(st model.SentState) error {
	sent := st.Keys()
	sort.Strings(sent)

	data, err := json.MarshalIndent(stateFile{
		Sent:       sent,
		LastSentAt: st.LastSentAt,
	}, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".seminarcal-state-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
