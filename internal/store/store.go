// Package store persists one JSON record per clip under
// <root>/<episode>/clips/<hook>_metadata.json, the layout the review
// collaborator reads. Writes are atomic (temp file + rename) and mutation is
// guarded by an identity-scoped lock: a per-hook mutex inside the process and
// an exclusive lock file against other processes.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/types"
)

var (
	ErrNotFound = errors.New("store: clip record not found")
	ErrLocked   = errors.New("store: clip record locked by another process")
)

const recordSuffix = "_metadata.json"

type Store struct {
	root       string
	staleAfter time.Duration

	mu    sync.Mutex
	hooks map[string]*sync.Mutex
}

// New roots a store at the episodes directory. staleAfter bounds how long an
// abandoned lock file (crashed process) blocks a hook; zero picks a default.
func New(root string, staleAfter time.Duration) *Store {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &Store{root: root, staleAfter: staleAfter, hooks: make(map[string]*sync.Mutex)}
}

func (s *Store) ClipsDir(episode string) string {
	return filepath.Join(s.root, episode, "clips")
}

// VideoPath is where a clip's rendered artifact lives, next to its record.
func (s *Store) VideoPath(episode, hook string) string {
	return filepath.Join(s.ClipsDir(episode), hook+".mp4")
}

// SubtitlePath is the ASS track rendered next to the clip video.
func (s *Store) SubtitlePath(episode, hook string) string {
	return filepath.Join(s.ClipsDir(episode), hook+".ass")
}

func (s *Store) recordPath(episode, hook string) string {
	return filepath.Join(s.ClipsDir(episode), hook+recordSuffix)
}

// Load reads one record. Older records written before the review flow gained
// statuses have none; they read back as draft.
func (s *Store) Load(episode, hook string) (types.ClipRecord, error) {
	b, err := os.ReadFile(s.recordPath(episode, hook))
	if err != nil {
		if os.IsNotExist(err) {
			return types.ClipRecord{}, fmt.Errorf("%w: %s/%s", ErrNotFound, episode, hook)
		}
		return types.ClipRecord{}, fmt.Errorf("store: read record %s/%s: %w", episode, hook, err)
	}

	var rec types.ClipRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return types.ClipRecord{}, fmt.Errorf("store: decode record %s/%s: %w", episode, hook, err)
	}
	if rec.Hook == "" {
		rec.Hook = hook
	}
	if rec.Status == "" {
		rec.Status = types.StatusDraft
	}
	if err := rec.Validate(); err != nil {
		return types.ClipRecord{}, fmt.Errorf("store: %w", err)
	}
	return rec, nil
}

// Save writes a record atomically: readers see either the old version or the
// new one, never a torn file.
func (s *Store) Save(episode, hook string, rec types.ClipRecord) error {
	rec.Hook = hook
	if rec.Status == "" {
		rec.Status = types.StatusDraft
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	dir := s.ClipsDir(episode)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create clips dir: %w", err)
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode record %s/%s: %w", episode, hook, err)
	}

	tmp := filepath.Join(dir, "."+hook+"-"+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("store: write record %s/%s: %w", episode, hook, err)
	}
	if err := os.Rename(tmp, s.recordPath(episode, hook)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: commit record %s/%s: %w", episode, hook, err)
	}
	return nil
}

// List returns every record of an episode, sorted by hook.
func (s *Store) List(episode string) ([]types.ClipRecord, error) {
	entries, err := os.ReadDir(s.ClipsDir(episode))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: list episode %s: %w", episode, err)
	}

	var hooks []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		hooks = append(hooks, strings.TrimSuffix(name, recordSuffix))
	}
	sort.Strings(hooks)

	out := make([]types.ClipRecord, 0, len(hooks))
	for _, h := range hooks {
		rec, err := s.Load(episode, h)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Lock serializes mutation of one clip identity. Within the process callers
// queue on a mutex; against other processes (a running review server next to
// a batch job) an exclusive lock file yields ErrLocked instead of blocking.
// The returned unlock is safe to call more than once.
func (s *Store) Lock(episode, hook string) (func(), error) {
	m := s.hookMutex(episode + "/" + hook)
	m.Lock()

	lockPath := s.recordPath(episode, hook) + ".lock"
	if err := s.acquireLockFile(lockPath); err != nil {
		m.Unlock()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			os.Remove(lockPath)
			m.Unlock()
		})
	}, nil
}

func (s *Store) hookMutex(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.hooks[key]
	if !ok {
		m = &sync.Mutex{}
		s.hooks[key] = m
	}
	return m
}

func (s *Store) acquireLockFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: create clips dir: %w", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%s\n", strconv.Itoa(os.Getpid()))
			return f.Close()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("store: acquire lock: %w", err)
		}

		info, statErr := os.Stat(path)
		if statErr != nil {
			// Holder released between our open and stat; retry.
			continue
		}
		if time.Since(info.ModTime()) < s.staleAfter {
			return fmt.Errorf("%w: %s", ErrLocked, path)
		}
		// Stale lock from a dead process; break it and retry once.
		os.Remove(path)
	}
	return fmt.Errorf("%w: %s", ErrLocked, path)
}
