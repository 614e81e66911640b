package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/types"
)

func testRecord(hook string) types.ClipRecord {
	return types.ClipRecord{
		Hook:               hook,
		TweetText:          "why the market stayed flat",
		Timestamps:         []types.SegmentStamp{{StartMS: 4000, DurationMS: 5400}},
		SegmentTranscripts: []string{"the answer is that there is no outside the system"},
		Status:             types.StatusDraft,
		VideoFile:          hook + ".mp4",
	}
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir(), 0)
	want := testRecord("flat-market")
	if err := s.Save("ep1", "flat-market", want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load("ep1", "flat-market")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.TweetText != want.TweetText || got.Status != types.StatusDraft {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if len(got.Timestamps) != 1 || got.Timestamps[0].DurationMS != 5400 {
		t.Fatalf("timestamps mismatch: %+v", got.Timestamps)
	}
}

func TestLoad_NotFound(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir(), 0)
	_, err := s.Load("ep1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoad_DefaultsStatusToDraft(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(root, 0)

	// An old record written before statuses existed.
	dir := s.ClipsDir("ep1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	old := `{"tweet_text":"legacy","timestamps":[{"start_ms":0,"duration_ms":1000}],"segment_transcripts":["x"]}`
	if err := os.WriteFile(filepath.Join(dir, "legacy_metadata.json"), []byte(old), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rec, err := s.Load("ep1", "legacy")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Status != types.StatusDraft {
		t.Fatalf("expected draft default, got %q", rec.Status)
	}
	if rec.Hook != "legacy" {
		t.Fatalf("expected hook filled from filename, got %q", rec.Hook)
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir(), 0)
	if err := s.Save("ep1", "h1", testRecord("h1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(s.ClipsDir("ep1"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestList_SortedByHook(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir(), 0)
	for _, h := range []string{"zebra", "alpha", "mid"} {
		if err := s.Save("ep1", h, testRecord(h)); err != nil {
			t.Fatalf("save %s: %v", h, err)
		}
	}

	recs, err := s.List("ep1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Hook != "alpha" || recs[2].Hook != "zebra" {
		t.Fatalf("unexpected order: %s, %s, %s", recs[0].Hook, recs[1].Hook, recs[2].Hook)
	}
}

func TestList_EmptyEpisode(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir(), 0)
	recs, err := s.List("nothing-here")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no records, got %d", len(recs))
	}
}

func TestLock_CrossProcessConflict(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(root, time.Hour)

	// Simulate another process holding the lock file.
	dir := s.ClipsDir("ep1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	lockPath := filepath.Join(dir, "h1_metadata.json.lock")
	if err := os.WriteFile(lockPath, []byte("9999\n"), 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	_, err := s.Lock("ep1", "h1")
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestLock_StaleLockBroken(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(root, 50*time.Millisecond)

	dir := s.ClipsDir("ep1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	lockPath := filepath.Join(dir, "h1_metadata.json.lock")
	if err := os.WriteFile(lockPath, []byte("9999\n"), 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	stale := time.Now().Add(-time.Minute)
	if err := os.Chtimes(lockPath, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	unlock, err := s.Lock("ep1", "h1")
	if err != nil {
		t.Fatalf("expected stale lock to be broken, got %v", err)
	}
	unlock()

	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatalf("lock file not released, stat err=%v", err)
	}
}

func TestLock_SerializesSameHook(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir(), time.Hour)
	unlock, err := s.Lock("ep1", "h1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		u2, err := s.Lock("ep1", "h1")
		if err != nil {
			t.Errorf("second lock: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		u2()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	unlock() // double release is a no-op

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}

func TestLock_DifferentHooksIndependent(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir(), time.Hour)
	u1, err := s.Lock("ep1", "h1")
	if err != nil {
		t.Fatalf("lock h1: %v", err)
	}
	defer u1()

	u2, err := s.Lock("ep1", "h2")
	if err != nil {
		t.Fatalf("lock h2 should not conflict: %v", err)
	}
	u2()
}
