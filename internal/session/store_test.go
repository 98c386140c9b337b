package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipsmith/clipsmith/internal/ffmpeg"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	store := NewStore(zerolog.New(os.Stderr), t.TempDir(), ttl, time.Hour)
	t.Cleanup(store.Close)
	return store
}

func testSettings() Settings {
	return Settings{
		TargetDurationSeconds: 30,
		Quality:               ffmpeg.Quality720p,
		Reframe:               ffmpeg.ReframeBlurPad,
	}
}

func TestCreateThenGet(t *testing.T) {
	store := newTestStore(t, time.Hour)

	sess, err := store.Create(testSettings())
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID == "" {
		t.Fatal("session id is empty")
	}
	if sess.Status != StatusProcessing {
		t.Errorf("new session status = %s, want processing", sess.Status)
	}

	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != sess.ID {
		t.Errorf("got session %s, want %s", got.ID, sess.ID)
	}
	if got.Settings.Quality != ffmpeg.Quality720p {
		t.Errorf("settings not preserved: %+v", got.Settings)
	}

	if _, err := os.Stat(sess.Workspace); err != nil {
		t.Errorf("workspace dir not provisioned: %v", err)
	}
}

func TestGetUnknownID(t *testing.T) {
	store := newTestStore(t, time.Hour)

	if _, err := store.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t, time.Hour)

	sess, _ := store.Create(testSettings())
	workspace := sess.Workspace

	store.Delete(sess.ID)
	if _, err := store.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: got %v, want ErrNotFound", err)
	}
	if _, err := os.Stat(workspace); !os.IsNotExist(err) {
		t.Error("workspace not removed on delete")
	}

	// A second delete must not panic or error
	store.Delete(sess.ID)
	store.Delete("never-existed")
}

func TestLazyExpiryOnGet(t *testing.T) {
	store := newTestStore(t, 10*time.Millisecond)

	sess, _ := store.Create(testSettings())
	time.Sleep(30 * time.Millisecond)

	if _, err := store.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session: got %v, want ErrNotFound", err)
	}
	if store.Len() != 0 {
		t.Errorf("expired session still resident: len=%d", store.Len())
	}
}

func TestBackgroundSweep(t *testing.T) {
	store := NewStore(zerolog.New(os.Stderr), t.TempDir(), 10*time.Millisecond, 20*time.Millisecond)
	defer store.Close()

	sess, _ := store.Create(testSettings())
	workspace := sess.Workspace

	deadline := time.After(2 * time.Second)
	for store.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("sweep did not evict the expired session")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	if _, err := os.Stat(workspace); !os.IsNotExist(err) {
		t.Error("sweep did not clean the workspace")
	}
}

func TestBeginCompileGating(t *testing.T) {
	store := newTestStore(t, time.Hour)

	sess, _ := store.Create(testSettings())

	// Not ready yet
	if _, err := store.BeginCompile(sess.ID); !errors.Is(err, ErrNotReady) {
		t.Errorf("compile before ready: got %v, want ErrNotReady", err)
	}

	if err := store.Update(sess.ID, func(s *Session) { s.Status = StatusReady }); err != nil {
		t.Fatal(err)
	}

	if _, err := store.BeginCompile(sess.ID); err != nil {
		t.Fatalf("first compile rejected: %v", err)
	}

	// Second concurrent compile fails fast
	if _, err := store.BeginCompile(sess.ID); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent compile: got %v, want ErrBusy", err)
	}

	store.EndCompile(sess.ID, true)
	got, _ := store.Get(sess.ID)
	if got.Status != StatusDone {
		t.Errorf("status after successful compile = %s, want done", got.Status)
	}

	// Compile gate is released; a re-compile may start again
	if _, err := store.BeginCompile(sess.ID); err != nil {
		t.Errorf("recompile after completion rejected: %v", err)
	}
	store.EndCompile(sess.ID, false)
}

func TestBeginCompileUnknownSession(t *testing.T) {
	store := newTestStore(t, time.Hour)
	if _, err := store.BeginCompile("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	// EndCompile for a vanished session is a no-op
	store.EndCompile("ghost", true)
}

func TestUpdateTaskRecomputesProgress(t *testing.T) {
	store := newTestStore(t, time.Hour)
	sess, _ := store.Create(testSettings())

	err := store.Update(sess.ID, func(s *Session) {
		s.UpdateTask("download", func(t *Task) {
			t.Status = "done"
			t.Progress = 100
		})
		s.UpdateTask("analyze", func(t *Task) {
			t.Status = "in_progress"
			t.Progress = 50
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := store.Get(sess.ID)
	if got.Progress != 50 {
		t.Errorf("overall progress = %f, want 50 (mean of 100, 50, 0)", got.Progress)
	}
}

func TestUpdateTaskClampsProgress(t *testing.T) {
	store := newTestStore(t, time.Hour)
	sess, _ := store.Create(testSettings())

	store.Update(sess.ID, func(s *Session) {
		s.UpdateTask("download", func(t *Task) { t.Progress = 150 })
	})
	got, _ := store.Get(sess.ID)
	if got.Tasks[0].Progress != 100 {
		t.Errorf("progress not clamped: %f", got.Tasks[0].Progress)
	}
}

func TestWorkspaceIsNamespacedBySession(t *testing.T) {
	store := newTestStore(t, time.Hour)

	a, _ := store.Create(testSettings())
	b, _ := store.Create(testSettings())

	if a.Workspace == b.Workspace {
		t.Error("sessions share a workspace directory")
	}
	if filepath.Base(a.Workspace) != a.ID {
		t.Errorf("workspace %s not named by session id %s", a.Workspace, a.ID)
	}
}

func TestEta(t *testing.T) {
	if got := Eta(time.Time{}, 50); got != nil {
		t.Error("zero start should yield nil ETA")
	}
	if got := Eta(time.Now(), 0); got != nil {
		t.Error("zero percent should yield nil ETA")
	}
	if got := Eta(time.Now(), 100); got != nil {
		t.Error("complete should yield nil ETA")
	}
	start := time.Now().Add(-10 * time.Second)
	got := Eta(start, 50)
	if got == nil || *got < 9 || *got > 11 {
		t.Errorf("ETA at 50%% after 10s = %v, want ~10", got)
	}
}

func TestGetIsSafeDuringUpdates(t *testing.T) {
	store := newTestStore(t, time.Hour)

	sess, err := store.Create(testSettings())
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			store.Update(sess.ID, func(s *Session) {
				s.UpdateTask("download", func(task *Task) {
					task.Progress = float64(i % 100)
					task.Detail = "Downloading"
				})
			})
		}
	}()

	for i := 0; i < 500; i++ {
		got, err := store.Get(sess.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Tasks) != 3 {
			t.Fatalf("snapshot has %d tasks, want 3", len(got.Tasks))
		}
	}
	<-done
}

func TestContextCancelledOnDelete(t *testing.T) {
	store := newTestStore(t, time.Hour)

	sess, err := store.Create(testSettings())
	if err != nil {
		t.Fatal(err)
	}

	ctx := store.Context(sess.ID)
	if ctx.Err() != nil {
		t.Fatal("live session context should not be cancelled")
	}

	store.Delete(sess.ID)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled by delete")
	}

	if unknown := store.Context("nope"); unknown.Err() == nil {
		t.Error("unknown session should yield a cancelled context")
	}
}

func TestContextCancelledOnExpiry(t *testing.T) {
	store := newTestStore(t, 10*time.Millisecond)

	sess, err := store.Create(testSettings())
	if err != nil {
		t.Fatal(err)
	}
	ctx := store.Context(sess.ID)

	time.Sleep(20 * time.Millisecond)
	if _, err := store.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected lazy expiry, got %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled by expiry")
	}
}
