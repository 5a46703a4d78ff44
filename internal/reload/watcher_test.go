package reload

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func startWatcher(t *testing.T, w *Watcher) (<-chan struct{}, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	calls := make(chan struct{}, 4)
	w.Reload = func(context.Context) { calls <- struct{}{} }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return calls, cancel, done
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chatgate.yaml")
	writeFile(t, path, "initial")
	calls, _, _ := startWatcher(t, &Watcher{Path: path, Interval: 20 * time.Millisecond})

	// Let the watcher record the initial modification time.
	time.Sleep(50 * time.Millisecond)
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	// No further change, no further reload.
	select {
	case <-calls:
		t.Error("unexpected second reload")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_EditBeforeRun(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chatgate.yaml")
	writeFile(t, path, "initial")
	loaded := ModTime(path)

	// Edited after the configuration was read but before polling starts.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	calls, _, _ := startWatcher(t, &Watcher{Path: path, Interval: 20 * time.Millisecond, Since: loaded})

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("edit made before Run was lost")
	}
}

func TestModTime_Missing(t *testing.T) {
	t.Parallel()

	if got := ModTime(filepath.Join(t.TempDir(), "absent.yaml")); !got.IsZero() {
		t.Errorf("ModTime(missing) = %v, want zero", got)
	}
}

func TestWatcher_Signal(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chatgate.yaml")
	writeFile(t, path, "data")
	sig := make(chan os.Signal, 1)
	calls, _, _ := startWatcher(t, &Watcher{Path: path, Signals: sig})

	sig <- syscall.SIGHUP
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chatgate.yaml")
	writeFile(t, path, "data")
	_, cancel, done := startWatcher(t, &Watcher{Path: path, Interval: 10 * time.Millisecond})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
