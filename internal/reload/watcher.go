package reload

import (
	"context"
	"os"
	"time"
)

// Watcher calls Reload when the configuration file's modification time
// changes or a signal arrives on Signals.
type Watcher struct {
	Path string

	// Interval between file checks. Zero or less disables polling.
	Interval time.Duration

	// Signals triggers an immediate reload. May be nil.
	Signals <-chan os.Signal

	// Since is the modification time the running configuration was read
	// at. Edits made after it and before Run starts still trigger a
	// reload. Zero means the time Run starts.
	Since time.Time

	Reload func(context.Context)
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	var tick <-chan time.Time
	if w.Interval > 0 {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	last := w.Since
	if last.IsZero() {
		last = ModTime(w.Path)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.Signals:
			last = ModTime(w.Path)
			w.Reload(ctx)
		case <-tick:
			current := ModTime(w.Path)
			// A missing file is usually an editor mid-save.
			if current.IsZero() || current.Equal(last) {
				continue
			}
			last = current
			w.Reload(ctx)
		}
	}
}

// ModTime returns the file's modification time, or zero when it cannot be
// read.
func ModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
