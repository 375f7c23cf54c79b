// Package supervisor coordinates subprocess lifecycle for one acquisition
// run: readiness observation, ordered shutdown with escalating signals,
// and the optional duration-based auto-stop.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	// ErrReadinessTimeout is returned when the expected path never
	// appeared within the readiness deadline.
	ErrReadinessTimeout = errors.New("readiness timeout")

	// ErrDiedBeforeReady is returned when the watched subprocess exited
	// before producing its first output, distinguishable from a timeout.
	ErrDiedBeforeReady = errors.New("subprocess exited before becoming ready")
)

// readyPollInterval is how often the watcher re-checks the filesystem.
const readyPollInterval = 200 * time.Millisecond

// WaitReady polls for the existence of path, bounded by timeout. The
// capture collaborator creates its output directory lazily on the first
// successful frame, so the path appearing is the readiness signal.
//
// Each iteration checks alive() first: a dead subprocess fails
// immediately with ErrDiedBeforeReady instead of waiting out the timeout.
func WaitReady(ctx context.Context, path string, timeout time.Duration, alive func() bool) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		if !alive() {
			return ErrDiedBeforeReady
		}

		if _, err := os.Stat(path); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: %s did not appear within %s", ErrReadinessTimeout, path, timeout)
		case <-ticker.C:
		}
	}
}
