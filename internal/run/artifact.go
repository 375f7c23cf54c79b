package run

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EncoderSnapshotPattern matches the snapshot file the encoder readout
// writes at clean shutdown.
const EncoderSnapshotPattern = "encoder_data_*"

// NoMatchingArtifactError indicates no artifact satisfied the locator's
// pattern and notBefore filter. Fatal: without the encoder snapshot the
// run cannot be correlated, and continuing would plot against wrong or
// absent data.
type NoMatchingArtifactError struct {
	Dir       string
	Pattern   string
	NotBefore time.Time
}

func (e *NoMatchingArtifactError) Error() string {
	return fmt.Sprintf("no artifact matching %q in %s modified at or after %s",
		e.Pattern, e.Dir, e.NotBefore.Format(time.RFC3339))
}

// LocateArtifact scans dir (non-recursive) for files matching pattern
// with modification time at or after notBefore, and returns the most
// recently modified match. Older matching files in the same directory
// belong to prior runs and are never selected; the filter is exact, with
// no slack, because the producer flushes the artifact only at its own
// shutdown, which is after run start.
func LocateArtifact(dir, pattern string, notBefore time.Time) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", dir, err)
	}

	var (
		best      string
		bestMtime time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matched, err := filepath.Match(pattern, entry.Name())
		if err != nil {
			return "", fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if !matched {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		mtime := info.ModTime()
		if mtime.Before(notBefore) {
			continue
		}
		if best == "" || mtime.After(bestMtime) {
			best = entry.Name()
			bestMtime = mtime
		}
	}

	if best == "" {
		return "", &NoMatchingArtifactError{Dir: dir, Pattern: pattern, NotBefore: notBefore}
	}
	return filepath.Join(dir, best), nil
}

// ClaimEncoderSnapshot locates this run's encoder snapshot in scanDir and
// moves it into the run directory. The move is a rename, not a copy, so
// the artifact is single-owned from here on.
func (r *Run) ClaimEncoderSnapshot(scanDir string) (string, error) {
	src, err := LocateArtifact(scanDir, EncoderSnapshotPattern, r.StartedAt)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(r.Dir, filepath.Base(src))
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("claim artifact %s: %w", src, err)
	}

	r.log.Info("artifact_claimed",
		"run_id", r.ID,
		"artifact", dst,
	)
	return dst, nil
}
