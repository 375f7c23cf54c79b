package logging

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the maximum number of lines buffered per role.
	MaxBufferedLines = 100

	// drainTimeout bounds how long Close waits for the reader goroutine.
	drainTimeout = 5 * time.Second
)

// Follower tees a subprocess's combined output into its role log file
// inside the run directory (camera.log, motor.log) while classifying
// lines into the structured log. It buffers recent lines for the exit
// summary.
//
// Quiet() mutes console logging before the subprocess is signalled so
// shutdown output does not interleave with supervisor logs; the file tee
// keeps draining until the subprocess closes its end of the pipe.
type Follower struct {
	role    string
	logger  *slog.Logger
	verbose bool

	file *os.File

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	mu     sync.Mutex

	quiet bool
	done  chan struct{}
}

// NewFollower creates a follower writing to the log file at path.
func NewFollower(role, path string, logger *slog.Logger, verbose bool) (*Follower, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Follower{
		role:    role,
		logger:  logger,
		verbose: verbose,
		file:    file,
		buffer:  make([]string, MaxBufferedLines),
		done:    make(chan struct{}),
	}, nil
}

// Follow reads from r until EOF, handling each line. Run in a goroutine;
// r is the read end of the subprocess's output pipe, so EOF arrives when
// the subprocess exits.
//
// The follower is the pipe's only drainer, so it must never stop reading
// before EOF: a stalled read would eventually block the subprocess on
// write. Lines longer than MaxLineLength are truncated and draining
// continues.
func (f *Follower) Follow(r io.Reader) {
	defer close(f.done)

	br := bufio.NewReaderSize(r, MaxLineLength)
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if len(line) <= MaxLineLength {
			line = append(line, chunk...)
		}
		if err == bufio.ErrBufferFull {
			// Overlong line; keep consuming it. HandleLine truncates.
			continue
		}

		text := strings.TrimSuffix(string(line), "\n")
		line = line[:0]
		if text != "" || err == nil {
			f.HandleLine(text)
		}
		if err != nil {
			return
		}
	}
}

// HandleLine processes a single line of subprocess output.
func (f *Follower) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	f.mu.Lock()
	f.buffer[f.bufIdx] = line
	f.bufIdx = (f.bufIdx + 1) % MaxBufferedLines
	quiet := f.quiet
	f.mu.Unlock()

	f.file.WriteString(line + "\n")

	if !quiet {
		f.logLine(line)
	}
}

// logLine logs the line at a level based on content.
func (f *Follower) logLine(line string) {
	level := f.classifyLine(line)

	// In non-verbose mode, only log warnings and errors
	if !f.verbose && level == slog.LevelDebug {
		return
	}

	f.logger.Log(nil, level, "subprocess_output",
		"role", f.role,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func (f *Follower) classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "[err") ||
		strings.Contains(lower, "error") ||
		strings.Contains(lower, "fail") {
		return slog.LevelWarn
	}

	if strings.Contains(lower, "[warn") ||
		strings.Contains(lower, "dropped") ||
		strings.Contains(lower, "retry") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// Quiet mutes console logging. Called before the subprocess is signalled.
func (f *Follower) Quiet() {
	f.mu.Lock()
	f.quiet = true
	f.mu.Unlock()
}

// Close waits for the reader to drain (bounded) and closes the log file.
// Call after the subprocess has been waited on.
func (f *Follower) Close() error {
	select {
	case <-f.done:
	case <-time.After(drainTimeout):
		f.logger.Warn("follower_drain_timeout",
			"role", f.role,
			"timeout", drainTimeout.String(),
		)
	}
	return f.file.Close()
}

// RecentLines returns the most recent lines from the buffer.
func (f *Follower) RecentLines(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (f.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if f.buffer[idx] != "" {
			lines = append(lines, f.buffer[idx])
		}
	}

	return lines
}
