package ffmpeg

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTimeout marks an external tool exceeding its wall-clock budget.
var ErrTimeout = errors.New("external tool timed out")

// stderrTailLines bounds how much tool output an error may carry.
const stderrTailLines = 30

// ToolError reports a non-zero exit from ffmpeg/ffprobe with a bounded
// tail of its stderr for diagnostics.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.Stderr)
}

// stderrTail keeps the last n lines written to it.
type stderrTail struct {
	lines []string
	max   int
}

func newStderrTail(max int) *stderrTail {
	return &stderrTail{max: max}
}

func (t *stderrTail) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *stderrTail) String() string {
	return strings.Join(t.lines, "\n")
}
