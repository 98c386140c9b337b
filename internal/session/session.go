package session

import (
	"context"
	"time"

	"github.com/clipsmith/clipsmith/internal/ffmpeg"
	"github.com/clipsmith/clipsmith/internal/moments"
)

// Status is the lifecycle state of a compilation session.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusCompiling  Status = "compiling"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Task is one stage of the pipeline as shown to a polling client.
type Task struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Status     string  `json:"status"` // pending, in_progress, done, error
	Progress   float64 `json:"progress"`
	Detail     string  `json:"detail"`
	EtaSeconds *int    `json:"etaSeconds"`
}

// Settings are the user-chosen compilation parameters.
type Settings struct {
	TargetDurationSeconds float64
	Quality               ffmpeg.Quality
	Reframe               ffmpeg.ReframeMode
	Subtitles             bool
	AutoDetect            bool
}

// Session links a moment selection to a later compile/download request.
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time

	Settings Settings
	Videos   []moments.SourceVideo
	Moments  []moments.Moment
	// SourceFiles maps video id to its downloaded local path.
	SourceFiles map[string]string

	Status    Status
	Stage     string
	Progress  float64
	Tasks     []Task
	Error     string
	StartedAt time.Time

	// ArtifactPath is set once compilation succeeds.
	ArtifactPath string

	// compiling gates concurrent compile requests; owned by the store.
	compiling bool

	// ctx is cancelled when the session is deleted or expires, stopping
	// in-flight pipeline work before it can repopulate the workspace.
	ctx    context.Context
	cancel context.CancelFunc

	// Workspace is the session-namespaced temp directory.
	Workspace string
}

// NewTasks returns the three pipeline stages in their initial state.
func NewTasks() []Task {
	return []Task{
		{ID: "download", Label: "Downloading source videos", Status: "pending"},
		{ID: "analyze", Label: "Detecting best moments", Status: "pending"},
		{ID: "compile", Label: "Compiling vertical video", Status: "pending", Detail: "Waiting for download request"},
	}
}

// UpdateTask mutates the named task and recomputes overall progress.
// Callers must hold the store's lock (use Store.Update).
func (s *Session) UpdateTask(taskID string, apply func(*Task)) {
	for i := range s.Tasks {
		if s.Tasks[i].ID == taskID {
			apply(&s.Tasks[i])
			if s.Tasks[i].Progress < 0 {
				s.Tasks[i].Progress = 0
			}
			if s.Tasks[i].Progress > 100 {
				s.Tasks[i].Progress = 100
			}
			break
		}
	}

	var sum float64
	for _, t := range s.Tasks {
		sum += t.Progress
	}
	if len(s.Tasks) > 0 {
		s.Progress = sum / float64(len(s.Tasks))
	}
}

// Eta estimates remaining seconds from elapsed time and percent done.
func Eta(start time.Time, percent float64) *int {
	if start.IsZero() || percent <= 0 || percent >= 100 {
		return nil
	}
	elapsed := time.Since(start).Seconds()
	remaining := int(elapsed * (100 - percent) / percent)
	if remaining < 1 {
		remaining = 1
	}
	return &remaining
}
