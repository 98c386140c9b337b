package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clipsmith/clipsmith/internal/captions"
	"github.com/clipsmith/clipsmith/internal/ffmpeg"
	"github.com/clipsmith/clipsmith/internal/logging"
	"github.com/clipsmith/clipsmith/internal/moments"
	"github.com/clipsmith/clipsmith/internal/session"
	"github.com/clipsmith/clipsmith/pkg/util"
)

// Compile renders every enabled moment and concatenates them into the
// session's artifact. At most one compile runs per session; a second
// concurrent call fails fast with session.ErrBusy.
func (p *Pipeline) Compile(ctx context.Context, id string) (string, error) {
	sess, err := p.store.BeginCompile(id)
	if err != nil {
		return "", err
	}

	// Deleting the session mid-compile must stop the renders and keep
	// them from repopulating the removed workspace.
	sessCtx := p.store.Context(id)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sessCtx, cancel)
	defer stop()

	p.update(id, func(s *session.Session) {
		s.Stage = "Compiling vertical video"
		s.UpdateTask("compile", func(t *session.Task) {
			t.Status = "in_progress"
			t.Progress = 0
			t.Detail = "Rendering clips"
		})
	})

	artifact, err := p.compile(ctx, sess)
	if sessCtx.Err() != nil {
		os.RemoveAll(sess.Workspace)
		return "", fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	if err != nil {
		p.update(id, func(s *session.Session) {
			s.Error = err.Error()
			s.UpdateTask("compile", func(t *session.Task) {
				t.Status = "error"
				t.Detail = err.Error()
				t.EtaSeconds = nil
			})
		})
		p.store.EndCompile(id, false)
		return "", err
	}

	p.update(id, func(s *session.Session) {
		s.ArtifactPath = artifact
		s.Stage = "Done"
		s.Error = ""
		s.UpdateTask("compile", func(t *session.Task) {
			t.Status = "done"
			t.Progress = 100
			t.Detail = "Compilation ready"
			t.EtaSeconds = nil
		})
	})
	p.store.EndCompile(id, true)

	log := logging.WithSession(p.logger, id)
	log.Info().Str("artifact", artifact).Msg("compilation complete")
	return artifact, nil
}

func (p *Pipeline) compile(ctx context.Context, sess *session.Session) (string, error) {
	var selected []moments.Moment
	for _, m := range sess.Moments {
		if m.Enabled {
			selected = append(selected, m)
		}
	}
	if len(selected) == 0 {
		return "", &CompileError{Reason: "no enabled moments"}
	}

	// Sequencing follows Order regardless of render completion order.
	sort.Slice(selected, func(i, j int) bool { return selected[i].Order < selected[j].Order })

	for _, m := range selected {
		if path, ok := sess.SourceFiles[m.SourceID]; !ok || !util.FileExists(path) {
			return "", &CompileError{Reason: fmt.Sprintf("source file missing for clip %d", m.Order)}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	clips, err := p.renderClips(ctx, cancel, sess, selected, started)
	if err != nil {
		util.CleanupFiles(clips...)
		return "", err
	}
	defer util.CleanupFiles(clips...)

	output := filepath.Join(sess.Workspace, fmt.Sprintf("compilation_%s.mp4", sess.Settings.Quality))
	err = p.exec.Concat(ctx, ffmpeg.ConcatOptions{
		Inputs:  clips,
		Output:  output,
		Quality: sess.Settings.Quality,
		Timeout: p.cfg.FFmpeg.RenderTimeout,
	})
	if err != nil {
		return "", &CompileError{Reason: "concatenation failed", Cause: err}
	}

	return output, nil
}

// renderClips renders the selected moments on a bounded worker pool.
// The first failure cancels in-flight renders; intermediate files are
// owned by the caller.
func (p *Pipeline) renderClips(ctx context.Context, cancel context.CancelFunc, sess *session.Session, selected []moments.Moment, started time.Time) ([]string, error) {
	workers := p.cfg.RenderWorkers
	if workers < 1 {
		workers = 1
	}

	outputs := make([]string, len(selected))
	sem := make(chan struct{}, workers)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		done     int
	)

	for i, m := range selected {
		outputs[i] = filepath.Join(sess.Workspace, fmt.Sprintf("clip_%03d.mp4", m.Order))

		wg.Add(1)
		go func(m moments.Moment, output string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			if err := p.renderOne(ctx, sess, m, output); err != nil {
				mu.Lock()
				if firstErr == nil && ctx.Err() == nil {
					firstErr = &RenderError{Order: m.Order, Cause: err}
					cancel()
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			done++
			// Concatenation takes the last stretch of the compile task.
			pct := float64(done) / float64(len(selected)) * 90
			count := done
			mu.Unlock()

			p.update(sess.ID, func(s *session.Session) {
				s.UpdateTask("compile", func(t *session.Task) {
					t.Progress = pct
					t.Detail = fmt.Sprintf("Rendered clip %d of %d", count, len(selected))
					t.EtaSeconds = session.Eta(started, pct)
				})
			})
		}(m, outputs[i])
	}
	wg.Wait()

	if firstErr != nil {
		return outputs, firstErr
	}
	if err := ctx.Err(); err != nil {
		return outputs, err
	}
	return outputs, nil
}

// renderOne renders a single moment, burning in captions when the
// session asks for them. A render that fails with subtitles attached is
// retried once without them before the error propagates.
func (p *Pipeline) renderOne(ctx context.Context, sess *session.Session, m moments.Moment, output string) error {
	input := sess.SourceFiles[m.SourceID]

	opts := ffmpeg.ClipRenderOptions{
		Start:      time.Duration(m.Start * float64(time.Second)),
		End:        time.Duration(m.End * float64(time.Second)),
		Output:     output,
		Quality:    sess.Settings.Quality,
		Reframe:    sess.Settings.Reframe,
		CropCenter: 0.5,
		Timeout:    p.cfg.FFmpeg.RenderTimeout,
	}

	if sess.Settings.Subtitles {
		caption, err := p.writeCaption(sess, m, input)
		if err != nil {
			p.logger.Warn().Err(err).Int("order", m.Order).Msg("caption generation failed, rendering without subtitles")
		} else {
			opts.Subtitles = caption
		}
	}

	err := p.exec.RenderClip(ctx, input, opts)
	if err != nil && opts.Subtitles != "" && ctx.Err() == nil {
		p.logger.Warn().Err(err).Int("order", m.Order).Msg("render with subtitles failed, retrying without")
		os.Remove(output)
		opts.Subtitles = ""
		err = p.exec.RenderClip(ctx, input, opts)
	}
	return err
}

// writeCaption builds the clip's ASS caption file. Cues come from a
// sidecar SRT next to the source when one exists, rebased to clip time;
// otherwise the moment title is shown for the clip's duration.
func (p *Pipeline) writeCaption(sess *session.Session, m moments.Moment, sourcePath string) (string, error) {
	tier := ffmpeg.TierFor(sess.Settings.Quality)

	style := captions.DefaultStyle()
	if p.cfg.Subtitles.FontName != "" {
		style.FontName = p.cfg.Subtitles.FontName
	}
	if p.cfg.Subtitles.FontSize > 0 {
		style.FontSize = p.cfg.Subtitles.FontSize
	}
	if p.cfg.Subtitles.FontColor != "" {
		style.FontColor = p.cfg.Subtitles.FontColor
	}
	if p.cfg.Subtitles.OutlineWidth > 0 {
		style.OutlineWidth = p.cfg.Subtitles.OutlineWidth
	}

	entries := captionEntries(sourcePath, m)
	path := filepath.Join(sess.Workspace, fmt.Sprintf("caption_%03d.ass", m.Order))
	script := captions.ToASS(entries, style, tier.Width, tier.Height)
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// captionEntries slices sidecar SRT cues overlapping the moment window
// and rebases them to clip-relative time. Without usable cues the
// moment title becomes a single full-length cue.
func captionEntries(sourcePath string, m moments.Moment) []captions.Entry {
	clipMs := int(m.DurationSeconds() * 1000)

	srtPath := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + ".srt"
	if data, err := os.ReadFile(srtPath); err == nil {
		startMs := int(m.Start * 1000)

		var out []captions.Entry
		for _, e := range captions.ParseSRT(string(data)) {
			if e.EndMs <= startMs || e.StartMs >= startMs+clipMs {
				continue
			}
			start := e.StartMs - startMs
			if start < 0 {
				start = 0
			}
			end := e.EndMs - startMs
			if end > clipMs {
				end = clipMs
			}
			out = append(out, captions.Entry{StartMs: start, EndMs: end, Text: e.Text})
		}
		if len(out) > 0 {
			return out
		}
	}

	return []captions.Entry{{StartMs: 0, EndMs: clipMs, Text: m.Title}}
}
