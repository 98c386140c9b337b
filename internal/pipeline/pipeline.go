package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clipsmith/clipsmith/internal/config"
	"github.com/clipsmith/clipsmith/internal/downloader"
	"github.com/clipsmith/clipsmith/internal/ffmpeg"
	"github.com/clipsmith/clipsmith/internal/logging"
	"github.com/clipsmith/clipsmith/internal/moments"
	"github.com/clipsmith/clipsmith/internal/session"
)

// Pipeline orchestrates the resolve, download, analyze, select and
// compile stages against the session store.
type Pipeline struct {
	logger     zerolog.Logger
	cfg        *config.Config
	store      *session.Store
	exec       *ffmpeg.Executor
	downloader *downloader.Client
	selector   *moments.Selector
}

// New wires the pipeline. The selector policy comes from the selector
// section of the config.
func New(logger zerolog.Logger, cfg *config.Config, store *session.Store, exec *ffmpeg.Executor, dl *downloader.Client) *Pipeline {
	selector := moments.NewSelector(logger, moments.SelectorConfig{
		AverageClipSeconds:      cfg.Selector.AverageClipSeconds,
		MinClipSeconds:          cfg.Selector.MinClipSeconds,
		MaxClipSeconds:          cfg.Selector.MaxClipSeconds,
		SceneWeight:             cfg.Selector.SceneWeight,
		FallbackDurationSeconds: cfg.Selector.FallbackDuration,
	})

	return &Pipeline{
		logger:     logger.With().Str("component", "pipeline").Logger(),
		cfg:        cfg,
		store:      store,
		exec:       exec,
		downloader: dl,
		selector:   selector,
	}
}

// ResolveVideos fetches metadata for every URL concurrently. A failed
// fetch degrades that single entry to a placeholder with the fallback
// duration instead of failing the batch; input order is preserved.
func (p *Pipeline) ResolveVideos(ctx context.Context, urls []string) []moments.SourceVideo {
	videos := make([]moments.SourceVideo, len(urls))

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			videos[i] = p.resolveOne(ctx, url)
		}(i, url)
	}
	wg.Wait()

	return videos
}

func (p *Pipeline) resolveOne(ctx context.Context, url string) moments.SourceVideo {
	meta, err := p.downloader.FetchMetadata(ctx, url)
	if err != nil {
		p.logger.Warn().Err(err).Str("url", url).Msg("metadata fetch failed, degrading entry")

		id, idErr := downloader.ExtractVideoID(url)
		if idErr != nil {
			id = uuid.NewString()
		}
		return moments.SourceVideo{
			ID:              id,
			URL:             url,
			Title:           "Unavailable video",
			DurationSeconds: p.cfg.Selector.FallbackDuration,
			Degraded:        true,
		}
	}

	return moments.SourceVideo{
		ID:              meta.ID,
		URL:             url,
		Title:           meta.Title,
		Channel:         meta.Channel,
		DurationSeconds: meta.DurationSeconds,
		ThumbnailURL:    meta.ThumbnailURL,
	}
}

// Start validates the request, creates a session and kicks off
// background processing. The returned session is still in the
// processing state; callers poll for completion.
func (p *Pipeline) Start(urls []string, settings session.Settings) (*session.Session, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no source urls", moments.ErrInvalidInput)
	}
	if settings.TargetDurationSeconds <= 0 {
		return nil, fmt.Errorf("%w: target duration must be positive", moments.ErrInvalidInput)
	}
	if settings.Quality == "" {
		settings.Quality = ffmpeg.Quality720p
	}
	if !ffmpeg.ValidQuality(settings.Quality) {
		return nil, fmt.Errorf("%w: unknown quality %q", moments.ErrInvalidInput, settings.Quality)
	}
	if settings.Reframe == "" {
		settings.Reframe = ffmpeg.ReframeBlurPad
	}

	sess, err := p.store.Create(settings)
	if err != nil {
		return nil, err
	}

	go p.process(sess.ID, urls, settings.TargetDurationSeconds)

	return sess, nil
}

// process runs the resolve, download, analyze and select stages,
// leaving the session ready for a compile request. It stops quietly if
// the session is deleted or expires mid-flight.
func (p *Pipeline) process(id string, urls []string, targetSeconds float64) {
	ctx := p.store.Context(id)
	log := logging.WithSession(p.logger, id)

	// A stage caught mid-flight by deletion may have recreated the
	// workspace after the store removed it; sweep the remnants.
	if sess, err := p.store.Get(id); err == nil {
		workspace := sess.Workspace
		defer func() {
			if ctx.Err() != nil {
				os.RemoveAll(workspace)
			}
		}()
	}

	if !p.update(id, func(s *session.Session) {
		s.Stage = "Resolving metadata"
		s.UpdateTask("download", func(t *session.Task) {
			t.Status = "in_progress"
			t.Detail = "Fetching video metadata"
		})
	}) {
		return
	}

	videos := p.ResolveVideos(ctx, urls)
	if !p.update(id, func(s *session.Session) {
		s.Videos = videos
		s.Stage = "Downloading source videos"
	}) {
		return
	}

	kept, files := p.downloadAll(ctx, id, videos)
	if ctx.Err() != nil {
		return
	}
	if len(kept) == 0 {
		p.fail(id, "all source downloads failed")
		return
	}
	if !p.update(id, func(s *session.Session) {
		s.Stage = "Detecting best moments"
		s.UpdateTask("download", func(t *session.Task) {
			t.Status = "done"
			t.Progress = 100
			t.Detail = fmt.Sprintf("%d of %d videos downloaded", len(kept), len(videos))
			t.EtaSeconds = nil
		})
		s.UpdateTask("analyze", func(t *session.Task) {
			t.Status = "in_progress"
		})
	}) {
		return
	}

	kept, signals := p.analyzeAll(ctx, id, kept, files)

	selected, err := p.selector.Select(kept, targetSeconds, signals)
	if err != nil {
		p.fail(id, fmt.Sprintf("moment selection failed: %v", err))
		return
	}

	p.update(id, func(s *session.Session) {
		s.Videos = kept
		s.SourceFiles = files
		s.Moments = selected
		s.Status = session.StatusReady
		s.Stage = "Ready"
		s.UpdateTask("analyze", func(t *session.Task) {
			t.Status = "done"
			t.Progress = 100
			t.Detail = fmt.Sprintf("%d moments selected", len(selected))
			t.EtaSeconds = nil
		})
	})
	log.Info().Int("moments", len(selected)).Msg("session ready for compilation")
}

// downloadAll fetches each source into the session workspace. A failed
// download drops that single source; survivors keep their input order.
func (p *Pipeline) downloadAll(ctx context.Context, id string, videos []moments.SourceVideo) ([]moments.SourceVideo, map[string]string) {
	sess, err := p.store.Get(id)
	if err != nil {
		return nil, nil
	}
	log := logging.WithSession(p.logger, id)

	files := make(map[string]string, len(videos))
	var kept []moments.SourceVideo

	share := 100.0 / float64(len(videos))
	for i, v := range videos {
		if ctx.Err() != nil {
			return nil, nil
		}
		base := share * float64(i)
		dest := filepath.Join(sess.Workspace, "source_"+v.ID)

		path, err := p.downloader.Download(ctx, v.URL, dest, func(downloaded, total int64) {
			if total <= 0 {
				return
			}
			pct := base + share*float64(downloaded)/float64(total)
			title := v.Title
			p.update(id, func(s *session.Session) {
				s.UpdateTask("download", func(t *session.Task) {
					t.Progress = pct
					t.Detail = "Downloading " + title
					t.EtaSeconds = session.Eta(s.StartedAt, pct)
				})
			})
		})
		if err != nil {
			log.Warn().Err(err).Str("video_id", v.ID).Msg("download failed, dropping source")
			continue
		}

		files[v.ID] = path
		kept = append(kept, v)
	}

	return kept, files
}

// analyzeAll probes and analyzes each downloaded source. Probed
// durations replace metadata (and fallback) values; analysis failures
// leave that video without signals, which the selector tolerates.
func (p *Pipeline) analyzeAll(ctx context.Context, id string, videos []moments.SourceVideo, files map[string]string) ([]moments.SourceVideo, map[string]moments.Signals) {
	log := logging.WithSession(p.logger, id)

	var workspace string
	if sess, err := p.store.Get(id); err == nil {
		workspace = sess.Workspace
	}

	out := make([]moments.SourceVideo, len(videos))
	signals := make(map[string]moments.Signals, len(videos))

	for i, v := range videos {
		out[i] = v

		duration, sig, err := p.AnalyzeFile(ctx, files[v.ID])
		if err != nil {
			log.Warn().Err(err).Str("video_id", v.ID).Msg("analysis failed, selecting without signals")
		} else {
			out[i].DurationSeconds = duration
			out[i].Degraded = false
			signals[v.ID] = sig
		}

		// Metadata fetch failures leave no thumbnail; grab a frame instead.
		if out[i].ThumbnailURL == "" && workspace != "" {
			thumb := filepath.Join(workspace, "thumb_"+v.ID+".jpg")
			at := time.Duration(out[i].DurationSeconds/2) * time.Second
			if err := p.exec.GenerateThumbnail(ctx, files[v.ID], thumb, at, p.cfg.FFmpeg.ProbeTimeout); err == nil {
				out[i].ThumbnailURL = thumb
			}
		}

		pct := float64(i+1) / float64(len(videos)) * 100
		title := v.Title
		p.update(id, func(s *session.Session) {
			s.UpdateTask("analyze", func(t *session.Task) {
				t.Progress = pct
				t.Detail = "Analyzed " + title
				t.EtaSeconds = session.Eta(s.StartedAt, pct)
			})
		})
	}

	return out, signals
}

// AnalyzeFile probes a local file and extracts selection signals from
// it. Scene or audio analysis failing is not fatal; the corresponding
// signal is simply absent. Files without an audio stream are scored on
// scene density alone.
func (p *Pipeline) AnalyzeFile(ctx context.Context, path string) (float64, moments.Signals, error) {
	info, err := p.exec.ProbeVideo(ctx, path, p.cfg.FFmpeg.ProbeTimeout)
	if err != nil {
		return 0, moments.Signals{}, err
	}
	duration := info.Duration.Seconds()

	var sig moments.Signals

	scenes, err := p.exec.DetectScenes(ctx, path, p.cfg.Selector.SceneThreshold, p.cfg.FFmpeg.AnalyzeTimeout)
	if err != nil {
		p.logger.Warn().Err(err).Str("input", path).Msg("scene detection failed")
	} else {
		sig.SceneTimes = scenes
	}

	if info.HasAudio {
		energy, err := p.exec.AudioEnergy(ctx, path, duration, p.cfg.FFmpeg.AnalyzeTimeout)
		if err != nil {
			p.logger.Warn().Err(err).Str("input", path).Msg("audio analysis failed")
		} else {
			sig.Energy = make([]moments.EnergySample, len(energy))
			for i, e := range energy {
				sig.Energy[i] = moments.EnergySample{Time: e.Time, RMS: e.RMS}
			}
		}
	}

	return duration, sig, nil
}

// AnalyzeLocal probes and analyzes local files and selects moments for
// them, bypassing resolution and download. Returned videos line up with
// the input paths.
func (p *Pipeline) AnalyzeLocal(ctx context.Context, paths []string, targetSeconds float64) ([]moments.SourceVideo, []moments.Moment, error) {
	videos := make([]moments.SourceVideo, len(paths))
	signals := make(map[string]moments.Signals, len(paths))

	for i, path := range paths {
		duration, sig, err := p.AnalyzeFile(ctx, path)
		if err != nil {
			return nil, nil, err
		}

		id := fmt.Sprintf("local-%d", i+1)
		videos[i] = moments.SourceVideo{
			ID:              id,
			URL:             path,
			Title:           filepath.Base(path),
			DurationSeconds: duration,
		}
		signals[id] = sig
	}

	selected, err := p.selector.Select(videos, targetSeconds, signals)
	if err != nil {
		return nil, nil, err
	}
	return videos, selected, nil
}

// update applies fn to the session, reporting whether it still exists.
func (p *Pipeline) update(id string, fn func(*session.Session)) bool {
	err := p.store.Update(id, fn)
	if errors.Is(err, session.ErrNotFound) {
		p.logger.Debug().Str("session_id", id).Msg("session gone, abandoning stage")
		return false
	}
	return err == nil
}

func (p *Pipeline) fail(id, msg string) {
	log := logging.WithSession(p.logger, id)
	log.Error().Msg(msg)
	p.update(id, func(s *session.Session) {
		s.Status = session.StatusError
		s.Stage = "Failed"
		s.Error = msg
	})
}
