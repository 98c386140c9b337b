package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/clipsmith/clipsmith/pkg/util"
)

// ClipRenderOptions defines a trim + vertical reframe of one source segment.
type ClipRenderOptions struct {
	Start   time.Duration
	End     time.Duration
	Output  string
	Quality Quality
	Reframe ReframeMode
	// CropCenter is the horizontal focus point (0..1) for crop reframing.
	CropCenter float64
	// Subtitles is a burn-in subtitle file path; empty disables burn-in.
	Subtitles    string
	Timeout      time.Duration
	ProgressFunc ProgressFunc
}

// RenderClip trims [Start, End] out of input and re-encodes it as a
// vertical 9:16 fragment at the requested quality tier.
func (e *Executor) RenderClip(ctx context.Context, input string, opts ClipRenderOptions) error {
	duration := opts.End - opts.Start
	if duration <= 0 {
		return fmt.Errorf("invalid clip duration: end must be after start")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}

	tier := TierFor(opts.Quality)

	e.logger.Info().
		Str("input", input).
		Str("output", opts.Output).
		Dur("start", opts.Start).
		Dur("duration", duration).
		Str("quality", string(opts.Quality)).
		Str("reframe", string(opts.Reframe)).
		Msg("rendering clip")

	filter := VerticalReframeFilter(opts.Reframe, tier, opts.CropCenter)
	if opts.Subtitles != "" {
		// Burn subtitles into the reframed stream
		filter = fmt.Sprintf("%s;[v]%s[v]", filter, SubtitleFilter(opts.Subtitles))
	}

	args := []string{
		"-ss", util.FormatDuration(opts.Start),
		"-i", input,
		"-t", util.FormatDuration(duration),
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "0:a?",
		"-c:v", DefaultVideoCodec,
		"-preset", e.preset,
		"-crf", fmt.Sprintf("%d", DefaultCRF),
		"-b:v", tier.VideoBitrate,
		"-c:a", DefaultAudioCodec,
		"-b:a", tier.AudioBitrate,
		"-ar", fmt.Sprintf("%d", DefaultAudioRate),
		"-ac", "2",
		opts.Output,
	}

	runOpts := RunOptions{
		Args:            args,
		Timeout:         opts.Timeout,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("clip render")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("clip render failed: %w", err)
	}

	e.logger.Info().Str("output", opts.Output).Msg("clip render complete")
	return nil
}
