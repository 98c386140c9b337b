package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clipsmith/clipsmith/pkg/util"
)

// ConcatOptions defines concatenation parameters
type ConcatOptions struct {
	Inputs       []string
	Output       string
	Quality      Quality
	Timeout      time.Duration
	ProgressFunc ProgressFunc
}

// Concat merges pre-rendered clip files into one artifact, preserving
// input order. Every input must exist and be non-empty; clips are assumed
// to share codec parameters (they come out of RenderClip), so a stream
// copy is attempted first with a re-encode fallback.
func (e *Executor) Concat(ctx context.Context, opts ConcatOptions) error {
	if len(opts.Inputs) == 0 {
		return fmt.Errorf("no input files provided")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}

	for _, input := range opts.Inputs {
		if !util.FileExists(input) {
			return fmt.Errorf("concat input missing: %s", input)
		}
		if util.FileSize(input) == 0 {
			return fmt.Errorf("concat input is empty: %s", input)
		}
	}

	e.logger.Info().
		Int("inputs", len(opts.Inputs)).
		Str("output", opts.Output).
		Msg("concatenating clips")

	concatFile, err := e.createConcatFile(opts.Inputs)
	if err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}
	defer os.Remove(concatFile)

	copyArgs := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", concatFile,
		"-c", "copy",
		opts.Output,
	}

	err = e.Run(ctx, RunOptions{
		Args:            copyArgs,
		Timeout:         opts.Timeout,
		ProgressHandler: opts.ProgressFunc,
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	e.logger.Warn().Err(err).Msg("stream-copy concat failed, re-encoding")
	os.Remove(opts.Output)

	tier := TierFor(opts.Quality)
	encodeArgs := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", concatFile,
		"-c:v", DefaultVideoCodec,
		"-preset", e.preset,
		"-crf", fmt.Sprintf("%d", DefaultCRF),
		"-b:v", tier.VideoBitrate,
		"-c:a", DefaultAudioCodec,
		"-b:a", tier.AudioBitrate,
		opts.Output,
	}

	if err := e.Run(ctx, RunOptions{
		Args:            encodeArgs,
		Timeout:         opts.Timeout,
		ProgressHandler: opts.ProgressFunc,
	}); err != nil {
		os.Remove(opts.Output)
		return fmt.Errorf("concat re-encode failed: %w", err)
	}

	return nil
}

// createConcatFile generates a temporary file list for the concat demuxer
func (e *Executor) createConcatFile(inputs []string) (string, error) {
	tmpFile, err := os.CreateTemp("", "clipsmith-concat-*.txt")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			return "", err
		}
		if _, err := fmt.Fprintf(tmpFile, "file '%s'\n", absPath); err != nil {
			return "", err
		}
	}

	return tmpFile.Name(), nil
}
