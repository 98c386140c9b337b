package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EnergySample is a short-window audio loudness measurement.
type EnergySample struct {
	// Time is the sample position in seconds from the start of the file.
	Time float64
	// RMS is the window's RMS level in dB (negative, closer to 0 is louder).
	RMS float64
}

// AudioEnergy measures short-window RMS levels across the file using the
// astats filter. Window positions are distributed over durationSeconds
// since astats reports per-window stats without timestamps.
func (e *Executor) AudioEnergy(ctx context.Context, input string, durationSeconds float64, timeout time.Duration) ([]EnergySample, error) {
	if durationSeconds <= 0 {
		return nil, fmt.Errorf("duration must be positive")
	}

	e.logger.Info().
		Str("input", input).
		Msg("analyzing audio energy")

	var stderrBuf bytes.Buffer
	var mu sync.Mutex

	opts := RunOptions{
		Args: []string{
			"-i", input,
			"-af", "astats=metadata=1:reset=1",
			"-f", "null",
			"-",
		},
		Timeout: timeout,
		LogHandler: func(line string) {
			mu.Lock()
			stderrBuf.WriteString(line + "\n")
			mu.Unlock()
		},
	}

	err := e.Run(ctx, opts)

	mu.Lock()
	output := stderrBuf.String()
	mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if levels := parseRMSLevels(output); len(levels) > 0 {
			e.logger.Debug().Err(err).Msg("ignoring null-output exit status")
			return spreadEnergySamples(levels, durationSeconds), nil
		}
		return nil, fmt.Errorf("audio energy analysis failed: %w", err)
	}

	levels := parseRMSLevels(output)
	if len(levels) == 0 {
		return nil, fmt.Errorf("audio energy analysis produced no RMS data")
	}

	e.logger.Info().Int("samples", len(levels)).Msg("audio energy analysis complete")
	return spreadEnergySamples(levels, durationSeconds), nil
}

// parseRMSLevels extracts overall RMS dB values from astats output
func parseRMSLevels(output string) []float64 {
	var levels []float64

	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "RMS level dB:") {
			continue
		}
		parts := strings.Split(line, "RMS level dB:")
		if len(parts) != 2 {
			continue
		}
		valStr := strings.TrimSpace(parts[1])
		if valStr == "" || valStr == "-inf" {
			continue
		}
		if v, err := strconv.ParseFloat(valStr, 64); err == nil {
			levels = append(levels, v)
		}
	}

	return levels
}

// spreadEnergySamples assigns evenly-spaced timestamps to sequential
// RMS windows.
func spreadEnergySamples(levels []float64, durationSeconds float64) []EnergySample {
	samples := make([]EnergySample, len(levels))
	for i, rms := range levels {
		samples[i] = EnergySample{
			Time: (float64(i) / float64(len(levels))) * durationSeconds,
			RMS:  rms,
		}
	}
	return samples
}
