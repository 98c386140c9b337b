package moments

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/clipsmith/clipsmith/pkg/util"
)

// ErrInvalidInput rejects empty video sets and non-positive durations.
var ErrInvalidInput = errors.New("invalid selection input")

// edgeMarginSeconds keeps clips away from intros and outros when the
// source is long enough to afford it.
const edgeMarginSeconds = 5.0

// SelectorConfig tunes clip budgeting and scoring.
type SelectorConfig struct {
	// AverageClipSeconds sizes the clip budget: ceil(target / average).
	AverageClipSeconds float64
	MinClipSeconds     float64
	MaxClipSeconds     float64
	// SceneWeight is the α in score = α·scene + (1-α)·audio.
	SceneWeight float64
	// FallbackDurationSeconds stands in for sources whose duration is
	// unknown; their moments are flagged degraded.
	FallbackDurationSeconds float64
}

// DefaultSelectorConfig returns the policy values observed to produce
// good short-form compilations.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		AverageClipSeconds:      4.5,
		MinClipSeconds:          3,
		MaxClipSeconds:          6,
		SceneWeight:             0.6,
		FallbackDurationSeconds: 600,
	}
}

// Selector turns source videos plus signal data into an ordered set of
// Moments whose total duration approximates the target.
type Selector struct {
	logger zerolog.Logger
	cfg    SelectorConfig
}

// NewSelector creates a selector with the given policy.
func NewSelector(logger zerolog.Logger, cfg SelectorConfig) *Selector {
	if cfg.AverageClipSeconds <= 0 {
		cfg = DefaultSelectorConfig()
	}
	return &Selector{
		logger: logger.With().Str("component", "selector").Logger(),
		cfg:    cfg,
	}
}

// Select distributes the clip budget across videos proportionally to
// each video's share of total duration and selects per-video moments.
// The result is ordered by (video position, start time) with a global
// 1-based Order.
func (s *Selector) Select(videos []SourceVideo, targetSeconds float64, signals map[string]Signals) ([]Moment, error) {
	if len(videos) == 0 {
		return nil, fmt.Errorf("%w: no videos provided", ErrInvalidInput)
	}
	if targetSeconds <= 0 {
		return nil, fmt.Errorf("%w: target duration must be positive", ErrInvalidInput)
	}

	durations := make([]float64, len(videos))
	var total float64
	for i, v := range videos {
		d := v.DurationSeconds
		if d <= 0 {
			d = s.cfg.FallbackDurationSeconds
		}
		durations[i] = d
		total += d
	}

	var all []Moment
	for i, v := range videos {
		videoTarget := targetSeconds * durations[i] / total
		if videoTarget < s.cfg.MinClipSeconds {
			videoTarget = s.cfg.MinClipSeconds
		}
		selected := s.selectOne(v, durations[i], videoTarget, signals[v.ID])
		all = append(all, selected...)
	}

	for i := range all {
		all[i].Order = i + 1
		all[i].Title = fmt.Sprintf("%s (%s)", momentTitle(i, all[i].Score), util.FormatClock(all[i].Start))
	}

	s.logger.Info().
		Int("videos", len(videos)).
		Int("moments", len(all)).
		Float64("target_seconds", targetSeconds).
		Msg("moment selection complete")

	return all, nil
}

// selectOne picks moments for a single video. durationSeconds is the
// effective (possibly fallback) source duration.
func (s *Selector) selectOne(video SourceVideo, durationSeconds, targetSeconds float64, sig Signals) []Moment {
	degraded := video.Degraded || video.DurationSeconds <= 0

	clipCount := int(math.Ceil(targetSeconds / s.cfg.AverageClipSeconds))
	if clipCount < 1 {
		clipCount = 1
	}

	clipLen := clampFloat(targetSeconds/float64(clipCount), s.cfg.MinClipSeconds, s.cfg.MaxClipSeconds)

	// A source shorter than one clip becomes a single full-video moment.
	if durationSeconds <= clipLen {
		window := candidateWindow{Start: 0, End: durationSeconds}
		score := ScoreCandidates([]candidateWindow{window}, sig, s.cfg.SceneWeight)[0]
		return []Moment{{
			SourceID: video.ID,
			Start:    0,
			End:      durationSeconds,
			Score:    score,
			Enabled:  true,
			Degraded: degraded,
		}}
	}

	margin := 0.0
	if durationSeconds > clipLen+2*edgeMarginSeconds {
		margin = edgeMarginSeconds
	}
	maxStart := durationSeconds - clipLen - margin
	if maxStart < margin {
		maxStart = margin
	}

	candidates := s.buildCandidates(durationSeconds, clipLen, margin, maxStart, clipCount, sig)
	scores := ScoreCandidates(candidates, sig, s.cfg.SceneWeight)

	selected := pickTopNonOverlapping(candidates, scores, clipCount)

	out := make([]Moment, 0, len(selected))
	for _, idx := range selected {
		out = append(out, Moment{
			SourceID: video.ID,
			Start:    candidates[idx].Start,
			End:      candidates[idx].End,
			Score:    scores[idx],
			Enabled:  true,
			Degraded: degraded,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// buildCandidates produces nominal evenly-spaced windows (snapped to a
// nearby scene cut when one exists) plus windows anchored directly on
// scene cuts, capped to keep scoring cheap.
func (s *Selector) buildCandidates(duration, clipLen, margin, maxStart float64, clipCount int, sig Signals) []candidateWindow {
	var candidates []candidateWindow

	for i := 0; i < clipCount; i++ {
		position := float64(i+1) / float64(clipCount+1)
		start := duration * position

		// Snap to the nearest scene cut within one clip length
		if snapped, ok := nearestScene(sig.SceneTimes, start, clipLen); ok {
			start = snapped
		}

		start = clampFloat(start, margin, maxStart)
		candidates = append(candidates, candidateWindow{Start: start, End: start + clipLen})
	}

	// Scene-anchored candidates give the scorer alternatives beyond the
	// nominal grid.
	budget := 2 * clipCount
	step := 1
	if len(sig.SceneTimes) > budget {
		step = len(sig.SceneTimes) / budget
	}
	for i := 0; i < len(sig.SceneTimes); i += step {
		start := sig.SceneTimes[i]
		if start < margin || start > maxStart {
			continue
		}
		candidates = append(candidates, candidateWindow{Start: start, End: start + clipLen})
	}

	return candidates
}

// pickTopNonOverlapping greedily selects up to n windows by descending
// score, skipping any window that overlaps an already-selected one.
func pickTopNonOverlapping(windows []candidateWindow, scores []float64, n int) []int {
	order := make([]int, len(windows))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	var selected []int
	for _, idx := range order {
		if len(selected) == n {
			break
		}
		overlaps := false
		for _, chosen := range selected {
			if windows[idx].Start < windows[chosen].End && windows[chosen].Start < windows[idx].End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			selected = append(selected, idx)
		}
	}

	return selected
}

// nearestScene finds the scene time closest to t within maxDistance.
func nearestScene(sceneTimes []float64, t, maxDistance float64) (float64, bool) {
	best := 0.0
	found := false
	bestDist := maxDistance
	for _, st := range sceneTimes {
		dist := math.Abs(st - t)
		if dist <= bestDist {
			best = st
			bestDist = dist
			found = true
		}
	}
	return best, found
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
