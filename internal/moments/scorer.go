package moments

// silenceFloorDB is the RMS level treated as zero energy; windows at or
// below it contribute nothing to the audio score.
const silenceFloorDB = -60.0

// sceneProximityPad widens a candidate window when counting nearby
// scene cuts, so a cut just outside the clip still counts toward it.
const sceneProximityPad = 2.0

// candidateWindow is a half-open time range being scored.
type candidateWindow struct {
	Start float64
	End   float64
}

// ScoreCandidates rates each window in [0,1] by combining scene-change
// density and audio energy: both raw signals are min-max normalized over
// the candidate set, then combined as
//
//	score = sceneWeight*scene + (1-sceneWeight)*audio
//
// With no signal data every window scores a neutral 0.5.
func ScoreCandidates(windows []candidateWindow, sig Signals, sceneWeight float64) []float64 {
	if sceneWeight < 0 || sceneWeight > 1 {
		sceneWeight = 0.6
	}

	scores := make([]float64, len(windows))
	if len(windows) == 0 {
		return scores
	}

	if sig.Empty() {
		for i := range scores {
			scores[i] = 0.5
		}
		return scores
	}

	sceneRaw := make([]float64, len(windows))
	audioRaw := make([]float64, len(windows))

	for i, w := range windows {
		sceneRaw[i] = sceneDensity(w, sig.SceneTimes)
		audioRaw[i] = audioEnergy(w, sig.Energy)
	}

	sceneNorm := minMaxNormalize(sceneRaw)
	audioNorm := minMaxNormalize(audioRaw)

	for i := range windows {
		scores[i] = sceneWeight*sceneNorm[i] + (1-sceneWeight)*audioNorm[i]
	}

	return scores
}

// sceneDensity counts scene cuts in and immediately around the window.
func sceneDensity(w candidateWindow, sceneTimes []float64) float64 {
	count := 0
	for _, t := range sceneTimes {
		if t >= w.Start-sceneProximityPad && t <= w.End+sceneProximityPad {
			count++
		}
	}
	return float64(count)
}

// audioEnergy averages loudness above the silence floor over the window.
func audioEnergy(w candidateWindow, energy []EnergySample) float64 {
	var sum float64
	var n int
	for _, s := range energy {
		if s.Time < w.Start || s.Time > w.End {
			continue
		}
		level := s.RMS - silenceFloorDB
		if level < 0 {
			level = 0
		}
		sum += level
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// minMaxNormalize maps values into [0,1]; a constant series maps to 0.5.
func minMaxNormalize(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	out := make([]float64, len(values))
	if hi == lo {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}

	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

// momentTitle labels a moment by its score band. The index rotates
// within the band so adjacent moments read differently.
func momentTitle(index int, score float64) string {
	var titles []string
	switch {
	case score > 0.85:
		titles = []string{"Peak engagement", "Viral moment", "Key highlight", "Top reaction"}
	case score > 0.6:
		titles = []string{"High engagement", "Strong moment", "Audience hook", "Great scene"}
	default:
		titles = []string{"Good moment", "Engaging scene", "Nice clip", "Solid content"}
	}
	return titles[index%len(titles)]
}
