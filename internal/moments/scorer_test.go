package moments

import "testing"

func TestScoreCandidatesNeutralWithoutSignals(t *testing.T) {
	windows := []candidateWindow{{0, 5}, {10, 15}}
	scores := ScoreCandidates(windows, Signals{}, 0.6)
	for i, s := range scores {
		if s != 0.5 {
			t.Errorf("window %d score = %f, want neutral 0.5", i, s)
		}
	}
}

func TestScoreCandidatesPrefersSceneDensity(t *testing.T) {
	windows := []candidateWindow{{0, 5}, {50, 55}}
	sig := Signals{SceneTimes: []float64{1, 2, 3, 4}}

	scores := ScoreCandidates(windows, sig, 1.0)
	if scores[0] <= scores[1] {
		t.Errorf("cut-dense window scored %f, quiet window %f", scores[0], scores[1])
	}
	if scores[0] != 1 || scores[1] != 0 {
		t.Errorf("min-max normalization expected [1, 0], got %v", scores)
	}
}

func TestScoreCandidatesPrefersLoudAudio(t *testing.T) {
	windows := []candidateWindow{{0, 5}, {50, 55}}
	sig := Signals{Energy: []EnergySample{
		{Time: 2, RMS: -10},  // loud
		{Time: 52, RMS: -55}, // near silence
	}}

	scores := ScoreCandidates(windows, sig, 0.0)
	if scores[0] <= scores[1] {
		t.Errorf("loud window scored %f, quiet window %f", scores[0], scores[1])
	}
}

func TestScoreCandidatesWeightedCombination(t *testing.T) {
	// Window 0 wins on scenes, window 1 wins on audio.
	windows := []candidateWindow{{0, 5}, {50, 55}}
	sig := Signals{
		SceneTimes: []float64{1, 2, 3},
		Energy: []EnergySample{
			{Time: 2, RMS: -55},
			{Time: 52, RMS: -10},
		},
	}

	sceneHeavy := ScoreCandidates(windows, sig, 0.9)
	audioHeavy := ScoreCandidates(windows, sig, 0.1)

	if sceneHeavy[0] <= sceneHeavy[1] {
		t.Errorf("scene-weighted scoring should favor window 0: %v", sceneHeavy)
	}
	if audioHeavy[1] <= audioHeavy[0] {
		t.Errorf("audio-weighted scoring should favor window 1: %v", audioHeavy)
	}
}

func TestScoreCandidatesBelowFloorIsZeroEnergy(t *testing.T) {
	windows := []candidateWindow{{0, 5}}
	sig := Signals{Energy: []EnergySample{{Time: 2, RMS: -80}}}

	scores := ScoreCandidates(windows, sig, 0.0)
	// Single constant series normalizes to 0.5
	if scores[0] != 0.5 {
		t.Errorf("score = %f, want 0.5", scores[0])
	}
	if e := audioEnergy(windows[0], sig.Energy); e != 0 {
		t.Errorf("sub-floor RMS energy = %f, want 0", e)
	}
}

func TestMinMaxNormalize(t *testing.T) {
	out := minMaxNormalize([]float64{2, 4, 6})
	want := []float64{0, 0.5, 1}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("normalize[%d] = %f, want %f", i, out[i], want[i])
		}
	}

	constant := minMaxNormalize([]float64{3, 3, 3})
	for i, v := range constant {
		if v != 0.5 {
			t.Errorf("constant series normalize[%d] = %f, want 0.5", i, v)
		}
	}
}

func TestMomentTitleBands(t *testing.T) {
	if got := momentTitle(0, 0.95); got != "Peak engagement" {
		t.Errorf("high-score title = %q", got)
	}
	if got := momentTitle(1, 0.7); got != "Strong moment" {
		t.Errorf("mid-score title = %q", got)
	}
	if got := momentTitle(0, 0.2); got != "Good moment" {
		t.Errorf("low-score title = %q", got)
	}
}
