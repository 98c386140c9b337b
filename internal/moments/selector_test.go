package moments

import (
	"errors"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clipsmith/clipsmith/pkg/util"
)

func testSelector() *Selector {
	return NewSelector(zerolog.New(os.Stderr), DefaultSelectorConfig())
}

func video(id string, duration float64) SourceVideo {
	return SourceVideo{ID: id, URL: "https://example.test/" + id, Title: id, DurationSeconds: duration}
}

func totalDuration(ms []Moment) float64 {
	var sum float64
	for _, m := range ms {
		sum += m.DurationSeconds()
	}
	return sum
}

func TestSelectReturnsAtLeastOneMoment(t *testing.T) {
	s := testSelector()

	for _, c := range []struct{ videoDur, target float64 }{
		{600, 30}, {10, 60}, {3, 30}, {0.5, 1}, {7200, 15},
	} {
		ms, err := s.Select([]SourceVideo{video("v", c.videoDur)}, c.target, nil)
		if err != nil {
			t.Fatalf("Select(%v, %v) error: %v", c.videoDur, c.target, err)
		}
		if len(ms) == 0 {
			t.Errorf("Select(%v, %v) returned no moments", c.videoDur, c.target)
		}
		for _, m := range ms {
			if m.Start < 0 || m.End > c.videoDur+1e-9 || m.End <= m.Start {
				t.Errorf("moment [%f, %f] out of bounds for duration %f", m.Start, m.End, c.videoDur)
			}
			if m.Score < 0 || m.Score > 1 {
				t.Errorf("score %f outside [0,1]", m.Score)
			}
		}
	}
}

func TestSelectApproximatesTargetDuration(t *testing.T) {
	s := testSelector()

	ms, err := s.Select([]SourceVideo{video("v", 600)}, 30, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(ms) != 7 {
		t.Errorf("expected 7 clips for 30s target at 4.5s average, got %d", len(ms))
	}

	total := totalDuration(ms)
	if total < 30*0.85 || total > 30*1.15 {
		t.Errorf("total selected duration %f outside ±15%% of 30s", total)
	}
}

func TestSelectChronologicalOrder(t *testing.T) {
	s := testSelector()

	// Signal data makes scores uneven, so score-based selection happens
	// in a different order than the final sequence.
	sig := Signals{
		SceneTimes: []float64{50, 120, 121, 122, 300, 480, 481},
		Energy: []EnergySample{
			{Time: 60, RMS: -12}, {Time: 150, RMS: -40},
			{Time: 310, RMS: -8}, {Time: 470, RMS: -25},
		},
	}

	ms, err := s.Select([]SourceVideo{video("v", 600)}, 30, map[string]Signals{"v": sig})
	if err != nil {
		t.Fatal(err)
	}

	for i, m := range ms {
		if m.Order != i+1 {
			t.Errorf("moment %d has Order %d, want %d", i, m.Order, i+1)
		}
		if i > 0 && ms[i-1].Start >= m.Start {
			t.Errorf("moments not chronological: %f then %f", ms[i-1].Start, m.Start)
		}
		if i > 0 && ms[i-1].End > m.Start {
			t.Errorf("moments overlap: [%f,%f] then [%f,%f]", ms[i-1].Start, ms[i-1].End, m.Start, m.End)
		}
	}
}

func TestSelectShortVideoYieldsSingleFullMoment(t *testing.T) {
	s := testSelector()

	ms, err := s.Select([]SourceVideo{video("v", 3)}, 30, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 1 {
		t.Fatalf("expected exactly 1 moment, got %d", len(ms))
	}
	if ms[0].Start != 0 || ms[0].End != 3 {
		t.Errorf("moment [%f,%f] does not span the whole 3s video", ms[0].Start, ms[0].End)
	}
}

func TestSelectTinyTargetYieldsSingleMoment(t *testing.T) {
	s := testSelector()

	ms, err := s.Select([]SourceVideo{video("v", 600)}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 1 {
		t.Fatalf("expected exactly 1 moment for a 2s target, got %d", len(ms))
	}
}

func TestSelectDistributesBudgetProportionally(t *testing.T) {
	s := testSelector()

	videos := []SourceVideo{video("long", 900), video("short", 100)}
	ms, err := s.Select(videos, 45, nil)
	if err != nil {
		t.Fatal(err)
	}

	counts := map[string]int{}
	for _, m := range ms {
		counts[m.SourceID]++
	}
	if counts["long"] <= counts["short"] {
		t.Errorf("expected more clips from the longer video: long=%d short=%d",
			counts["long"], counts["short"])
	}
	if counts["short"] == 0 {
		t.Error("short video received no clips")
	}
}

func TestSelectUnknownDurationDegrades(t *testing.T) {
	s := testSelector()

	ms, err := s.Select([]SourceVideo{{ID: "v", DurationSeconds: 0}}, 30, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) == 0 {
		t.Fatal("expected moments from fallback duration")
	}
	for _, m := range ms {
		if !m.Degraded {
			t.Error("moments from unknown-duration source must be degraded")
		}
		if m.End > 600 {
			t.Errorf("moment end %f exceeds fallback duration 600", m.End)
		}
	}
}

func TestSelectInvalidInput(t *testing.T) {
	s := testSelector()

	if _, err := s.Select(nil, 30, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty videos: got %v, want ErrInvalidInput", err)
	}
	if _, err := s.Select([]SourceVideo{video("v", 600)}, 0, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero target: got %v, want ErrInvalidInput", err)
	}
	if _, err := s.Select([]SourceVideo{video("v", 600)}, -5, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative target: got %v, want ErrInvalidInput", err)
	}
}

func TestSelectSnapsToSceneCuts(t *testing.T) {
	s := testSelector()

	// One strong scene cut near each nominal position
	sig := Signals{SceneTimes: []float64{74, 149, 226, 299, 374, 451, 524}}
	ms, err := s.Select([]SourceVideo{video("v", 600)}, 30, map[string]Signals{"v": sig})
	if err != nil {
		t.Fatal(err)
	}

	snapped := 0
	for _, m := range ms {
		for _, cut := range sig.SceneTimes {
			if math.Abs(m.Start-cut) < 1e-9 {
				snapped++
				break
			}
		}
	}
	if snapped == 0 {
		t.Error("expected at least one moment anchored on a scene cut")
	}
}

func TestSelectTitlesCarryClockLabel(t *testing.T) {
	s := testSelector()

	ms, err := s.Select([]SourceVideo{video("v", 600)}, 30, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range ms {
		want := "(" + util.FormatClock(m.Start) + ")"
		if !strings.HasSuffix(m.Title, want) {
			t.Errorf("title %q missing clock label %q", m.Title, want)
		}
	}
}
