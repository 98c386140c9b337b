package moments

// SourceVideo is an immutable description of one input video, produced
// by metadata resolution and referenced by every later stage.
type SourceVideo struct {
	ID              string
	URL             string
	Title           string
	Channel         string
	DurationSeconds float64
	ThumbnailURL    string
	// Degraded marks a source whose metadata fetch failed; its duration
	// is a policy default rather than a measured value.
	Degraded bool
}

// Moment is a scored, time-bounded candidate clip from a source video.
type Moment struct {
	SourceID string
	// Start and End are offsets into the source in seconds; End > Start.
	Start float64
	End   float64
	// Score is the desirability of the clip in [0,1].
	Score float64
	// Order is the 1-based position in the final compilation sequence.
	Order   int
	Title   string
	Enabled bool
	// Degraded mirrors SourceVideo.Degraded for this moment.
	Degraded bool
}

// DurationSeconds returns the moment's clip length.
func (m Moment) DurationSeconds() float64 {
	return m.End - m.Start
}

// EnergySample is a short-window audio loudness reading.
type EnergySample struct {
	Time float64
	RMS  float64
}

// Signals carries per-video analysis data the scorer consumes. Either
// slice may be empty when analysis failed or was skipped.
type Signals struct {
	// SceneTimes are scene-change timestamps in seconds.
	SceneTimes []float64
	// Energy are RMS loudness windows across the file.
	Energy []EnergySample
}

// Empty reports whether no signal data is available.
func (s Signals) Empty() bool {
	return len(s.SceneTimes) == 0 && len(s.Energy) == 0
}
