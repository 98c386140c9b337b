package ffmpeg

import "time"

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	Bitrate    int64
	VideoCodec string
	HasAudio   bool
	AudioCodec string
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
}

// ProgressFunc is a callback invoked periodically while an operation runs.
type ProgressFunc func(*Progress)

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	Timeout         time.Duration
	ProgressHandler ProgressFunc
	LogHandler      func(line string)
}

// Default encoding settings
const (
	DefaultCRF        = 23
	DefaultPreset     = "medium"
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
	DefaultAudioRate  = 44100
)

// Quality identifies a named output preset.
type Quality string

const (
	Quality480p  Quality = "480p"
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
)

// Tier holds the fixed 9:16 output geometry and bitrates for a quality.
type Tier struct {
	Width        int
	Height       int
	VideoBitrate string
	AudioBitrate string
}

var tiers = map[Quality]Tier{
	Quality480p:  {Width: 480, Height: 854, VideoBitrate: "1500k", AudioBitrate: "128k"},
	Quality720p:  {Width: 720, Height: 1280, VideoBitrate: "2500k", AudioBitrate: "128k"},
	Quality1080p: {Width: 1080, Height: 1920, VideoBitrate: "5000k", AudioBitrate: "128k"},
}

// TierFor resolves a quality name to its output geometry.
// Unknown names fall back to 720p.
func TierFor(q Quality) Tier {
	if t, ok := tiers[q]; ok {
		return t
	}
	return tiers[Quality720p]
}

// ValidQuality reports whether q names a known tier.
func ValidQuality(q Quality) bool {
	_, ok := tiers[q]
	return ok
}

// ReframeMode selects how a source is converted to 9:16.
type ReframeMode string

const (
	// ReframeCrop center-crops the source to fill the vertical frame.
	ReframeCrop ReframeMode = "crop"
	// ReframeBlurPad scales to fit and fills the margins with a blurred
	// copy of the source.
	ReframeBlurPad ReframeMode = "blur-pad"
)
