package ffmpeg

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// VerticalReframeFilter builds the filtergraph converting arbitrary input
// geometry to a 9:16 frame at the tier's resolution.
func VerticalReframeFilter(mode ReframeMode, tier Tier, cropCenter float64) string {
	switch mode {
	case ReframeCrop:
		if cropCenter <= 0 || cropCenter >= 1 {
			cropCenter = 0.5
		}
		// Crop a 9:16 window out of the source, horizontally centered on
		// cropCenter (0..1), clamped to the frame.
		xExpr := fmt.Sprintf("min(max(0\\,iw*%.3f-ow/2)\\,iw-ow)", cropCenter)
		return fmt.Sprintf(
			"[0:v]crop='min(iw,ih*9/16)':ih:%s:0,scale=%d:%d,setsar=1[v]",
			xExpr, tier.Width, tier.Height,
		)
	default:
		// Scale to fit, fill the margins with a blurred copy of the source.
		return fmt.Sprintf(
			"[0:v]split=2[bg][fg];"+
				"[bg]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,boxblur=20:5[bgb];"+
				"[fg]scale=%d:%d:force_original_aspect_ratio=decrease[fgs];"+
				"[bgb][fgs]overlay=(W-w)/2:(H-h)/2,setsar=1[v]",
			tier.Width, tier.Height, tier.Width, tier.Height,
			tier.Width, tier.Height,
		)
	}
}

// SubtitleFilter builds a burn-in subtitles filter for the given file.
func SubtitleFilter(path string) string {
	return fmt.Sprintf("subtitles=%s", escapeSubtitlePath(path))
}

// escapeSubtitlePath escapes a subtitle file path for ffmpeg filters
func escapeSubtitlePath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	if runtime.GOOS == "windows" {
		absPath = strings.ReplaceAll(absPath, "\\", "/")
	}

	escaped := strings.ReplaceAll(absPath, ":", "\\:")
	escaped = strings.ReplaceAll(escaped, "'", "\\'")

	return escaped
}
