package captions

import (
	"fmt"
	"strings"
)

// Entry is one subtitle cue.
type Entry struct {
	StartMs int
	EndMs   int
	Text    string
}

// Style controls ASS rendering of burned-in subtitles.
type Style struct {
	FontName string
	FontSize int
	// FontColor is an RGB hex string like "#FFFFFF".
	FontColor    string
	OutlineWidth int
}

// DefaultStyle returns a readable white-on-outline style.
func DefaultStyle() Style {
	return Style{
		FontName:     "Arial",
		FontSize:     24,
		FontColor:    "#FFFFFF",
		OutlineWidth: 2,
	}
}

// ParseSRT parses SRT content into cue entries. Malformed blocks are
// skipped rather than failing the whole file.
func ParseSRT(content string) []Entry {
	var entries []Entry

	content = strings.ReplaceAll(content, "\r\n", "\n")
	for _, block := range strings.Split(strings.TrimSpace(content), "\n\n") {
		lines := strings.Split(block, "\n")
		if len(lines) < 3 {
			continue
		}
		// lines[0] is the cue index, lines[1] the timing, the rest text
		timing := lines[1]
		if !strings.Contains(timing, "-->") {
			continue
		}
		parts := strings.SplitN(timing, "-->", 2)
		startMs, err1 := srtTimeToMs(strings.TrimSpace(parts[0]))
		endMs, err2 := srtTimeToMs(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil || endMs <= startMs {
			continue
		}
		entries = append(entries, Entry{
			StartMs: startMs,
			EndMs:   endMs,
			Text:    strings.Join(lines[2:], " "),
		})
	}

	return entries
}

// srtTimeToMs converts "HH:MM:SS,mmm" to milliseconds.
func srtTimeToMs(s string) (int, error) {
	s = strings.ReplaceAll(s, ",", ".")
	var h, m, sec, ms int
	if _, err := fmt.Sscanf(s, "%d:%d:%d.%d", &h, &m, &sec, &ms); err != nil {
		return 0, fmt.Errorf("invalid SRT timestamp %q: %w", s, err)
	}
	return h*3600000 + m*60000 + sec*1000 + ms, nil
}

// msToAssTime converts milliseconds to ASS "H:MM:SS.cc" format.
func msToAssTime(ms int) string {
	h := ms / 3600000
	ms %= 3600000
	m := ms / 60000
	ms %= 60000
	s := ms / 1000
	cs := (ms % 1000) / 10
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

// assColor converts "#RRGGBB" to the ASS &HBBGGRR& primary colour form.
func assColor(hex string) string {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return "&H00FFFFFF"
	}
	r, g, b := hex[0:2], hex[2:4], hex[4:6]
	return fmt.Sprintf("&H00%s%s%s", strings.ToUpper(b), strings.ToUpper(g), strings.ToUpper(r))
}

// ToASS renders cues as an ASS script sized for a vertical frame, with
// cues bottom-centered above the lower margin.
func ToASS(entries []Entry, style Style, playWidth, playHeight int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "[Script Info]\nScriptType: v4.00+\nPlayResX: %d\nPlayResY: %d\n\n", playWidth, playHeight)
	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, OutlineColour, BackColour, Bold, Outline, Shadow, Alignment, MarginL, MarginR, MarginV\n")
	fmt.Fprintf(&sb, "Style: Default,%s,%d,%s,&H00000000,&H7F000000,1,%d,0,2,40,40,%d\n\n",
		style.FontName, style.FontSize, assColor(style.FontColor), style.OutlineWidth, playHeight/8)
	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, e := range entries {
		text := strings.ReplaceAll(e.Text, "\n", "\\N")
		fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			msToAssTime(e.StartMs), msToAssTime(e.EndMs), text)
	}

	return sb.String()
}
