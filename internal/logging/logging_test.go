package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerWritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&buf)
	logger.Info().Str("stage", "ready").Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"message":"hello"`) {
		t.Errorf("log output missing message: %s", out)
	}
	if !strings.Contains(out, `"stage":"ready"`) {
		t.Errorf("log output missing field: %s", out)
	}
}

func TestWithSessionTagsEvents(t *testing.T) {
	var buf bytes.Buffer

	log := WithSession(NewLogger(&buf), "abc123")
	log.Info().Msg("stage done")

	if !strings.Contains(buf.String(), `"session_id":"abc123"`) {
		t.Errorf("log output missing session id: %s", buf.String())
	}
}

func TestNewLoggerFansOutToAllWriters(t *testing.T) {
	var a, b bytes.Buffer

	logger := NewLogger(&a, &b)
	logger.Error().Msg("boom")

	if a.String() != b.String() {
		t.Errorf("writers diverged: %q vs %q", a.String(), b.String())
	}
	if !strings.Contains(a.String(), `"boom"`) {
		t.Errorf("log output missing message: %s", a.String())
	}
}
