package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipsmith/clipsmith/internal/config"
	"github.com/clipsmith/clipsmith/internal/downloader"
	"github.com/clipsmith/clipsmith/internal/pipeline"
	"github.com/clipsmith/clipsmith/internal/session"
)

// newTestServer wires the full stack against a downloader binary that
// does not exist, so no test depends on network access or yt-dlp.
func newTestServer(t *testing.T) (*Server, *session.Store) {
	t.Helper()

	cfg := &config.Config{
		TempDir:       t.TempDir(),
		RenderWorkers: 2,
		Server:        config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Selector: config.SelectorConfig{
			AverageClipSeconds: 4.5,
			MinClipSeconds:     3,
			MaxClipSeconds:     6,
			SceneThreshold:     0.4,
			SceneWeight:        0.6,
			FallbackDuration:   600,
		},
		FFmpeg: config.FFmpegConfig{
			RenderTimeout:  time.Minute,
			AnalyzeTimeout: time.Minute,
			ProbeTimeout:   10 * time.Second,
		},
		Download: config.DownloadConfig{
			BinaryPath: "clipsmith-no-such-binary",
			Timeout:    5 * time.Second,
		},
	}

	logger := zerolog.New(os.Stderr)
	store := session.NewStore(logger, cfg.TempDir, time.Hour, time.Hour)
	t.Cleanup(store.Close)

	dl := downloader.New(logger, cfg.Download.BinaryPath, "", cfg.Download.Timeout)
	pl := pipeline.New(logger, cfg, store, nil, dl)

	return NewServer(logger, cfg, store, pl, dl, nil), store
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("invalid json %q: %v", data, err)
	}
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), 10000)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
	if body["ffmpeg"] != false {
		t.Errorf("ffmpeg availability should reflect the nil executor, body = %v", body)
	}
}

func TestDetectRejectsBadPayloads(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"empty urls", `{"urls":[]}`},
		{"not a url", `{"urls":["not a url"]}`},
		{"malformed json", `{"urls":`},
	}
	for _, tc := range cases {
		resp, err := srv.App().Test(jsonRequest(http.MethodPost, "/api/v1/videos/detect", tc.body))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, resp.StatusCode)
		}
	}
}

func TestDetectDegradesUnresolvableVideos(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"urls":["https://www.youtube.com/watch?v=dQw4w9WgXcQ"]}`
	resp, err := srv.App().Test(jsonRequest(http.MethodPost, "/api/v1/videos/detect", body), 30000)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	out := decodeBody(t, resp)
	data := out["data"].(map[string]interface{})
	videos := data["videos"].([]interface{})
	if len(videos) != 1 {
		t.Fatalf("got %d videos", len(videos))
	}
	v := videos[0].(map[string]interface{})
	if v["degraded"] != true {
		t.Errorf("video not degraded: %v", v)
	}
	if v["id"] != "dQw4w9WgXcQ" {
		t.Errorf("id = %v", v["id"])
	}
}

func TestCreateCompilationValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []string{
		`{"urls":["https://www.youtube.com/watch?v=dQw4w9WgXcQ"]}`,
		`{"urls":["https://www.youtube.com/watch?v=dQw4w9WgXcQ"],"targetDurationSeconds":-5}`,
		`{"urls":["https://www.youtube.com/watch?v=dQw4w9WgXcQ"],"targetDurationSeconds":30,"quality":"4k"}`,
		`{"urls":["https://www.youtube.com/watch?v=dQw4w9WgXcQ"],"targetDurationSeconds":30,"reframe":"stretch"}`,
	}
	for i, body := range cases {
		resp, err := srv.App().Test(jsonRequest(http.MethodPost, "/api/v1/compilations", body))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("case %d: status = %d, want 400", i, resp.StatusCode)
		}
	}
}

func TestCreateAndPollCompilation(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{"urls":["https://www.youtube.com/watch?v=dQw4w9WgXcQ"],"targetDurationSeconds":30,"quality":"720p"}`
	resp, err := srv.App().Test(jsonRequest(http.MethodPost, "/api/v1/compilations", body), 30000)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	out := decodeBody(t, resp)
	data := out["data"].(map[string]interface{})
	id, _ := data["id"].(string)
	if id == "" {
		t.Fatalf("no session id in %v", data)
	}
	if data["status"] != "processing" {
		t.Errorf("initial status = %v", data["status"])
	}
	tasks := data["tasks"].([]interface{})
	if len(tasks) != 3 {
		t.Errorf("got %d tasks, want download/analyze/compile", len(tasks))
	}

	resp, err = srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/v1/compilations/"+id, nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("poll status = %d", resp.StatusCode)
	}

	// The background pipeline keeps writing into TempDir until it
	// settles; wait for it to leave processing so the test's TempDir
	// cleanup does not race the goroutine.
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err = srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/v1/compilations/"+id, nil))
		if err != nil {
			t.Fatal(err)
		}
		status := decodeBody(t, resp)["data"].(map[string]interface{})["status"]
		if status != "processing" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session still processing after 10s")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGetUnknownCompilation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/v1/compilations/nope", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDownloadBeforeReadyConflicts(t *testing.T) {
	srv, store := newTestServer(t)

	sess, _ := store.Create(session.Settings{TargetDurationSeconds: 30})

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodPost, "/api/v1/compilations/"+sess.ID+"/download", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}

	resp, err = srv.App().Test(httptest.NewRequest(http.MethodPost, "/api/v1/compilations/nope/download", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteCompilationIsIdempotent(t *testing.T) {
	srv, store := newTestServer(t)

	sess, _ := store.Create(session.Settings{TargetDurationSeconds: 30})

	for i := 0; i < 2; i++ {
		resp, err := srv.App().Test(httptest.NewRequest(http.MethodDelete, "/api/v1/compilations/"+sess.ID, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("delete %d: status = %d, want 204", i, resp.StatusCode)
		}
	}

	resp, _ := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/v1/compilations/"+sess.ID, nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", resp.StatusCode)
	}
}
