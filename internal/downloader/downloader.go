package downloader

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipsmith/clipsmith/pkg/util"
)

// ErrUnavailable marks a source whose metadata could not be resolved.
var ErrUnavailable = errors.New("video metadata unavailable")

// Metadata describes a resolved source video.
type Metadata struct {
	ID              string
	Title           string
	Channel         string
	DurationSeconds float64
	ThumbnailURL    string
}

// ProgressFunc receives byte-level download progress. total is 0 when
// the expected size is unknown.
type ProgressFunc func(downloaded, total int64)

// Client shells out to yt-dlp for metadata resolution and downloads.
type Client struct {
	logger     zerolog.Logger
	binary     string
	cookieFile string
	timeout    time.Duration
}

// New creates a yt-dlp client. binary defaults to "yt-dlp" on PATH.
func New(logger zerolog.Logger, binary, cookieFile string, timeout time.Duration) *Client {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Client{
		logger:     logger.With().Str("component", "downloader").Logger(),
		binary:     binary,
		cookieFile: cookieFile,
		timeout:    timeout,
	}
}

// Available reports whether the yt-dlp binary can be invoked.
func (c *Client) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, c.binary, "--version").Run() == nil
}

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
}

// ExtractVideoID pulls the 11-character video id out of a YouTube URL.
func ExtractVideoID(url string) (string, error) {
	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(url); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("could not extract video id from URL: %s", url)
}

// ytdlpInfo matches the subset of `yt-dlp -J` output we consume.
type ytdlpInfo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Uploader  string  `json:"uploader"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
}

// FetchMetadata resolves a URL to its metadata without downloading.
func (c *Client) FetchMetadata(ctx context.Context, url string) (*Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{"-J", "--no-warnings", "--no-playlist"}
	if c.cookieFile != "" && util.FileExists(c.cookieFile) {
		args = append(args, "--cookies", c.cookieFile)
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, c.binary, args...)
	output, err := cmd.Output()
	if err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("metadata fetch failed")
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, url)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("%w: unparseable metadata for %s", ErrUnavailable, url)
	}

	id := info.ID
	if id == "" {
		if extracted, err := ExtractVideoID(url); err == nil {
			id = extracted
		}
	}

	return &Metadata{
		ID:              id,
		Title:           info.Title,
		Channel:         info.Uploader,
		DurationSeconds: info.Duration,
		ThumbnailURL:    info.Thumbnail,
	}, nil
}

// downloadProgressRe matches yt-dlp --newline progress lines, e.g.
// "[download]  42.3% of 10.55MiB at 1.20MiB/s ETA 00:05"
var downloadProgressRe = regexp.MustCompile(`\[download\]\s+([\d.]+)% of ~?\s*([\d.]+)(KiB|MiB|GiB)`)

// Download fetches the source into destPath and reports byte progress.
func (c *Client) Download(ctx context.Context, url, destPath string, progress ProgressFunc) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := util.EnsureDir(filepath.Dir(destPath)); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	args := []string{
		"-f", "best[ext=mp4][height<=1080]/best[ext=mp4]/best",
		"-o", destPath,
		"--newline",
		"--no-warnings",
		"--no-playlist",
	}
	if c.cookieFile != "" && util.FileExists(c.cookieFile) {
		args = append(args, "--cookies", c.cookieFile)
	}
	args = append(args, url)

	c.logger.Info().Str("url", url).Str("dest", destPath).Msg("downloading source video")

	cmd := exec.CommandContext(ctx, c.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout // yt-dlp interleaves progress on both

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if progress == nil {
			continue
		}
		if pct, total, ok := parseDownloadProgress(line); ok {
			progress(int64(float64(total)*pct/100), total)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("download timed out: %s", url)
		}
		if ctx.Err() == context.Canceled {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("download failed for %s: %w", url, err)
	}

	// yt-dlp may adjust the extension when the chosen format is not mp4
	finalPath := destPath
	if !util.FileExists(finalPath) {
		base := strings.TrimSuffix(destPath, util.GetExtension(destPath))
		for _, ext := range []string{".mp4", ".mkv", ".webm"} {
			if util.FileExists(base + ext) {
				finalPath = base + ext
				break
			}
		}
	}

	if !util.FileExists(finalPath) {
		return "", fmt.Errorf("downloaded file not found at %s", destPath)
	}

	if info, err := os.Stat(finalPath); err == nil && progress != nil {
		progress(info.Size(), info.Size())
	}

	c.logger.Info().Str("path", finalPath).Msg("download complete")
	return finalPath, nil
}

// parseDownloadProgress extracts percent and total bytes from a yt-dlp
// progress line.
func parseDownloadProgress(line string) (pct float64, total int64, ok bool) {
	m := downloadProgressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}

	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, false
	}

	size, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}

	switch m[3] {
	case "KiB":
		total = int64(size * 1024)
	case "MiB":
		total = int64(size * 1024 * 1024)
	case "GiB":
		total = int64(size * 1024 * 1024 * 1024)
	}

	return pct, total, true
}
