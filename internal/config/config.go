package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	TempDir       string `yaml:"temp_dir"`
	RenderWorkers int    `yaml:"render_workers"`

	Server    ServerConfig   `yaml:"server"`
	Session   SessionConfig  `yaml:"session"`
	Selector  SelectorConfig `yaml:"selector"`
	FFmpeg    FFmpegConfig   `yaml:"ffmpeg"`
	Download  DownloadConfig `yaml:"download"`
	Subtitles SubtitleConfig `yaml:"subtitles"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type SelectorConfig struct {
	AverageClipSeconds float64 `yaml:"average_clip_seconds"`
	MinClipSeconds     float64 `yaml:"min_clip_seconds"`
	MaxClipSeconds     float64 `yaml:"max_clip_seconds"`
	SceneThreshold     float64 `yaml:"scene_threshold"`
	SceneWeight        float64 `yaml:"scene_weight"`
	FallbackDuration   float64 `yaml:"fallback_duration"`
}

type FFmpegConfig struct {
	Threads        int           `yaml:"threads"`
	Preset         string        `yaml:"preset"`
	RenderTimeout  time.Duration `yaml:"render_timeout"`
	AnalyzeTimeout time.Duration `yaml:"analyze_timeout"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
}

type DownloadConfig struct {
	BinaryPath string        `yaml:"binary_path"`
	CookieFile string        `yaml:"cookie_file"`
	Timeout    time.Duration `yaml:"timeout"`
}

type SubtitleConfig struct {
	FontName     string `yaml:"font_name"`
	FontSize     int    `yaml:"font_size"`
	FontColor    string `yaml:"font_color"`
	OutlineWidth int    `yaml:"outline_width"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func defaultConfig() *Config {
	return &Config{
		TempDir:       filepath.Join(os.TempDir(), "clipsmith"),
		RenderWorkers: 4,
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5000,
		},
		Session: SessionConfig{
			TTL:           time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Selector: SelectorConfig{
			AverageClipSeconds: 4.5,
			MinClipSeconds:     3,
			MaxClipSeconds:     6,
			SceneThreshold:     0.4,
			SceneWeight:        0.6,
			FallbackDuration:   600,
		},
		FFmpeg: FFmpegConfig{
			Threads:        0,
			Preset:         "medium",
			RenderTimeout:  5 * time.Minute,
			AnalyzeTimeout: 5 * time.Minute,
			ProbeTimeout:   30 * time.Second,
		},
		Download: DownloadConfig{
			BinaryPath: "yt-dlp",
			Timeout:    10 * time.Minute,
		},
		Subtitles: SubtitleConfig{
			FontName:     "Arial",
			FontSize:     24,
			FontColor:    "#FFFFFF",
			OutlineWidth: 2,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".clipsmith", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
