package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clipsmith/clipsmith/internal/api"
	"github.com/clipsmith/clipsmith/internal/config"
	"github.com/clipsmith/clipsmith/internal/downloader"
	"github.com/clipsmith/clipsmith/internal/ffmpeg"
	"github.com/clipsmith/clipsmith/internal/logging"
	"github.com/clipsmith/clipsmith/internal/pipeline"
	"github.com/clipsmith/clipsmith/internal/session"
	"github.com/clipsmith/clipsmith/pkg/util"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clipsmith",
	Short: "clipsmith - best-moments vertical compilation service",
	Long:  "Selects scored best-moment clips from source videos and compiles them into a single vertical (9:16) video.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(verbose)

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.clipsmith/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	analyzeCmd.Flags().StringVar(&targetArg, "target", "30", "target compilation duration (seconds or M:SS)")

	compileCmd.Flags().StringVar(&targetArg, "target", "30", "target compilation duration (seconds or M:SS)")
	compileCmd.Flags().StringVar(&compileQuality, "quality", "720p", "output quality (480p|720p|1080p)")
	compileCmd.Flags().StringVar(&compileReframe, "reframe", "blur-pad", "vertical reframe mode (crop|blur-pad)")
	compileCmd.Flags().BoolVar(&compileSubtitles, "subtitles", false, "burn in captions")
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "compilation.mp4", "output file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(configCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the compilation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		logger := logging.NewLogger()

		exec, err := ffmpeg.New(logger, cfg.FFmpeg.Threads, cfg.FFmpeg.Preset)
		if err != nil {
			return err
		}
		if err := util.EnsureDir(cfg.TempDir); err != nil {
			return err
		}

		store := session.NewStore(logger, cfg.TempDir, cfg.Session.TTL, cfg.Session.SweepInterval)
		defer store.Close()

		dl := downloader.New(logger, cfg.Download.BinaryPath, cfg.Download.CookieFile, cfg.Download.Timeout)
		if !dl.Available() {
			logger.Warn().Str("binary", cfg.Download.BinaryPath).Msg("yt-dlp not found, source fetches will degrade")
		}

		pipe := pipeline.New(logger, cfg, store, exec, dl)
		srv := api.NewServer(logger, cfg, store, pipe, dl, exec)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Listen() }()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case <-sig:
			logger.Info().Msg("shutting down")
			return srv.Shutdown()
		}
	},
}

var targetArg string

var analyzeCmd = &cobra.Command{
	Use:   "analyze [input videos...]",
	Short: "Detect best moments in local video files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		logger := logging.NewLogger()

		target, err := util.ParseTimestamp(targetArg)
		if err != nil {
			return err
		}
		targetSeconds := target.Seconds()

		exec, err := ffmpeg.New(logger, cfg.FFmpeg.Threads, cfg.FFmpeg.Preset)
		if err != nil {
			return err
		}

		pipe := pipeline.New(logger, cfg, nil, exec, nil)
		_, selected, err := pipe.AnalyzeLocal(cmd.Context(), args, targetSeconds)
		if err != nil {
			return err
		}

		var total float64
		for _, m := range selected {
			total += m.DurationSeconds()
			logger.Info().
				Int("order", m.Order).
				Str("source", m.SourceID).
				Str("start", util.FormatSeconds(m.Start)).
				Str("end", util.FormatSeconds(m.End)).
				Float64("score", m.Score).
				Str("title", m.Title).
				Msg("moment")
		}

		logger.Info().
			Int("moments", len(selected)).
			Str("total", util.FormatSeconds(total)).
			Msg("analysis complete")

		return nil
	},
}

var (
	compileQuality   string
	compileReframe   string
	compileSubtitles bool
	compileOutput    string
)

var compileCmd = &cobra.Command{
	Use:   "compile [input videos...]",
	Short: "Select moments and compile a vertical video from local files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		if !ffmpeg.ValidQuality(ffmpeg.Quality(compileQuality)) {
			return fmt.Errorf("unknown quality %q", compileQuality)
		}
		logger := logging.NewLogger()

		target, err := util.ParseTimestamp(targetArg)
		if err != nil {
			return err
		}
		targetSeconds := target.Seconds()

		exec, err := ffmpeg.New(logger, cfg.FFmpeg.Threads, cfg.FFmpeg.Preset)
		if err != nil {
			return err
		}
		if err := util.EnsureDir(cfg.TempDir); err != nil {
			return err
		}

		store := session.NewStore(logger, cfg.TempDir, cfg.Session.TTL, cfg.Session.SweepInterval)
		defer store.Close()

		pipe := pipeline.New(logger, cfg, store, exec, nil)

		videos, selected, err := pipe.AnalyzeLocal(cmd.Context(), args, targetSeconds)
		if err != nil {
			return err
		}

		sess, err := store.Create(session.Settings{
			TargetDurationSeconds: targetSeconds,
			Quality:               ffmpeg.Quality(compileQuality),
			Reframe:               ffmpeg.ReframeMode(compileReframe),
			Subtitles:             compileSubtitles,
		})
		if err != nil {
			return err
		}
		defer store.Delete(sess.ID)

		files := make(map[string]string, len(videos))
		for i, v := range videos {
			files[v.ID] = args[i]
		}
		store.Update(sess.ID, func(s *session.Session) {
			s.Videos = videos
			s.SourceFiles = files
			s.Moments = selected
			s.Status = session.StatusReady
		})

		artifact, err := pipe.Compile(cmd.Context(), sess.ID)
		if err != nil {
			return err
		}
		if err := moveFile(artifact, compileOutput); err != nil {
			return err
		}

		duration, err := exec.ProbeDuration(cmd.Context(), compileOutput, cfg.FFmpeg.ProbeTimeout)
		if err != nil {
			logger.Warn().Err(err).Msg("could not probe output duration")
		}

		logger.Info().
			Int("clips", len(selected)).
			Str("duration", util.FormatSeconds(duration)).
			Str("output", compileOutput).
			Msg("compilation written")

		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := cfg.Save(path); err != nil {
			return err
		}

		logger := logging.NewLogger()
		logger.Info().Str("path", path).Msg("config written")
		return nil
	},
}

// moveFile renames src to dst, copying across filesystems when rename
// is not possible.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
