package api

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/clipsmith/clipsmith/internal/ffmpeg"
	"github.com/clipsmith/clipsmith/internal/moments"
	"github.com/clipsmith/clipsmith/internal/session"
)

type detectRequest struct {
	Urls []string `json:"urls" validate:"required,min=1,max=10,dive,required,url"`
}

type createCompilationRequest struct {
	Urls                  []string `json:"urls" validate:"required,min=1,max=10,dive,required,url"`
	TargetDurationSeconds float64  `json:"targetDurationSeconds" validate:"required,gt=0,lte=600"`
	Quality               string   `json:"quality" validate:"omitempty,oneof=480p 720p 1080p"`
	Reframe               string   `json:"reframe" validate:"omitempty,oneof=crop blur-pad"`
	Subtitles             bool     `json:"subtitles"`
}

type videoJSON struct {
	ID              string  `json:"id"`
	URL             string  `json:"url"`
	Title           string  `json:"title"`
	Channel         string  `json:"channel,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
	ThumbnailURL    string  `json:"thumbnailUrl,omitempty"`
	Degraded        bool    `json:"degraded"`
}

type momentJSON struct {
	SourceID string  `json:"sourceId"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Score    float64 `json:"score"`
	Order    int     `json:"order"`
	Title    string  `json:"title"`
	Enabled  bool    `json:"enabled"`
	Degraded bool    `json:"degraded"`
}

type sessionJSON struct {
	ID        string         `json:"id"`
	Status    session.Status `json:"status"`
	Stage     string         `json:"stage"`
	Progress  float64        `json:"progress"`
	Tasks     []session.Task `json:"tasks"`
	Videos    []videoJSON    `json:"videos,omitempty"`
	Moments   []momentJSON   `json:"moments,omitempty"`
	Error     string         `json:"error,omitempty"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

func toVideoJSON(videos []moments.SourceVideo) []videoJSON {
	out := make([]videoJSON, len(videos))
	for i, v := range videos {
		out[i] = videoJSON{
			ID:              v.ID,
			URL:             v.URL,
			Title:           v.Title,
			Channel:         v.Channel,
			DurationSeconds: v.DurationSeconds,
			ThumbnailURL:    v.ThumbnailURL,
			Degraded:        v.Degraded,
		}
	}
	return out
}

func toSessionJSON(sess *session.Session) sessionJSON {
	out := sessionJSON{
		ID:        sess.ID,
		Status:    sess.Status,
		Stage:     sess.Stage,
		Progress:  sess.Progress,
		Tasks:     sess.Tasks,
		Videos:    toVideoJSON(sess.Videos),
		Error:     sess.Error,
		ExpiresAt: sess.ExpiresAt,
	}
	for _, m := range sess.Moments {
		out.Moments = append(out.Moments, momentJSON{
			SourceID: m.SourceID,
			Start:    m.Start,
			End:      m.End,
			Score:    m.Score,
			Order:    m.Order,
			Title:    m.Title,
			Enabled:  m.Enabled,
			Degraded: m.Degraded,
		})
	}
	return out
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"ffmpeg": s.exec != nil,
		"ytdlp":  s.dl.Available(),
	})
}

// detectVideos resolves metadata for a batch of URLs without creating
// a session. Unresolvable entries come back flagged degraded.
func (s *Server) detectVideos(c *fiber.Ctx) error {
	payload := new(detectRequest)
	if err := c.BodyParser(payload); err != nil {
		return s.badRequest(c, fmt.Sprintf("invalid request body: %v", err))
	}
	if err := s.validate.Struct(payload); err != nil {
		return s.badRequest(c, fmt.Sprintf("validation failed: %v", err))
	}

	videos := s.pipeline.ResolveVideos(c.UserContext(), payload.Urls)
	return c.JSON(fiber.Map{
		"status": "success",
		"data":   fiber.Map{"videos": toVideoJSON(videos)},
	})
}

// createCompilation starts the selection pipeline for a set of URLs and
// returns the session to poll.
func (s *Server) createCompilation(c *fiber.Ctx) error {
	payload := new(createCompilationRequest)
	if err := c.BodyParser(payload); err != nil {
		return s.badRequest(c, fmt.Sprintf("invalid request body: %v", err))
	}
	if err := s.validate.Struct(payload); err != nil {
		return s.badRequest(c, fmt.Sprintf("validation failed: %v", err))
	}

	sess, err := s.pipeline.Start(payload.Urls, session.Settings{
		TargetDurationSeconds: payload.TargetDurationSeconds,
		Quality:               ffmpeg.Quality(payload.Quality),
		Reframe:               ffmpeg.ReframeMode(payload.Reframe),
		Subtitles:             payload.Subtitles,
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "success",
		"data":   toSessionJSON(sess),
	})
}

// getCompilation is an idempotent status projection safe to poll.
func (s *Server) getCompilation(c *fiber.Ctx) error {
	sess, err := s.store.Get(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"status": "success",
		"data":   toSessionJSON(sess),
	})
}

// downloadCompilation compiles the session's moments and streams the
// artifact back. The session is evicted once the stream is handed off;
// the open file handle keeps the bytes readable while they go out.
func (s *Server) downloadCompilation(c *fiber.Ctx) error {
	id := c.Params("id")

	artifact, err := s.pipeline.Compile(c.UserContext(), id)
	if err != nil {
		return s.fail(c, err)
	}

	f, err := os.Open(artifact)
	if err != nil {
		return s.fail(c, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return s.fail(c, err)
	}

	s.store.Delete(id)

	c.Set(fiber.HeaderContentType, "video/mp4")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="compilation.mp4"`)
	return c.SendStream(f, int(info.Size()))
}

func (s *Server) deleteCompilation(c *fiber.Ctx) error {
	s.store.Delete(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"status":  "error",
		"message": msg,
	})
}

// fail maps pipeline and store errors onto HTTP status codes.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNotReady):
		status = fiber.StatusConflict
	case errors.Is(err, moments.ErrInvalidInput):
		status = fiber.StatusBadRequest
	}
	if status == fiber.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": err.Error(),
	})
}
