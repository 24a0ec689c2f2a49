// Package server is the HTTP front door: it accepts generation requests,
// runs the pipeline in the background, and serves job status and finished
// rooms.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"instaroom/internal/pipeline"
	"instaroom/internal/scrape"
)

// Scraper fetches a profile and its recent posts. *scrape.Client satisfies
// it.
type Scraper interface {
	Fetch(ctx context.Context, username string) (scrape.Result, error)
}

// Runner executes the generation pipeline. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, scraped scrape.Result, opts pipeline.Options) (*pipeline.RunResult, error)
}

// Server wires the HTTP API over the scraper and pipeline.
type Server struct {
	echo    *echo.Echo
	scraper Scraper
	runner  Runner
	jobs    *jobStore
	opts    pipeline.Options
	log     *zap.Logger
	wg      sync.WaitGroup
}

// New builds the server. opts selects the pipeline behavior applied to every
// job (output dir, dual view, 3D conversion).
func New(scraper Scraper, runner Runner, opts pipeline.Options, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		scraper: scraper,
		runner:  runner,
		jobs:    newJobStore(),
		opts:    opts,
		log:     log.Named("server"),
	}

	e.GET("/health", s.handleHealth)
	e.POST("/api/generate", s.handleGenerate)
	e.GET("/api/jobs/:id", s.handleJobStatus)
	e.GET("/api/rooms/by-username/:username", s.handleRoomByUsername)
	return s
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.log.Info("listening", zap.String("addr", addr))
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type generateRequest struct {
	Username string `json:"username" form:"username"`
}

type generateResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Existing bool   `json:"existing"`
}

// handleGenerate starts room generation for a username. Requests for a
// username with an in-progress or completed job return that job instead of
// starting a duplicate.
func (s *Server) handleGenerate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	username := strings.TrimSpace(strings.TrimPrefix(req.Username, "@"))
	if username == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username is required")
	}

	job, existing := s.jobs.acquire(username)
	if existing {
		return c.JSON(http.StatusOK, generateResponse{
			JobID:    job.ID,
			Status:   string(job.Status),
			Existing: true,
		})
	}

	s.wg.Add(1)
	go s.runJob(job.ID, username)

	return c.JSON(http.StatusAccepted, generateResponse{
		JobID:  job.ID,
		Status: string(job.Status),
	})
}

// runJob executes the pipeline for one job. The request context is gone by
// the time this runs, so the job gets its own.
func (s *Server) runJob(jobID, username string) {
	defer s.wg.Done()
	ctx := context.Background()
	log := s.log.With(zap.String("job_id", jobID), zap.String("username", username))

	s.jobs.setRunning(jobID)

	scraped, err := s.scraper.Fetch(ctx, username)
	if err != nil {
		log.Error("scrape failed", zap.Error(err))
		s.jobs.fail(jobID, err)
		return
	}

	result, err := s.runner.Run(ctx, scraped, s.opts)
	if err != nil {
		log.Error("pipeline failed", zap.Error(err))
		s.jobs.fail(jobID, err)
		return
	}
	s.jobs.complete(jobID, result)
	log.Info("job completed")
}

func (s *Server) handleJobStatus(c echo.Context) error {
	job, ok := s.jobs.get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) handleRoomByUsername(c echo.Context) error {
	username := strings.TrimPrefix(c.Param("username"), "@")
	job, ok := s.jobs.byUsername(username)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no completed room for this username")
	}
	return c.JSON(http.StatusOK, job)
}
