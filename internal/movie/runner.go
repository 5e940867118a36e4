package movie

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/suncast/suncast-agent/internal/imagestore"
)

// Runner polls the store for queued movie requests and builds them one
// at a time.
type Runner struct {
	repo         imagestore.Repository
	builder      *Builder
	logger       *slog.Logger
	pollInterval time.Duration
	minDiskFree  uint64
	dataDir      string
	running      atomic.Bool
}

func NewRunner(repo imagestore.Repository, builder *Builder, dataDir string, minDiskFree uint64, logger *slog.Logger) *Runner {
	return &Runner{
		repo:         repo,
		builder:      builder,
		logger:       logger,
		pollInterval: 5 * time.Second,
		minDiskFree:  minDiskFree,
		dataDir:      dataDir,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("movie runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("movie runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			r.processNext(ctx)
		}
	}
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) processNext(ctx context.Context) {
	queued, err := r.repo.ListQueuedMovies(ctx)
	if err != nil {
		r.logger.Error("failed to list queued movies", "error", err)
		return
	}
	if len(queued) == 0 {
		return
	}

	if !r.diskHeadroomOK() {
		// Leave the request queued and retry on the next tick.
		return
	}

	m := queued[0]
	r.logger.Info("building movie", "movie_id", m.ID)

	var req Request
	if err := json.Unmarshal([]byte(m.Request), &req); err != nil {
		r.logger.Error("stored request is unreadable", "movie_id", m.ID, "error", err)
		r.repo.UpdateMovieStatus(ctx, m.ID, imagestore.MovieStatusInvalid, "unreadable request: "+err.Error())
		return
	}
	req.MovieID = m.ID

	r.repo.UpdateMovieStatus(ctx, m.ID, imagestore.MovieStatusBuilding, "")

	artifact, err := r.builder.Build(ctx, req)
	if err != nil {
		status := imagestore.MovieStatusFailed
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			status = imagestore.MovieStatusInvalid
		}
		r.logger.Warn("movie build failed", "movie_id", m.ID, "status", status, "error", err)
		r.repo.UpdateMovieStatus(ctx, m.ID, status, err.Error())
		return
	}

	m.Status = imagestore.MovieStatusReady
	m.StartTime = artifact.StartTime
	m.EndTime = artifact.EndTime
	m.FrameCount = artifact.FrameCount
	m.FrameRate = artifact.FrameRate
	m.Width = artifact.Width
	m.Height = artifact.Height
	m.Directory = artifact.Directory
	m.Error = ""

	if err := r.repo.UpdateMovieResult(ctx, m); err != nil {
		r.logger.Error("failed to record movie result", "movie_id", m.ID, "error", err)
	}
}

// diskHeadroomOK refuses to start a build when the data directory is
// low on space; intermediate frames can be large.
func (r *Runner) diskHeadroomOK() bool {
	if r.minDiskFree == 0 {
		return true
	}

	usage, err := disk.Usage(r.dataDir)
	if err != nil {
		r.logger.Warn("cannot determine disk usage, proceeding anyway", "error", err)
		return true
	}
	if usage.Free < r.minDiskFree {
		r.logger.Warn("insufficient disk space, postponing build",
			"free_bytes", usage.Free,
			"required_bytes", r.minDiskFree,
		)
		return false
	}
	return true
}
