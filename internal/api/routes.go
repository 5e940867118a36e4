package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/suncast/suncast-agent/internal/config"
	"github.com/suncast/suncast-agent/internal/imagestore"
	"github.com/suncast/suncast-agent/internal/movie"
	"github.com/suncast/suncast-agent/internal/timeutil"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Get("/status", statusHandler(cfg))

	r.Post("/movies", createMovieHandler(cfg))
	r.Get("/movies", listMoviesHandler(cfg))
	r.Get("/movies/{id}", getMovieHandler(cfg))

	r.Post("/images", ingestImageHandler(cfg))
	r.Get("/sources", listSourcesHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		movies, err := cfg.Repository.ListMovies(r.Context(), 100)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list movies", "INTERNAL_ERROR")
			return
		}

		resp := StatusResponse{State: "idle"}
		for _, m := range movies {
			switch m.Status {
			case imagestore.MovieStatusQueued:
				resp.MoviesQueued++
			case imagestore.MovieStatusBuilding:
				resp.State = "building"
			case imagestore.MovieStatusReady:
				resp.MoviesReady++
			case imagestore.MovieStatusFailed, imagestore.MovieStatusInvalid:
				resp.MoviesFailed++
				if resp.LastError == "" {
					resp.LastError = m.Error
				}
			}
		}

		if usage, err := disk.Usage(cfg.DataDir); err == nil {
			resp.DiskFreeBytes = usage.Free
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func createMovieHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateMovieRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if len(req.Layers) == 0 {
			WriteError(w, http.StatusBadRequest, "at least one layer is required", "BAD_REQUEST")
			return
		}
		if len(req.Layers) > movie.MaxLayers {
			WriteError(w, http.StatusBadRequest, "too many layers", "BAD_REQUEST")
			return
		}
		if req.StartTime == "" {
			WriteError(w, http.StatusBadRequest, "start_time is required", "BAD_REQUEST")
			return
		}
		if req.ROI.Scale <= 0 || req.ROI.X2 <= req.ROI.X1 || req.ROI.Y2 <= req.ROI.Y1 {
			WriteError(w, http.StatusBadRequest, "invalid region of interest", "BAD_REQUEST")
			return
		}

		movieReq, err := req.toMovieRequest()
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		encoded, err := json.Marshal(movieReq)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to encode request", "INTERNAL_ERROR")
			return
		}

		now := time.Now().UTC()
		m := &imagestore.Movie{
			ID:        imagestore.NewID(),
			Status:    imagestore.MovieStatusQueued,
			Request:   string(encoded),
			StartTime: movieReq.StartTime,
			EndTime:   movieReq.EndTime,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := cfg.Repository.CreateMovie(r.Context(), m); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to queue movie", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusAccepted, CreateMovieResponse{MovieID: m.ID})
	}
}

func listMoviesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		movies, err := cfg.Repository.ListMovies(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list movies", "INTERNAL_ERROR")
			return
		}

		resp := MoviesResponse{Movies: make([]MovieResponse, len(movies))}
		for i, m := range movies {
			resp.Movies[i] = MovieToResponse(m)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getMovieHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "movie id required", "BAD_REQUEST")
			return
		}

		m, err := cfg.Repository.GetMovie(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load movie", "INTERNAL_ERROR")
			return
		}
		if m == nil {
			WriteError(w, http.StatusNotFound, "movie not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, MovieToResponse(m))
	}
}

func ingestImageHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IngestImageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Filename == "" || req.Filepath == "" {
			WriteError(w, http.StatusBadRequest, "filepath and filename are required", "BAD_REQUEST")
			return
		}
		observedAt, err := timeutil.ParseISO(req.ObservedAt)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid observed_at: "+err.Error(), "BAD_REQUEST")
			return
		}

		img := &imagestore.ImageRecord{
			ID:         imagestore.NewID(),
			SourceID:   req.SourceID,
			ObservedAt: observedAt,
			Filepath:   req.Filepath,
			Filename:   req.Filename,
			CreatedAt:  time.Now().UTC(),
		}
		if err := cfg.Repository.InsertImage(r.Context(), img); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to store image", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusCreated, IngestImageResponse{ImageID: img.ID})
	}
}

func listSourcesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := cfg.Repository.ListSources(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list sources", "INTERNAL_ERROR")
			return
		}

		resp := SourcesResponse{Sources: make([]SourceResponse, len(sources))}
		for i, s := range sources {
			resp.Sources[i] = SourceResponse{
				SourceID:   s.SourceID,
				ImageCount: s.ImageCount,
				Oldest:     timeutil.FormatISO(s.Oldest),
				Newest:     timeutil.FormatISO(s.Newest),
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
