package api

import (
	"encoding/json"
	"net/http"

	"github.com/suncast/suncast-agent/internal/imagestore"
	"github.com/suncast/suncast-agent/internal/movie"
	"github.com/suncast/suncast-agent/internal/timeutil"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State         string `json:"state"`
	MoviesQueued  int    `json:"movies_queued"`
	MoviesReady   int    `json:"movies_ready"`
	MoviesFailed  int    `json:"movies_failed"`
	LastError     string `json:"last_error,omitempty"`
	DiskFreeBytes uint64 `json:"disk_free_bytes"`
}

type LayerRequest struct {
	SourceID int    `json:"source_id"`
	Name     string `json:"name,omitempty"`
}

type ROIRequest struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Scale float64 `json:"scale"`
}

type CreateMovieRequest struct {
	Layers    []LayerRequest `json:"layers"`
	StartTime string         `json:"start_time"`
	EndTime   string         `json:"end_time,omitempty"`
	ROI       ROIRequest     `json:"roi"`
	NumFrames int            `json:"num_frames,omitempty"`
	FrameRate float64        `json:"frame_rate,omitempty"`
	Quality   int            `json:"quality,omitempty"`
	Watermark bool           `json:"watermark,omitempty"`
}

type CreateMovieResponse struct {
	MovieID string `json:"movie_id"`
}

type MovieResponse struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	StartTime  string  `json:"start_time,omitempty"`
	EndTime    string  `json:"end_time,omitempty"`
	FrameCount int     `json:"frame_count,omitempty"`
	FrameRate  float64 `json:"frame_rate,omitempty"`
	DurationS  float64 `json:"duration_s,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Directory  string  `json:"directory,omitempty"`
	Error      string  `json:"error,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

type MoviesResponse struct {
	Movies []MovieResponse `json:"movies"`
}

type IngestImageRequest struct {
	SourceID   int    `json:"source_id"`
	ObservedAt string `json:"observed_at"`
	Filepath   string `json:"filepath"`
	Filename   string `json:"filename"`
}

type IngestImageResponse struct {
	ImageID string `json:"image_id"`
}

type SourceResponse struct {
	SourceID   int    `json:"source_id"`
	ImageCount int    `json:"image_count"`
	Oldest     string `json:"oldest"`
	Newest     string `json:"newest"`
}

type SourcesResponse struct {
	Sources []SourceResponse `json:"sources"`
}

func MovieToResponse(m *imagestore.Movie) MovieResponse {
	resp := MovieResponse{
		ID:        m.ID,
		Status:    m.Status,
		Error:     m.Error,
		CreatedAt: timeutil.FormatISO(m.CreatedAt),
	}
	if m.Status == imagestore.MovieStatusReady {
		resp.StartTime = timeutil.FormatISO(m.StartTime)
		resp.EndTime = timeutil.FormatISO(m.EndTime)
		resp.FrameCount = m.FrameCount
		resp.FrameRate = m.FrameRate
		resp.Width = m.Width
		resp.Height = m.Height
		resp.Directory = m.Directory
		if m.FrameRate > 0 {
			resp.DurationS = float64(m.FrameCount) / m.FrameRate
		}
	}
	return resp
}

// toMovieRequest validates the wire request and converts it to the
// builder's request type.
func (req CreateMovieRequest) toMovieRequest() (movie.Request, error) {
	var out movie.Request

	start, err := timeutil.ParseISO(req.StartTime)
	if err != nil {
		return out, err
	}
	out.StartTime = start

	if req.EndTime != "" {
		end, err := timeutil.ParseISO(req.EndTime)
		if err != nil {
			return out, err
		}
		out.EndTime = end
	}

	for _, l := range req.Layers {
		out.Layers = append(out.Layers, movie.Layer{SourceID: l.SourceID, Name: l.Name})
	}

	out.ROI = movie.RegionOfInterest{
		X1: req.ROI.X1, Y1: req.ROI.Y1,
		X2: req.ROI.X2, Y2: req.ROI.Y2,
		Scale: req.ROI.Scale,
	}
	out.NumFrames = req.NumFrames
	out.FrameRate = req.FrameRate
	out.Quality = req.Quality
	out.Watermark = req.Watermark
	return out, nil
}

func WriteError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
