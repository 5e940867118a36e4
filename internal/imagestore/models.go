package imagestore

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// ImageRecord is one catalogued solar image: a single observation from
// one data-product stream (instrument/detector/measurement combination).
type ImageRecord struct {
	ID         string    `json:"id"`
	SourceID   int       `json:"source_id"`
	ObservedAt time.Time `json:"observed_at"`
	Filepath   string    `json:"filepath"`
	Filename   string    `json:"filename"`
	CreatedAt  time.Time `json:"created_at"`
}

// SourceSummary describes one known source stream.
type SourceSummary struct {
	SourceID   int       `json:"source_id"`
	ImageCount int       `json:"image_count"`
	Oldest     time.Time `json:"oldest"`
	Newest     time.Time `json:"newest"`
}

const (
	MovieStatusQueued   = "queued"
	MovieStatusBuilding = "building"
	MovieStatusReady    = "ready"
	MovieStatusInvalid  = "invalid"
	MovieStatusFailed   = "failed"
)

// Movie is the persisted state of one movie request.
type Movie struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Request    string    `json:"request"` // original request, JSON-encoded
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	FrameCount int       `json:"frame_count"`
	FrameRate  float64   `json:"frame_rate"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Directory  string    `json:"directory"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewID returns a lexicographically sortable unique identifier. Movie
// directories are keyed by it, so concurrent requests never collide.
func NewID() string {
	return ulid.Make().String()
}
