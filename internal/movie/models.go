// Package movie implements the timelapse movie build pipeline: time
// window resolution, frame selection against the image catalog, frame
// rendering, encoding, and artifact cleanup.
package movie

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/suncast/suncast-agent/internal/encoder"
	"github.com/suncast/suncast-agent/internal/imagestore"
	"github.com/suncast/suncast-agent/internal/timeutil"
)

const (
	// MaxLayers is the most image layers a single movie may composite.
	MaxLayers = 3

	// Sentinel filenames written into a movie directory to signal
	// terminal pipeline state to external pollers.
	SentinelReady   = "READY"
	SentinelInvalid = "INVALID"

	framePattern = "frame%d.jpg"
)

// Layer selects one data-product stream to composite into the movie.
type Layer struct {
	SourceID int    `json:"source_id"`
	Name     string `json:"name,omitempty"`
}

// RegionOfInterest is the visible imagery extent, in arcseconds from
// disk centre, plus the rendering scale in arcseconds per pixel.
type RegionOfInterest struct {
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	X2    float64 `json:"x2"`
	Y2    float64 `json:"y2"`
	Scale float64 `json:"scale"`
}

// PixelWidth returns the ROI width in pixels.
func (r RegionOfInterest) PixelWidth() float64 {
	return (r.X2 - r.X1) / r.Scale
}

// PixelHeight returns the ROI height in pixels.
func (r RegionOfInterest) PixelHeight() float64 {
	return (r.Y2 - r.Y1) / r.Scale
}

// Request is one movie build request.
type Request struct {
	Layers    []Layer          `json:"layers"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time,omitzero"` // zero = default window
	ROI       RegionOfInterest `json:"roi"`
	NumFrames int              `json:"num_frames,omitempty"` // 0 = derive from data
	FrameRate float64          `json:"frame_rate,omitempty"` // 0 = derive from playback target
	MovieID   string           `json:"movie_id,omitempty"`   // assigned when queued
	Quality   int              `json:"quality,omitempty"`    // JPEG quality for frames
	Watermark bool             `json:"watermark,omitempty"`
}

// Window is the concrete time span the movie covers.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Seconds() float64 {
	return w.End.Sub(w.Start).Seconds()
}

// Frame is one selected movie frame: a rounded timestamp and the
// nearest catalogued image per layer. An entry is nil when the layer's
// source has no imagery at all.
type Frame struct {
	Timestamp time.Time
	Images    []*imagestore.ImageRecord
}

// sameImages reports whether two frames resolved to the same image for
// every layer. Used to suppress adjacent duplicate frames.
func sameImages(a, b Frame) bool {
	if len(a.Images) != len(b.Images) {
		return false
	}
	for i := range a.Images {
		switch {
		case a.Images[i] == nil && b.Images[i] == nil:
		case a.Images[i] == nil || b.Images[i] == nil:
			return false
		case a.Images[i].ID != b.Images[i].ID:
			return false
		}
	}
	return true
}

// Settings are the movie generation knobs, passed in at construction
// rather than read from globals.
type Settings struct {
	DefaultWindow   time.Duration // window applied when no end time is given
	MaxFrames       int           // global per-request frame cap
	PlaybackSeconds int           // target playback duration for rate derivation
}

// Artifact is the finished movie.
type Artifact struct {
	ID           string
	Directory    string
	FilenameStem string
	StartTime    time.Time
	EndTime      time.Time
	FrameCount   int
	FrameRate    float64
	Width        int
	Height       int
}

// VideoPath returns the on-disk path of the encoded video in the given
// container format.
func (a *Artifact) VideoPath(format encoder.ContainerFormat) string {
	return filepath.Join(a.Directory, a.FilenameStem+"."+string(format))
}

// PreviewPath returns the on-disk path of the preview thumbnail.
func (a *Artifact) PreviewPath() string {
	return filepath.Join(a.Directory, a.FilenameStem+".jpg")
}

// URL returns the public URL of the movie in the given container
// format, under the supplied base URL.
func (a *Artifact) URL(baseURL string, format encoder.ContainerFormat) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + a.ID + "/" + a.FilenameStem + "." + string(format)
}

// Duration returns the playback duration in seconds.
func (a *Artifact) Duration() float64 {
	if a.FrameRate == 0 {
		return 0
	}
	return float64(a.FrameCount) / a.FrameRate
}

// deriveStem builds the movie filename stem from the resolved window
// and the layer set, unless the request names the movie itself.
func deriveStem(req Request, win Window) string {
	parts := []string{
		timeutil.FormatFilename(win.Start),
		timeutil.FormatFilename(win.End),
	}
	for _, l := range req.Layers {
		if l.Name != "" {
			parts = append(parts, sanitizeName(l.Name))
		} else {
			parts = append(parts, fmt.Sprintf("src%d", l.SourceID))
		}
	}
	return strings.Join(parts, "_")
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, name)
}

// evenDimension rounds a pixel dimension and bumps it to the next even
// integer; the encoder rejects odd frame sizes.
func evenDimension(v float64) int {
	d := int(math.Round(v))
	if d%2 != 0 {
		d++
	}
	return d
}
