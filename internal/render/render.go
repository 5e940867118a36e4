// Package render composites the per-frame images of a movie. Each frame
// is built from one decoded image per layer, scaled to the movie's pixel
// dimensions and stacked in layer order.
package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/suncast/suncast-agent/internal/timeutil"
)

const DefaultQuality = 85

// Layer is one image file to composite, bottom-up order.
type Layer struct {
	Filepath string
	Label    string
}

// FrameSpec describes a single frame to render.
type FrameSpec struct {
	Index     int
	Timestamp time.Time
	Layers    []Layer
	Width     int
	Height    int
	Quality   int // JPEG quality 1-100; 0 = DefaultQuality
	Watermark bool
	OutputDir string
}

// Renderer produces one composited frame image file per call.
type Renderer interface {
	RenderFrame(ctx context.Context, spec FrameSpec) (string, error)
}

// CompositeRenderer decodes layer images from disk and composites them
// with golang.org/x/image scaling.
type CompositeRenderer struct {
	logger *slog.Logger
}

func NewCompositeRenderer(logger *slog.Logger) *CompositeRenderer {
	return &CompositeRenderer{logger: logger}
}

func (r *CompositeRenderer) RenderFrame(ctx context.Context, spec FrameSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return "", fmt.Errorf("invalid frame dimensions %dx%d", spec.Width, spec.Height)
	}
	if len(spec.Layers) == 0 {
		return "", fmt.Errorf("no layers to render")
	}

	canvas := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	draw.Draw(canvas, canvas.Bounds(), image.Black, image.Point{}, draw.Src)

	for _, layer := range spec.Layers {
		if err := compositeLayer(canvas, layer); err != nil {
			return "", fmt.Errorf("layer %s: %w", filepath.Base(layer.Filepath), err)
		}
	}

	if spec.Watermark {
		r.drawWatermark(canvas, spec)
	}

	quality := spec.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	outPath := filepath.Join(spec.OutputDir, fmt.Sprintf("frame%d.jpg", spec.Index))
	if err := writeJPEG(outPath, canvas, quality); err != nil {
		return "", err
	}

	if r.logger != nil {
		r.logger.Debug("rendered frame",
			"index", spec.Index,
			"timestamp", timeutil.FormatISO(spec.Timestamp),
			"layers", len(spec.Layers),
		)
	}
	return outPath, nil
}

func compositeLayer(canvas *image.RGBA, layer Layer) error {
	f, err := os.Open(layer.Filepath)
	if err != nil {
		return fmt.Errorf("cannot open layer image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("cannot decode layer image: %w", err)
	}

	xdraw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return nil
}

// drawWatermark prints the frame timestamp and layer labels along the
// bottom edge of the frame.
func (r *CompositeRenderer) drawWatermark(canvas *image.RGBA, spec FrameSpec) {
	label := timeutil.FormatISO(spec.Timestamp)
	for _, layer := range spec.Layers {
		if layer.Label != "" {
			label += "  " + layer.Label
		}
	}

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(6),
			Y: fixed.I(spec.Height - 6),
		},
	}
	d.DrawString(label)
}

func writeJPEG(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create frame file: %w", err)
	}

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		return fmt.Errorf("cannot encode frame: %w", err)
	}
	return f.Close()
}
