package movie

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/suncast/suncast-agent/internal/encoder"
	"github.com/suncast/suncast-agent/internal/imagestore"
	"github.com/suncast/suncast-agent/internal/render"
	"github.com/suncast/suncast-agent/internal/timeutil"
)

// Builder orchestrates one movie build: window resolution, frame
// selection, rendering, encoding, and cleanup. Builds are sequential
// and blocking; each request gets its own directory under moviesDir.
type Builder struct {
	store     ImageStore
	renderer  render.Renderer
	enc       encoder.Encoder
	settings  Settings
	moviesDir string
	logger    *slog.Logger

	// now is replaceable for tests
	now func() time.Time
}

func NewBuilder(store ImageStore, renderer render.Renderer, enc encoder.Encoder, settings Settings, moviesDir string, logger *slog.Logger) *Builder {
	return &Builder{
		store:     store,
		renderer:  renderer,
		enc:       enc,
		settings:  settings,
		moviesDir: moviesDir,
		logger:    logger,
		now:       time.Now,
	}
}

// Build runs the full pipeline for one request. On any failure the
// movie directory is left with an INVALID sentinel; on success it
// holds the preview image, the video files, and a READY sentinel.
func (b *Builder) Build(ctx context.Context, req Request) (artifact *Artifact, err error) {
	id := req.MovieID
	if id == "" {
		id = imagestore.NewID()
	}

	dir := filepath.Join(b.moviesDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create movie directory: %w", err)
	}

	// Every unrecoverable failure marks the directory, not only
	// validation failures.
	defer func() {
		if err != nil {
			b.markInvalid(dir)
		}
	}()

	if len(req.Layers) == 0 {
		return nil, &ValidationError{Reason: "no layers specified"}
	}
	if len(req.Layers) > MaxLayers {
		return nil, &ValidationError{Reason: fmt.Sprintf("too many layers: %d (max %d)", len(req.Layers), MaxLayers)}
	}

	win := resolveWindow(req.StartTime, req.EndTime, b.settings.DefaultWindow, b.now().UTC())

	estimated, err := estimateFrameCount(ctx, b.store, req.Layers, win, req.NumFrames, b.settings.MaxFrames)
	if err != nil {
		return nil, err
	}
	if estimated == 0 {
		return nil, &ValidationError{Reason: fmt.Sprintf("no images available between %s and %s",
			timeutil.FormatISO(win.Start), timeutil.FormatISO(win.End))}
	}

	cadence := win.Seconds() / float64(estimated)

	frames, err := enumerateFrames(ctx, b.store, req.Layers, win.Start, cadence, estimated)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, &ValidationError{Reason: "no renderable frames in range"}
	}

	width := evenDimension(req.ROI.PixelWidth())
	height := evenDimension(req.ROI.PixelHeight())
	frameRate := deriveFrameRate(len(frames), b.settings.PlaybackSeconds, req.FrameRate)
	stem := deriveStem(req, win)

	b.logger.Info("movie build starting",
		"movie_id", id,
		"window_start", timeutil.FormatISO(win.Start),
		"window_end", timeutil.FormatISO(win.End),
		"estimated_frames", estimated,
		"actual_frames", len(frames),
		"cadence_s", cadence,
		"frame_rate", frameRate,
		"dimensions", fmt.Sprintf("%dx%d", width, height),
	)

	framesDir := filepath.Join(dir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create frames directory: %w", err)
	}

	framePaths, err := b.renderFrames(ctx, req, frames, framesDir, width, height)
	if err != nil {
		return nil, err
	}

	if err := b.encode(ctx, framesDir, dir, stem, frameRate, width, height); err != nil {
		return nil, err
	}

	if err := b.cleanup(dir, framesDir, framePaths, stem); err != nil {
		return nil, err
	}

	if err := writeSentinel(dir, SentinelReady); err != nil {
		return nil, err
	}

	b.logger.Info("movie build complete", "movie_id", id, "frames", len(frames))

	return &Artifact{
		ID:           id,
		Directory:    dir,
		FilenameStem: stem,
		StartTime:    win.Start,
		EndTime:      win.End,
		FrameCount:   len(frames),
		FrameRate:    frameRate,
		Width:        width,
		Height:       height,
	}, nil
}

// renderFrames invokes the renderer per selected frame and duplicates
// the final frame once so the last image holds for a full frame
// duration in playback.
func (b *Builder) renderFrames(ctx context.Context, req Request, frames []Frame, framesDir string, width, height int) ([]string, error) {
	paths := make([]string, 0, len(frames)+1)

	for i, frame := range frames {
		spec := render.FrameSpec{
			Index:     i,
			Timestamp: frame.Timestamp,
			Layers:    frameLayers(req, frame),
			Width:     width,
			Height:    height,
			Quality:   req.Quality,
			Watermark: req.Watermark,
			OutputDir: framesDir,
		}
		path, err := b.renderer.RenderFrame(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("rendering frame %d: %w", i, err)
		}
		paths = append(paths, path)
	}

	last := paths[len(paths)-1]
	dup := filepath.Join(framesDir, fmt.Sprintf(framePattern, len(paths)))
	if err := copyFile(last, dup); err != nil {
		return nil, fmt.Errorf("duplicating final frame: %w", err)
	}
	paths = append(paths, dup)

	return paths, nil
}

// frameLayers maps a frame's per-layer image records onto renderer
// layers, skipping layers whose source had no imagery.
func frameLayers(req Request, frame Frame) []render.Layer {
	layers := make([]render.Layer, 0, len(frame.Images))
	for i, img := range frame.Images {
		if img == nil {
			continue
		}
		layers = append(layers, render.Layer{
			Filepath: filepath.Join(img.Filepath, img.Filename),
			Label:    req.Layers[i].Name,
		})
	}
	return layers
}

// encode produces the primary MP4 plus MOV and FLV alternatives.
func (b *Builder) encode(ctx context.Context, framesDir, dir, stem string, frameRate float64, width, height int) error {
	job := encoder.Job{
		FramesDir:    framesDir,
		FramePattern: framePattern,
		FrameRate:    frameRate,
		OutputDir:    dir,
		FilenameStem: stem,
		Width:        width,
		Height:       height,
	}
	if err := b.enc.Encode(ctx, job); err != nil {
		return fmt.Errorf("encoding %s: %w", encoder.FormatMP4, err)
	}

	for _, format := range []encoder.ContainerFormat{encoder.FormatMOV, encoder.FormatFLV} {
		if err := b.enc.Transcode(ctx, dir, stem, encoder.FormatMP4, format); err != nil {
			return fmt.Errorf("transcoding to %s: %w", format, err)
		}
	}
	return nil
}

// cleanup promotes the first frame to the permanent preview thumbnail,
// removes the remaining intermediate frames, and drops the frames
// directory.
func (b *Builder) cleanup(dir, framesDir string, framePaths []string, stem string) error {
	preview := filepath.Join(dir, stem+".jpg")
	if err := os.Rename(framePaths[0], preview); err != nil {
		return fmt.Errorf("promoting preview image: %w", err)
	}

	for _, p := range framePaths[1:] {
		if err := os.Remove(p); err != nil {
			b.logger.Warn("failed to remove intermediate frame", "path", p, "error", err)
		}
	}

	if err := os.Remove(framesDir); err != nil {
		b.logger.Warn("failed to remove frames directory", "path", framesDir, "error", err)
	}
	return nil
}

func (b *Builder) markInvalid(dir string) {
	if err := writeSentinel(dir, SentinelInvalid); err != nil {
		b.logger.Error("failed to write INVALID sentinel", "dir", dir, "error", err)
	}
}

func writeSentinel(dir, name string) error {
	if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
		return fmt.Errorf("cannot write %s sentinel: %w", name, err)
	}
	return nil
}

func copyFile(src, dst string) error {
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
	return out.Close()
}
