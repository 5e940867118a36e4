// Package encoder drives ffmpeg to turn a directory of sequentially
// numbered frame images into video files.
package encoder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

	// x264 constant rate factor for the primary encode
	h264CRF = "18"
)

// ContainerFormat names a video container produced by the encoder.
type ContainerFormat string

const (
	FormatMP4 ContainerFormat = "mp4"
	FormatMOV ContainerFormat = "mov"
	FormatFLV ContainerFormat = "flv"
)

// Job describes one primary encode: a frame directory in, a video out.
type Job struct {
	FramesDir    string
	FramePattern string // e.g. "frame%d.jpg"
	FrameRate    float64
	OutputDir    string
	FilenameStem string
	Width        int
	Height       int
}

// Encoder is the contract the movie builder consumes.
type Encoder interface {
	// Encode produces the primary container from the frame directory.
	Encode(ctx context.Context, job Job) error

	// Transcode derives an alternative container from an already
	// encoded file.
	Transcode(ctx context.Context, outputDir, filenameStem string, from, to ContainerFormat) error
}

// Config holds the subprocess encoder's configuration.
type Config struct {
	FFmpegPath string        // path to ffmpeg binary; empty = auto-detect
	Timeout    time.Duration // per-invocation timeout; 0 = no timeout
	Logger     *slog.Logger
}

// SubprocessEncoder shells out to ffmpeg with bounded timeouts. The
// per-invocation timeout is an addition over the historical behaviour,
// which ran the encoder unbounded.
type SubprocessEncoder struct {
	cfg    Config
	ffmpeg string // resolved binary path
}

// EncodeError reports an ffmpeg invocation failure with enough context
// to diagnose it from logs alone.
type EncodeError struct {
	Args       []string
	ExitCode   int
	StderrTail string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("ffmpeg exited %d: %s", e.ExitCode, e.StderrTail)
}

// NewSubprocessEncoder resolves the ffmpeg binary and returns a ready
// encoder.
func NewSubprocessEncoder(cfg Config) (*SubprocessEncoder, error) {
	ffmpeg, err := resolveFFmpeg(cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("cannot locate ffmpeg: %w", err)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("encoder initialised", "ffmpeg", ffmpeg, "timeout", cfg.Timeout)
	}
	return &SubprocessEncoder{cfg: cfg, ffmpeg: ffmpeg}, nil
}

func (e *SubprocessEncoder) Encode(ctx context.Context, job Job) error {
	if job.Width%2 != 0 || job.Height%2 != 0 {
		return fmt.Errorf("encoder requires even dimensions, got %dx%d", job.Width, job.Height)
	}
	args := buildEncodeArgs(job)
	return e.run(ctx, args)
}

func (e *SubprocessEncoder) Transcode(ctx context.Context, outputDir, filenameStem string, from, to ContainerFormat) error {
	args, err := buildTranscodeArgs(outputDir, filenameStem, from, to)
	if err != nil {
		return err
	}
	return e.run(ctx, args)
}

// buildEncodeArgs assembles the primary H.264 encode command.
func buildEncodeArgs(job Job) []string {
	return []string{
		"-y",
		"-framerate", fmt.Sprintf("%g", job.FrameRate),
		"-i", filepath.Join(job.FramesDir, job.FramePattern),
		"-vcodec", "libx264",
		"-pix_fmt", "yuv420p",
		"-vf", fmt.Sprintf("scale=%d:%d", job.Width, job.Height),
		"-crf", h264CRF,
		"-preset", "fast",
		filepath.Join(job.OutputDir, job.FilenameStem+"."+string(FormatMP4)),
	}
}

// buildTranscodeArgs assembles a container derivation command. MOV is a
// stream copy of the MP4; FLV needs a re-encode since it cannot carry
// H.264 produced with the primary settings on all players.
func buildTranscodeArgs(outputDir, stem string, from, to ContainerFormat) ([]string, error) {
	input := filepath.Join(outputDir, stem+"."+string(from))
	output := filepath.Join(outputDir, stem+"."+string(to))

	switch to {
	case FormatMOV:
		return []string{"-y", "-i", input, "-vcodec", "copy", "-f", "mov", output}, nil
	case FormatFLV:
		return []string{"-y", "-i", input, "-vcodec", "flv", "-qscale:v", "5", output}, nil
	default:
		return nil, fmt.Errorf("unsupported transcode target %q", to)
	}
}

// run executes one ffmpeg invocation with the configured timeout.
func (e *SubprocessEncoder) run(ctx context.Context, args []string) error {
	start := time.Now()

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.ffmpeg, args...)

	// Capture stderr with bounded buffer
	var stderrBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})
	cmd.Stdout = io.Discard

	if e.cfg.Logger != nil {
		e.cfg.Logger.Info("executing ffmpeg", "args", args)
	}

	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		tail := stderrBuf.String()
		if e.cfg.Logger != nil {
			e.cfg.Logger.Warn("ffmpeg failed",
				"exit_code", exitCode,
				"duration_ms", elapsed.Milliseconds(),
				"stderr_tail", truncate(tail, 512),
			)
		}
		return &EncodeError{Args: args, ExitCode: exitCode, StderrTail: tail}
	}

	if e.cfg.Logger != nil {
		e.cfg.Logger.Info("ffmpeg succeeded", "duration_ms", elapsed.Milliseconds())
	}
	return nil
}

// resolveFFmpeg finds a usable ffmpeg binary.
func resolveFFmpeg(preferred string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured ffmpeg %q not found", preferred)
	}
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("no ffmpeg binary found on PATH")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
