package movie

import (
	"context"
	"fmt"
	"time"

	"github.com/suncast/suncast-agent/internal/imagestore"
	"github.com/suncast/suncast-agent/internal/timeutil"
)

// ImageStore is the slice of the image catalog the frame selection
// needs.
type ImageStore interface {
	NearestImage(ctx context.Context, sourceID int, at time.Time) (*imagestore.ImageRecord, error)
	ImageCount(ctx context.Context, sourceID int, start, end time.Time) (int, error)
}

// estimateFrameCount decides how many frames the movie should have.
// The layer with the most imagery in the window determines density;
// sparser layers reuse their nearest neighbour for the gaps. A
// requested count is clamped to that density, and the result is capped
// at maxFrames divided by the layer count so many-layer requests do
// not overload the encoder. Returns 0 when no layer has any imagery in
// the window.
func estimateFrameCount(ctx context.Context, store ImageStore, layers []Layer, win Window, requested, maxFrames int) (int, error) {
	available := 0
	for _, layer := range layers {
		count, err := store.ImageCount(ctx, layer.SourceID, win.Start, win.End)
		if err != nil {
			return 0, fmt.Errorf("counting images for source %d: %w", layer.SourceID, err)
		}
		if count > available {
			available = count
		}
	}

	if available == 0 {
		return 0, nil
	}

	estimated := available
	if requested > 0 && requested < estimated {
		estimated = requested
	}

	limit := maxFrames / len(layers)
	if limit < 1 {
		limit = 1
	}
	if estimated > limit {
		estimated = limit
	}

	return estimated, nil
}

// enumerateFrames steps through the window at the given cadence and
// resolves the nearest catalogued image per layer at each step. A step
// whose per-layer images are identical to the immediately preceding
// kept frame is suppressed; non-adjacent repeats are kept.
func enumerateFrames(ctx context.Context, store ImageStore, layers []Layer, start time.Time, cadence float64, estimated int) ([]Frame, error) {
	frames := make([]Frame, 0, estimated)
	startSec := float64(start.Unix())

	for i := 0; i < estimated; i++ {
		ts := time.Unix(timeutil.RoundSec(startSec+float64(i)*cadence), 0).UTC()

		images := make([]*imagestore.ImageRecord, len(layers))
		for j, layer := range layers {
			img, err := store.NearestImage(ctx, layer.SourceID, ts)
			if err != nil {
				return nil, fmt.Errorf("nearest image for source %d at %s: %w",
					layer.SourceID, timeutil.FormatISO(ts), err)
			}
			images[j] = img
		}

		frame := Frame{Timestamp: ts, Images: images}
		if len(frames) > 0 && sameImages(frames[len(frames)-1], frame) {
			continue
		}
		frames = append(frames, frame)
	}

	return frames, nil
}

// deriveFrameRate computes the encoder frame rate from the actual frame
// count and the playback target. The -1 compensates for the duplicated
// trailing frame that holds the last image on screen. A caller-supplied
// rate caps the computed one, and the result never drops below 1.
func deriveFrameRate(actualFrames, playbackSeconds int, requested float64) float64 {
	rate := float64(actualFrames-1) / float64(playbackSeconds)
	if requested > 0 && requested < rate {
		rate = requested
	}
	if rate < 1 {
		rate = 1
	}
	return rate
}
