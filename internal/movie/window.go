package movie

import "time"

// resolveWindow turns the requested start/end times into a concrete
// window. A zero end time defaults to start + defaultWindow. A start
// time within one defaultWindow of now forces the window to exactly
// [now-defaultWindow, now], so a movie can never extend into the
// future.
func resolveWindow(start, end time.Time, defaultWindow time.Duration, now time.Time) Window {
	if end.IsZero() {
		end = start.Add(defaultWindow)
	}

	if now.Sub(start) < defaultWindow {
		return Window{Start: now.Add(-defaultWindow), End: now}
	}

	return Window{Start: start, End: end}
}
