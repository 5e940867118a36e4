package movie

import (
	"testing"
	"time"
)

var testNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

func TestResolveWindow_OldStartKeepsRequestedTimes(t *testing.T) {
	start := testNow.Add(-72 * time.Hour)
	end := start.Add(6 * time.Hour)

	win := resolveWindow(start, end, 24*time.Hour, testNow)

	if !win.Start.Equal(start) {
		t.Errorf("Start = %v, want %v", win.Start, start)
	}
	if !win.End.Equal(end) {
		t.Errorf("End = %v, want %v", win.End, end)
	}
}

func TestResolveWindow_DefaultEnd(t *testing.T) {
	start := testNow.Add(-72 * time.Hour)

	win := resolveWindow(start, time.Time{}, 24*time.Hour, testNow)

	if !win.Start.Equal(start) {
		t.Errorf("Start = %v, want %v", win.Start, start)
	}
	if !win.End.Equal(start.Add(24 * time.Hour)) {
		t.Errorf("End = %v, want start+24h", win.End)
	}
}

func TestResolveWindow_RecentStartForcedToNow(t *testing.T) {
	// Any start within one default window of now pins the window to
	// [now-window, now], regardless of the requested times.
	cases := []struct {
		name  string
		start time.Time
		end   time.Time
	}{
		{"one hour ago", testNow.Add(-time.Hour), time.Time{}},
		{"explicit future end", testNow.Add(-2 * time.Hour), testNow.Add(10 * time.Hour)},
		{"start in the future", testNow.Add(time.Hour), time.Time{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			win := resolveWindow(tc.start, tc.end, 24*time.Hour, testNow)
			if !win.Start.Equal(testNow.Add(-24 * time.Hour)) {
				t.Errorf("Start = %v, want now-24h", win.Start)
			}
			if !win.End.Equal(testNow) {
				t.Errorf("End = %v, want now", win.End)
			}
		})
	}
}

func TestResolveWindow_BoundaryExactlyOneWindowOld(t *testing.T) {
	// now - start == defaultWindow is not "within" the window, so the
	// requested times survive.
	start := testNow.Add(-24 * time.Hour)
	end := start.Add(2 * time.Hour)

	win := resolveWindow(start, end, 24*time.Hour, testNow)

	if !win.Start.Equal(start) || !win.End.Equal(end) {
		t.Errorf("window = [%v, %v], want requested [%v, %v]", win.Start, win.End, start, end)
	}
}
