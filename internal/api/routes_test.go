package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/suncast/suncast-agent/internal/imagestore"
)

// fakeRepo is an in-memory imagestore.Repository for handler tests.
type fakeRepo struct {
	movies  map[string]*imagestore.Movie
	images  []*imagestore.ImageRecord
	sources []*imagestore.SourceSummary
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{movies: make(map[string]*imagestore.Movie)}
}

func (r *fakeRepo) InsertImage(_ context.Context, img *imagestore.ImageRecord) error {
	r.images = append(r.images, img)
	return nil
}

func (r *fakeRepo) NearestImage(_ context.Context, _ int, _ time.Time) (*imagestore.ImageRecord, error) {
	return nil, nil
}

func (r *fakeRepo) ImageCount(_ context.Context, _ int, _, _ time.Time) (int, error) {
	return len(r.images), nil
}

func (r *fakeRepo) ListSources(_ context.Context) ([]*imagestore.SourceSummary, error) {
	return r.sources, nil
}

func (r *fakeRepo) CreateMovie(_ context.Context, m *imagestore.Movie) error {
	r.movies[m.ID] = m
	return nil
}

func (r *fakeRepo) GetMovie(_ context.Context, id string) (*imagestore.Movie, error) {
	return r.movies[id], nil
}

func (r *fakeRepo) ListMovies(_ context.Context, _ int) ([]*imagestore.Movie, error) {
	var out []*imagestore.Movie
	for _, m := range r.movies {
		out = append(out, m)
	}
	return out, nil
}

func (r *fakeRepo) ListQueuedMovies(_ context.Context) ([]*imagestore.Movie, error) {
	var out []*imagestore.Movie
	for _, m := range r.movies {
		if m.Status == imagestore.MovieStatusQueued {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateMovieStatus(_ context.Context, id, status, errorMsg string) error {
	if m, ok := r.movies[id]; ok {
		m.Status = status
		m.Error = errorMsg
	}
	return nil
}

func (r *fakeRepo) UpdateMovieResult(_ context.Context, m *imagestore.Movie) error {
	r.movies[m.ID] = m
	return nil
}

func testServerConfig(repo imagestore.Repository) ServerConfig {
	return ServerConfig{
		Port:       0,
		DataDir:    "/tmp",
		Repository: repo,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		StartTime:  time.Now(),
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	return body
}

func validMovieBody() []byte {
	body, _ := json.Marshal(CreateMovieRequest{
		Layers:    []LayerRequest{{SourceID: 14, Name: "AIA 304"}},
		StartTime: "2024-03-15T00:00:00Z",
		EndTime:   "2024-03-15T06:00:00Z",
		ROI:       ROIRequest{X1: -512, Y1: -512, X2: 512, Y2: 512, Scale: 1},
		NumFrames: 100,
	})
	return body
}

func TestCreateMovieHandler(t *testing.T) {
	repo := newFakeRepo()
	cfg := testServerConfig(repo)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/movies", bytes.NewReader(validMovieBody()))

	createMovieHandler(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusAccepted, rr.Body.String())
	}

	body := decodeJSONBody(t, rr)
	id, _ := body["movie_id"].(string)
	if id == "" {
		t.Fatal("movie_id missing from response")
	}

	stored := repo.movies[id]
	if stored == nil {
		t.Fatal("movie not persisted")
	}
	if stored.Status != imagestore.MovieStatusQueued {
		t.Errorf("stored status = %s, want queued", stored.Status)
	}
	if stored.Request == "" {
		t.Error("stored movie should carry the encoded request")
	}
}

func TestCreateMovieHandler_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateMovieRequest)
	}{
		{"no layers", func(r *CreateMovieRequest) { r.Layers = nil }},
		{"too many layers", func(r *CreateMovieRequest) {
			r.Layers = []LayerRequest{{SourceID: 1}, {SourceID: 2}, {SourceID: 3}, {SourceID: 4}}
		}},
		{"missing start time", func(r *CreateMovieRequest) { r.StartTime = "" }},
		{"bad start time", func(r *CreateMovieRequest) { r.StartTime = "yesterday" }},
		{"zero scale", func(r *CreateMovieRequest) { r.ROI.Scale = 0 }},
		{"inverted roi", func(r *CreateMovieRequest) { r.ROI.X2 = r.ROI.X1 - 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var base CreateMovieRequest
			json.Unmarshal(validMovieBody(), &base)
			tt.mutate(&base)
			body, _ := json.Marshal(base)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/movies", bytes.NewReader(body))

			createMovieHandler(testServerConfig(newFakeRepo())).ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestGetMovieHandler_NotFound(t *testing.T) {
	router := NewRouter(testServerConfig(newFakeRepo()))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/movies/unknown", nil)
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestGetMovieHandler_Ready(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	repo.movies["m1"] = &imagestore.Movie{
		ID:         "m1",
		Status:     imagestore.MovieStatusReady,
		StartTime:  now.Add(-24 * time.Hour),
		EndTime:    now,
		FrameCount: 40,
		FrameRate:  2,
		Width:      1024,
		Height:     1024,
		CreatedAt:  now,
	}

	router := NewRouter(testServerConfig(repo))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/movies/m1", nil)
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	body := decodeJSONBody(t, rr)
	if body["status"] != "ready" {
		t.Errorf("status field = %v, want ready", body["status"])
	}
	if body["duration_s"].(float64) != 20 {
		t.Errorf("duration_s = %v, want 20", body["duration_s"])
	}
}

func TestIngestImageHandler(t *testing.T) {
	repo := newFakeRepo()
	body, _ := json.Marshal(IngestImageRequest{
		SourceID:   14,
		ObservedAt: "2024-03-15T12:00:00Z",
		Filepath:   "/archive/2024/03/15",
		Filename:   "20240315_120000.jp2",
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/images", bytes.NewReader(body))

	ingestImageHandler(testServerConfig(repo)).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if len(repo.images) != 1 {
		t.Fatalf("stored %d images, want 1", len(repo.images))
	}
	if repo.images[0].SourceID != 14 {
		t.Errorf("stored source = %d, want 14", repo.images[0].SourceID)
	}
}

func TestIngestImageHandler_BadTimestamp(t *testing.T) {
	body, _ := json.Marshal(IngestImageRequest{
		SourceID:   14,
		ObservedAt: "not-a-time",
		Filepath:   "/archive",
		Filename:   "x.jp2",
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/images", bytes.NewReader(body))

	ingestImageHandler(testServerConfig(newFakeRepo())).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestListSourcesHandler(t *testing.T) {
	repo := newFakeRepo()
	repo.sources = []*imagestore.SourceSummary{
		{SourceID: 14, ImageCount: 120, Oldest: time.Now().Add(-time.Hour), Newest: time.Now()},
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sources", nil)

	listSourcesHandler(testServerConfig(repo)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp SourcesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].SourceID != 14 {
		t.Errorf("sources = %+v, want one entry for source 14", resp.Sources)
	}
}
