package imagestore

import (
	"context"
	"database/sql"
	"time"
)

// Repository is the image metadata store plus movie request persistence.
type Repository interface {
	InsertImage(ctx context.Context, img *ImageRecord) error
	NearestImage(ctx context.Context, sourceID int, at time.Time) (*ImageRecord, error)
	ImageCount(ctx context.Context, sourceID int, start, end time.Time) (int, error)
	ListSources(ctx context.Context) ([]*SourceSummary, error)

	CreateMovie(ctx context.Context, m *Movie) error
	GetMovie(ctx context.Context, id string) (*Movie, error)
	ListMovies(ctx context.Context, limit int) ([]*Movie, error)
	ListQueuedMovies(ctx context.Context) ([]*Movie, error)
	UpdateMovieStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateMovieResult(ctx context.Context, m *Movie) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) InsertImage(ctx context.Context, img *ImageRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO images (id, source_id, observed_at, filepath, filename, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, img.ID, img.SourceID, img.ObservedAt.Unix(), img.Filepath, img.Filename,
		img.CreatedAt.Format(time.RFC3339))
	return err
}

// NearestImage returns the image closest in time to `at` for the given
// source, or nil when the source has no images at all.
func (r *SQLiteRepository) NearestImage(ctx context.Context, sourceID int, at time.Time) (*ImageRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source_id, observed_at, filepath, filename, created_at
		FROM images WHERE source_id = ?
		ORDER BY ABS(observed_at - ?) LIMIT 1
	`, sourceID, at.Unix())
	return r.scanImage(row)
}

func (r *SQLiteRepository) ImageCount(ctx context.Context, sourceID int, start, end time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM images
		WHERE source_id = ? AND observed_at BETWEEN ? AND ?
	`, sourceID, start.Unix(), end.Unix()).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) ListSources(ctx context.Context) ([]*SourceSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT source_id, COUNT(*), MIN(observed_at), MAX(observed_at)
		FROM images GROUP BY source_id ORDER BY source_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*SourceSummary
	for rows.Next() {
		var s SourceSummary
		var oldest, newest int64
		if err := rows.Scan(&s.SourceID, &s.ImageCount, &oldest, &newest); err != nil {
			return nil, err
		}
		s.Oldest = time.Unix(oldest, 0).UTC()
		s.Newest = time.Unix(newest, 0).UTC()
		sources = append(sources, &s)
	}
	return sources, rows.Err()
}

func (r *SQLiteRepository) scanImage(row *sql.Row) (*ImageRecord, error) {
	var img ImageRecord
	var observedAt int64
	var createdAt string

	err := row.Scan(&img.ID, &img.SourceID, &observedAt, &img.Filepath, &img.Filename, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	img.ObservedAt = time.Unix(observedAt, 0).UTC()
	img.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &img, nil
}

func (r *SQLiteRepository) CreateMovie(ctx context.Context, m *Movie) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO movies (id, status, request, start_time, end_time, frame_count, frame_rate,
			width, height, directory, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Status, m.Request, m.StartTime.Unix(), m.EndTime.Unix(),
		m.FrameCount, m.FrameRate, m.Width, m.Height, m.Directory,
		nullString(m.Error), m.CreatedAt.Format(time.RFC3339), m.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetMovie(ctx context.Context, id string) (*Movie, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, status, request, start_time, end_time, frame_count, frame_rate,
			width, height, directory, error, created_at, updated_at
		FROM movies WHERE id = ?
	`, id)
	return r.scanMovie(row)
}

func (r *SQLiteRepository) scanMovie(row *sql.Row) (*Movie, error) {
	var m Movie
	var startTime, endTime int64
	var errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&m.ID, &m.Status, &m.Request, &startTime, &endTime,
		&m.FrameCount, &m.FrameRate, &m.Width, &m.Height, &m.Directory,
		&errMsg, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.StartTime = time.Unix(startTime, 0).UTC()
	m.EndTime = time.Unix(endTime, 0).UTC()
	m.Error = errMsg.String
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &m, nil
}

func (r *SQLiteRepository) ListMovies(ctx context.Context, limit int) ([]*Movie, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, request, start_time, end_time, frame_count, frame_rate,
			width, height, directory, error, created_at, updated_at
		FROM movies ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanMovies(rows)
}

func (r *SQLiteRepository) ListQueuedMovies(ctx context.Context) ([]*Movie, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, request, start_time, end_time, frame_count, frame_rate,
			width, height, directory, error, created_at, updated_at
		FROM movies WHERE status = 'queued' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanMovies(rows)
}

func (r *SQLiteRepository) scanMovies(rows *sql.Rows) ([]*Movie, error) {
	var movies []*Movie
	for rows.Next() {
		var m Movie
		var startTime, endTime int64
		var errMsg sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&m.ID, &m.Status, &m.Request, &startTime, &endTime,
			&m.FrameCount, &m.FrameRate, &m.Width, &m.Height, &m.Directory,
			&errMsg, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		m.StartTime = time.Unix(startTime, 0).UTC()
		m.EndTime = time.Unix(endTime, 0).UTC()
		m.Error = errMsg.String
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		movies = append(movies, &m)
	}
	return movies, rows.Err()
}

func (r *SQLiteRepository) UpdateMovieStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE movies SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?
	`, status, nullString(errorMsg), id)
	return err
}

// UpdateMovieResult records the derived build parameters and artifact
// location once a build finishes.
func (r *SQLiteRepository) UpdateMovieResult(ctx context.Context, m *Movie) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE movies SET status = ?, start_time = ?, end_time = ?, frame_count = ?,
			frame_rate = ?, width = ?, height = ?, directory = ?, error = ?,
			updated_at = datetime('now')
		WHERE id = ?
	`, m.Status, m.StartTime.Unix(), m.EndTime.Unix(), m.FrameCount,
		m.FrameRate, m.Width, m.Height, m.Directory, nullString(m.Error), m.ID)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
