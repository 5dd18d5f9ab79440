package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const frameColumns = `frame_id, status, breed, confidence, estimated_weight, detection_outcome,
	result, error_message, error_code, created_at, updated_at`

// SaveFrame upserts the frame. An older snapshot never overwrites a newer one.
func (s *PostgresStore) SaveFrame(ctx context.Context, frame models.Frame) error {
	var (
		breed, outcome     *string
		confidence, weight *float64
		result             []byte
	)
	if frame.Result != nil {
		breed = &frame.Result.Breed
		outcome = &frame.Result.DetectionOutcome
		confidence = &frame.Result.Confidence
		weight = &frame.Result.EstimatedWeight

		var err error
		if result, err = json.Marshal(frame.Result); err != nil {
			return fmt.Errorf("marshal frame result: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO frame_analyses (`+frameColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (frame_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   breed = EXCLUDED.breed,
		   confidence = EXCLUDED.confidence,
		   estimated_weight = EXCLUDED.estimated_weight,
		   detection_outcome = EXCLUDED.detection_outcome,
		   result = EXCLUDED.result,
		   error_message = EXCLUDED.error_message,
		   error_code = EXCLUDED.error_code,
		   updated_at = EXCLUDED.updated_at
		 WHERE frame_analyses.updated_at <= EXCLUDED.updated_at`,
		frame.ID, frame.Status, breed, confidence, weight, outcome,
		result, frame.Error, frame.ErrorCode, frame.CreatedAt, frame.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save frame: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFrame(ctx context.Context, id uuid.UUID) (*models.Frame, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+frameColumns+` FROM frame_analyses WHERE frame_id = $1`, id)

	f, err := scanFrame(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get frame: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) ListFrames(ctx context.Context, filter FrameFilter) ([]*models.Frame, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.Breed != "" {
		conditions = append(conditions, fmt.Sprintf("breed = $%d", argIdx))
		args = append(args, filter.Breed)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM frame_analyses WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count frames: %w", err)
	}

	filter = filter.Normalized()
	limit, offset := filter.Limit, (filter.Page-1)*filter.Limit

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM frame_analyses WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		frameColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list frames: %w", err)
	}
	defer rows.Close()

	frames := []*models.Frame{}
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, total, rows.Err()
}

func scanFrame(row pgx.Row) (*models.Frame, error) {
	var (
		f                  models.Frame
		breed, outcome     *string
		confidence, weight *float64
		result             []byte
	)
	if err := row.Scan(&f.ID, &f.Status, &breed, &confidence, &weight, &outcome,
		&result, &f.Error, &f.ErrorCode, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}

	if len(result) > 0 {
		var a models.Analysis
		if err := json.Unmarshal(result, &a); err != nil {
			return nil, fmt.Errorf("decode frame result: %w", err)
		}
		f.Result = &a
	}
	return &f, nil
}
