package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edgevision/inference-api/pkg/models"
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

const inferenceColumns = `id, file_name, runtime, status, result, owner_id, created_at, updated_at`

func scanInference(row pgx.Row) (*models.Inference, error) {
	var i models.Inference
	err := row.Scan(&i.ID, &i.FileName, &i.Runtime, &i.Status, &i.Result,
		&i.OwnerID, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (s *PostgresStore) CreateInference(ctx context.Context, inf *models.Inference) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO inferences (file_name, runtime, status, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		inf.FileName, inf.Runtime, inf.Status, inf.OwnerID, inf.CreatedAt, inf.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create inference: %w", err)
	}
	inf.ID = id
	return id, nil
}

func (s *PostgresStore) GetInference(ctx context.Context, id int64) (*models.Inference, error) {
	i, err := scanInference(s.pool.QueryRow(ctx,
		`SELECT `+inferenceColumns+` FROM inferences WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get inference: %w", err)
	}
	return i, nil
}

// MarkInferenceComplete sets the record to COMPLETE with its result. The
// status guard in the WHERE clause makes the check-and-write atomic: of two
// racing deliveries for the same id, exactly one updates a row and the other
// gets ErrNotFound.
func (s *PostgresStore) MarkInferenceComplete(ctx context.Context, id int64, result string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE inferences SET status = $2, result = $3, updated_at = $4
		 WHERE id = $1 AND status = $5`,
		id, models.StatusComplete, result, time.Now().UTC(), models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark inference complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkInferenceFailed(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE inferences SET status = $2, updated_at = $3
		 WHERE id = $1 AND status = $4`,
		id, models.StatusFail, time.Now().UTC(), models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark inference failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteInference(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM inferences WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete inference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAllInferences(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM inferences`); err != nil {
		return fmt.Errorf("delete all inferences: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListInferences(ctx context.Context, filter InferenceFilter) ([]*models.Inference, bool, error) {
	// Build WHERE clause dynamically
	conditions := []string{}
	args := []any{}
	argIdx := 1

	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", argIdx))
		args = append(args, filter.OwnerID)
		argIdx++
	}
	if filter.Runtime != "" {
		conditions = append(conditions, fmt.Sprintf("runtime = $%d", argIdx))
		args = append(args, filter.Runtime)
		argIdx++
	}
	if filter.CreatedAt != nil {
		// Hour-bucket match: [top of hour, top of hour + 1h)
		startAt := filter.CreatedAt.Truncate(time.Hour)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, startAt)
		argIdx++
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIdx))
		args = append(args, startAt.Add(time.Hour))
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	size := filter.Size
	if size <= 0 {
		size = 10
	}
	page := filter.Page
	if page < 0 {
		page = 0
	}
	offset := page * size

	// Fetch one extra row to learn whether a further page exists without a
	// count query.
	query := fmt.Sprintf(
		`SELECT `+inferenceColumns+` FROM inferences%s ORDER BY id LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, size+1, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list inferences: %w", err)
	}
	defer rows.Close()

	var items []*models.Inference
	for rows.Next() {
		i, err := scanInference(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan inference: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(items) > size
	if hasMore {
		items = items[:size]
	}
	return items, hasMore, nil
}
