package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/edgevision/inference-api/internal/store"
	"github.com/edgevision/inference-api/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("inference_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newRecord(owner string, rt models.Runtime, createdAt time.Time) *models.Inference {
	return &models.Inference{
		FileName:  "cat.png",
		Runtime:   rt,
		Status:    models.StatusProcessing,
		OwnerID:   owner,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestCreateAndGetInference(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	id, err := s.CreateInference(ctx, newRecord("u1", models.RuntimeONNX, now))
	require.NoError(t, err)
	require.NotZero(t, id)

	inf, err := s.GetInference(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, inf.ID)
	assert.Equal(t, "cat.png", inf.FileName)
	assert.Equal(t, models.RuntimeONNX, inf.Runtime)
	assert.Equal(t, models.StatusProcessing, inf.Status)
	assert.Nil(t, inf.Result)
	assert.Equal(t, "u1", inf.OwnerID)
	assert.WithinDuration(t, now, inf.CreatedAt, time.Second)
}

func TestGetInference_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))

	_, err := s.GetInference(context.Background(), 12345)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkInferenceComplete_GuardsTerminalState(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC()
	id, err := s.CreateInference(ctx, newRecord("u1", models.RuntimeONNX, now))
	require.NoError(t, err)

	require.NoError(t, s.MarkInferenceComplete(ctx, id, "cat"))

	inf, err := s.GetInference(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, inf.Status)
	require.NotNil(t, inf.Result)
	assert.Equal(t, "cat", *inf.Result)
	assert.True(t, inf.UpdatedAt.After(inf.CreatedAt))

	// Second completion and a late failure both lose the conditional update.
	assert.ErrorIs(t, s.MarkInferenceComplete(ctx, id, "dog"), store.ErrNotFound)
	assert.ErrorIs(t, s.MarkInferenceFailed(ctx, id), store.ErrNotFound)

	inf, err = s.GetInference(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "cat", *inf.Result)
}

func TestMarkInferenceFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	id, err := s.CreateInference(ctx, newRecord("u1", models.RuntimeTFLite, time.Now().UTC()))
	require.NoError(t, err)

	require.NoError(t, s.MarkInferenceFailed(ctx, id))

	inf, err := s.GetInference(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFail, inf.Status)
	assert.Nil(t, inf.Result)

	assert.ErrorIs(t, s.MarkInferenceFailed(ctx, id), store.ErrNotFound)
}

func TestDeleteInference(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	id, err := s.CreateInference(ctx, newRecord("u1", models.RuntimeONNX, time.Now().UTC()))
	require.NoError(t, err)

	require.NoError(t, s.DeleteInference(ctx, id))
	_, err = s.GetInference(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.DeleteInference(ctx, id), store.ErrNotFound)
}

func TestDeleteAllInferences(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.CreateInference(ctx, newRecord("u1", models.RuntimeONNX, time.Now().UTC()))
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteAllInferences(ctx))

	items, hasMore, err := s.ListInferences(ctx, store.InferenceFilter{Size: 10})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.False(t, hasMore)
}

func TestListInferences_Filters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2024, 10, 3, 14, 0, 0, 0, time.UTC)
	_, err := s.CreateInference(ctx, newRecord("alice", models.RuntimeONNX, base.Add(2*time.Minute)))
	require.NoError(t, err)
	_, err = s.CreateInference(ctx, newRecord("bob", models.RuntimeTFLite, base.Add(58*time.Minute)))
	require.NoError(t, err)
	_, err = s.CreateInference(ctx, newRecord("alice", models.RuntimeTFLite, base.Add(61*time.Minute)))
	require.NoError(t, err)

	// Owner filter
	items, _, err := s.ListInferences(ctx, store.InferenceFilter{OwnerID: "alice", Size: 10})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// Runtime filter
	items, _, err = s.ListInferences(ctx, store.InferenceFilter{Runtime: models.RuntimeTFLite, Size: 10})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// Hour bucket: an instant anywhere inside 14:00–15:00 matches the jobs
	// created at 14:02 and 14:58, not the one at 15:01.
	at := base.Add(30 * time.Minute)
	items, _, err = s.ListInferences(ctx, store.InferenceFilter{CreatedAt: &at, Size: 10})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	for _, inf := range items {
		assert.True(t, inf.CreatedAt.Before(base.Add(time.Hour)))
	}

	// Conjunction of all three
	items, _, err = s.ListInferences(ctx, store.InferenceFilter{
		OwnerID: "bob", Runtime: models.RuntimeTFLite, CreatedAt: &at, Size: 10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "bob", items[0].OwnerID)
}

func TestListInferences_ForwardPagination(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	id1, err := s.CreateInference(ctx, newRecord("u1", models.RuntimeONNX, time.Now().UTC()))
	require.NoError(t, err)
	id2, err := s.CreateInference(ctx, newRecord("u1", models.RuntimeONNX, time.Now().UTC()))
	require.NoError(t, err)

	items, hasMore, err := s.ListInferences(ctx, store.InferenceFilter{Page: 0, Size: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id1, items[0].ID)
	assert.True(t, hasMore)

	items, hasMore, err = s.ListInferences(ctx, store.InferenceFilter{Page: 1, Size: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id2, items[0].ID)
	assert.False(t, hasMore)

	items, hasMore, err = s.ListInferences(ctx, store.InferenceFilter{Page: 2, Size: 1})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.False(t, hasMore)
}
