package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-topoview/internal/models"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := Open("sqlite", filepath.Join(t.TempDir(), "layout.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo.(*SQLiteRepository)
}

func TestLayout_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	_, err := repo.GetLayout(ctx, "cluster")
	assert.ErrorIs(t, err, ErrNotFound)

	layout := &models.Layout{View: "cluster", Pins: []models.Pin{
		{Layer: "pods", ID: "default/b", X: 3, Y: 4},
		{Layer: "pods", ID: "default/a", X: 1, Y: 2},
	}}
	require.NoError(t, repo.SaveLayout(ctx, layout))
	assert.Equal(t, fixed, layout.UpdatedAt)

	got, err := repo.GetLayout(ctx, "cluster")
	require.NoError(t, err)
	assert.Equal(t, []models.Pin{
		{Layer: "pods", ID: "default/a", X: 1, Y: 2},
		{Layer: "pods", ID: "default/b", X: 3, Y: 4},
	}, got.Pins)
	assert.True(t, fixed.Equal(got.UpdatedAt))

	// save replaces
	require.NoError(t, repo.SaveLayout(ctx, &models.Layout{View: "cluster", Pins: []models.Pin{{Layer: "services", ID: "default/svc", X: 9, Y: 9}}}))
	got, err = repo.GetLayout(ctx, "cluster")
	require.NoError(t, err)
	require.Len(t, got.Pins, 1)
	assert.Equal(t, "services", got.Pins[0].Layer)
}

func TestLayout_UpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertPins(ctx, "health", []models.Pin{{Layer: "pods", ID: "x", X: 1, Y: 1}}))
	require.NoError(t, repo.UpsertPins(ctx, "health", []models.Pin{
		{Layer: "pods", ID: "x", X: 5, Y: 6},
		{Layer: "pods", ID: "y", X: 7, Y: 8},
	}))
	require.NoError(t, repo.UpsertPins(ctx, "health", nil))

	got, err := repo.GetLayout(ctx, "health")
	require.NoError(t, err)
	assert.Equal(t, []models.Pin{
		{Layer: "pods", ID: "x", X: 5, Y: 6},
		{Layer: "pods", ID: "y", X: 7, Y: 8},
	}, got.Pins)

	require.NoError(t, repo.DeletePin(ctx, "health", "pods", "x"))
	assert.ErrorIs(t, repo.DeletePin(ctx, "health", "pods", "x"), ErrNotFound)

	require.NoError(t, repo.DeleteLayout(ctx, "health"))
	_, err = repo.GetLayout(ctx, "health")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLayout_ViewsAreIsolated(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.UpsertPins(ctx, "cluster", []models.Pin{{Layer: "pods", ID: "a"}}))
	require.NoError(t, repo.UpsertPins(ctx, "networkPolicy", []models.Pin{{Layer: "pods", ID: "a", X: 1}}))

	require.NoError(t, repo.DeleteLayout(ctx, "cluster"))
	got, err := repo.GetLayout(ctx, "networkPolicy")
	require.NoError(t, err)
	assert.Len(t, got.Pins, 1)
}

func TestOpen_UnsupportedType(t *testing.T) {
	_, err := Open("mysql", "", "")
	assert.Error(t, err)
}
