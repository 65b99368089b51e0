package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBadgerRepo(t *testing.T) (*BadgerPositionRepo, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := NewBadgerPositionRepo(dir)
	require.NoError(t, err, "Не удалось создать хранилище")
	return repo, dir
}

func TestBadgerPositionRepo(t *testing.T) {
	repo, _ := setupBadgerRepo(t)
	defer repo.Close()

	runPositionRepoSuite(t, repo)
}

func TestBadgerPositionRepo_Persistence(t *testing.T) {
	repo, dir := setupBadgerRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, 42, rec("nether", 1.5, 70, -8.25)))
	require.NoError(t, repo.Save(ctx, 43, rec("overworld", 0, 0, 0)))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close(), "повторное закрытие безопасно")

	_, _, err = repo.Load(ctx, 42)
	assert.Error(t, err, "закрытое хранилище не отвечает")

	reopened, err := NewBadgerPositionRepo(dir)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, found, err := reopened.Load(ctx, 42)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, samePlace(rec("nether", 1.5, 70, -8.25), loaded))
}
