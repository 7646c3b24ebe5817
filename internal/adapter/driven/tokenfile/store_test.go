package tokenfile

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

func TestStore_ReplaceAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	store := New(path)
	ctx := context.Background()

	created := time.Unix(1_760_000_000, 0).UTC()
	require.NoError(t, store.Replace(ctx, model.Credential{
		AccessToken: "abc",
		UserID:      "7",
		ExpiresIn:   3600,
		CreatedAt:   created,
	}))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.AccessToken)
	assert.Equal(t, "7", got.UserID)
	assert.Equal(t, int64(3600), got.ExpiresIn)
	assert.True(t, created.Equal(got.CreatedAt))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "token.json"))

	got, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_GetCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := New(path).Get(context.Background())
	assert.Error(t, err)
}

func TestStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store := New(path)
	ctx := context.Background()

	require.NoError(t, store.Replace(ctx, model.Credential{AccessToken: "abc", CreatedAt: time.Now()}))
	require.NoError(t, store.Clear(ctx))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Clear(ctx))
}
