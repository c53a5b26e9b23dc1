package skiplist

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-ingest/internal/storage/memory"
)

func TestLoadMissingStartsEmpty(t *testing.T) {
	t.Parallel()

	l, err := Load(context.Background(), memory.NewBlobStore(), "skipped.json")
	require.NoError(t, err)
	require.Empty(t, l.IDs())
	require.Zero(t, l.Len())
}

func TestAddPersistsSortedAndSkipsDuplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := memory.NewBlobStore()
	_, err := blobs.PutObject(ctx, "skipped.json", "application/json", strings.NewReader("[40, 10]"))
	require.NoError(t, err)

	l, err := Load(ctx, blobs, "skipped.json")
	require.NoError(t, err)
	require.True(t, l.Contains(40))

	require.NoError(t, l.Add(ctx, 20))
	require.NoError(t, l.Add(ctx, 20))
	require.NoError(t, l.Add(ctx, 10))

	require.Equal(t, []int64{10, 20, 40}, l.IDs())
	require.Equal(t, 2, blobs.Writes("skipped.json"))
	raw, err := blobs.GetObject(ctx, "skipped.json")
	require.NoError(t, err)
	require.Equal(t, "[\n  10,\n  20,\n  40\n]\n", string(raw))
}

func TestLoadRejectsCorruptDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := memory.NewBlobStore()
	_, err := blobs.PutObject(ctx, "skipped.json", "application/json", strings.NewReader("nope"))
	require.NoError(t, err)

	_, err = Load(ctx, blobs, "skipped.json")
	require.ErrorContains(t, err, "load skip-list")
}

type flakyBlobs struct {
	*memory.BlobStore
	failing bool
}

func (f *flakyBlobs) PutObject(ctx context.Context, path, contentType string, data io.Reader) (string, error) {
	if f.failing {
		return "", errors.New("disk full")
	}
	return f.BlobStore.PutObject(ctx, path, contentType, data)
}

func TestAddSurfacesPersistFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l, err := Load(ctx, &flakyBlobs{BlobStore: memory.NewBlobStore(), failing: true}, "skipped.json")
	require.NoError(t, err)

	err = l.Add(ctx, 5)
	require.ErrorContains(t, err, "persist skip-list")
	require.False(t, l.Contains(5))
	require.Empty(t, l.IDs())
}

func TestAddRetriesAfterPersistFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := &flakyBlobs{BlobStore: memory.NewBlobStore(), failing: true}
	l, err := Load(ctx, blobs, "skipped.json")
	require.NoError(t, err)

	require.Error(t, l.Add(ctx, 7))
	blobs.failing = false
	require.NoError(t, l.Add(ctx, 7))

	reloaded, err := Load(ctx, blobs, "skipped.json")
	require.NoError(t, err)
	require.Equal(t, []int64{7}, reloaded.IDs())
	require.Equal(t, 1, blobs.Writes("skipped.json"))
}
