package images

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkomarov/curio/internal/common"
	"github.com/dkomarov/curio/internal/models"
	"github.com/dkomarov/curio/internal/store"
)

// fakeUploader records calls and can be told to fail.
type fakeUploader struct {
	uploads    map[string][]byte
	uploadErr  error
	presignErr error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{uploads: make(map[string][]byte)}
}

func (u *fakeUploader) Upload(ctx context.Context, key string, data []byte) error {
	if u.uploadErr != nil {
		return u.uploadErr
	}
	u.uploads[key] = data
	return nil
}

func (u *fakeUploader) PresignGet(ctx context.Context, key string) (string, error) {
	if u.presignErr != nil {
		return "", u.presignErr
	}
	return "https://bucket.example/" + key, nil
}

func setup(t *testing.T, uploader Uploader) (*Manager, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewManager(s, uploader, nil), s
}

func saveItem(t *testing.T, s *store.Store, id string) {
	t.Helper()
	require.NoError(t, s.SaveItem(context.Background(), &models.Item{
		ID:             id,
		Name:           "Card " + id,
		CollectionName: common.DefaultCollection,
	}))
}

func TestAcquireRelease_Balance(t *testing.T) {
	m, s := setup(t, nil)
	ctx := context.Background()

	saveItem(t, s, "item1")
	require.NoError(t, s.PutImage(ctx, &models.ImageRecord{ItemID: "item1", Data: []byte("png")}))

	h1, err := m.Acquire(ctx, "item1")
	require.NoError(t, err)
	h2, err := m.Acquire(ctx, "item1")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Outstanding("item1"))

	data, ok := h1.Bytes()
	require.True(t, ok)
	assert.Equal(t, []byte("png"), data)

	m.Release(h1)
	assert.Equal(t, 1, m.Outstanding("item1"))
	assert.True(t, h1.Released())
	_, ok = h1.Bytes()
	assert.False(t, ok, "released handle reports absent")

	m.Release(h2)
	assert.Equal(t, 0, m.Outstanding("item1"))
}

func TestRelease_DoubleIsNoop(t *testing.T) {
	m, s := setup(t, nil)
	ctx := context.Background()

	saveItem(t, s, "item1")
	require.NoError(t, s.PutImage(ctx, &models.ImageRecord{ItemID: "item1", Data: []byte("png")}))

	h, err := m.Acquire(ctx, "item1")
	require.NoError(t, err)

	m.Release(h)
	m.Release(h)
	m.Release(nil)
	assert.Equal(t, 0, m.Outstanding("item1"))
}

func TestAcquire_NoImage(t *testing.T) {
	m, s := setup(t, nil)
	saveItem(t, s, "item1")

	_, err := m.Acquire(context.Background(), "item1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAcquire_PrefersPresignedURL(t *testing.T) {
	up := newFakeUploader()
	m, s := setup(t, up)
	ctx := context.Background()

	saveItem(t, s, "item1")
	require.NoError(t, s.PutImage(ctx, &models.ImageRecord{
		ItemID:     "item1",
		Data:       []byte("png"),
		RemoteURL:  "https://stale.example/old",
		StorageKey: "key1",
	}))

	h, err := m.Acquire(ctx, "item1")
	require.NoError(t, err)
	defer m.Release(h)

	url, ok := h.URL()
	require.True(t, ok)
	assert.Equal(t, "https://bucket.example/key1", url)
	_, ok = h.Bytes()
	assert.False(t, ok, "URL-backed handle does not hold the blob")
}

func TestAcquire_PresignFailureFallsBack(t *testing.T) {
	up := newFakeUploader()
	up.presignErr = errors.New("region down")
	m, s := setup(t, up)
	ctx := context.Background()

	saveItem(t, s, "item1")
	require.NoError(t, s.PutImage(ctx, &models.ImageRecord{
		ItemID:     "item1",
		Data:       []byte("png"),
		RemoteURL:  "https://stale.example/old",
		StorageKey: "key1",
	}))

	h, err := m.Acquire(ctx, "item1")
	require.NoError(t, err)
	defer m.Release(h)

	url, ok := h.URL()
	require.True(t, ok)
	assert.Equal(t, "https://stale.example/old", url)
}

func TestStageCommit_LocalOnly(t *testing.T) {
	m, s := setup(t, nil)
	ctx := context.Background()

	saveItem(t, s, "item1")

	p, err := m.Stage("item1", []byte("png"))
	require.NoError(t, err)

	rec, err := m.Commit(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, rec.RemoteURL, "no uploader keeps images local")

	got, err := s.GetImage(ctx, "item1")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), got.Data)

	it, err := s.GetItem(ctx, "item1")
	require.NoError(t, err)
	assert.True(t, it.HasImage)
}

func TestStageCommit_Uploads(t *testing.T) {
	up := newFakeUploader()
	m, s := setup(t, up)
	ctx := context.Background()

	saveItem(t, s, "item1")

	p, err := m.Stage("item1", []byte("png"))
	require.NoError(t, err)

	rec, err := m.Commit(ctx, p)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.StorageKey)
	assert.Equal(t, "https://bucket.example/"+rec.StorageKey, rec.RemoteURL)
	assert.Equal(t, []byte("png"), up.uploads[rec.StorageKey])

	// Committed payloads cannot be committed twice.
	_, err = m.Commit(ctx, p)
	assert.ErrorIs(t, err, common.ErrImageCommitFailed)
}

func TestCommit_UploadFailureLeavesStateUntouched(t *testing.T) {
	up := newFakeUploader()
	up.uploadErr = errors.New("bucket gone")
	m, s := setup(t, up)
	ctx := context.Background()

	saveItem(t, s, "item1")

	p, err := m.Stage("item1", []byte("png"))
	require.NoError(t, err)

	_, err = m.Commit(ctx, p)
	assert.ErrorIs(t, err, common.ErrImageCommitFailed)

	_, err = s.GetImage(ctx, "item1")
	assert.ErrorIs(t, err, common.ErrNotFound, "failed commit writes nothing durable")
	it, err := s.GetItem(ctx, "item1")
	require.NoError(t, err)
	assert.False(t, it.HasImage)

	// The payload is still staged, so the save flow can retry.
	up.uploadErr = nil
	_, err = m.Commit(ctx, p)
	require.NoError(t, err)
}

func TestStage_ReplaceSupersedes(t *testing.T) {
	m, s := setup(t, nil)
	ctx := context.Background()

	saveItem(t, s, "item1")

	first, err := m.Stage("item1", []byte("v1"))
	require.NoError(t, err)
	second, err := m.Stage("item1", []byte("v2"))
	require.NoError(t, err)

	_, err = m.Commit(ctx, first)
	assert.ErrorIs(t, err, common.ErrImageCommitFailed)

	rec, err := m.Commit(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), rec.Data)
}

func TestStage_Validation(t *testing.T) {
	m, _ := setup(t, nil)

	_, err := m.Stage("", []byte("png"))
	assert.Error(t, err)
	_, err = m.Stage("item1", nil)
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	m, s := setup(t, nil)
	ctx := context.Background()

	saveItem(t, s, "item1")

	p, err := m.Stage("item1", []byte("png"))
	require.NoError(t, err)

	m.Discard(p)
	m.Discard(p)
	m.Discard(nil)

	_, err = m.Commit(ctx, p)
	assert.ErrorIs(t, err, common.ErrImageCommitFailed)
}

func TestBackfillRemotes(t *testing.T) {
	up := newFakeUploader()
	m, s := setup(t, up)
	ctx := context.Background()

	// Committed while no uploader was configured.
	local := NewManager(s, nil, nil)
	saveItem(t, s, "item1")
	p, err := local.Stage("item1", []byte("png"))
	require.NoError(t, err)
	_, err = local.Commit(ctx, p)
	require.NoError(t, err)

	require.NoError(t, m.BackfillRemotes(ctx))

	rec, err := s.GetImage(ctx, "item1")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.StorageKey)
	assert.Equal(t, []byte("png"), up.uploads[rec.StorageKey])

	// Already-uploaded images are not re-pushed.
	uploaded := len(up.uploads)
	require.NoError(t, m.BackfillRemotes(ctx))
	assert.Len(t, up.uploads, uploaded)
}

func TestBackfillRemotes_NoUploaderIsNoop(t *testing.T) {
	m, s := setup(t, nil)
	ctx := context.Background()

	saveItem(t, s, "item1")
	require.NoError(t, s.PutImage(ctx, &models.ImageRecord{ItemID: "item1", Data: []byte("png")}))

	require.NoError(t, m.BackfillRemotes(ctx))
	rec, err := s.GetImage(ctx, "item1")
	require.NoError(t, err)
	assert.Empty(t, rec.StorageKey)
}

func TestInvalidateItems(t *testing.T) {
	m, s := setup(t, nil)
	ctx := context.Background()

	saveItem(t, s, "item1")
	require.NoError(t, s.PutImage(ctx, &models.ImageRecord{ItemID: "item1", Data: []byte("png")}))

	h, err := m.Acquire(ctx, "item1")
	require.NoError(t, err)
	p, err := m.Stage("item1", []byte("v2"))
	require.NoError(t, err)

	m.InvalidateItems([]string{"item1", "ghost"})

	assert.True(t, h.Released())
	assert.Equal(t, 0, m.Outstanding("item1"))
	_, err = m.Commit(ctx, p)
	assert.ErrorIs(t, err, common.ErrImageCommitFailed)

	// Releasing an invalidated handle afterwards stays a no-op.
	m.Release(h)
}
