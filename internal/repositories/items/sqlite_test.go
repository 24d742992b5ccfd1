package items

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkomarov/curio/internal/common"
	"github.com/dkomarov/curio/internal/models"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE items (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  set_name TEXT NOT NULL DEFAULT '',
  year INTEGER NOT NULL DEFAULT 0,
  condition TEXT NOT NULL DEFAULT '',
  grade TEXT NOT NULL DEFAULT '',
  acq_amount INTEGER NOT NULL DEFAULT 0,
  acq_currency TEXT NOT NULL DEFAULT '',
  acq_display_amount INTEGER NOT NULL DEFAULT 0,
  acq_display_currency TEXT NOT NULL DEFAULT '',
  val_amount INTEGER NOT NULL DEFAULT 0,
  val_currency TEXT NOT NULL DEFAULT '',
  val_display_amount INTEGER NOT NULL DEFAULT 0,
  val_display_currency TEXT NOT NULL DEFAULT '',
  has_image INTEGER NOT NULL DEFAULT 0,
  collection_name TEXT NOT NULL,
  updated_at INTEGER NOT NULL,
  deleted INTEGER NOT NULL DEFAULT 0,
  dirty INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)

	return db
}

func testItem(id, collection string, updatedAt time.Time) *models.Item {
	return &models.Item{
		ID:        id,
		Name:      "1952 Topps Mantle",
		Set:       "1952 Topps",
		Year:      1952,
		Condition: "good",
		Grade:     "PSA 4",
		AcquisitionCost: models.Money{
			Amount: 250000, Currency: "USD", DisplayAmount: 250000, DisplayCurrency: "USD",
		},
		CurrentValue: models.Money{
			Amount: 900000, Currency: "USD", DisplayAmount: 900000, DisplayCurrency: "USD",
		},
		CollectionName: collection,
		UpdatedAt:      updatedAt,
	}
}

func TestCreateOrUpdate_InsertAndUpdate(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, r.CreateOrUpdate(ctx, testItem("id1", "Vintage", now)))

	got, err := r.GetByID(ctx, "id1")
	require.NoError(t, err)
	assert.Equal(t, "1952 Topps Mantle", got.Name)
	assert.Equal(t, "Vintage", got.CollectionName)
	assert.Equal(t, int64(250000), got.AcquisitionCost.Amount)
	assert.Equal(t, now, got.UpdatedAt)

	// update on the same id
	updated := testItem("id1", "Graded", now.Add(time.Second))
	updated.Grade = "PSA 5"
	require.NoError(t, r.CreateOrUpdate(ctx, updated))

	got, err = r.GetByID(ctx, "id1")
	require.NoError(t, err)
	assert.Equal(t, "PSA 5", got.Grade)
	assert.Equal(t, "Graded", got.CollectionName)

	var dirty int
	require.NoError(t, db.QueryRow(`SELECT dirty FROM items WHERE id='id1'`).Scan(&dirty))
	assert.Equal(t, 1, dirty, "local mutation must flag the row for sync")
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	_, err := r.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestApplyRemote_LastWriteWins(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	t100 := time.UnixMilli(100).UTC()
	t200 := time.UnixMilli(200).UTC()

	newer := testItem("Z", "Vintage", t200)
	newer.Name = "newer"
	applied, err := r.ApplyRemote(ctx, newer)
	require.NoError(t, err)
	assert.True(t, applied)

	// an older envelope arriving late must not win
	older := testItem("Z", "Vintage", t100)
	older.Name = "older"
	applied, err = r.ApplyRemote(ctx, older)
	require.NoError(t, err)
	assert.False(t, applied, "a losing document must report as rejected")

	got, err := r.GetByID(ctx, "Z")
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Name)
	assert.Equal(t, t200, got.UpdatedAt)

	var dirty int
	require.NoError(t, db.QueryRow(`SELECT dirty FROM items WHERE id='Z'`).Scan(&dirty))
	assert.Equal(t, 0, dirty, "remote application must not re-dirty the row")
}

func TestApplyRemote_EqualTimestampKeepsLocal(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	ts := time.UnixMilli(500).UTC()
	local := testItem("X", "Vintage", ts)
	local.Name = "local"
	require.NoError(t, r.CreateOrUpdate(ctx, local))

	remote := testItem("X", "Vintage", ts)
	remote.Name = "remote"
	applied, err := r.ApplyRemote(ctx, remote)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := r.GetByID(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, "local", got.Name, "ties go to the existing row")
}

func TestSetCollection(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, r.CreateOrUpdate(ctx, testItem("id1", "Vintage", now)))

	later := now.Add(time.Second).UnixMilli()
	require.NoError(t, r.SetCollection(ctx, "id1", "Graded", later))

	got, err := r.GetByID(ctx, "id1")
	require.NoError(t, err)
	assert.Equal(t, "Graded", got.CollectionName)

	err = r.SetCollection(ctx, "missing", "Graded", later)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestReassignCollection(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, r.CreateOrUpdate(ctx, testItem("a", "Vintage", now)))
	require.NoError(t, r.CreateOrUpdate(ctx, testItem("b", "Vintage", now)))
	require.NoError(t, r.CreateOrUpdate(ctx, testItem("c", "Modern", now)))

	require.NoError(t, r.ReassignCollection(ctx, "Vintage", "Graded", now.UnixMilli()))

	moved, err := r.ListByCollection(ctx, "Graded")
	require.NoError(t, err)
	assert.Len(t, moved, 2)

	left, err := r.ListByCollection(ctx, "Vintage")
	require.NoError(t, err)
	assert.Empty(t, left)

	// reassigning an empty collection is not an error
	require.NoError(t, r.ReassignCollection(ctx, "Vintage", "Graded", now.UnixMilli()))
}

func TestSoftDelete(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, r.CreateOrUpdate(ctx, testItem("id1", "Vintage", now)))
	require.NoError(t, r.SoftDelete(ctx, "id1", now.Add(time.Second).UnixMilli()))

	_, err := r.GetByID(ctx, "id1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	// tombstone still visible to sync
	dirty, err := r.ListDirty(ctx)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	assert.True(t, dirty[0].Deleted)

	err = r.SoftDelete(ctx, "id1", now.UnixMilli())
	assert.ErrorIs(t, err, common.ErrNotFound, "deleting twice must fail")
}

func TestClearDirty_OnlyWhenUnchanged(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, r.CreateOrUpdate(ctx, testItem("id1", "Vintage", now)))

	// a newer mutation landed after the shadow write was built
	require.NoError(t, r.ClearDirty(ctx, "id1", now.Add(-time.Second).UnixMilli()))
	dirty, err := r.ListDirty(ctx)
	require.NoError(t, err)
	assert.Len(t, dirty, 1, "stale clear must not unflag the row")

	require.NoError(t, r.ClearDirty(ctx, "id1", now.UnixMilli()))
	dirty, err = r.ListDirty(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestListAll_SkipsDeleted(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, r.CreateOrUpdate(ctx, testItem("a", "Vintage", now)))
	require.NoError(t, r.CreateOrUpdate(ctx, testItem("b", "Modern", now)))
	require.NoError(t, r.SoftDelete(ctx, "b", now.UnixMilli()))

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "a", all[0].ID)
}
