package invoices

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
CREATE TABLE invoices (
  id TEXT PRIMARY KEY,
  seller TEXT NOT NULL,
  invoice_date INTEGER NOT NULL,
  lines TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`)
	require.NoError(t, err)

	return db
}

func sampleInvoice(id string, createdAt time.Time) *models.Invoice {
	return &models.Invoice{
		ID:     id,
		Seller: "Card Shop",
		Date:   time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
		Lines: []models.InvoiceLine{
			{ItemID: "item1", Name: "Charizard", Set: "Base", AcquisitionCost: models.Money{Amount: 12000, Currency: "EUR"}},
			{ItemID: "item2", Name: "Blastoise", Set: "Base", AcquisitionCost: models.Money{Amount: 4500, Currency: "EUR"}},
		},
		CreatedAt: createdAt,
	}
}

func TestInsertAndGetByID(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	inv := sampleInvoice("inv1", time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, r.Insert(ctx, inv))

	got, err := r.GetByID(ctx, "inv1")
	require.NoError(t, err)
	assert.Equal(t, inv.Seller, got.Seller)
	assert.Equal(t, inv.Date, got.Date)
	assert.Equal(t, inv.CreatedAt, got.CreatedAt)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, inv.Lines, got.Lines)
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	_, err := r.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestReplace(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	inv := sampleInvoice("inv1", time.Now().UTC())
	require.NoError(t, r.Insert(ctx, inv))

	inv.Seller = "Other Shop"
	inv.Lines = inv.Lines[:1]
	require.NoError(t, r.Replace(ctx, inv))

	got, err := r.GetByID(ctx, "inv1")
	require.NoError(t, err)
	assert.Equal(t, "Other Shop", got.Seller)
	assert.Len(t, got.Lines, 1)

	err = r.Replace(ctx, sampleInvoice("missing", time.Now()))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, r.Insert(ctx, sampleInvoice("old", base.Add(-time.Hour))))
	require.NoError(t, r.Insert(ctx, sampleInvoice("new", base)))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)
}

func TestDelete(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, sampleInvoice("inv1", time.Now())))
	require.NoError(t, r.Delete(ctx, "inv1"))

	_, err := r.GetByID(ctx, "inv1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = r.Delete(ctx, "inv1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
