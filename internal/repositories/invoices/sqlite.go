package invoices

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkomarov/curio/internal/common"
	"github.com/dkomarov/curio/internal/dbx"
	"github.com/dkomarov/curio/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert stores a freshly created invoice snapshot.
func (r *SQLiteRepository) Insert(ctx context.Context, inv *models.Invoice) error {
	lines, err := json.Marshal(inv.Lines)
	if err != nil {
		return fmt.Errorf("failed to marshal invoice lines: %w", err)
	}

	query := `INSERT INTO invoices (id, seller, invoice_date, lines, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		inv.ID, inv.Seller, inv.Date.UnixMilli(), string(lines), inv.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

// Replace re-snapshots an existing invoice, the explicit edit flow.
func (r *SQLiteRepository) Replace(ctx context.Context, inv *models.Invoice) error {
	lines, err := json.Marshal(inv.Lines)
	if err != nil {
		return fmt.Errorf("failed to marshal invoice lines: %w", err)
	}

	query := `UPDATE invoices SET seller=?, invoice_date=?, lines=? WHERE id=?`
	res, err := r.db.ExecContext(ctx, query, inv.Seller, inv.Date.UnixMilli(), string(lines), inv.ID)
	if err != nil {
		return fmt.Errorf("failed to replace invoice: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func scanInvoice(scan func(dest ...any) error) (*models.Invoice, error) {
	var (
		inv       models.Invoice
		date      int64
		createdAt int64
		lines     string
	)
	if err := scan(&inv.ID, &inv.Seller, &date, &lines, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(lines), &inv.Lines); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invoice lines: %w", err)
	}
	inv.Date = time.UnixMilli(date).UTC()
	inv.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &inv, nil
}

// GetByID returns a single invoice.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Invoice, error) {
	query := `SELECT id, seller, invoice_date, lines, created_at FROM invoices WHERE id=?`
	row := r.db.QueryRowContext(ctx, query, id)

	inv, err := scanInvoice(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// List returns all invoices, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Invoice, error) {
	query := `SELECT id, seller, invoice_date, lines, created_at FROM invoices ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select invoices: %w", err)
	}
	defer rows.Close()

	var result []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes an invoice. It expects exactly one row to be affected.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invoices WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}
