package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItemRepo handles line items. There is no update path: items are created
// with their transaction and deleted with it.
type LineItemRepo struct{ db *sql.DB }

func NewLineItemRepo(db *sql.DB) *LineItemRepo { return &LineItemRepo{db: db} }

// InsertBatch writes items for transactionID through ex, which is usually the
// *sql.Tx that created the transaction row.
func (r *LineItemRepo) InsertBatch(ctx context.Context, ex execer, transactionID string, items []LineItem) error {
	for i, li := range items {
		id := li.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := ex.ExecContext(ctx, `
		INSERT INTO line_items(id, transaction_id, name, description, quantity, unit_amount, total_amount, sort_order)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		`, id, transactionID, li.Name, li.Description, li.Quantity,
			li.UnitAmount.String(), li.TotalAmount.String(), i); err != nil {
			return err
		}
	}
	return nil
}

func (r *LineItemRepo) ListByTransaction(ctx context.Context, transactionID string) ([]LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, transaction_id, name, description, quantity, unit_amount, total_amount, sort_order
	FROM line_items WHERE transaction_id = ? ORDER BY sort_order
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LineItem
	for rows.Next() {
		var li LineItem
		var unit, total string
		if err := rows.Scan(&li.ID, &li.TransactionID, &li.Name, &li.Description, &li.Quantity, &unit, &total, &li.SortOrder); err != nil {
			return nil, err
		}
		if li.UnitAmount, err = decimal.NewFromString(unit); err != nil {
			return nil, fmt.Errorf("line item %s unit_amount: %w", li.ID, err)
		}
		if li.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("line item %s total_amount: %w", li.ID, err)
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

func (r *LineItemRepo) DeleteByTransaction(ctx context.Context, transactionID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM line_items WHERE transaction_id = ?`, transactionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
