package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// BudgetRepo handles budgets.
type BudgetRepo struct {
	db *sql.DB
}

func NewBudgetRepo(db *sql.DB) *BudgetRepo {
	return &BudgetRepo{db: db}
}

// BudgetIDForName derives a stable id so seeding and imports agree on ids.
func BudgetIDForName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("budget:"+key)).String()
}

func (r *BudgetRepo) Create(ctx context.Context, b Budget) error {
	ts := now()
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO budgets(id, name, description, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	`, b.ID, b.Name, b.Description, ts, ts)
	return mapUnique(err, ErrDuplicateName)
}

func (r *BudgetRepo) Upsert(ctx context.Context, b Budget) error {
	ts := now()
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO budgets(id, name, description, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 description=excluded.description,
	 updated_at=excluded.updated_at;
	`, b.ID, b.Name, b.Description, ts, ts)
	return err
}

// Update renames or re-describes a budget. Missing ids yield ErrNotFound.
func (r *BudgetRepo) Update(ctx context.Context, b Budget) error {
	res, err := r.db.ExecContext(ctx, `UPDATE budgets SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		b.Name, b.Description, now(), b.ID)
	if err != nil {
		return mapUnique(err, ErrDuplicateName)
	}
	return requireOneRow(res)
}

// Delete detaches every financial entry from the budget, then removes the
// budget row, inside one database transaction. Entries are never deleted.
func (r *BudgetRepo) Delete(ctx context.Context, id string) (detached int64, err error) {
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE financial_entries SET budget_id = NULL, updated_at = ? WHERE budget_id = ?`, now(), id)
		if err != nil {
			return fmt.Errorf("detach entries: %w", err)
		}
		if detached, err = res.RowsAffected(); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete budget: %w", err)
		}
		return requireOneRow(res)
	})
	if err != nil {
		return 0, err
	}
	return detached, nil
}

func (r *BudgetRepo) Get(ctx context.Context, id string) (*Budget, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, description, created_at, updated_at FROM budgets WHERE id = ?`, id)
	return scanOptionalBudget(row)
}

func (r *BudgetRepo) ByName(ctx context.Context, name string) (*Budget, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, description, created_at, updated_at FROM budgets WHERE name = ? COLLATE NOCASE`, strings.TrimSpace(name))
	return scanOptionalBudget(row)
}

func (r *BudgetRepo) List(ctx context.Context) ([]Budget, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description, created_at, updated_at FROM budgets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Budget
	for rows.Next() {
		var b Budget
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanOptionalBudget(row scanner) (*Budget, error) {
	var b Budget
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
