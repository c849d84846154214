package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

const transactionColumns = `id, gateway_payment_id, amount_cents, currency, application_fee_cents, status, testmode,
 description, redirect_url, webhook_url, checkout_url, metadata, payment_initiated_at, created_at, updated_at`

// TransactionFilters defines list filters.
type TransactionFilters struct {
	Status   Status
	Testmode *bool
	Limit    int
}

// TransactionRepo owns transaction rows and their status machine.
type TransactionRepo struct {
	db    *sql.DB
	items *LineItemRepo
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db, items: NewLineItemRepo(db)}
}

// Create persists a draft transaction and its line items atomically. Status,
// initiation and timestamps on t are ignored.
func (r *TransactionRepo) Create(ctx context.Context, t Transaction, items []LineItem) error {
	meta, err := encodeMetadata(t.Metadata)
	if err != nil {
		return err
	}
	var fee sql.NullInt64
	if t.ApplicationFee != nil {
		fee = sql.NullInt64{Int64: toCents(*t.ApplicationFee), Valid: true}
	}
	ts := now()
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions(
		 id, gateway_payment_id, amount_cents, currency, application_fee_cents, status, testmode,
		 description, redirect_url, webhook_url, checkout_url, metadata, payment_initiated_at, created_at, updated_at)
		VALUES(?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, NULL, ?, ?)
		`, t.ID, toCents(t.Amount), t.Currency, fee, StatusDraft, t.Testmode,
			t.Description, t.RedirectURL, t.WebhookURL, meta, ts, ts); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if err := r.items.InsertBatch(ctx, tx, t.ID, items); err != nil {
			return fmt.Errorf("insert line items: %w", err)
		}
		return nil
	})
}

// MarkPaymentInitiated moves a draft transaction to pending_payment. The check
// and the write are one conditional UPDATE so only one concurrent caller wins.
func (r *TransactionRepo) MarkPaymentInitiated(ctx context.Context, id string, start PaymentStart) error {
	ts := now()
	res, err := r.db.ExecContext(ctx, `
	UPDATE transactions
	SET status = ?, gateway_payment_id = ?, checkout_url = ?, redirect_url = ?, webhook_url = ?,
	 payment_initiated_at = ?, updated_at = ?
	WHERE id = ? AND status = ? AND payment_initiated_at IS NULL
	`, StatusPendingPayment, start.GatewayPaymentID, start.CheckoutURL, start.RedirectURL, start.WebhookURL,
		ts, ts, id, StatusDraft)
	if err != nil {
		return fmt.Errorf("mark payment initiated: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	exists, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyInitiated
}

// UpdateStatus applies a gateway-reported status. Re-applying the current
// status is a no-op reported as changed=false. Terminal statuses are final.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, gatewayPaymentID string, status Status) (bool, *Transaction, error) {
	if !status.Valid() || status == StatusDraft {
		return false, nil, fmt.Errorf("%w: to %q", ErrInvalidTransition, status)
	}
	for attempt := 0; attempt < 3; attempt++ {
		cur, err := r.GetByGatewayPaymentID(ctx, gatewayPaymentID)
		if err != nil {
			return false, nil, err
		}
		if cur == nil {
			return false, nil, fmt.Errorf("gateway payment %s: %w", gatewayPaymentID, ErrNotFound)
		}
		if cur.Status == status {
			return false, cur, nil
		}
		if cur.Status.Terminal() || cur.Status == StatusDraft {
			return false, cur, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, status)
		}
		ts := now()
		res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET status = ?, updated_at = ?
		WHERE gateway_payment_id = ? AND status = ?
		`, status, ts, gatewayPaymentID, cur.Status)
		if err != nil {
			return false, nil, fmt.Errorf("update status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, nil, err
		}
		if n == 1 {
			cur.Status = status
			cur.UpdatedAt = ts
			return true, cur, nil
		}
		// lost a race with another writer; re-read and decide again
	}
	return false, nil, fmt.Errorf("update status %s: too much contention", gatewayPaymentID)
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	return scanOptionalTransaction(row)
}

func (r *TransactionRepo) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE gateway_payment_id = ?`, gatewayPaymentID)
	return scanOptionalTransaction(row)
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Testmode != nil {
		where = append(where, "testmode = ?")
		args = append(args, *f.Testmode)
	}
	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.query(ctx, query, args...)
}

// UnmatchedSettled returns paid or authorized transactions no financial entry
// references yet. These are the candidates for ledger matching.
func (r *TransactionRepo) UnmatchedSettled(ctx context.Context) ([]Transaction, error) {
	return r.query(ctx, `
	SELECT `+transactionColumns+` FROM transactions
	WHERE status IN (?, ?)
	AND id NOT IN (SELECT transaction_id FROM financial_entries WHERE transaction_id IS NOT NULL)
	ORDER BY created_at DESC
	`, StatusPaid, StatusAuthorized)
}

func (r *TransactionRepo) query(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TransactionRepo) exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM transactions WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func scanOptionalTransaction(row scanner) (*Transaction, error) {
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var gatewayID sql.NullString
	var amount int64
	var fee sql.NullInt64
	var meta string
	var initiated sql.NullTime
	if err := row.Scan(&t.ID, &gatewayID, &amount, &t.Currency, &fee, &t.Status, &t.Testmode,
		&t.Description, &t.RedirectURL, &t.WebhookURL, &t.CheckoutURL, &meta, &initiated,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	t.GatewayPaymentID = stringPtr(gatewayID)
	t.Amount = fromCents(amount)
	if fee.Valid {
		f := fromCents(fee.Int64)
		t.ApplicationFee = &f
	}
	if initiated.Valid {
		ts := initiated.Time.UTC()
		t.PaymentInitiatedAt = &ts
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	md, err := decodeMetadata(meta)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s metadata: %w", t.ID, err)
	}
	t.Metadata = md
	return t, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
