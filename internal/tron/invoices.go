// internal/tron/invoices.go
//
// Tenant-side invoice queries.
//
// Context
// -------
// Each bot database (mother or reseller) carries a `tron_invoices` table
// written by the bot when a user asks to pay in USDT-TRC20:
//
//	CREATE TABLE tron_invoices (
//	    id         BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    user_id    BIGINT          NOT NULL,
//	    amount     DECIMAL(20,6)   NOT NULL,
//	    state      VARCHAR(16)     NOT NULL DEFAULT 'pending',
//	    tx_id      VARCHAR(80)     NULL UNIQUE,
//	    created_at TIMESTAMP       NOT NULL DEFAULT CURRENT_TIMESTAMP,
//	    paid_at    TIMESTAMP       NULL
//	);
//
// The store only reads pending rows and moves them to `paid` or
// `expired`.  Every state change is conditional on `state = 'pending'`,
// so repeated passes are idempotent.
package tron

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Invoice states.
const (
	StatePending = "pending"
	StatePaid    = "paid"
	StateExpired = "expired"
)

// Invoice is one pending payment request.
type Invoice struct {
	ID        int64           `db:"id"`
	UserID    int64           `db:"user_id"`
	Amount    decimal.Decimal `db:"amount"`
	CreatedAt time.Time       `db:"created_at"`
}

// InvoiceStore wraps one tenant database.
type InvoiceStore struct {
	db *sqlx.DB
}

// NewInvoiceStore binds the store to a tenant handle.
func NewInvoiceStore(db *sqlx.DB) *InvoiceStore { return &InvoiceStore{db: db} }

// Pending returns pending invoices created at or after notBefore, oldest
// first.
func (s *InvoiceStore) Pending(ctx context.Context, notBefore time.Time) ([]Invoice, error) {
	const q = `
        SELECT id, user_id, amount, created_at
        FROM   tron_invoices
        WHERE  state = ?
          AND  created_at >= ?
        ORDER  BY created_at, id`
	var out []Invoice
	if err := s.db.SelectContext(ctx, &out, q, StatePending, notBefore); err != nil {
		return nil, err
	}
	return out, nil
}

// Expire moves pending invoices created before cutoff to `expired`.
func (s *InvoiceStore) Expire(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
        UPDATE tron_invoices
        SET    state = ?
        WHERE  state = ?
          AND  created_at < ?`
	res, err := s.db.ExecContext(ctx, q, StateExpired, StatePending, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TxUsed reports whether txID already settled an invoice in this tenant.
func (s *InvoiceStore) TxUsed(ctx context.Context, txID string) (bool, error) {
	const q = `SELECT COUNT(*) FROM tron_invoices WHERE tx_id = ?`
	var n int
	if err := s.db.GetContext(ctx, &n, q, txID); err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkPaid settles invoice id with txID.  It returns false when the
// invoice was no longer pending.
func (s *InvoiceStore) MarkPaid(ctx context.Context, id int64, txID string, paidAt time.Time) (bool, error) {
	const q = `
        UPDATE tron_invoices
        SET    state = ?, tx_id = ?, paid_at = ?
        WHERE  id = ?
          AND  state = ?`
	res, err := s.db.ExecContext(ctx, q, StatePaid, txID, paidAt, id, StatePending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
