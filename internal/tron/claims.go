// internal/tron/claims.go
//
// Cross-tenant transfer claims.
//
// Context
// -------
// Every tenant polls the same wallet, so one on-chain transfer is visible
// to all of them.  Before a tenant settles an invoice with a transfer it
// inserts the tx id into `tron_claims` on the mother database.  The
// primary key makes the insert succeed for exactly one tenant, across
// passes and restarts.
package tron

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Claimer reserves a transfer for one tenant invoice.
type Claimer interface {
	Claim(ctx context.Context, txID string, tenantID, invoiceID int64) (bool, error)
	Release(ctx context.Context, txID string) error
}

const createClaims = `CREATE TABLE IF NOT EXISTS tron_claims (
    tx_id      VARCHAR(80)     NOT NULL PRIMARY KEY,
    tenant_id  BIGINT          NOT NULL,
    invoice_id BIGINT UNSIGNED NOT NULL,
    claimed_at TIMESTAMP       NOT NULL DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// ClaimStore keeps claims in the mother database.
type ClaimStore struct {
	db *sqlx.DB
}

// NewClaimStore binds the store to the mother pool.
func NewClaimStore(db *sqlx.DB) *ClaimStore { return &ClaimStore{db: db} }

// EnsureSchema creates tron_claims when missing.
func (s *ClaimStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createClaims)
	return err
}

// Claim returns true when this call reserved txID.
func (s *ClaimStore) Claim(ctx context.Context, txID string, tenantID, invoiceID int64) (bool, error) {
	const q = `INSERT IGNORE INTO tron_claims (tx_id, tenant_id, invoice_id) VALUES (?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, txID, tenantID, invoiceID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release drops a claim whose invoice could not be settled.
func (s *ClaimStore) Release(ctx context.Context, txID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tron_claims WHERE tx_id = ?`, txID)
	return err
}
