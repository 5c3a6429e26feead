// internal/tenant/schema.go
//
// Control-plane schema for the reseller directory.
//
// Context
// -------
// The provisioning side creates `reseller_bots` lazily.  The poller may be
// the first process to touch a fresh mother database, so it can run the
// same idempotent CREATE before scanning.  The hook is optional: main wires
// a `SchemaEnsurer` only when `database.ensure_schema` is true.
package tenant

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// SchemaHook prepares the directory schema before a scan.
type SchemaHook interface {
	EnsureSchema(ctx context.Context) error
}

const createResellerBots = `CREATE TABLE IF NOT EXISTS reseller_bots (
    id            INT UNSIGNED  NOT NULL AUTO_INCREMENT PRIMARY KEY,
    bot_token     VARCHAR(128)  NOT NULL,
    bot_username  VARCHAR(64)   NULL,
    db_name       VARCHAR(64)   NULL,
    owner_userid  BIGINT        NOT NULL DEFAULT 0,
    admin_userid  BIGINT        NOT NULL DEFAULT 0,
    expires_at    INT UNSIGNED  NOT NULL DEFAULT 0,
    status        TINYINT       NOT NULL DEFAULT 1,
    is_deleted    TINYINT       NOT NULL DEFAULT 0,
    created_at    TIMESTAMP     NOT NULL DEFAULT CURRENT_TIMESTAMP,
    KEY idx_active (status, is_deleted)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// SchemaEnsurer creates reseller_bots when it does not exist.
type SchemaEnsurer struct {
	DB *sqlx.DB
}

// EnsureSchema runs CREATE TABLE IF NOT EXISTS.
func (s SchemaEnsurer) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, createResellerBots)
	return err
}

// Hooks runs several schema hooks in order and stops at the first error.
type Hooks []SchemaHook

// EnsureSchema calls every hook.
func (hs Hooks) EnsureSchema(ctx context.Context) error {
	for _, h := range hs {
		if h == nil {
			continue
		}
		if err := h.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	return nil
}
