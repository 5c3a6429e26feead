// internal/tenant/opener.go
//
// Per-tenant database handles.
//
// Context
// -------
// A reseller database lives on the same server as the mother database and
// is reached with the same account; only the schema differs.  `DialOpener`
// captures those credentials once and returns an `Opener` that the
// iterator calls with each row's db_name.  The returned pool is small
// (database.TenantOptions) because it serves exactly one verification
// call before the iterator closes it.
package tenant

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/tronpoll/internal/database"
)

// Opener opens a handle to one tenant schema.
type Opener func(ctx context.Context, dbName string) (*sqlx.DB, error)

// DialOpener returns an Opener for the shared server described by creds.
func DialOpener(creds database.Credentials, opts database.Options) Opener {
	return func(ctx context.Context, dbName string) (*sqlx.DB, error) {
		return database.OpenWithOptions(ctx, creds.DSN(dbName), opts)
	}
}
