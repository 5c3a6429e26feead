// internal/tenant/directory.go
//
// Reseller directory scan.
//
// Context
// -------
// `Directory.Scan` executes exactly one parameter-free SELECT against the
// mother database and returns a `Cursor` over the result.  Rows are pulled
// from the server one at a time as the iterator advances, so a large
// directory never sits in memory.  The cursor is single-pass and cannot be
// restarted.
//
// Workflow
// --------
//  1. `Scan` runs the query and wraps *sqlx.Rows.
//  2. `Next` advances and decodes the row into `Record`.
//  3. `Err` reports iteration or scan failures once `Next` returns false.
//  4. `Close` releases the server-side cursor; safe to call twice.
//
// Notes
// -----
//   - No ORDER BY: rows arrive in whatever order the store returns them.
//   - Errors are returned verbatim; callers wrap and log them.
package tenant

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const activeResellersQuery = `
    SELECT id,
           COALESCE(db_name, '')   AS db_name,
           COALESCE(bot_token, '') AS bot_token,
           admin_userid
    FROM   reseller_bots
    WHERE  status = 1
      AND  is_deleted = 0
      AND  db_name IS NOT NULL
      AND  db_name <> ''`

// Lister yields the active reseller rows.  *Directory satisfies it.
type Lister interface {
	Scan(ctx context.Context) (*Cursor, error)
}

// Directory reads `reseller_bots` from the mother database.
type Directory struct {
	db *sqlx.DB
}

// NewDirectory returns a Directory bound to the mother pool.
func NewDirectory(db *sqlx.DB) *Directory { return &Directory{db: db} }

// Scan opens a cursor over active, non-deleted, named reseller rows.
func (d *Directory) Scan(ctx context.Context) (*Cursor, error) {
	rows, err := d.db.QueryxContext(ctx, activeResellersQuery)
	if err != nil {
		return nil, err
	}
	return &Cursor{rows: rows}, nil
}

// Cursor walks the scan result once.
type Cursor struct {
	rows *sqlx.Rows
	rec  Record
	err  error
}

// Next decodes the next row.  It returns false at the end of the result or
// on the first error; check Err afterwards.
func (c *Cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var rec Record
	if err := c.rows.StructScan(&rec); err != nil {
		c.err = err
		return false
	}
	c.rec = rec
	return true
}

// Record returns the row decoded by the last successful Next.
func (c *Cursor) Record() Record { return c.rec }

// Err returns the first decode or iteration error.
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

// Close releases the result set.
func (c *Cursor) Close() error { return c.rows.Close() }
