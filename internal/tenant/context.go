// context.go defines the per-tenant Context handed to the verifier.  A
// fresh value is built for every tenant; nothing is shared between
// iterations, so one tenant can never observe another tenant's token,
// admin, or connection.
package tenant

import "github.com/jmoiron/sqlx"

// PrimaryID identifies the mother bot.
const PrimaryID int64 = 0

// Context carries the identity and database of the tenant being verified.
// DB is owned by the iterator and valid only for the duration of one
// Verify call.
type Context struct {
	ID       int64
	Wallet   string
	BotToken string
	AdminID  int64
	DB       *sqlx.DB
}

// IsPrimary reports whether c describes the mother bot.
func (c Context) IsPrimary() bool { return c.ID == PrimaryID }

// ForReseller derives a reseller context from the primary one.  ID and
// token always come from the row; the admin is taken from the row only
// when set, otherwise the primary admin is kept.  DB is left nil for the
// caller to fill once the tenant handle is open.
func (c Context) ForReseller(r Record) Context {
	out := Context{
		ID:       r.ID,
		Wallet:   c.Wallet,
		BotToken: r.BotToken,
		AdminID:  c.AdminID,
	}
	if r.AdminUserID > 0 {
		out.AdminID = r.AdminUserID
	}
	return out
}
