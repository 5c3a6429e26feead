// internal/tenant/record.go
//
// `reseller_bots` row model.
//
// Context
// -------
// The `Record` struct mirrors the columns of one reseller row that the
// poller needs.  Rows are produced by `Directory.Scan`, which already
// filters on status, soft-delete, and a non-empty db_name at SQL level.
//
// Schema reference: see schema.go.
//
// Notes
// -----
// • NULL text columns are COALESCEd to '' in the query, so plain strings
//   are safe here.
// • `AdminUserID` of 0 means "unset".
package tenant

// Record mirrors the directory columns read by the poller.
type Record struct {
	ID          int64  `db:"id"`
	DBName      string `db:"db_name"`
	BotToken    string `db:"bot_token"`
	AdminUserID int64  `db:"admin_userid"`
}

// Valid reports whether the row carries everything needed to process it.
// Invalid rows are skipped without opening a connection.
func (r Record) Valid() bool {
	return r.ID > 0 && r.DBName != "" && r.BotToken != ""
}
