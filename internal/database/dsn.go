// internal/database/dsn.go
//
// DSN construction for the shared MySQL server.
//
// Context
// -------
// Every reseller database lives on the same server as the mother database
// and is reached with the same account.  Only the schema name changes, so a
// single `Credentials` value builds the DSN for any tenant.  The character
// set is forced to utf8mb4 (4-byte UTF-8) on every connection.
//
// Times are UTC on both ends: the session `time_zone` is pinned to +00:00
// and the driver parses DATETIME/TIMESTAMP values with `loc=UTC`, so
// invoice timestamps compare correctly with on-chain block times whatever
// zone the server runs in.
//
// Notes
// -----
//   - `mysql.Config.FormatDSN` handles escaping of passwords and names.
//   - No logging here; callers must never log the returned DSN.
package database

import (
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	// Charset is applied to every connection.
	Charset = "utf8mb4"
	// SessionTimeZone is the session time_zone of every connection.
	SessionTimeZone = "'+00:00'"
)

// Credentials identify the shared database server and account.
type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
}

// DSN returns a go-sql-driver DSN that selects dbName.
func (c Credentials) DSN(dbName string) string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.host(), strconv.Itoa(c.port()))
	cfg.DBName = dbName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{
		"charset":   Charset,
		"time_zone": SessionTimeZone,
	}
	return cfg.FormatDSN()
}

func (c Credentials) host() string {
	if c.Host == "" {
		return "127.0.0.1"
	}
	return c.Host
}

func (c Credentials) port() int {
	if c.Port == 0 {
		return 3306
	}
	return c.Port
}
