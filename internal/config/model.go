// internal/config/model.go
//
// Typed configuration model for tronpoll.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                            – dotenv values,
//   • `conf/tronpoll.yaml`                       – primary static file,
//   • `TRONPOLL_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with `vault:` is resolved through the
// Vault client *before* unmarshalling, so the model never stores Vault
// references, only plain strings.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`; Koanf ignores `yaml` tags.
//   • `Payment.TronWallet` is deliberately not `required`: an empty wallet
//     is a valid deployment that simply polls nothing.
//   • The `Paths` block is filled at runtime.

package config

import (
	"time"

	"github.com/yanizio/tronpoll/internal/database"
)

//
// Payment section
//

// Payment holds the receiving addresses.
type Payment struct {
	TronWallet string `koanf:"tron_wallet"`
}

//
// Database section
//

// Database describes the shared MySQL server.  `Name` is the mother
// schema; reseller schemas are read from `reseller_bots.db_name` and
// reached with the same account.
type Database struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"          validate:"omitempty,min=1,max=65535"`
	User         string `koanf:"user"          validate:"required"`
	Password     string `koanf:"password"      validate:"required"`
	Name         string `koanf:"name"          validate:"required"`
	EnsureSchema bool   `koanf:"ensure_schema"`
}

// Credentials returns the account shared by every tenant connection.
func (d Database) Credentials() database.Credentials {
	return database.Credentials{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
	}
}

//
// Telegram section
//

// Telegram identifies the mother bot.  Reseller bots bring their own
// token and admin from the directory row.
type Telegram struct {
	BotToken    string `koanf:"bot_token"    validate:"required"`
	AdminID     int64  `koanf:"admin_id"`
	APIEndpoint string `koanf:"api_endpoint" validate:"omitempty,url"`
}

//
// Tron section
//

// Tron configures the TronGrid-compatible REST API.
type Tron struct {
	APIURL        string        `koanf:"api_url"         validate:"required,url"`
	APIKey        string        `koanf:"api_key"`
	TokenContract string        `koanf:"token_contract"`
	RatePerSecond float64       `koanf:"rate_per_second" validate:"gte=0"`
	Burst         int           `koanf:"burst"           validate:"gte=0"`
	Lookback      time.Duration `koanf:"lookback"`
	InvoiceTTL    time.Duration `koanf:"invoice_ttl"`
}

//
// Poll section
//

// Poll controls scheduling.  An empty Schedule means run once and exit.
type Poll struct {
	Schedule      string        `koanf:"schedule"`
	TenantTimeout time.Duration `koanf:"tenant_timeout"`
}

//
// HTTP section
//

// HTTP holds the ops server address.  Empty disables the server.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"omitempty,hostname_port"`
}

//
// Log section
//

// Log controls the zap logger.
type Log struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // TRONPOLL_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the aggregate returned by Load().
type Config struct {
	Payment  Payment  `koanf:"payment"`
	Database Database `koanf:"database"`
	Telegram Telegram `koanf:"telegram"`
	Tron     Tron     `koanf:"tron"`
	Poll     Poll     `koanf:"poll"`
	HTTP     HTTP     `koanf:"http"`
	Log      Log      `koanf:"log"`
	Paths    Paths    `koanf:"-"`
}
