// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/tronpoll.yaml`.
  3. Environment variables prefixed `TRONPOLL_`, where `__` maps to "."
     (e.g., `TRONPOLL_PAYMENT__TRON_WALLET → payment.tron_wallet`).

After merging, every string value carrying the `vault:` prefix is swapped
for the secret it names.  The tree is then unmarshalled, defaulted,
and validated.  main loads once and passes the values it needs to each
component, so there is no package-level copy.

Instrumentation
---------------
  • DEBUG spans: root discovery, YAML read, secret resolution.
  • ERROR spans: YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span: final "config loaded" with key highlights (never secrets).
  • Logs use the global sugared logger (`zap.S()`) so early boot issues
    surface before the file logger is installed.
*/
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/tronpoll/internal/vault"
)

// FileName is the YAML file looked up under <root>/conf.
const FileName = "tronpoll.yaml"

// EnvPrefix marks environment overrides.
const EnvPrefix = "TRONPOLL_"

// ErrNoResolver is returned when the tree holds vault: references but no
// resolver was supplied.
var ErrNoResolver = errors.New("config: vault reference found but no resolver configured")

// SecretResolver turns a `vault:` reference into its value.  *vault.Client
// satisfies it.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Options tweak Load.  The zero value discovers the root and resolves no
// secrets.
type Options struct {
	Root    string
	Secrets SecretResolver
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves TRONPOLL_ROOT or climbs directories until
// conf/tronpoll.yaml is found.  Falls back to the executable layout
// (<root>/bin/tronpoll) and finally the working directory.
func rootDir() string {
	if r := os.Getenv("TRONPOLL_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", FileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, env overrides, resolves secrets, and validates.
func Load(ctx context.Context, opts Options) (*Config, error) {
	root := opts.Root
	if root == "" {
		root = rootDir()
	}
	zap.S().Debugw("config root resolved", "root", root)

	// .env is optional.
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", FileName)
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, fmt.Errorf("load %s: %w", yamlPath, err)
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, fmt.Errorf("env overlay: %w", err)
	}

	if err := resolveSecrets(ctx, k, opts.Secrets); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	cfg.Paths.Root = root
	applyDefaults(&cfg)
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	zap.S().Infow("config loaded",
		"root", cfg.Paths.Root,
		"db_host", cfg.Database.Host,
		"db_name", cfg.Database.Name,
		"wallet_configured", cfg.Payment.TronWallet != "",
		"schedule", cfg.Poll.Schedule,
	)
	return &cfg, nil
}

// envKey maps TRONPOLL_HTTP__LISTEN_ADDR → http.listen_addr.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

// resolveSecrets replaces every vault: string in k.  Keys are visited in
// sorted order so failures are reported deterministically.
func resolveSecrets(ctx context.Context, k *koanf.Koanf, sr SecretResolver) error {
	all := k.All()
	keys := make([]string, 0, len(all))
	for key, val := range all {
		if s, ok := val.(string); ok && vault.IsRef(s) {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if sr == nil {
		return fmt.Errorf("%w (%s)", ErrNoResolver, strings.Join(keys, ", "))
	}
	sort.Strings(keys)

	for _, key := range keys {
		val, err := sr.Resolve(ctx, k.String(key))
		if err != nil {
			return fmt.Errorf("resolve %s: %w", key, err)
		}
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		zap.S().Debugw("config secret resolved", "key", key)
	}
	return nil
}


// applyDefaults fills optional knobs left empty by YAML and env.
func applyDefaults(c *Config) {
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Tron.RatePerSecond == 0 {
		c.Tron.RatePerSecond = 5
	}
	if c.Tron.Burst == 0 {
		c.Tron.Burst = 5
	}
	if c.Tron.Lookback == 0 {
		c.Tron.Lookback = 24 * time.Hour
	}
	if c.Tron.InvoiceTTL == 0 {
		c.Tron.InvoiceTTL = time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
