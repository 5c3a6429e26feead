package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
payment:
  tron_wallet: TXYZabc123
database:
  user: bot
  password: vault:secret/tronpoll/db#password
  name: mother
telegram:
  bot_token: "111:mother"
  admin_id: 42
tron:
  api_url: https://api.trongrid.io
  lookback: 2h
poll:
  schedule: "@every 1m"
  tenant_timeout: 30s
`

type fakeResolver map[string]string

func (f fakeResolver) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := f[ref]
	if !ok {
		return "", errors.New("unknown ref " + ref)
	}
	return v, nil
}

func writeConf(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "conf"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "conf", FileName), []byte(body), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return root
}

func TestLoad_ResolvesSecretsAndDefaults(t *testing.T) {
	root := writeConf(t, sampleYAML)
	sr := fakeResolver{"vault:secret/tronpoll/db#password": "s3cret"}

	cfg, err := Load(context.Background(), Options{Root: root, Secrets: sr})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Password != "s3cret" {
		t.Errorf("password = %q, want resolved secret", cfg.Database.Password)
	}
	if cfg.Database.Host != "127.0.0.1" || cfg.Database.Port != 3306 {
		t.Errorf("db defaults not applied: %+v", cfg.Database)
	}
	if cfg.Payment.TronWallet != "TXYZabc123" {
		t.Errorf("wallet = %q", cfg.Payment.TronWallet)
	}
	if cfg.Tron.Lookback != 2*time.Hour {
		t.Errorf("lookback = %v, want 2h", cfg.Tron.Lookback)
	}
	if cfg.Poll.TenantTimeout != 30*time.Second {
		t.Errorf("tenant_timeout = %v", cfg.Poll.TenantTimeout)
	}
	if cfg.Telegram.AdminID != 42 {
		t.Errorf("admin_id = %d", cfg.Telegram.AdminID)
	}
	if cfg.Paths.Root != root {
		t.Errorf("root = %q", cfg.Paths.Root)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	root := writeConf(t, sampleYAML)
	t.Setenv("TRONPOLL_PAYMENT__TRON_WALLET", "TOverride")
	t.Setenv("TRONPOLL_DATABASE__PORT", "3307")

	cfg, err := Load(context.Background(), Options{
		Root:    root,
		Secrets: fakeResolver{"vault:secret/tronpoll/db#password": "x"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Payment.TronWallet != "TOverride" {
		t.Errorf("env override ignored: wallet = %q", cfg.Payment.TronWallet)
	}
	if cfg.Database.Port != 3307 {
		t.Errorf("port = %d, want 3307", cfg.Database.Port)
	}
}

func TestLoad_VaultRefWithoutResolver(t *testing.T) {
	root := writeConf(t, sampleYAML)

	_, err := Load(context.Background(), Options{Root: root})
	if !errors.Is(err, ErrNoResolver) {
		t.Fatalf("err = %v, want ErrNoResolver", err)
	}
	if !strings.Contains(err.Error(), "database.password") {
		t.Errorf("error does not name the key: %v", err)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	root := writeConf(t, `
database:
  user: bot
  password: pw
telegram:
  bot_token: "1:a"
tron:
  api_url: not a url
`)

	_, err := Load(context.Background(), Options{Root: root})
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"Database.Name", "Tron.APIURL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
