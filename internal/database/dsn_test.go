package database

import (
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestCredentialsDSN(t *testing.T) {
	c := Credentials{User: "bot", Password: "p@ss/word"}

	dsn := c.DSN("shop5")
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("ParseDSN(%q): %v", dsn, err)
	}

	if cfg.DBName != "shop5" {
		t.Errorf("DBName = %q, want shop5", cfg.DBName)
	}
	if cfg.Addr != "127.0.0.1:3306" {
		t.Errorf("Addr = %q, want default host and port", cfg.Addr)
	}
	if cfg.Passwd != "p@ss/word" {
		t.Errorf("password not round-tripped: %q", cfg.Passwd)
	}
	if got := cfg.Params["charset"]; got != Charset {
		t.Errorf("charset = %q, want %q", got, Charset)
	}
	if !cfg.ParseTime {
		t.Errorf("parseTime not set")
	}
}

func TestCredentialsDSN_CustomHost(t *testing.T) {
	c := Credentials{Host: "db.internal", Port: 3307, User: "u", Password: "p"}

	cfg, err := mysql.ParseDSN(c.DSN("mother"))
	if err != nil {
		t.Fatalf("ParseDSN: %v", err)
	}
	if cfg.Addr != "db.internal:3307" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
}

func TestCredentialsDSN_PinsUTC(t *testing.T) {
	cfg, err := mysql.ParseDSN(Credentials{User: "u", Password: "p"}.DSN("shop5"))
	if err != nil {
		t.Fatalf("ParseDSN: %v", err)
	}
	if got := cfg.Params["time_zone"]; got != SessionTimeZone {
		t.Errorf("time_zone = %q, want %q", got, SessionTimeZone)
	}
	if cfg.Loc != time.UTC {
		t.Errorf("loc = %v, want UTC", cfg.Loc)
	}
}
