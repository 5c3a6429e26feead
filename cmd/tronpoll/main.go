// cmd/tronpoll/main.go
//
// tronpoll, Tron payment poller for the mother bot and its resellers.
//
// Start-up sequence
// -----------------
//
//  1. Load env vars (jail-wide file → .env fallback) and parse flags.
//
//  2. Bootstrap console logger, optional Vault client, then config.
//
//  3. Start the daily rotating logger (tees to console in a TTY).
//
//  4. Open the mother DB and wire directory, claims, Tron client,
//     Telegram notifier, verifier, and the tenant iterator.
//
//  5. Either run one pass and exit (`--once` or no `poll.schedule`), or
//     start the cron schedule plus the ops HTTP server and wait for a
//     signal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/yanizio/tronpoll/internal/config"
	"github.com/yanizio/tronpoll/internal/database"
	"github.com/yanizio/tronpoll/internal/logger"
	"github.com/yanizio/tronpoll/internal/scheduler"
	"github.com/yanizio/tronpoll/internal/server"
	"github.com/yanizio/tronpoll/internal/tenant"
	"github.com/yanizio/tronpoll/internal/tron"
	"github.com/yanizio/tronpoll/internal/vault"
)

const (
	serverEnvPath   = "/usr/local/etc/tronpoll/global.env"
	shutdownTimeout = 30 * time.Second
)

// loadEnv prefers the jail-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	once := pflag.Bool("once", false, "run a single poll pass and exit")
	root := pflag.String("config-root", "", "directory holding conf/tronpoll.yaml (default: TRONPOLL_ROOT or discovered)")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *root, *once); err != nil {
		log.Fatalf("tronpoll: %v", err)
	}
}

func run(ctx context.Context, root string, once bool) error {
	//
	// ── 1.  Bootstrap logging, secrets, config ──────────────────────────
	//
	boot, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("bootstrap logger: %w", err)
	}
	zap.ReplaceGlobals(boot)

	var secrets config.SecretResolver
	if vault.Configured() {
		vc, err := vault.New(ctx, boot.Sugar())
		if err != nil {
			return fmt.Errorf("vault: %w", err)
		}
		secrets = vc
	}

	cfg, err := config.Load(ctx, config.Options{Root: root, Secrets: secrets})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logOut, err := logger.New(cfg.Paths.Root, runningInTTY(), cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("start logger: %w", err)
	}
	defer func() { _ = logOut.Sync() }()

	//
	// ── 2.  Mother DB ───────────────────────────────────────────────────
	//
	creds := cfg.Database.Credentials()
	logOut.Infow("connecting to mother DB", "host", cfg.Database.Host, "db", cfg.Database.Name)
	motherDB, err := database.OpenWithOptions(ctx, creds.DSN(cfg.Database.Name), database.DefaultOptions)
	if err != nil {
		return fmt.Errorf("connect mother DB: %w", err)
	}
	defer motherDB.Close()
	logOut.Infow("mother DB online")

	//
	// ── 3.  Verifier and iterator ───────────────────────────────────────
	//
	client, err := tron.NewClient(tron.Options{
		BaseURL:       cfg.Tron.APIURL,
		APIKey:        cfg.Tron.APIKey,
		TokenContract: cfg.Tron.TokenContract,
		RatePerSecond: cfg.Tron.RatePerSecond,
		Burst:         cfg.Tron.Burst,
		Log:           logOut,
	})
	if err != nil {
		return err
	}

	claims := tron.NewClaimStore(motherDB)
	verifier := tron.NewVerifier(tron.VerifierConfig{
		Source:     client,
		Claims:     claims,
		Notifier:   tron.NewTelegramNotifier(cfg.Telegram.APIEndpoint),
		Lookback:   cfg.Tron.Lookback,
		InvoiceTTL: cfg.Tron.InvoiceTTL,
		Log:        logOut,
	})

	var schema tenant.SchemaHook
	if cfg.Database.EnsureSchema {
		schema = tenant.Hooks{tenant.SchemaEnsurer{DB: motherDB}, claims}
	}

	iter := tenant.NewIterator(tenant.Config{
		Wallet: cfg.Payment.TronWallet,
		Primary: tenant.Context{
			BotToken: cfg.Telegram.BotToken,
			AdminID:  cfg.Telegram.AdminID,
			DB:       motherDB,
		},
		Directory:     tenant.NewDirectory(motherDB),
		Schema:        schema,
		Open:          tenant.DialOpener(creds, database.TenantOptions),
		Verifier:      verifier,
		TenantTimeout: cfg.Poll.TenantTimeout,
		Log:           logOut,
	})
	sched := scheduler.New(iter, logOut)

	//
	// ── 4a. Single pass ─────────────────────────────────────────────────
	//
	if once || cfg.Poll.Schedule == "" {
		rep, err := sched.Once(ctx)
		if err != nil {
			return err
		}
		if !rep.WalletConfigured {
			logOut.Infow("no tron wallet configured, nothing to poll")
		}
		return nil
	}

	//
	// ── 4b. Schedule + ops server ───────────────────────────────────────
	//
	if err := sched.Start(cfg.Poll.Schedule); err != nil {
		return fmt.Errorf("poll schedule %q: %w", cfg.Poll.Schedule, err)
	}

	var srv *http.Server
	if cfg.HTTP.ListenAddr != "" {
		key := server.TriggerKey(cfg.Telegram.BotToken, cfg.Telegram.AdminID)
		srv = server.New(cfg.HTTP.ListenAddr, server.Router(sched, key, logOut))
		go func() {
			logOut.Infow("ops server listening", "addr", cfg.HTTP.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logOut.Errorw("ops server failed", "err", err)
			}
		}()
	}

	<-ctx.Done()
	logOut.Infow("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutCtx); err != nil {
			logOut.Warnw("ops server shutdown", "err", err)
		}
	}
	return sched.Stop(shutCtx)
}
