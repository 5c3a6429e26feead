// internal/tenant/iterator.go
//
// Tenant iterator: one verification pass over the mother bot and every
// active reseller.
//
/*
Context
--------
`Iterator.Run` is the whole poll cycle:

  1. Halt when no Tron wallet is configured (report only, no error).
  2. Verify the primary tenant (id 0) on the mother pool.
  3. Run the optional schema hook.
  4. Scan the reseller directory, if one is wired.
  5. For each row, in store order:
       • skip rows without id, db_name, or token;
       • derive the reseller Context;
       • open the tenant schema, verify, close.

Tenants are processed strictly one after another.  Every tenant gets its
own Context value and its own handle, which is closed before the next row
is read, so the mother pool is never shadowed and no state leaks between
iterations.

Failures never abort the pass.  Each tenant's result lands in the returned
Report and is logged; only cancellation of ctx ends the loop early.
*/
package tenant

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/tronpoll/internal/metrics"
)

// Verifier checks payments for one tenant.
type Verifier interface {
	Verify(ctx context.Context, tc Context) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, tc Context) error

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, tc Context) error { return f(ctx, tc) }

// Config wires an Iterator.  Directory and Schema are optional; Open and
// Verifier are required when Directory is set.
type Config struct {
	Wallet        string
	Primary       Context
	Directory     Lister
	Schema        SchemaHook
	Open          Opener
	Verifier      Verifier
	TenantTimeout time.Duration
	Log           *zap.SugaredLogger
}

// Iterator runs verification passes.  It holds no per-run state, but Run
// must not be called concurrently: passes are meant to be serialised by
// the scheduler.
type Iterator struct {
	cfg Config
	log *zap.SugaredLogger
}

// NewIterator returns an Iterator.  A nil logger is replaced by a no-op.
func NewIterator(cfg Config) *Iterator {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cfg.Primary.ID = PrimaryID
	cfg.Primary.Wallet = cfg.Wallet
	return &Iterator{cfg: cfg, log: log}
}

// Run performs one pass.  The error is non-nil only when ctx ends the pass
// early; the partial report is returned alongside it.
func (it *Iterator) Run(ctx context.Context) (*Report, error) {
	rep := &Report{StartedAt: time.Now()}
	defer func() {
		rep.FinishedAt = time.Now()
		metrics.RunDuration.Observe(rep.FinishedAt.Sub(rep.StartedAt).Seconds())
		metrics.LastRunTimestamp.Set(float64(rep.FinishedAt.Unix()))
	}()

	if it.cfg.Wallet == "" {
		it.log.Warnw("tron wallet not configured, skipping pass")
		metrics.RunsTotal.WithLabelValues("halted").Inc()
		return rep, nil
	}
	rep.WalletConfigured = true

	// Primary tenant.
	rep.add(it.verify(ctx, it.cfg.Primary, ""))

	if it.cfg.Schema != nil {
		if err := it.cfg.Schema.EnsureSchema(ctx); err != nil {
			it.log.Errorw("reseller schema ensure failed", "err", err)
		}
	}

	if it.cfg.Directory == nil {
		return it.finish(rep, nil)
	}

	cur, err := it.cfg.Directory.Scan(ctx)
	if err != nil {
		rep.DirectoryErr = err.Error()
		metrics.DirectoryErrorsTotal.Inc()
		it.log.Errorw("reseller directory scan failed", "err", err)
		return it.finish(rep, nil)
	}
	defer cur.Close()

	for cur.Next() {
		if ctx.Err() != nil {
			return it.finish(rep, ctx.Err())
		}
		rep.add(it.reseller(ctx, cur.Record()))
	}
	if err := cur.Err(); err != nil {
		rep.DirectoryErr = err.Error()
		metrics.DirectoryErrorsTotal.Inc()
		it.log.Errorw("reseller directory iteration failed", "err", err)
	}
	return it.finish(rep, ctx.Err())
}

func (it *Iterator) finish(rep *Report, err error) (*Report, error) {
	result := "completed"
	if err != nil {
		result = "cancelled"
	}
	metrics.RunsTotal.WithLabelValues(result).Inc()
	it.log.Infow("poll pass finished",
		"result", result,
		"tenants", len(rep.Outcomes),
		"verified", rep.Count(StatusVerified),
		"failed", rep.Count(StatusVerifyFailed)+rep.Count(StatusOpenFailed),
		"skipped", rep.Count(StatusSkipped),
	)
	return rep, err
}

// reseller processes one directory row.
func (it *Iterator) reseller(ctx context.Context, rec Record) Outcome {
	if !rec.Valid() {
		it.log.Debugw("reseller row skipped", "tenant", rec.ID, "db", rec.DBName)
		return Outcome{TenantID: rec.ID, DBName: rec.DBName, Status: StatusSkipped}
	}

	tc := it.cfg.Primary.ForReseller(rec)

	db, err := it.cfg.Open(ctx, rec.DBName)
	if err != nil {
		it.log.Warnw("tenant database open failed", "tenant", rec.ID, "db", rec.DBName, "err", err)
		return Outcome{TenantID: rec.ID, DBName: rec.DBName, Status: StatusOpenFailed, Err: err.Error()}
	}
	defer func() {
		if err := db.Close(); err != nil {
			it.log.Debugw("tenant database close failed", "tenant", rec.ID, "err", err)
		}
	}()

	tc.DB = db
	return it.verify(ctx, tc, rec.DBName)
}

// verify runs the verifier for tc, bounded by TenantTimeout and shielded
// from panics.
func (it *Iterator) verify(ctx context.Context, tc Context, dbName string) (out Outcome) {
	out = Outcome{TenantID: tc.ID, DBName: dbName, Status: StatusVerified}

	if it.cfg.TenantTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, it.cfg.TenantTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusVerifyFailed
			out.Err = fmt.Sprintf("panic: %v", r)
			it.log.Errorw("verifier panicked", "tenant", tc.ID, "panic", r)
		}
	}()

	if err := it.cfg.Verifier.Verify(ctx, tc); err != nil {
		out.Status = StatusVerifyFailed
		out.Err = err.Error()
		it.log.Errorw("tenant verification failed", "tenant", tc.ID, "db", dbName, "err", err)
		return out
	}
	it.log.Debugw("tenant verified", "tenant", tc.ID, "db", dbName, "took", time.Since(start))
	return out
}
