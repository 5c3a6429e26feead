// internal/tron/verifier.go
//
// Payment verification for one tenant.
//
/*
Context
--------
`Verifier.Verify` is the routine the tenant iterator runs once per tenant.
Given the tenant's Context (wallet, bot token, admin, database) it:

  1. Expires pending invoices older than the invoice TTL.
  2. Loads the remaining pending invoices.
  3. Fetches inbound transfers since the oldest of them (never further back
     than the lookback window).
  4. Pairs each invoice, oldest first, with the first unused transfer of
     exactly the same amount that landed after the invoice was created.
  5. Claims the transfer on the mother database, marks the invoice paid,
     and notifies the payer and the tenant admin.

A transfer is considered used when it was settled earlier in this tenant
(`tx_id` column), already claimed by any tenant (`tron_claims`), or seen
claimed by this process (LRU, saves the round trips).

Notification failures are logged; they never undo a settlement.
*/
package tron

import (
	"context"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/tronpoll/internal/cache"
	"github.com/yanizio/tronpoll/internal/metrics"
	"github.com/yanizio/tronpoll/internal/tenant"
)

// TransferSource lists inbound transfers.  *Client satisfies it.
type TransferSource interface {
	Transfers(ctx context.Context, wallet string, since time.Time) ([]Transfer, error)
}

// VerifierConfig wires a Verifier.  Notifier may be nil.
type VerifierConfig struct {
	Source     TransferSource
	Claims     Claimer
	Notifier   Notifier
	Lookback   time.Duration
	InvoiceTTL time.Duration
	Log        *zap.SugaredLogger
}

// Verifier implements tenant.Verifier.
type Verifier struct {
	cfg  VerifierConfig
	log  *zap.SugaredLogger
	seen *cache.LRU[string, struct{}]
	now  func() time.Time
}

var _ tenant.Verifier = (*Verifier)(nil)

// NewVerifier returns a Verifier.
func NewVerifier(cfg VerifierConfig) *Verifier {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Verifier{
		cfg:  cfg,
		log:  log,
		seen: cache.New[string, struct{}](4096),
		now:  time.Now,
	}
}

// Verify settles the tenant's pending invoices.
func (v *Verifier) Verify(ctx context.Context, tc tenant.Context) error {
	if tc.DB == nil {
		return fmt.Errorf("tenant %d: no database handle", tc.ID)
	}
	store := NewInvoiceStore(tc.DB)
	now := v.now()
	log := v.log.With("tenant", tc.ID)

	cutoff := now.Add(-v.cfg.InvoiceTTL)
	if n, err := store.Expire(ctx, cutoff); err != nil {
		return fmt.Errorf("expire invoices: %w", err)
	} else if n > 0 {
		log.Infow("invoices expired", "count", n)
	}

	pending, err := store.Pending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load pending invoices: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	since := pending[0].CreatedAt
	if floor := now.Add(-v.cfg.Lookback); v.cfg.Lookback > 0 && since.Before(floor) {
		since = floor
	}
	transfers, err := v.cfg.Source.Transfers(ctx, tc.Wallet, since)
	if err != nil {
		return fmt.Errorf("fetch transfers: %w", err)
	}
	log.Debugw("transfers fetched", "pending", len(pending), "transfers", len(transfers))

	used := make(map[string]bool, len(transfers))
	for _, inv := range pending {
		for _, tr := range transfers {
			if used[tr.TxID] || !tr.Amount.Equal(inv.Amount) || tr.Timestamp.Before(inv.CreatedAt) {
				continue
			}
			res, err := v.settle(ctx, tc, store, inv, tr)
			if err != nil {
				return err
			}
			if res == invoiceGone {
				break
			}
			used[tr.TxID] = true
			if res == settled {
				break
			}
		}
	}
	return nil
}

type settleResult int

const (
	settled     settleResult = iota
	txUnusable               // transfer already spent or claimed elsewhere
	invoiceGone              // invoice left the pending state meanwhile
)

// settle tries to pay inv with tr.
func (v *Verifier) settle(ctx context.Context, tc tenant.Context, store *InvoiceStore, inv Invoice, tr Transfer) (settleResult, error) {
	if v.seen.Contains(tr.TxID) {
		return txUnusable, nil
	}

	spent, err := store.TxUsed(ctx, tr.TxID)
	if err != nil {
		return txUnusable, fmt.Errorf("check tx %s: %w", tr.TxID, err)
	}
	if spent {
		v.seen.Add(tr.TxID, struct{}{})
		return txUnusable, nil
	}

	claimed, err := v.cfg.Claims.Claim(ctx, tr.TxID, tc.ID, inv.ID)
	if err != nil {
		return txUnusable, fmt.Errorf("claim tx %s: %w", tr.TxID, err)
	}
	if !claimed {
		v.seen.Add(tr.TxID, struct{}{})
		return txUnusable, nil
	}

	paid, err := store.MarkPaid(ctx, inv.ID, tr.TxID, v.now())
	if err != nil || !paid {
		if rerr := v.cfg.Claims.Release(ctx, tr.TxID); rerr != nil {
			// The claim stays; the transfer needs manual review.
			v.seen.Add(tr.TxID, struct{}{})
			v.log.Errorw("claim release failed", "tenant", tc.ID, "tx", tr.TxID, "err", rerr)
		}
		if err != nil {
			return invoiceGone, fmt.Errorf("mark invoice %d paid: %w", inv.ID, err)
		}
		return invoiceGone, nil
	}
	v.seen.Add(tr.TxID, struct{}{})

	metrics.InvoicesSettledTotal.Inc()
	v.log.Infow("invoice settled",
		"tenant", tc.ID,
		"invoice", inv.ID,
		"user", inv.UserID,
		"amount", inv.Amount.String(),
		"tx", tr.TxID,
	)
	v.notify(ctx, tc, inv, tr)
	return settled, nil
}

func (v *Verifier) notify(ctx context.Context, tc tenant.Context, inv Invoice, tr Transfer) {
	if v.cfg.Notifier == nil || tc.BotToken == "" {
		return
	}
	amount := html.EscapeString(inv.Amount.String() + " " + symbolOr(tr.Symbol, "USDT"))
	tx := html.EscapeString(tr.TxID)

	userMsg := fmt.Sprintf("✅ Payment of <b>%s</b> received.\nInvoice #%d\nTx: <code>%s</code>", amount, inv.ID, tx)
	if err := v.cfg.Notifier.Notify(ctx, tc.BotToken, inv.UserID, userMsg); err != nil {
		v.log.Warnw("payer notification failed", "tenant", tc.ID, "user", inv.UserID, "err", err)
	}

	if tc.AdminID <= 0 || tc.AdminID == inv.UserID {
		return
	}
	adminMsg := fmt.Sprintf("💰 Invoice #%d paid by <code>%d</code>: <b>%s</b>\nTx: <code>%s</code>", inv.ID, inv.UserID, amount, tx)
	if err := v.cfg.Notifier.Notify(ctx, tc.BotToken, tc.AdminID, adminMsg); err != nil {
		v.log.Warnw("admin notification failed", "tenant", tc.ID, "admin", tc.AdminID, "err", err)
	}
}

func symbolOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
