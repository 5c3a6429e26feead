// internal/tenant/report.go
//
// Per-pass results.
//
// Context
// -------
// Run never aborts for one tenant, so every tenant it reaches leaves an
// Outcome here, in processing order, primary first.  The Report is what
// the scheduler keeps as "last run" and what the ops server returns as
// JSON.  Each added outcome also bumps the per-status Prometheus counter.
package tenant

import (
	"time"

	"github.com/yanizio/tronpoll/internal/metrics"
)

// Status is the result of one tenant within a pass.
type Status string

const (
	StatusVerified     Status = "verified"
	StatusVerifyFailed Status = "verify_failed"
	StatusOpenFailed   Status = "open_failed"
	StatusSkipped      Status = "skipped"
)

// Outcome records what happened to one tenant.
type Outcome struct {
	TenantID int64  `json:"tenant_id"`
	DBName   string `json:"db_name,omitempty"`
	Status   Status `json:"status"`
	Err      string `json:"error,omitempty"`
}

// Report summarises one pass.  Outcomes are in processing order, primary
// first.
type Report struct {
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	WalletConfigured bool      `json:"wallet_configured"`
	DirectoryErr     string    `json:"directory_error,omitempty"`
	Outcomes         []Outcome `json:"outcomes"`
}

// Count returns how many outcomes have status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	metrics.TenantOutcomesTotal.WithLabelValues(string(o.Status)).Inc()
}
