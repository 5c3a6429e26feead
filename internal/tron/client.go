// internal/tron/client.go
//
// TronGrid-compatible REST client.
//
// Context
// -------
// The verifier needs one thing from the chain: TRC-20 transfers received by
// the configured wallet since a given time.  `Client.Transfers` pages
// through `/v1/accounts/{addr}/transactions/trc20` with `only_to=true` and
// `only_confirmed=true`, optionally pinned to one token contract.
//
// Every HTTP attempt passes, in order, through:
//
//   • a token-bucket limiter (x/time/rate), so a pass over many tenants
//     stays under the provider quota;
//   • a circuit breaker (sony/gobreaker), so a dead API fails fast for the
//     remaining tenants instead of stalling each one;
//   • exponential backoff (cenkalti/backoff) for 429 and 5xx, honouring
//     Retry-After.
//
// Notes
// -----
// • Amounts are decoded into shopspring/decimal using token_info.decimals.
// • Only the fields the verifier needs are decoded.
// • At most maxPages pages are read per call.  Pages come oldest first, so
//   when the cap is hit the newest transfers are missing from the result;
//   that is logged and counted, and the next pass picks them up once the
//   older invoices are settled or expired.
package tron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yanizio/tronpoll/internal/metrics"
)

const (
	pageSize     = 200
	maxPages     = 10
	maxBodyBytes = 4 << 20
	maxRetries   = 3
)

// Transfer is one confirmed TRC-20 transfer into the wallet.
type Transfer struct {
	TxID      string
	From      string
	To        string
	Symbol    string
	Amount    decimal.Decimal
	Timestamp time.Time
}

// HTTPError is a non-2xx answer from the API.
type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tron api: http %d", e.StatusCode)
	}
	return fmt.Sprintf("tron api: http %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether the status is worth another attempt.
func (e *HTTPError) retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Options configure a Client.
type Options struct {
	BaseURL       string
	APIKey        string
	TokenContract string
	RatePerSecond float64
	Burst         int
	HTTPClient    *http.Client
	Log           *zap.SugaredLogger
}

// Client talks to one API endpoint.  Safe for concurrent use.
type Client struct {
	base     *url.URL
	apiKey   string
	contract string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	log      *zap.SugaredLogger
	maxPages int
}

// NewClient validates opts.BaseURL and builds a Client.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("tron api url %q is invalid", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Client{
		base:     base,
		apiKey:   opts.APIKey,
		contract: opts.TokenContract,
		http:     hc,
		limiter:  rate.NewLimiter(limit, burst),
		log:      log,
		maxPages: maxPages,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "tron-api",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			// A 4xx other than 429 is our fault, not the API's.
			IsSuccessful: func(err error) bool {
				var he *HTTPError
				if errors.As(err, &he) {
					return !he.retryable() && he.StatusCode < 500
				}
				return err == nil
			},
		}),
	}, nil
}

// Transfers returns confirmed inbound transfers to wallet with a block
// timestamp at or after since, oldest first.
func (c *Client) Transfers(ctx context.Context, wallet string, since time.Time) ([]Transfer, error) {
	if wallet == "" {
		return nil, errors.New("tron: empty wallet")
	}

	q := url.Values{}
	q.Set("only_to", "true")
	q.Set("only_confirmed", "true")
	q.Set("order_by", "block_timestamp,asc")
	q.Set("limit", strconv.Itoa(pageSize))
	q.Set("min_timestamp", strconv.FormatInt(since.UnixMilli(), 10))
	if c.contract != "" {
		q.Set("contract_address", c.contract)
	}

	var out []Transfer
	for page := 0; ; page++ {
		resp, err := c.fetch(ctx, wallet, q)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Data {
			tr, err := raw.decode()
			if err != nil {
				return nil, fmt.Errorf("tron: decode %s: %w", raw.TransactionID, err)
			}
			if !strings.EqualFold(tr.To, wallet) {
				continue
			}
			out = append(out, tr)
		}
		if resp.Meta.Fingerprint == "" || len(resp.Data) < pageSize {
			break
		}
		if page+1 >= c.maxPages {
			metrics.TronPageCapTotal.Inc()
			c.log.Warnw("tron transfer listing truncated",
				"wallet", wallet,
				"pages", c.maxPages,
				"transfers", len(out),
				"since", since,
			)
			break
		}
		q.Set("fingerprint", resp.Meta.Fingerprint)
	}
	return out, nil
}

/*──────────────────────────── wire format ─────────────────────────────────*/

type trc20Page struct {
	Data    []trc20Transfer `json:"data"`
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Meta    struct {
		Fingerprint string `json:"fingerprint"`
	} `json:"meta"`
}

type trc20Transfer struct {
	TransactionID  string `json:"transaction_id"`
	BlockTimestamp int64  `json:"block_timestamp"`
	From           string `json:"from"`
	To             string `json:"to"`
	Type           string `json:"type"`
	Value          string `json:"value"`
	TokenInfo      struct {
		Symbol   string `json:"symbol"`
		Address  string `json:"address"`
		Decimals int32  `json:"decimals"`
	} `json:"token_info"`
}

func (t trc20Transfer) decode() (Transfer, error) {
	raw, err := decimal.NewFromString(t.Value)
	if err != nil {
		return Transfer{}, err
	}
	return Transfer{
		TxID:      t.TransactionID,
		From:      t.From,
		To:        t.To,
		Symbol:    t.TokenInfo.Symbol,
		Amount:    raw.Shift(-t.TokenInfo.Decimals),
		Timestamp: time.UnixMilli(t.BlockTimestamp),
	}, nil
}

/*──────────────────────────── transport ───────────────────────────────────*/

// fetch performs one logical page request with limiter, breaker, and
// retry applied.
func (c *Client) fetch(ctx context.Context, wallet string, q url.Values) (*trc20Page, error) {
	endpoint := c.base.JoinPath("v1", "accounts", wallet, "transactions", "trc20")
	endpoint.RawQuery = q.Encode()

	hint := &retryAfter{BackOff: backoff.NewExponentialBackOff()}
	policy := backoff.WithContext(backoff.WithMaxRetries(hint, maxRetries), ctx)

	var page *trc20Page
	err := backoff.Retry(func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.get(ctx, endpoint.String())
		})
		if err != nil {
			return classify(err, hint)
		}
		page = res.(*trc20Page)
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (*trc20Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.TronRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.TronRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.TronRequestsTotal.WithLabelValues("error").Inc()
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 256),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var page trc20Page
	if err := json.Unmarshal(body, &page); err != nil {
		metrics.TronRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("tron api: decode page: %w", err)
	}
	if !page.Success {
		metrics.TronRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("tron api: unsuccessful response: %s", page.Error)
	}
	metrics.TronRequestsTotal.WithLabelValues("ok").Inc()
	return &page, nil
}

// classify decides whether err deserves another attempt.
func classify(err error, hint *retryAfter) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.TronRequestsTotal.WithLabelValues("breaker_open").Inc()
		return backoff.Permanent(err)
	}
	var he *HTTPError
	if errors.As(err, &he) {
		if !he.retryable() {
			return backoff.Permanent(err)
		}
		hint.next = he.RetryAfter
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	// Network errors are retried.
	return err
}

// retryAfter lets a server-provided delay override the next backoff step.
type retryAfter struct {
	backoff.BackOff
	next time.Duration
}

func (r *retryAfter) NextBackOff() time.Duration {
	d := r.BackOff.NextBackOff()
	if r.next > 0 && d != backoff.Stop {
		d, r.next = r.next, 0
	}
	return d
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
