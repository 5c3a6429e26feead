// internal/tenant/iterator_test.go
//
// Unit-tests for Iterator.Run.
//
// Context
// -------
// The mother pool is a sqlmock DB serving the directory query.  Tenant
// handles come from a fake Opener that hands out sqlmock DBs per db_name
// (or an error), and a recording Verifier captures every Context it sees.

package tenant

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

type recorder struct {
	calls []Context
	fail  map[int64]error
}

func (r *recorder) Verify(_ context.Context, tc Context) error {
	r.calls = append(r.calls, tc)
	return r.fail[tc.ID]
}

type fakeOpener struct {
	t      *testing.T
	dbs    map[string]*sqlx.DB
	mocks  map[string]sqlmock.Sqlmock
	errs   map[string]error
	opened []string
}

func newFakeOpener(t *testing.T) *fakeOpener {
	return &fakeOpener{
		t:     t,
		dbs:   map[string]*sqlx.DB{},
		mocks: map[string]sqlmock.Sqlmock{},
		errs:  map[string]error{},
	}
}

// tenant registers a closable handle for name.
func (f *fakeOpener) tenant(name string) {
	db, mock := newMockDB(f.t)
	mock.ExpectClose()
	f.dbs[name] = db
	f.mocks[name] = mock
}

func (f *fakeOpener) open(_ context.Context, name string) (*sqlx.DB, error) {
	f.opened = append(f.opened, name)
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	db, ok := f.dbs[name]
	if !ok {
		return nil, errors.New("unknown database " + name)
	}
	return db, nil
}

func (f *fakeOpener) assertClosed() {
	f.t.Helper()
	for name, mock := range f.mocks {
		if err := mock.ExpectationsWereMet(); err != nil {
			f.t.Errorf("tenant %s handle not closed: %v", name, err)
		}
	}
}

func primary(db *sqlx.DB) Context {
	return Context{BotToken: "mother-token", AdminID: 1, DB: db}
}

func TestRun_NoWallet(t *testing.T) {
	mother, mock := newMockDB(t)
	defer mother.Close()
	rec := &recorder{}
	op := newFakeOpener(t)

	it := NewIterator(Config{
		Primary:   primary(mother),
		Directory: NewDirectory(mother),
		Open:      op.open,
		Verifier:  rec,
	})

	rep, err := it.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.WalletConfigured {
		t.Errorf("WalletConfigured = true")
	}
	if len(rec.calls) != 0 || len(rep.Outcomes) != 0 {
		t.Fatalf("verifier ran %d time(s) without a wallet", len(rec.calls))
	}
	if len(op.opened) != 0 {
		t.Errorf("opened %v without a wallet", op.opened)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected SQL: %v", err)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	mother, mock := newMockDB(t)
	defer mother.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS reseller_bots")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(activeResellersQuery)).
		WillReturnRows(sqlmock.NewRows(directoryCols).
			AddRow(5, "shop5", "tok5", 9).
			AddRow(6, "", "tok6", 3))

	op := newFakeOpener(t)
	op.tenant("shop5")
	rec := &recorder{}

	it := NewIterator(Config{
		Wallet:    "T123",
		Primary:   primary(mother),
		Directory: NewDirectory(mother),
		Schema:    SchemaEnsurer{DB: mother},
		Open:      op.open,
		Verifier:  rec,
	})

	rep, err := it.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rec.calls) != 2 {
		t.Fatalf("verifier calls = %d, want 2", len(rec.calls))
	}

	p := rec.calls[0]
	if p.ID != PrimaryID || p.DB != mother || p.BotToken != "mother-token" || p.Wallet != "T123" {
		t.Errorf("primary context = %+v", p)
	}

	r := rec.calls[1]
	if r.ID != 5 || r.BotToken != "tok5" || r.AdminID != 9 || r.Wallet != "T123" {
		t.Errorf("reseller context = %+v", r)
	}
	if r.DB != op.dbs["shop5"] {
		t.Errorf("reseller verified on the wrong handle")
	}

	if len(op.opened) != 1 || op.opened[0] != "shop5" {
		t.Errorf("opened = %v, want [shop5]", op.opened)
	}
	op.assertClosed()

	if got := rep.Count(StatusVerified); got != 2 {
		t.Errorf("verified = %d, want 2", got)
	}
	if got := rep.Count(StatusSkipped); got != 1 {
		t.Errorf("skipped = %d, want 1", got)
	}
	if rep.Outcomes[2].TenantID != 6 {
		t.Errorf("skipped outcome = %+v", rep.Outcomes[2])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestRun_MalformedRowsNeverOpened(t *testing.T) {
	mother, mock := newMockDB(t)
	defer mother.Close()

	// Rows the SQL predicate lets through but the record check rejects.
	mock.ExpectQuery(regexp.QuoteMeta(activeResellersQuery)).
		WillReturnRows(sqlmock.NewRows(directoryCols).
			AddRow(0, "shop0", "tok0", 4).
			AddRow(-2, "shopneg", "tokneg", 4).
			AddRow(8, "shop8", "", 4))

	op := newFakeOpener(t)
	rec := &recorder{}

	it := NewIterator(Config{
		Wallet:    "T123",
		Primary:   primary(mother),
		Directory: NewDirectory(mother),
		Open:      op.open,
		Verifier:  rec,
	})
	rep, err := it.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(op.opened) != 0 {
		t.Errorf("opened %v for malformed rows", op.opened)
	}
	if len(rec.calls) != 1 || rec.calls[0].ID != PrimaryID {
		t.Errorf("verifier calls = %+v, want primary only", rec.calls)
	}
	if got := rep.Count(StatusSkipped); got != 3 {
		t.Errorf("skipped = %d, want 3", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestRun_AdminInheritedWhenUnset(t *testing.T) {
	mother, mock := newMockDB(t)
	defer mother.Close()

	mock.ExpectQuery(regexp.QuoteMeta(activeResellersQuery)).
		WillReturnRows(sqlmock.NewRows(directoryCols).
			AddRow(5, "shop5", "tok5", 9).
			AddRow(7, "shop7", "tok7", 0))

	op := newFakeOpener(t)
	op.tenant("shop5")
	op.tenant("shop7")
	rec := &recorder{}

	it := NewIterator(Config{
		Wallet:    "T123",
		Primary:   primary(mother),
		Directory: NewDirectory(mother),
		Open:      op.open,
		Verifier:  rec,
	})
	if _, err := it.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rec.calls) != 3 {
		t.Fatalf("verifier calls = %d, want 3", len(rec.calls))
	}
	// Tenant 7 has no admin of its own: it keeps the primary admin, not
	// tenant 5's.
	if got := rec.calls[2].AdminID; got != 1 {
		t.Errorf("tenant 7 admin = %d, want primary admin 1", got)
	}
	op.assertClosed()
}

func TestRun_OpenFailureContinues(t *testing.T) {
	mother, mock := newMockDB(t)
	defer mother.Close()

	mock.ExpectQuery(regexp.QuoteMeta(activeResellersQuery)).
		WillReturnRows(sqlmock.NewRows(directoryCols).
			AddRow(5, "shop5", "tok5", 9).
			AddRow(8, "shop8", "tok8", 4))

	op := newFakeOpener(t)
	op.errs["shop5"] = errors.New("access denied")
	op.tenant("shop8")
	rec := &recorder{}

	it := NewIterator(Config{
		Wallet:    "T123",
		Primary:   primary(mother),
		Directory: NewDirectory(mother),
		Open:      op.open,
		Verifier:  rec,
	})
	rep, err := it.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rec.calls) != 2 || rec.calls[1].ID != 8 {
		t.Fatalf("verifier calls = %+v, want primary then tenant 8", rec.calls)
	}
	failed := rep.Outcomes[1]
	if failed.TenantID != 5 || failed.Status != StatusOpenFailed || failed.Err == "" {
		t.Errorf("open failure outcome = %+v", failed)
	}
	if rep.Outcomes[2].Status != StatusVerified {
		t.Errorf("tenant 8 outcome = %+v", rep.Outcomes[2])
	}
	op.assertClosed()
}

func TestRun_DirectoryErrorKeepsPrimary(t *testing.T) {
	mother, mock := newMockDB(t)
	defer mother.Close()

	mock.ExpectQuery(regexp.QuoteMeta(activeResellersQuery)).
		WillReturnError(errors.New("no such table"))

	rec := &recorder{}
	it := NewIterator(Config{
		Wallet:    "T123",
		Primary:   primary(mother),
		Directory: NewDirectory(mother),
		Open:      newFakeOpener(t).open,
		Verifier:  rec,
	})
	rep, err := it.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.calls) != 1 || !rec.calls[0].IsPrimary() {
		t.Fatalf("calls = %+v, want primary only", rec.calls)
	}
	if rep.DirectoryErr == "" {
		t.Errorf("DirectoryErr not recorded")
	}
}

func TestRun_VerifierErrorAndPanicAreReported(t *testing.T) {
	mother, mock := newMockDB(t)
	defer mother.Close()

	mock.ExpectQuery(regexp.QuoteMeta(activeResellersQuery)).
		WillReturnRows(sqlmock.NewRows(directoryCols).
			AddRow(5, "shop5", "tok5", 9))

	op := newFakeOpener(t)
	op.tenant("shop5")

	verifier := VerifierFunc(func(_ context.Context, tc Context) error {
		if tc.IsPrimary() {
			return errors.New("tron api down")
		}
		panic("boom")
	})

	it := NewIterator(Config{
		Wallet:    "T123",
		Primary:   primary(mother),
		Directory: NewDirectory(mother),
		Open:      op.open,
		Verifier:  verifier,
	})
	rep, err := it.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rep.Count(StatusVerifyFailed); got != 2 {
		t.Fatalf("verify_failed = %d, want 2 (%+v)", got, rep.Outcomes)
	}
	op.assertClosed()
}

func TestRun_NoDirectory(t *testing.T) {
	rec := &recorder{}
	it := NewIterator(Config{Wallet: "T123", Verifier: rec})

	rep, err := it.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.calls) != 1 || len(rep.Outcomes) != 1 {
		t.Fatalf("want only the primary pass, got %+v", rep.Outcomes)
	}
}

func TestRun_TenantTimeout(t *testing.T) {
	var deadline bool
	verifier := VerifierFunc(func(ctx context.Context, _ Context) error {
		_, deadline = ctx.Deadline()
		return nil
	})

	it := NewIterator(Config{Wallet: "T123", Verifier: verifier, TenantTimeout: time.Second})
	if _, err := it.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !deadline {
		t.Errorf("verifier context has no deadline")
	}
}

func TestRun_CancelledBetweenTenants(t *testing.T) {
	mother, mock := newMockDB(t)
	defer mother.Close()

	mock.ExpectQuery(regexp.QuoteMeta(activeResellersQuery)).
		WillReturnRows(sqlmock.NewRows(directoryCols).
			AddRow(5, "shop5", "tok5", 9).
			AddRow(7, "shop7", "tok7", 2))

	op := newFakeOpener(t)
	op.tenant("shop5")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	verifier := VerifierFunc(func(_ context.Context, tc Context) error {
		if tc.ID == 5 {
			cancel()
		}
		return nil
	})

	it := NewIterator(Config{
		Wallet:    "T123",
		Primary:   primary(mother),
		Directory: NewDirectory(mother),
		Open:      op.open,
		Verifier:  verifier,
	})
	rep, err := it.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	for _, name := range op.opened {
		if name == "shop7" {
			t.Fatalf("tenant 7 processed after cancellation")
		}
	}
	if len(rep.Outcomes) != 2 {
		t.Errorf("outcomes = %+v, want primary and tenant 5", rep.Outcomes)
	}
	op.assertClosed()
}

func TestForReseller(t *testing.T) {
	base := Context{Wallet: "T1", BotToken: "m", AdminID: 11}

	got := base.ForReseller(Record{ID: 3, DBName: "d", BotToken: "r", AdminUserID: 0})
	if got.ID != 3 || got.BotToken != "r" || got.AdminID != 11 || got.Wallet != "T1" || got.DB != nil {
		t.Errorf("ForReseller without admin = %+v", got)
	}

	got = base.ForReseller(Record{ID: 3, DBName: "d", BotToken: "r", AdminUserID: 12})
	if got.AdminID != 12 {
		t.Errorf("ForReseller admin = %d, want 12", got.AdminID)
	}
	if base.AdminID != 11 {
		t.Errorf("primary context mutated")
	}
}
