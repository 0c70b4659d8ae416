package txlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeQuerier struct {
	t    *testing.T
	rows []fakeRow

	gotArgs [][]any
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.t.Fatalf("unexpected Exec: %s", sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.t.Fatalf("unexpected Query: %s", sql)
	return nil, nil
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.gotArgs = append(f.gotArgs, args)
	if len(f.rows) == 0 {
		f.t.Fatalf("unexpected QueryRow: %s", sql)
	}
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row
}

func TestClassify(t *testing.T) {
	cases := []struct {
		raw  string
		want Status
	}{
		{"CHARGED", StatusCharged},
		{"charged", StatusCharged},
		{" Success ", StatusSuccess},
		{"COMPLETED", StatusCompleted},
		{"FAILED", StatusFailed},
		{"PENDING", StatusPending},
		{"CANCELLED", StatusCancelled},
		{"AUTHORIZING", StatusUnknown},
		{"", StatusUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.raw); got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestStatusSuccessful(t *testing.T) {
	successful := map[Status]bool{
		StatusCharged:   true,
		StatusSuccess:   true,
		StatusCompleted: true,
		StatusFailed:    false,
		StatusPending:   false,
		StatusCancelled: false,
		StatusUnknown:   false,
	}
	for s, want := range successful {
		if got := s.Successful(); got != want {
			t.Errorf("%s.Successful() = %v, want %v", s, got, want)
		}
	}
}

func TestAppend(t *testing.T) {
	q := &fakeQuerier{t: t, rows: []fakeRow{{scan: func(dest ...any) error {
		*dest[0].(*int64) = 42
		*dest[1].(*time.Time) = time.Now()
		return nil
	}}}}

	e := &Entry{
		OrderID:           "ORD1",
		TransactionStatus: StatusCharged,
		Amount:            1000,
		TransactionCount:  1,
		PaymentGateway:    "HDFC",
		SignatureVerified: true,
	}
	if err := NewRepository(q).Append(context.Background(), e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if e.ID != 42 || e.Timestamp.IsZero() {
		t.Fatalf("entry not filled from RETURNING: %+v", e)
	}
	if got := q.gotArgs[0][1]; got != "CHARGED" {
		t.Fatalf("persisted status = %v", got)
	}
}

func TestAppendDuplicateSuccess(t *testing.T) {
	q := &fakeQuerier{t: t, rows: []fakeRow{{scan: func(dest ...any) error {
		return &pgconn.PgError{Code: "23505", ConstraintName: successConstraint}
	}}}}

	err := NewRepository(q).Append(context.Background(), &Entry{
		OrderID:           "ORD1",
		TransactionStatus: StatusCharged,
		TransactionCount:  1,
	})
	if !errors.Is(err, ErrDuplicateSuccess) {
		t.Fatalf("expected ErrDuplicateSuccess, got %v", err)
	}
}

func TestAppendOtherUniqueViolation(t *testing.T) {
	// A 23505 on some other constraint is a real failure, not a replay.
	q := &fakeQuerier{t: t, rows: []fakeRow{{scan: func(dest ...any) error {
		return &pgconn.PgError{Code: "23505", ConstraintName: "transaction_log_pkey"}
	}}}}

	err := NewRepository(q).Append(context.Background(), &Entry{
		OrderID:           "ORD1",
		TransactionStatus: StatusFailed,
		TransactionCount:  1,
	})
	if err == nil || errors.Is(err, ErrDuplicateSuccess) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestCountAttempts(t *testing.T) {
	q := &fakeQuerier{t: t, rows: []fakeRow{{scan: func(dest ...any) error {
		*dest[0].(*int) = 3
		return nil
	}}}}

	count, err := NewRepository(q).CountAttempts(context.Background(), "ORD1")
	if err != nil {
		t.Fatalf("CountAttempts: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestHasSuccessful(t *testing.T) {
	q := &fakeQuerier{t: t, rows: []fakeRow{{scan: func(dest ...any) error {
		*dest[0].(*bool) = true
		return nil
	}}}}

	ok, err := NewRepository(q).HasSuccessful(context.Background(), "ORD1")
	if err != nil {
		t.Fatalf("HasSuccessful: %v", err)
	}
	if !ok {
		t.Fatal("expected a successful entry")
	}
}
