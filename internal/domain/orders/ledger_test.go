package orders

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

// fakeQuerier scripts QueryRow/Exec responses in call order.
type fakeQuerier struct {
	t        *testing.T
	rows     []fakeRow
	tags     []pgconn.CommandTag
	execErrs []error

	gotSQL  []string
	gotArgs [][]any
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.gotSQL = append(f.gotSQL, sql)
	f.gotArgs = append(f.gotArgs, args)
	if len(f.tags) == 0 {
		f.t.Fatalf("unexpected Exec: %s", sql)
	}
	tag := f.tags[0]
	f.tags = f.tags[1:]
	var err error
	if len(f.execErrs) > 0 {
		err = f.execErrs[0]
		f.execErrs = f.execErrs[1:]
	}
	return tag, err
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.t.Fatalf("unexpected Query: %s", sql)
	return nil, nil
}

func (f *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.gotSQL = append(f.gotSQL, sql)
	f.gotArgs = append(f.gotArgs, args)
	if len(f.rows) == 0 {
		f.t.Fatalf("unexpected QueryRow: %s", sql)
	}
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row
}

func TestExpectedAmount(t *testing.T) {
	cases := []struct {
		name  string
		items []LineItem
		want  float64
	}{
		{"empty", nil, 0},
		{"single", []LineItem{{UnitPrice: 500, Quantity: 2}}, 1000},
		{"multiple", []LineItem{{UnitPrice: 199.99, Quantity: 1}, {UnitPrice: 50, Quantity: 3}}, 349.99},
		{"rounding", []LineItem{{UnitPrice: 0.1, Quantity: 3}}, 0.3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExpectedAmount(tc.items); got != tc.want {
				t.Fatalf("ExpectedAmount = %v, want %v", got, tc.want)
			}
			// Recomputation over identical items is idempotent.
			if again := ExpectedAmount(tc.items); again != tc.want {
				t.Fatalf("recomputed ExpectedAmount = %v, want %v", again, tc.want)
			}
		})
	}
}

func TestUpsertRecomputesExpectedAmount(t *testing.T) {
	q := &fakeQuerier{t: t, rows: []fakeRow{{scan: func(dest ...any) error {
		*dest[0].(*PaymentStatus) = PaymentPending
		*dest[1].(*time.Time) = time.Now()
		*dest[2].(*time.Time) = time.Now()
		return nil
	}}}}

	items := []LineItem{{ProductID: "P1", Name: "Widget", UnitPrice: 500, Quantity: 2}}
	rec, err := NewRepository(q).Upsert(context.Background(), "ORD1", items, CustomerDetails{CustomerID: "c1"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if rec.ExpectedAmount != 1000 {
		t.Fatalf("ExpectedAmount = %v, want 1000", rec.ExpectedAmount)
	}
	if rec.PaymentStatus != PaymentPending {
		t.Fatalf("PaymentStatus = %v, want PENDING", rec.PaymentStatus)
	}
	// $3 in the insert is the server-computed amount.
	if got := q.gotArgs[0][2]; got != 1000.0 {
		t.Fatalf("persisted amount = %v, want 1000", got)
	}
}

func TestGetExpectedAmountNotFound(t *testing.T) {
	q := &fakeQuerier{t: t, rows: []fakeRow{{scan: func(dest ...any) error {
		return pgx.ErrNoRows
	}}}}

	_, err := NewRepository(q).GetExpectedAmount(context.Background(), "ORD404")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	t.Run("updates pending order", func(t *testing.T) {
		q := &fakeQuerier{t: t, tags: []pgconn.CommandTag{pgconn.NewCommandTag("UPDATE 1")}}
		if err := NewRepository(q).SetStatus(context.Background(), "ORD1", PaymentCompleted); err != nil {
			t.Fatalf("SetStatus: %v", err)
		}
	})

	t.Run("keeps completed terminal", func(t *testing.T) {
		q := &fakeQuerier{
			t:    t,
			tags: []pgconn.CommandTag{pgconn.NewCommandTag("UPDATE 0")},
			rows: []fakeRow{{scan: func(dest ...any) error {
				*dest[0].(*bool) = true
				return nil
			}}},
		}
		// The row exists but is COMPLETED; the no-op is not an error.
		if err := NewRepository(q).SetStatus(context.Background(), "ORD1", PaymentFailed); err != nil {
			t.Fatalf("SetStatus on completed order: %v", err)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		q := &fakeQuerier{
			t:    t,
			tags: []pgconn.CommandTag{pgconn.NewCommandTag("UPDATE 0")},
			rows: []fakeRow{{scan: func(dest ...any) error {
				*dest[0].(*bool) = false
				return nil
			}}},
		}
		err := NewRepository(q).SetStatus(context.Background(), "ORD404", PaymentFailed)
		if !errors.Is(err, ErrOrderNotFound) {
			t.Fatalf("expected ErrOrderNotFound, got %v", err)
		}
	})
}
