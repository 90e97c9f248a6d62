package utils

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestWithTx_RejectsNilDB(t *testing.T) {
	called := false
	err := WithTx(context.Background(), nil, nil, func(ctx context.Context, tx *sql.Tx) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatalf("expected error for nil db")
	}
	if called {
		t.Fatalf("fn must not run without a transaction")
	}
}

func TestPoolDefaults(t *testing.T) {
	got := PostgresPoolConfig{MaxOpenConns: 10}.withDefaults()
	if got.MaxIdleConns != 10 {
		t.Fatalf("expected idle conns to follow open conns, got %d", got.MaxIdleConns)
	}
	if got.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping timeout %s", got.PingTimeout)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", fmt.Errorf("exec: %w", driver.ErrBadConn), true},
		{"deadline", context.DeadlineExceeded, true},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
