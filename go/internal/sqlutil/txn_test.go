package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

type failingBeginner struct{ err error }

func (b failingBeginner) BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error) {
	return nil, b.err
}

func TestRunBeginFailure(t *testing.T) {
	down := errors.New("connection refused")
	called := false

	err := Run(context.Background(), failingBeginner{err: down}, func(*sql.Tx) *struct{} { return nil }, func(*struct{}) error {
		called = true
		return nil
	})
	if !errors.Is(err, down) {
		t.Fatalf("want wrapped begin error got %v", err)
	}
	if called {
		t.Fatalf("fn must not run without a transaction")
	}
}
