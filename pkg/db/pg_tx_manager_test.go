package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
	commitErr error
	commits   int
	rollbacks int
}

func (t *fakeTx) Commit(context.Context) error {
	t.commits++
	return t.commitErr
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rollbacks++
	return nil
}

type fakeBeginner struct {
	tx *fakeTx
}

func (b fakeBeginner) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return b.tx, nil
}

func TestInTxSurfacesCommitError(t *testing.T) {
	commitErr := errors.New("connection reset")
	tx := &fakeTx{commitErr: commitErr}
	m := &PgTxManager{}

	err := m.inTx(context.Background(), fakeBeginner{tx: tx}, pgx.TxOptions{},
		func(context.Context, pgx.Tx) error { return nil })

	if !errors.Is(err, commitErr) {
		t.Fatalf("err = %v, a failed commit must not report success", err)
	}
	if tx.rollbacks != 0 {
		t.Fatalf("rollbacks = %d, want 0 on the commit path", tx.rollbacks)
	}
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	tx := &fakeTx{}
	m := &PgTxManager{}

	err := m.inTx(context.Background(), fakeBeginner{tx: tx}, pgx.TxOptions{},
		func(context.Context, pgx.Tx) error { return nil })

	if err != nil {
		t.Fatal(err)
	}
	if tx.commits != 1 || tx.rollbacks != 0 {
		t.Fatalf("commits = %d rollbacks = %d, want 1/0", tx.commits, tx.rollbacks)
	}
}

func TestInTxRollsBackOnFnError(t *testing.T) {
	tx := &fakeTx{}
	m := &PgTxManager{}

	fnErr := errors.New("constraint violation")
	err := m.inTx(context.Background(), fakeBeginner{tx: tx}, pgx.TxOptions{},
		func(context.Context, pgx.Tx) error { return fnErr })

	if !errors.Is(err, fnErr) {
		t.Fatalf("err = %v, want the fn error", err)
	}
	if tx.commits != 0 || tx.rollbacks != 1 {
		t.Fatalf("commits = %d rollbacks = %d, want 0/1", tx.commits, tx.rollbacks)
	}
}
