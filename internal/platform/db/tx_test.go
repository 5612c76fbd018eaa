package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx   *fakeTx
	opts pgx.TxOptions
	err  error
}

func (f *fakeBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

func TestWithTxCommits(t *testing.T) {
	conn := &fakeBeginner{tx: &fakeTx{}}

	require.NoError(t, WithTx(context.Background(), conn, func(pgx.Tx) error { return nil }))
	assert.True(t, conn.tx.committed)
	assert.False(t, conn.tx.rolledBack)
	assert.Equal(t, pgx.RepeatableRead, conn.opts.IsoLevel)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	conn := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")

	err := WithTx(context.Background(), conn, func(pgx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, conn.tx.committed)
	assert.True(t, conn.tx.rolledBack)
}

func TestWithTxWrapsBeginAndCommitFailures(t *testing.T) {
	refused := errors.New("connection refused")
	err := WithTx(context.Background(), &fakeBeginner{err: refused}, func(pgx.Tx) error { return nil })
	assert.ErrorIs(t, err, refused)

	conflict := errors.New("serialization failure")
	conn := &fakeBeginner{tx: &fakeTx{commitErr: conflict}}
	err = WithTx(context.Background(), conn, func(pgx.Tx) error { return nil })
	assert.ErrorIs(t, err, conflict)
	assert.True(t, conn.tx.rolledBack)
}
