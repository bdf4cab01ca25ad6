package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/tx"
)

const defaultReceiptTxTimeout = 5 * time.Second

// receiptPostgresTx gives the receipt service a transaction boundary over the
// receipts database: the dedup check and the append run atomically. The
// transaction rides the context, so the store joins it without signature
// changes.
type receiptPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newReceiptPostgresTx(db *sql.DB) *receiptPostgresTx {
	return &receiptPostgresTx{db: db}
}

func (t *receiptPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultReceiptTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return tx.Run(ctx, t.db, fn)
}
