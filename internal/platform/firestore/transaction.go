package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// TxFunc runs inside a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption tunes retry attempts and the transaction deadline.
type TxOption func(*txSettings)

type txSettings struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts caps how often a contended transaction is retried.
func WithTxAttempts(attempts int) TxOption {
	return func(s *txSettings) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// WithTxTimeout bounds the transaction, unless the caller's context already
// carries a tighter deadline.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(s *txSettings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// RunTransaction executes fn within a transaction on the provided client.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	settings := txSettings{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	txCtx := ctx
	if settings.timeout > 0 {
		deadline, ok := ctx.Deadline()
		if !ok || time.Until(deadline) > settings.timeout {
			var cancel context.CancelFunc
			txCtx, cancel = context.WithTimeout(ctx, settings.timeout)
			defer cancel()
		}
	}

	var fsOpts []firestore.TransactionOption
	if settings.attempts > 0 {
		fsOpts = append(fsOpts, firestore.MaxAttempts(settings.attempts))
	}

	err := client.RunTransaction(txCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, tx)
	}, fsOpts...)
	return WrapError("transaction", err)
}
