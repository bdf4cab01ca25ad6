// Package publisher decouples receipt intake from persistence. In async mode
// HTTP handlers enqueue and return; a single drainer goroutine records.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	receiptmetrics "assent/internal/receipt/metrics"
	"assent/internal/receipt/models"
	"assent/pkg/requestcontext"
)

// ErrBufferFull is returned by Emit when the async buffer cannot accept
// another receipt. Callers treat it as backpressure, not a client error.
var ErrBufferFull = errors.New("receipt buffer full")

var errPublisherClosed = errors.New("receipt publisher closed")

// Recorder persists receipts. The receipt service implements it.
type Recorder interface {
	Record(ctx context.Context, receipt *models.Receipt) error
}

// Publisher wraps a Recorder with optional buffering. Without
// WithAsyncBuffer it records synchronously on the caller's goroutine.
type Publisher struct {
	recorder Recorder
	logger   *slog.Logger
	metrics  *receiptmetrics.Metrics

	bufferSize int
	inbox      chan *models.Receipt
	wg         sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given
// channel capacity. Emit drops with ErrBufferFull when the buffer is full.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) { p.bufferSize = size }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *receiptmetrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func NewPublisher(recorder Recorder, opts ...Option) *Publisher {
	p := &Publisher{
		recorder: recorder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan *models.Receipt, p.bufferSize)
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records a receipt, stamping CreatedAt when unset. In async mode the
// receipt is queued; a full buffer returns ErrBufferFull without blocking.
func (p *Publisher) Emit(ctx context.Context, receipt *models.Receipt) error {
	if receipt == nil {
		return errors.New("receipt is required")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = requestcontext.Now(ctx)
	}

	if p.inbox == nil {
		return p.recorder.Record(ctx, receipt)
	}

	// The send happens under the mutex so Close cannot close the channel
	// between the closed check and the send.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPublisherClosed
	}
	select {
	case p.inbox <- receipt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.metrics.IncrementDropped()
		p.logger.WarnContext(ctx, "receipt buffer full, dropping",
			"site_id", receipt.SiteID,
			"action", receipt.Action,
		)
		return ErrBufferFull
	}
}

// Close stops accepting receipts and blocks until queued ones are recorded.
// Safe to call more than once. A no-op in sync mode.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()
	p.wg.Wait()
}

// drain records queued receipts on a background context: the requests that
// queued them have already returned.
func (p *Publisher) drain() {
	defer p.wg.Done()
	for receipt := range p.inbox {
		if err := p.recorder.Record(context.Background(), receipt); err != nil {
			p.logger.Error("failed to record queued receipt",
				"receipt_id", receipt.ID,
				"site_id", receipt.SiteID,
				"error", err,
			)
		}
	}
}
