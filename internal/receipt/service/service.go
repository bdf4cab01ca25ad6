// Package service records consent receipts with at-most-once semantics per
// consent state inside the dedup window.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	receiptmetrics "assent/internal/receipt/metrics"
	"assent/internal/receipt/models"
	"assent/internal/receipt/store"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/requestcontext"
)

// Sink forwards recorded receipts downstream, typically to Kafka. Publish
// failures never fail the record: the local store is the source of truth.
type Sink interface {
	Publish(ctx context.Context, receipt *models.Receipt) error
}

// StoreTx provides a transactional boundary so the duplicate check and the
// insert observe the same snapshot. The in-memory default is a passthrough.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Service orchestrates receipt intake, dedup, forwarding and retention.
type Service struct {
	receipts    store.Store
	sink        Sink
	tx          StoreTx
	logger      *slog.Logger
	metrics     *receiptmetrics.Metrics
	dedupWindow time.Duration
	retention   time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *receiptmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSink wires a downstream publisher for recorded receipts.
func WithSink(sink Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithStoreTx wires a transactional runner so dedup check and insert commit
// atomically against SQL stores.
func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) { s.tx = tx }
}

// New creates the receipt service. dedupWindow bounds how long an identical
// consent state suppresses re-recording; retention bounds how long receipts
// are kept before Sweep removes them.
func New(receipts store.Store, dedupWindow, retention time.Duration, opts ...Option) *Service {
	s := &Service{
		receipts:    receipts,
		tx:          passthroughTx{},
		logger:      slog.Default(),
		dedupWindow: dedupWindow,
		retention:   retention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record persists a receipt unless an identical consent state was already
// recorded for the visitor inside the dedup window. Duplicates are dropped
// silently; the caller cannot distinguish a dedup from a fresh write.
func (s *Service) Record(ctx context.Context, receipt *models.Receipt) error {
	if receipt == nil {
		return dErrors.New(dErrors.CodeBadRequest, "receipt is required")
	}
	receipt.SiteID = strings.TrimSpace(receipt.SiteID)
	receipt.VisitorID = strings.TrimSpace(receipt.VisitorID)
	if receipt.SiteID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "site_id is required")
	}
	if receipt.VisitorID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "visitor_id is required")
	}
	if !receipt.Action.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown consent action")
	}
	if receipt.Purposes == nil {
		receipt.Purposes = map[string]bool{}
	}
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = requestcontext.Now(ctx)
	}
	if receipt.StateHash == "" {
		hash, err := receipt.ComputeStateHash()
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "hash consent state")
		}
		receipt.StateHash = hash
	}

	deduped := false
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		since := receipt.CreatedAt.Add(-s.dedupWindow)
		exists, err := s.receipts.HasRecent(txCtx, receipt.VisitorID, receipt.StateHash, since)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "check for duplicate receipt")
		}
		if exists {
			deduped = true
			return nil
		}
		if err := s.receipts.Append(txCtx, receipt); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "persist receipt")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if deduped {
		s.metrics.IncrementDeduped()
		s.logger.DebugContext(ctx, "duplicate receipt dropped",
			"site_id", receipt.SiteID,
			"action", receipt.Action,
		)
		return nil
	}

	s.metrics.IncrementRecorded(string(receipt.Action))
	if s.sink != nil {
		if err := s.sink.Publish(ctx, receipt); err != nil {
			s.metrics.IncrementSinkFailures()
			s.logger.WarnContext(ctx, "receipt sink publish failed",
				"receipt_id", receipt.ID,
				"error", err,
			)
		}
	}
	return nil
}

// ListBySite returns the newest receipts for a site for the admin surface.
func (s *Service) ListBySite(ctx context.Context, siteID string, limit int) ([]*models.Receipt, error) {
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "site id is required")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	receipts, err := s.receipts.ListBySite(ctx, siteID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "list receipts")
	}
	return receipts, nil
}

// Sweep deletes receipts older than the retention period and returns how
// many were removed. The cron sweeper calls this on its schedule.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	cutoff := requestcontext.Now(ctx).Add(-s.retention)
	deleted, err := s.receipts.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "sweep receipts")
	}
	if deleted > 0 {
		s.metrics.AddSwept(deleted)
		s.logger.InfoContext(ctx, "expired receipts swept",
			"deleted", deleted,
			"cutoff", cutoff,
		)
	}
	return deleted, nil
}
