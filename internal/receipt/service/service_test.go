package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assent/internal/receipt/models"
	"assent/internal/receipt/store"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/requestcontext"
)

type recordingSink struct {
	published []*models.Receipt
	err       error
}

func (s *recordingSink) Publish(_ context.Context, receipt *models.Receipt) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, receipt)
	return nil
}

func newReceipt(visitorID string, analytics bool) *models.Receipt {
	return &models.Receipt{
		SiteID:    "site-1",
		VisitorID: visitorID,
		Action:    models.ActionSave,
		Purposes:  map[string]bool{"essential": true, "analytics": analytics},
		Language:  "en",
	}
}

func TestRecord_FillsIdentityAndPersists(t *testing.T) {
	st := store.NewInMemory()
	svc := New(st, time.Hour, 30*24*time.Hour)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	receipt := newReceipt("visitor-1", true)
	require.NoError(t, svc.Record(ctx, receipt))

	assert.NotEqual(t, uuid.Nil, receipt.ID)
	assert.Equal(t, now, receipt.CreatedAt)
	assert.Len(t, receipt.StateHash, 64)

	stored, err := st.ListBySite(ctx, "site-1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, receipt.StateHash, stored[0].StateHash)
}

func TestRecord_DropsDuplicateWithinWindow(t *testing.T) {
	st := store.NewInMemory()
	svc := New(st, time.Hour, 30*24*time.Hour)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	require.NoError(t, svc.Record(ctx, newReceipt("visitor-1", true)))

	// Same visitor, same consent state, ten minutes later.
	laterCtx := requestcontext.WithTime(context.Background(), now.Add(10*time.Minute))
	require.NoError(t, svc.Record(laterCtx, newReceipt("visitor-1", true)))

	stored, err := st.ListBySite(context.Background(), "site-1", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "duplicate state inside the window must not re-record")
}

func TestRecord_DistinctStatesBothRecorded(t *testing.T) {
	st := store.NewInMemory()
	svc := New(st, time.Hour, 30*24*time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, newReceipt("visitor-1", true)))
	require.NoError(t, svc.Record(ctx, newReceipt("visitor-1", false)))

	stored, err := st.ListBySite(ctx, "site-1", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRecord_SameStateDifferentVisitorsBothRecorded(t *testing.T) {
	st := store.NewInMemory()
	svc := New(st, time.Hour, 30*24*time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, newReceipt("visitor-1", true)))
	require.NoError(t, svc.Record(ctx, newReceipt("visitor-2", true)))

	stored, err := st.ListBySite(ctx, "site-1", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2, "dedup is scoped per visitor")
}

func TestRecord_ReRecordsAfterWindow(t *testing.T) {
	st := store.NewInMemory()
	svc := New(st, time.Hour, 30*24*time.Hour)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Record(requestcontext.WithTime(context.Background(), now), newReceipt("visitor-1", true)))
	require.NoError(t, svc.Record(requestcontext.WithTime(context.Background(), now.Add(2*time.Hour)), newReceipt("visitor-1", true)))

	stored, err := st.ListBySite(context.Background(), "site-1", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestRecord_RejectsInvalidInput(t *testing.T) {
	svc := New(store.NewInMemory(), time.Hour, 30*24*time.Hour)
	ctx := context.Background()

	err := svc.Record(ctx, nil)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeBadRequest, "receipt is required"))

	missingSite := newReceipt("visitor-1", true)
	missingSite.SiteID = "  "
	require.ErrorIs(t, svc.Record(ctx, missingSite), dErrors.New(dErrors.CodeBadRequest, "site_id is required"))

	missingVisitor := newReceipt("", true)
	require.ErrorIs(t, svc.Record(ctx, missingVisitor), dErrors.New(dErrors.CodeBadRequest, "visitor_id is required"))

	badAction := newReceipt("visitor-1", true)
	badAction.Action = "approve"
	require.ErrorIs(t, svc.Record(ctx, badAction), dErrors.New(dErrors.CodeValidation, "unknown consent action"))
}

func TestRecord_ForwardsToSink(t *testing.T) {
	st := store.NewInMemory()
	sink := &recordingSink{}
	svc := New(st, time.Hour, 30*24*time.Hour, WithSink(sink))
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, newReceipt("visitor-1", true)))
	require.Len(t, sink.published, 1)
	assert.Equal(t, "visitor-1", sink.published[0].VisitorID)

	// A deduped receipt is not re-published.
	require.NoError(t, svc.Record(ctx, newReceipt("visitor-1", true)))
	assert.Len(t, sink.published, 1)
}

func TestRecord_SinkFailureDoesNotFailRecord(t *testing.T) {
	st := store.NewInMemory()
	sink := &recordingSink{err: errors.New("broker down")}
	svc := New(st, time.Hour, 30*24*time.Hour, WithSink(sink))
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, newReceipt("visitor-1", true)))

	stored, err := st.ListBySite(ctx, "site-1", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "the local store is the source of truth")
}

func TestListBySite_Validation(t *testing.T) {
	svc := New(store.NewInMemory(), time.Hour, 30*24*time.Hour)

	_, err := svc.ListBySite(context.Background(), "  ", 10)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeBadRequest, "site id is required"))
}

func TestSweep_DeletesExpiredReceipts(t *testing.T) {
	st := store.NewInMemory()
	svc := New(st, time.Hour, 24*time.Hour)

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Record(requestcontext.WithTime(context.Background(), now.Add(-48*time.Hour)), newReceipt("visitor-1", true)))
	require.NoError(t, svc.Record(requestcontext.WithTime(context.Background(), now), newReceipt("visitor-2", true)))

	deleted, err := svc.Sweep(requestcontext.WithTime(context.Background(), now))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := st.ListBySite(context.Background(), "site-1", 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "visitor-2", remaining[0].VisitorID)
}
