package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"assent/internal/receipt/handler/mocks"
	"assent/internal/receipt/models"
	"assent/internal/receipt/publisher"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/requestcontext"
)

func newRouter(intake Intake, reader Reader) chi.Router {
	h := New(intake, reader, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.RegisterPublic(r)
	h.RegisterAdmin(r)
	return r
}

func TestSubmitReceipt_Accepted(t *testing.T) {
	ctrl := gomock.NewController(t)
	intake := mocks.NewMockIntake(ctrl)
	router := newRouter(intake, mocks.NewMockReader(ctrl))

	var captured *models.Receipt
	intake.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, receipt *models.Receipt) error {
			captured = receipt
			return nil
		})

	body := `{"site_id":"site-1","visitor_id":"visitor-9","action":"save_preferences","purposes":{"analytics":true},"language":"EN","schema_version":2}`
	req := httptest.NewRequest(http.MethodPost, "/runtime/receipts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "site-1", captured.SiteID)
	assert.Equal(t, "visitor-9", captured.VisitorID)
	assert.Equal(t, models.ActionSave, captured.Action)
	assert.Equal(t, "en", captured.Language, "language is lowercased at the edge")
	assert.Equal(t, 2, captured.SchemaVersion)
}

func TestSubmitReceipt_VisitorFromContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	intake := mocks.NewMockIntake(ctrl)

	var captured *models.Receipt
	intake.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, receipt *models.Receipt) error {
			captured = receipt
			return nil
		})

	h := New(intake, mocks.NewMockReader(ctrl), slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestcontext.WithVisitorID(req.Context(), "cookie-visitor")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.RegisterPublic(r)

	body := `{"site_id":"site-1","action":"accept_all","purposes":{"analytics":true}}`
	req := httptest.NewRequest(http.MethodPost, "/runtime/receipts", strings.NewReader(body))
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "cookie-visitor", captured.VisitorID)
}

func TestSubmitReceipt_InvalidBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	router := newRouter(mocks.NewMockIntake(ctrl), mocks.NewMockReader(ctrl))

	cases := map[string]string{
		"missing site":   `{"action":"accept_all","visitor_id":"v1"}`,
		"unknown action": `{"site_id":"site-1","action":"approve","visitor_id":"v1"}`,
		"no visitor":     `{"site_id":"site-1","action":"accept_all"}`,
		"malformed":      `{"site_id"`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/runtime/receipts", strings.NewReader(body))
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubmitReceipt_BufferFullStillAccepted(t *testing.T) {
	ctrl := gomock.NewController(t)
	intake := mocks.NewMockIntake(ctrl)
	router := newRouter(intake, mocks.NewMockReader(ctrl))

	intake.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(publisher.ErrBufferFull)

	body := `{"site_id":"site-1","visitor_id":"v1","action":"accept_all"}`
	req := httptest.NewRequest(http.MethodPost, "/runtime/receipts", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSubmitReceipt_StorageUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	intake := mocks.NewMockIntake(ctrl)
	router := newRouter(intake, mocks.NewMockReader(ctrl))

	intake.EXPECT().Emit(gomock.Any(), gomock.Any()).
		Return(dErrors.New(dErrors.CodeStorageUnavailable, "persist receipt"))

	body := `{"site_id":"site-1","visitor_id":"v1","action":"accept_all"}`
	req := httptest.NewRequest(http.MethodPost, "/runtime/receipts", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListReceipts(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mocks.NewMockReader(ctrl)
	router := newRouter(mocks.NewMockIntake(ctrl), reader)

	receipts := []*models.Receipt{
		{SiteID: "site-1", VisitorID: "v1", Action: models.ActionAcceptAll, CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	reader.EXPECT().ListBySite(gomock.Any(), "site-1", 25).Return(receipts, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/websites/site-1/receipts?limit=25", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp listReceiptsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "v1", resp.Receipts[0].VisitorID)
}

func TestListReceipts_EmptyIsNotNull(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := mocks.NewMockReader(ctrl)
	router := newRouter(mocks.NewMockIntake(ctrl), reader)

	reader.EXPECT().ListBySite(gomock.Any(), "site-1", 0).Return(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/websites/site-1/receipts", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"receipts":[]`)
}
