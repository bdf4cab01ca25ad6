package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assent/internal/website/schema"
	"assent/internal/website/store"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/requestcontext"
)

const validDocument = `{
	"site_id": "site-1",
	"default_language": "EN",
	"supported_languages": [" en ", "hi", "EN"],
	"notice": {"en": {"title": "Privacy Notice", "description": "How we use data"}},
	"purposes": [
		{"key": "analytics", "display_order": 2, "labels": {"en": {"title": "Analytics"}}},
		{"key": "essential", "required": true, "display_order": 1, "labels": {"en": {"title": "Essential"}}}
	],
	"banner": {"text": {"en": {"headline": "We value your privacy", "accept_button": "Accept"}}}
}`

func newService(t *testing.T) (*Service, *store.InMemory) {
	t.Helper()
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	st := store.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, validator, WithLogger(logger)), st
}

func TestUpsert_NormalizesAndStores(t *testing.T) {
	svc, _ := newService(t)
	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	website, err := svc.Upsert(ctx, json.RawMessage(validDocument), true)
	require.NoError(t, err)

	assert.Equal(t, "site-1", website.SiteID)
	assert.True(t, website.Active)
	assert.Equal(t, []string{"en", "hi"}, website.Config.SupportedLanguages, "languages deduped and lowercased")
	assert.Equal(t, "en", website.Config.DefaultLanguage)
	require.Len(t, website.Config.Purposes, 2)
	assert.Equal(t, "essential", website.Config.Purposes[0].Key, "purposes ordered by display_order")
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), website.CreatedAt)
}

func TestUpsert_RejectsSchemaViolations(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := map[string]string{
		"not json":          `{`,
		"missing site_id":   `{"notice":{"en":{"title":"T"}},"purposes":[{"key":"a","labels":{"en":{"title":"A"}}}]}`,
		"empty purposes":    `{"site_id":"s","notice":{"en":{"title":"T"}},"purposes":[]}`,
		"unknown top field": `{"site_id":"s","notice":{"en":{"title":"T"}},"purposes":[{"key":"a","labels":{"en":{"title":"A"}}}],"extra":true}`,
		"purpose no labels": `{"site_id":"s","notice":{"en":{"title":"T"}},"purposes":[{"key":"a"}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Upsert(ctx, json.RawMessage(doc), true)
			require.Error(t, err)
			isCoded := dErrors.HasCode(err, dErrors.CodeValidation) || dErrors.HasCode(err, dErrors.CodeBadRequest)
			assert.True(t, isCoded, "expected a validation error, got %v", err)
		})
	}
}

func TestUpsert_RejectsContractViolations(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	// Schema-valid but contract-invalid: notice has no English variant.
	doc := `{
		"site_id": "site-1",
		"notice": {"de": {"title": "Datenschutz"}},
		"purposes": [{"key": "essential", "labels": {"en": {"title": "Essential"}}}]
	}`
	_, err := svc.Upsert(ctx, json.RawMessage(doc), true)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidNotice))
}

func TestGet_ServesActiveSite(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, json.RawMessage(validDocument), true)
	require.NoError(t, err)

	cfg, err := svc.Get(ctx, "site-1")
	require.NoError(t, err)
	assert.Equal(t, "site-1", cfg.SiteID)
	assert.Equal(t, "Privacy Notice", cfg.Notice["en"].Title)
}

func TestGet_UnknownSite(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSiteNotFound))
}

func TestGet_InactiveSiteIndistinguishableFromAbsent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, json.RawMessage(validDocument), false)
	require.NoError(t, err)

	_, err = svc.Get(ctx, "site-1")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSiteNotFound))

	_, missingErr := svc.Get(ctx, "missing")
	assert.Equal(t, missingErr.Error(), err.Error(), "inactive and absent read the same")
}

func TestGet_StoredDocumentRevalidatedBeforeServe(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	website, err := svc.Upsert(ctx, json.RawMessage(validDocument), true)
	require.NoError(t, err)

	// Corrupt the stored document behind the service's back.
	website.Config.Notice = nil
	require.NoError(t, st.Upsert(ctx, website))

	_, err = svc.Get(ctx, "site-1")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestSetActive_RoundTrip(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, json.RawMessage(validDocument), true)
	require.NoError(t, err)

	require.NoError(t, svc.SetActive(ctx, "site-1", false))
	_, err = svc.Get(ctx, "site-1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSiteNotFound))

	require.NoError(t, svc.SetActive(ctx, "site-1", true))
	_, err = svc.Get(ctx, "site-1")
	assert.NoError(t, err)
}

func TestSetActive_UnknownSite(t *testing.T) {
	svc, _ := newService(t)

	err := svc.SetActive(context.Background(), "missing", false)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSiteNotFound))
}

func TestPurgeCache_NoCacheConfigured(t *testing.T) {
	svc, _ := newService(t)
	assert.NoError(t, svc.PurgeCache(context.Background(), "site-1"))
}

type recordingPurger struct {
	purged []string
}

func (p *recordingPurger) Purge(_ context.Context, siteID string) error {
	p.purged = append(p.purged, siteID)
	return nil
}

func TestPurgeCache_DelegatesToCache(t *testing.T) {
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	purger := &recordingPurger{}
	svc := New(store.NewInMemory(), validator,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCachePurger(purger),
	)

	require.NoError(t, svc.PurgeCache(context.Background(), "site-1"))
	assert.Equal(t, []string{"site-1"}, purger.purged)
}
