//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"assent/internal/site"
	"assent/internal/website/models"
	"assent/internal/website/store"
	"assent/pkg/platform/sentinel"
	"assent/pkg/testutil/containers"
)

type PostgresWebsiteSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresWebsiteSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresWebsiteSuite))
}

func (s *PostgresWebsiteSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.Pool)
}

func (s *PostgresWebsiteSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "websites"))
}

func newWebsite(siteID string, at time.Time) *models.Website {
	return &models.Website{
		SiteID: siteID,
		Config: site.Config{
			SiteID:             siteID,
			DefaultLanguage:    "en",
			SupportedLanguages: []string{"en", "hi"},
			Notice: map[string]site.NoticeText{
				"en": {Title: "We value your privacy", Description: "Choose what to allow."},
			},
			Purposes: []site.Purpose{
				{
					Key:          "essential",
					Required:     true,
					DisplayOrder: 1,
					Labels: map[string]site.PurposeText{
						"en": {Title: "Essential"},
					},
				},
				{
					Key:          "analytics",
					DisplayOrder: 2,
					Labels: map[string]site.PurposeText{
						"en": {Title: "Analytics"},
					},
				},
			},
			Banner: site.Banner{
				Text: map[string]site.BannerText{
					"en": {Headline: "Cookies", AcceptButton: "Accept", RejectButton: "Reject"},
				},
			},
		},
		Active:    true,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func (s *PostgresWebsiteSuite) TestUpsertAndFindRoundTrip() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	original := newWebsite("site-1", now)
	s.Require().NoError(s.store.Upsert(ctx, original))

	got, err := s.store.FindBySiteID(ctx, "site-1")
	s.Require().NoError(err)
	s.Equal("site-1", got.SiteID)
	s.True(got.Active)
	s.Equal(original.Config.SupportedLanguages, got.Config.SupportedLanguages)
	s.Require().Len(got.Config.Purposes, 2)
	s.Equal("essential", got.Config.Purposes[0].Key)
	s.Equal("Essential", got.Config.Purposes[0].Labels["en"].Title)
	s.WithinDuration(now, got.CreatedAt, time.Millisecond)
}

func (s *PostgresWebsiteSuite) TestUpsertReplacesDocumentKeepsCreatedAt() {
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Microsecond)

	first := newWebsite("site-1", created)
	s.Require().NoError(s.store.Upsert(ctx, first))

	second := newWebsite("site-1", created.Add(time.Hour))
	second.Config.SupportedLanguages = []string{"en", "hi", "ta"}
	s.Require().NoError(s.store.Upsert(ctx, second))

	got, err := s.store.FindBySiteID(ctx, "site-1")
	s.Require().NoError(err)
	s.Equal([]string{"en", "hi", "ta"}, got.Config.SupportedLanguages)
	s.WithinDuration(created, got.CreatedAt, time.Millisecond, "created_at survives replacement")
	s.WithinDuration(created.Add(time.Hour), got.UpdatedAt, time.Millisecond)
}

func (s *PostgresWebsiteSuite) TestFindUnknownSite() {
	_, err := s.store.FindBySiteID(context.Background(), "ghost")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresWebsiteSuite) TestSetActive() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(s.store.Upsert(ctx, newWebsite("site-1", now)))
	s.Require().NoError(s.store.SetActive(ctx, "site-1", false))

	got, err := s.store.FindBySiteID(ctx, "site-1")
	s.Require().NoError(err)
	s.False(got.Active)

	s.ErrorIs(s.store.SetActive(ctx, "ghost", true), sentinel.ErrNotFound)
}
