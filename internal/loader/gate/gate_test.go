package gate

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"assent/internal/loader/consent"
	"assent/internal/site"
)

func siteConfig() *site.Config {
	return &site.Config{
		SiteID:             "site-1",
		DefaultLanguage:    "en",
		SupportedLanguages: []string{"en"},
		Notice:             map[string]site.NoticeText{"en": {Title: "Privacy", Description: "We use cookies."}},
		Purposes: []site.Purpose{
			{Key: "essential", Required: true, Labels: map[string]site.PurposeText{"en": {Title: "Essential"}}},
			{Key: "analytics", Labels: map[string]site.PurposeText{"en": {Title: "Analytics"}}},
			{Key: "marketing", Labels: map[string]site.PurposeText{"en": {Title: "Marketing"}}},
		},
	}
}

func TestEvaluate(t *testing.T) {
	cfg := siteConfig()
	decided := consent.NewState("site-1", map[string]bool{
		"essential": true,
		"analytics": true,
		"marketing": false,
	}, "en", time.Now())

	tests := []struct {
		name    string
		purpose string
		cfg     *site.Config
		state   *consent.State
		allow   bool
		reason  Reason
	}{
		{"nil config denies required purpose", "essential", nil, decided, false, ReasonNoConfig},
		{"nil config denies granted purpose", "analytics", nil, decided, false, ReasonNoConfig},
		{"undeclared purpose denied", "fingerprinting", cfg, decided, false, ReasonUnknownPurpose},
		{"undeclared purpose denied without state", "fingerprinting", cfg, nil, false, ReasonUnknownPurpose},
		{"required allowed without state", "essential", cfg, nil, true, ReasonRequired},
		{"required allowed with state", "essential", cfg, decided, true, ReasonRequired},
		{"optional denied without state", "analytics", cfg, nil, false, ReasonNoDecision},
		{"granted optional allowed", "analytics", cfg, decided, true, ReasonGranted},
		{"refused optional denied", "marketing", cfg, decided, false, ReasonDenied},
		{"empty purpose denied", "", cfg, decided, false, ReasonUnknownPurpose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(tt.purpose, tt.cfg, tt.state)
			assert.Equal(t, tt.allow, v.Allow)
			assert.Equal(t, tt.reason, v.Reason)
			assert.Equal(t, tt.allow, Allowed(tt.purpose, tt.cfg, tt.state))
		})
	}
}

func TestEvaluate_RequiredWinsOverStoredRefusal(t *testing.T) {
	// A stale or hand-crafted state refusing a required purpose does not
	// gate it off.
	cfg := siteConfig()
	state := &consent.State{
		Purposes:      map[string]bool{"essential": false},
		WebsiteID:     "site-1",
		Language:      "en",
		Timestamp:     time.Now().UTC(),
		SchemaVersion: consent.SchemaVersion,
	}

	v := Evaluate("essential", cfg, state)
	assert.True(t, v.Allow)
	assert.Equal(t, ReasonRequired, v.Reason)
}

func TestEvaluate_UnknownPurposeNeverAllowed(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	cfg := siteConfig()

	properties.Property("purposes outside the declared set are always denied", prop.ForAll(
		func(purpose string, grants map[string]bool) bool {
			if cfg.Purpose(purpose) != nil {
				return true // collided with a declared key, nothing to check
			}
			// Even a state claiming the purpose was granted must not win.
			grants[purpose] = true
			state := consent.NewState("site-1", grants, "en", time.Now())
			return !Allowed(purpose, cfg, state)
		},
		gen.AlphaString(),
		gen.MapOf(gen.AlphaString(), gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestEvaluate_RequiredAlwaysAllowed(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	cfg := siteConfig()

	properties.Property("required purposes survive any stored state", prop.ForAll(
		func(grants map[string]bool, withState bool) bool {
			var state *consent.State
			if withState {
				state = consent.NewState("site-1", grants, "en", time.Now())
			}
			return Allowed("essential", cfg, state)
		},
		gen.MapOf(gen.AlphaString(), gen.Bool()),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
