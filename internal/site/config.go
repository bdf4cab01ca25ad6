// Package site defines the runtime configuration contract: the validated,
// language-agnostic description of a website's notice, purposes, and banner
// text that the consent engine consumes. A config is immutable for the page
// load once validated; a config failing any invariant is rejected whole.
package site

import "slices"

// FallbackLanguage is the load-bearing fallback for every localized lookup.
// Validation guarantees the English variant exists for notice and purpose
// labels, so lookups never fail.
const FallbackLanguage = "en"

// Config is the runtime configuration for one website.
type Config struct {
	SiteID             string                `json:"site_id"`
	DefaultLanguage    string                `json:"default_language"`
	SupportedLanguages []string              `json:"supported_languages"`
	Notice             map[string]NoticeText `json:"notice"`
	Purposes           []Purpose             `json:"purposes"`
	Banner             Banner                `json:"banner"`
}

// NoticeText is the localized consent notice copy.
type NoticeText struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PolicyLink  string `json:"policy_link,omitempty"`
}

// Purpose is one consentable category of data processing. Required purposes
// are always allowed once the config is known, regardless of stored consent.
type Purpose struct {
	Key          string                 `json:"key"`
	Required     bool                   `json:"required"`
	DisplayOrder int                    `json:"display_order"`
	Labels       map[string]PurposeText `json:"labels"`
}

// PurposeText is the localized label copy for one purpose.
type PurposeText struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Banner carries presentation styles and localized banner copy. The engine
// never renders it; hosts read it through Localized.
type Banner struct {
	Styles map[string]string     `json:"styles,omitempty"`
	Text   map[string]BannerText `json:"text"`
}

// BannerText is the localized banner copy.
type BannerText struct {
	Headline          string `json:"headline"`
	Description       string `json:"description"`
	AcceptButton      string `json:"accept_button"`
	RejectButton      string `json:"reject_button"`
	PreferencesButton string `json:"preferences_button"`
}

// Supports reports whether lang is one of the supported languages.
func (c *Config) Supports(lang string) bool {
	return slices.Contains(c.SupportedLanguages, lang)
}

// Purpose returns the purpose with the given key, or nil when the key is not
// part of this config. Callers treat unknown keys as permanently denied.
func (c *Config) Purpose(key string) *Purpose {
	for i := range c.Purposes {
		if c.Purposes[i].Key == key {
			return &c.Purposes[i]
		}
	}
	return nil
}

// PurposeKeys returns the purpose keys in display order.
func (c *Config) PurposeKeys() []string {
	keys := make([]string, len(c.Purposes))
	for i, p := range c.Purposes {
		keys[i] = p.Key
	}
	return keys
}

// Clone returns a deep copy so callers can hold a config without aliasing
// the maps and slices of the original.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.SupportedLanguages = slices.Clone(c.SupportedLanguages)

	out.Notice = make(map[string]NoticeText, len(c.Notice))
	for lang, text := range c.Notice {
		out.Notice[lang] = text
	}

	out.Purposes = make([]Purpose, len(c.Purposes))
	for i, p := range c.Purposes {
		cp := p
		cp.Labels = make(map[string]PurposeText, len(p.Labels))
		for lang, text := range p.Labels {
			cp.Labels[lang] = text
		}
		out.Purposes[i] = cp
	}

	out.Banner.Styles = make(map[string]string, len(c.Banner.Styles))
	for k, v := range c.Banner.Styles {
		out.Banner.Styles[k] = v
	}
	out.Banner.Text = make(map[string]BannerText, len(c.Banner.Text))
	for lang, text := range c.Banner.Text {
		out.Banner.Text[lang] = text
	}
	return &out
}
