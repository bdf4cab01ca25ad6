package site

// LocalizedView is the config flattened to one working language with the
// English fallback already applied. Hosts render banners and settings panels
// from this view without repeating the fallback logic.
type LocalizedView struct {
	SiteID   string             `json:"site_id"`
	Language string             `json:"language"`
	Notice   NoticeText         `json:"notice"`
	Purposes []LocalizedPurpose `json:"purposes"`
	Banner   LocalizedBanner    `json:"banner"`
}

// LocalizedPurpose is one purpose with its label resolved.
type LocalizedPurpose struct {
	Key      string      `json:"key"`
	Required bool        `json:"required"`
	Label    PurposeText `json:"label"`
}

// LocalizedBanner is the banner with its text resolved.
type LocalizedBanner struct {
	Styles map[string]string `json:"styles,omitempty"`
	Text   BannerText        `json:"text"`
}

// Localized resolves every text map to lang, falling back to English. The
// fallback never fails for notice and purpose labels because validation
// guarantees the English variant; banner text falls back to its zero value
// when absent entirely.
func (c *Config) Localized(lang string) LocalizedView {
	view := LocalizedView{
		SiteID:   c.SiteID,
		Language: lang,
		Notice:   pick(c.Notice, lang),
		Banner: LocalizedBanner{
			Styles: c.Banner.Styles,
			Text:   pick(c.Banner.Text, lang),
		},
	}
	view.Purposes = make([]LocalizedPurpose, len(c.Purposes))
	for i, p := range c.Purposes {
		view.Purposes[i] = LocalizedPurpose{
			Key:      p.Key,
			Required: p.Required,
			Label:    pick(p.Labels, lang),
		}
	}
	return view
}

func pick[T any](values map[string]T, lang string) T {
	if v, ok := values[lang]; ok {
		return v
	}
	return values[FallbackLanguage]
}
