// Package language picks the working language for a page load.
package language

import (
	"strings"

	"golang.org/x/text/language"

	"assent/internal/site"
)

// Resolve applies the precedence chain: stored preference, browser locale,
// config default, English. It is deterministic and pure; persist reports
// whether the caller should write the result back (a stored preference that
// is still supported is returned unchanged and not re-persisted).
func Resolve(cfg *site.Config, stored, browserLocale string) (code string, persist bool) {
	if stored != "" && cfg.Supports(stored) {
		return stored, false
	}

	if primary := PrimarySubtag(browserLocale); primary != "" && cfg.Supports(primary) {
		return primary, true
	}

	if cfg.DefaultLanguage != "" && cfg.Supports(cfg.DefaultLanguage) {
		return cfg.DefaultLanguage, true
	}

	return site.FallbackLanguage, true
}

// FromAcceptLanguage returns the most preferred locale of an Accept-Language
// header ("fr-FR,fr;q=0.9,en;q=0.8" -> "fr-FR"), or "" when the header is
// empty or unparseable. Hosts feed the result to Resolve as the browser
// locale.
func FromAcceptLanguage(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	return tags[0].String()
}

// PrimarySubtag extracts the lowercased primary subtag of a BCP 47 locale
// ("fr-FR" -> "fr", "zh-Hant-TW" -> "zh"). Unparseable values yield "".
func PrimarySubtag(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return strings.ToLower(base.String())
}
