package site

import (
	"fmt"
	"sort"

	dErrors "assent/pkg/domain-errors"
)

// Validate enforces the configuration contract. A config failing any check is
// rejected in its entirety; no partial configuration ever reaches the engine.
//
// Checks, in order:
//  1. notice.en must exist (the fallback for every localized lookup)
//  2. purposes must be non-empty
//  3. every purpose needs a key and labels.en
func Validate(cfg *Config) error {
	if cfg == nil {
		return dErrors.New(dErrors.CodeInvalidNotice, "config is nil")
	}
	if cfg.SiteID == "" {
		return dErrors.New(dErrors.CodeValidation, "site_id is required")
	}
	if _, ok := cfg.Notice[FallbackLanguage]; !ok {
		return dErrors.New(dErrors.CodeInvalidNotice, "notice is missing the English variant")
	}
	if len(cfg.Purposes) == 0 {
		return dErrors.New(dErrors.CodeNoPurposes, "config declares no purposes")
	}

	seen := make(map[string]struct{}, len(cfg.Purposes))
	for i, p := range cfg.Purposes {
		if p.Key == "" {
			return dErrors.New(dErrors.CodeInvalidPurpose, fmt.Sprintf("purpose %d has an empty key", i))
		}
		if _, dup := seen[p.Key]; dup {
			return dErrors.New(dErrors.CodeInvalidPurpose, fmt.Sprintf("purpose %q appears twice", p.Key))
		}
		seen[p.Key] = struct{}{}
		if _, ok := p.Labels[FallbackLanguage]; !ok {
			return dErrors.New(dErrors.CodeInvalidPurpose, fmt.Sprintf("purpose %q is missing English labels", p.Key))
		}
	}
	return nil
}

// Normalize orders purposes by display order (stable for equal values) so
// hosts can render them without re-sorting. Ingest calls it before Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	sort.SliceStable(cfg.Purposes, func(i, j int) bool {
		return cfg.Purposes[i].DisplayOrder < cfg.Purposes[j].DisplayOrder
	})
}
