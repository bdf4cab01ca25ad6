package consent

import "context"

// Storage is the durable client-side store behind the engine: one key holds
// the serialized state, one the resolved language code. Both are opaque to
// external code.
//
// Contract:
//   - LoadState returns (nil, nil) for absent, website-mismatched,
//     undecodable, or version-unknown values. Only a denied store is an
//     error; the engine then degrades to in-memory state for the page view.
//   - SaveState fully overwrites. Partial merges are forbidden so stale
//     purpose flags cannot survive a purpose-set change in a new config.
type Storage interface {
	LoadState(ctx context.Context, websiteID string) (*State, error)
	SaveState(ctx context.Context, state *State) error
	ClearState(ctx context.Context) error
	LoadLanguage(ctx context.Context) (string, error)
	SaveLanguage(ctx context.Context, code string) error
}
