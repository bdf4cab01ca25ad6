package testutil

import "testing"

// Given opens a scenario step as a named subtest. Together with When and
// Then it keeps multi-stage flow tests readable in verbose output without
// committing to a BDD framework.
func Given(t *testing.T, step string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+step, fn)
}

// When runs an action step of a scenario.
func When(t *testing.T, step string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+step, fn)
}

// Then runs an expectation step of a scenario.
func Then(t *testing.T, step string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+step, fn)
}
