package testutil

import "testing"

// Scenario names an end-to-end walk through the registry; Given, When and Then
// nest its steps as subtests so a failure reports the full path.
func Scenario(t *testing.T, name string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Scenario", name, fn)
}

func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Given", desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "When", desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Then", desc, fn)
}

func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run(keyword+" "+desc, fn)
}
