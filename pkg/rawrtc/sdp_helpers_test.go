package rawrtc

import (
	"strings"
	"testing"
)

// forceSetup rewrites the a=setup line of a freshly marshaled offer to the
// given value, standing in for an offerer that already picked a concrete
// role instead of the default actpass, spec.md §4.1 unidirectional fallback.
func forceSetup(t *testing.T, sdpText, setup string) string {
	t.Helper()
	lines := strings.Split(sdpText, "\r\n")
	found := false
	for i, line := range lines {
		if strings.HasPrefix(line, "a=setup:") {
			lines[i] = "a=setup:" + setup
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("no a=setup line found in:\n%s", sdpText)
	}
	return strings.Join(lines, "\r\n")
}

func containsLine(sdpText, line string) bool {
	for _, l := range strings.Split(sdpText, "\r\n") {
		if l == line {
			return true
		}
	}
	return false
}
