package turn

import "strings"

// #region markers

var numberedMarkers = []string{"1.", "2.", "3.", "1)", "2)", "3)"}

var sequencingWords = []string{" then ", " next ", " after ", " finally "}

// #endregion markers

// #region multi-step

// LooksMultiStep decides whether a raw user text warrants a multi-step plan
// attempt. It runs over the text before any retrieved context is injected.
// This is an optimization hint, never a correctness dependency: the planner
// path falls back to the tool loop on any failure.
func LooksMultiStep(text string) bool {
	markers := 0
	for _, m := range numberedMarkers {
		if strings.Contains(text, m) {
			markers++
		}
	}
	if markers >= 3 {
		return true
	}

	bulletLines := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			bulletLines++
		}
	}
	if bulletLines >= 3 {
		return true
	}

	lower := strings.ToLower(text)
	sequencing := 0
	for _, w := range sequencingWords {
		sequencing += strings.Count(lower, w)
	}
	return sequencing >= 2
}

// #endregion multi-step
