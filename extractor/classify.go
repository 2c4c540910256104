package extractor

import "strings"

// Hue literals the portal renders in status indicators. Anything else is a
// visible but unrecognized indicator.
var (
	greenTokens = []string{"green", "#00ff00", "#0f0", "#00e676", "#4caf50"}
	redTokens   = []string{"red", "#ff0000", "#f00", "#f44336", "#e53935"}
)

// classifyMarkup maps an indicator's serialized markup to a state. Green is
// checked first.
func classifyMarkup(markup string) State {
	lower := strings.ToLower(markup)
	if containsAny(lower, greenTokens) {
		return StateOnline
	}
	if containsAny(lower, redTokens) {
		return StateOffline
	}
	return StateWarning
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
