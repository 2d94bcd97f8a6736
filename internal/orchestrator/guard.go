package orchestrator

import "regexp"

var numberPattern = regexp.MustCompile(`\d+`)

// numericTokens extracts the digit runs from a text. "saat 14:30" yields
// {"14", "30"}.
func numericTokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, match := range numberPattern.FindAllString(text, -1) {
		tokens[match] = true
	}
	return tokens
}

// violatesNoNewFacts reports whether the reply introduces numeric
// tokens absent from every allowed source text. The check is heuristic;
// a false positive costs one finalizer retry, then falls back to the
// planner's reply.
func violatesNoNewFacts(reply string, sources ...string) bool {
	allowed := make(map[string]bool)
	for _, source := range sources {
		for token := range numericTokens(source) {
			allowed[token] = true
		}
	}
	for token := range numericTokens(reply) {
		if !allowed[token] {
			return true
		}
	}
	return false
}
