// Package transcript turns raw speech-to-text output into an assistant
// prompt: segment text is cleaned of model annotations and normalized, and the
// prompt is checked for being addressed to the assistant by name.
package transcript

import (
	"regexp"
	"strings"

	"github.com/MrWong99/grenouille/pkg/provider/stt"
)

// annotation matches bracketed or parenthesized model output such as
// "[MUSIC]" or "(laughs)". Non-greedy, so "[a] b [c]" keeps the b.
var annotation = regexp.MustCompile(`[\[\(].+?[\]\)]`)

// Clean trims and lowercases text and strips annotations.
func Clean(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = annotation.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// Prompt cleans every segment and joins the non-empty results with single
// spaces.
func Prompt(segs []stt.Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if c := Clean(s.Text); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}
