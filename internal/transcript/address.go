package transcript

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

// Default assistant names. "peter" may also follow one leading word, as in
// "hey peter".
var (
	DefaultNames         = []string{"computer", "peter"}
	DefaultPrefixedNames = []string{"peter"}
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Method reports how a prompt was recognized as addressed.
type Method string

const (
	MethodExact    Method = "exact"
	MethodPhonetic Method = "phonetic"
	MethodFuzzy    Method = "fuzzy"
)

// Address is the result of a successful [AddressMatcher.Match].
type Address struct {
	// Name is the canonical assistant name that was matched.
	Name string

	// Heard is the token that matched, as transcribed.
	Heard string

	// Method and Score describe the match. Exact matches score 1.
	Method Method
	Score  float64

	// Prompt is the input with Heard replaced by Name.
	Prompt string
}

// AddressMatcher decides whether a cleaned prompt is addressed to the
// assistant. A prompt is addressed when it starts with one of the names, or
// with one word followed by one of the prefixed names. When the exact pattern
// fails, the same token positions are compared phonetically (Double
// Metaphone) and by Jaro-Winkler similarity so that misheard names like
// "komputer" still count.
//
// AddressMatcher is read-only after construction and safe for concurrent use.
type AddressMatcher struct {
	names    []string
	prefixed []string
	pattern  *regexp.Regexp

	phoneticThreshold float64
	fuzzyThreshold    float64
	exactOnly         bool
}

// AddressOption configures an [AddressMatcher].
type AddressOption func(*AddressMatcher)

// WithPrefixedNames sets the names that may follow one leading word.
func WithPrefixedNames(names ...string) AddressOption {
	return func(m *AddressMatcher) { m.prefixed = lower(names) }
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a token whose
// phonetic code matches a name. Default: 0.70.
func WithPhoneticThreshold(t float64) AddressOption {
	return func(m *AddressMatcher) { m.phoneticThreshold = t }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a token without
// a phonetic match. Default: 0.85.
func WithFuzzyThreshold(t float64) AddressOption {
	return func(m *AddressMatcher) { m.fuzzyThreshold = t }
}

// WithExactOnly disables the phonetic and fuzzy fallback.
func WithExactOnly() AddressOption {
	return func(m *AddressMatcher) { m.exactOnly = true }
}

// NewAddressMatcher builds a matcher for names. Names must be single words of
// ASCII letters.
func NewAddressMatcher(names []string, opts ...AddressOption) (*AddressMatcher, error) {
	m := &AddressMatcher{
		names:             lower(names),
		prefixed:          lower(DefaultPrefixedNames),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	if len(m.names) == 0 && len(m.prefixed) == 0 {
		return nil, errors.New("transcript: at least one assistant name is required")
	}
	word := regexp.MustCompile(`^[a-z]+$`)
	for _, n := range append(append([]string(nil), m.names...), m.prefixed...) {
		if !word.MatchString(n) {
			return nil, fmt.Errorf("transcript: assistant name %q is not a single word of letters", n)
		}
	}

	var alts []string
	alts = append(alts, m.names...)
	for _, n := range m.prefixed {
		alts = append(alts, `[a-zA-Z]+ `+n)
	}
	m.pattern = regexp.MustCompile(`^(` + strings.Join(alts, "|") + `)`)
	return m, nil
}

// Match reports whether prompt is addressed to the assistant.
func (m *AddressMatcher) Match(prompt string) (Address, bool) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Address{}, false
	}
	if loc := m.pattern.FindStringIndex(prompt); loc != nil {
		heard := prompt[:loc[1]]
		name := heard
		if i := strings.LastIndexByte(heard, ' '); i >= 0 {
			name = heard[i+1:]
		}
		return Address{Name: name, Heard: name, Method: MethodExact, Score: 1, Prompt: prompt}, true
	}
	if m.exactOnly {
		return Address{}, false
	}

	tokens := strings.Fields(prompt)
	if a, ok := m.closest(tokens[0], m.names); ok {
		a.Prompt = replaceToken(tokens, 0, a.Name)
		return a, true
	}
	if len(tokens) > 1 {
		if a, ok := m.closest(tokens[1], m.prefixed); ok {
			a.Prompt = replaceToken(tokens, 1, a.Name)
			return a, true
		}
	}
	return Address{}, false
}

// closest returns the best-scoring name for token. Phonetic candidates win
// over merely similar spellings.
func (m *AddressMatcher) closest(token string, names []string) (Address, bool) {
	token = strings.Trim(strings.ToLower(token), ",.!?;:")
	if token == "" || len(names) == 0 {
		return Address{}, false
	}
	codes := metaphone(token)

	var best Address
	for _, n := range names {
		score := matchr.JaroWinkler(token, n, false)
		switch {
		case overlap(codes, metaphone(n)):
			if score >= m.phoneticThreshold && (best.Method != MethodPhonetic || score > best.Score) {
				best = Address{Name: n, Heard: token, Method: MethodPhonetic, Score: score}
			}
		case best.Method != MethodPhonetic:
			if score >= m.fuzzyThreshold && score > best.Score {
				best = Address{Name: n, Heard: token, Method: MethodFuzzy, Score: score}
			}
		}
	}
	return best, best.Name != ""
}

// metaphone returns the non-empty Double Metaphone codes of s.
func metaphone(s string) []string {
	p, a := matchr.DoubleMetaphone(s)
	var out []string
	for _, c := range []string{p, a} {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func overlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func replaceToken(tokens []string, i int, with string) string {
	out := append([]string(nil), tokens...)
	out[i] = with
	return strings.Join(out, " ")
}

func lower(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
