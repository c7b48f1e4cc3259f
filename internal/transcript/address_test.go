package transcript_test

import (
	"testing"

	"github.com/MrWong99/grenouille/internal/transcript"
)

func newMatcher(t *testing.T, opts ...transcript.AddressOption) *transcript.AddressMatcher {
	t.Helper()
	m, err := transcript.NewAddressMatcher(transcript.DefaultNames, opts...)
	if err != nil {
		t.Fatalf("NewAddressMatcher: %v", err)
	}
	return m
}

func TestAddressMatcher_Exact(t *testing.T) {
	t.Parallel()

	m := newMatcher(t)
	tests := []struct {
		prompt string
		name   string
	}{
		{"computer what time is it", "computer"},
		{"peter tell me a joke", "peter"},
		{"hey peter tell me a joke", "peter"},
		{"computers are great", "computer"},
	}
	for _, tt := range tests {
		a, ok := m.Match(tt.prompt)
		if !ok {
			t.Errorf("Match(%q) = not addressed, want %s", tt.prompt, tt.name)
			continue
		}
		if a.Name != tt.name || a.Method != transcript.MethodExact || a.Score != 1 {
			t.Errorf("Match(%q) = %+v, want exact %s", tt.prompt, a, tt.name)
		}
		if a.Prompt != tt.prompt {
			t.Errorf("Match(%q).Prompt = %q, want unchanged", tt.prompt, a.Prompt)
		}
	}
}

func TestAddressMatcher_Misheard(t *testing.T) {
	t.Parallel()

	m := newMatcher(t)
	tests := []struct {
		prompt     string
		wantPrompt string
	}{
		{"komputer what time is it", "computer what time is it"},
		{"computor, turn it off", "computer turn it off"},
		{"hey peeter how are you", "hey peter how are you"},
	}
	for _, tt := range tests {
		a, ok := m.Match(tt.prompt)
		if !ok {
			t.Errorf("Match(%q) = not addressed, want addressed", tt.prompt)
			continue
		}
		if a.Method == transcript.MethodExact {
			t.Errorf("Match(%q).Method = exact, want a fallback method", tt.prompt)
		}
		if a.Prompt != tt.wantPrompt {
			t.Errorf("Match(%q).Prompt = %q, want %q", tt.prompt, a.Prompt, tt.wantPrompt)
		}
	}
}

func TestAddressMatcher_NotAddressed(t *testing.T) {
	t.Parallel()

	m := newMatcher(t)
	for _, p := range []string{
		"",
		"hello there",
		"what time is it computer",
		"well hey there peter",
	} {
		if a, ok := m.Match(p); ok {
			t.Errorf("Match(%q) = %+v, want not addressed", p, a)
		}
	}
}

func TestAddressMatcher_ExactOnly(t *testing.T) {
	t.Parallel()

	m := newMatcher(t, transcript.WithExactOnly())
	if _, ok := m.Match("komputer what time is it"); ok {
		t.Error("exact-only matcher accepted a misheard name")
	}
	if _, ok := m.Match("computer what time is it"); !ok {
		t.Error("exact-only matcher rejected the exact name")
	}
}

func TestAddressMatcher_Thresholds(t *testing.T) {
	t.Parallel()

	m := newMatcher(t,
		transcript.WithPhoneticThreshold(0.99),
		transcript.WithFuzzyThreshold(0.99),
	)
	if _, ok := m.Match("komputer what time is it"); ok {
		t.Error("threshold 0.99 should reject near matches")
	}
}

func TestNewAddressMatcher_Validation(t *testing.T) {
	t.Parallel()

	if _, err := transcript.NewAddressMatcher(nil, transcript.WithPrefixedNames()); err == nil {
		t.Error("expected error for no names")
	}
	if _, err := transcript.NewAddressMatcher([]string{"hey computer"}); err == nil {
		t.Error("expected error for multi-word name")
	}
	m, err := transcript.NewAddressMatcher([]string{"Jarvis"}, transcript.WithPrefixedNames())
	if err != nil {
		t.Fatalf("NewAddressMatcher: %v", err)
	}
	if a, ok := m.Match("jarvis lights on"); !ok || a.Name != "jarvis" {
		t.Errorf("Match = (%+v, %v), want jarvis", a, ok)
	}
}
