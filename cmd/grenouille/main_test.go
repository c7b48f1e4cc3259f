package main

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/grenouille/internal/config"
)

func TestOptHelpers(t *testing.T) {
	t.Parallel()
	opts := map[string]any{
		"language": "de",
		"threads":  4,
		"rate":     22050.0,
		"timeout":  "45s",
		"args":     []any{"-v", "en", 3},
		"quote":    true,
	}

	if got := optString(opts, "language"); got != "de" {
		t.Errorf("optString = %q", got)
	}
	if got := optString(opts, "threads"); got != "" {
		t.Errorf("optString on int = %q, want empty", got)
	}
	if got := optString(nil, "language"); got != "" {
		t.Errorf("optString(nil) = %q", got)
	}
	if got := optInt(opts, "threads"); got != 4 {
		t.Errorf("optInt = %d", got)
	}
	if got := optInt(opts, "rate"); got != 22050 {
		t.Errorf("optInt(float) = %d", got)
	}
	if got := optDuration(opts, "timeout"); got != 45*time.Second {
		t.Errorf("optDuration = %s", got)
	}
	if got := optDuration(opts, "language"); got != 0 {
		t.Errorf("optDuration(invalid) = %s", got)
	}
	if got := optStrings(opts, "args"); !slices.Equal(got, []string{"-v", "en"}) {
		t.Errorf("optStrings = %v", got)
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	for kind, want := range config.ValidProviderNames {
		got := reg.Names(kind)
		for _, name := range want {
			if !slices.Contains(got, name) {
				t.Errorf("%s provider %q is validated but not registered", kind, name)
			}
		}
	}
	if !reg.IsSpeaker("command") {
		t.Error("command should be a self-playing speaker")
	}
}

func TestBuildProviders_UnknownProvider(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Wakeword: config.WakewordConfig{Templates: []string{"computer.wav"}},
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "deepgram"},
			LLM: config.ProviderEntry{Name: "openai"},
			TTS: config.ProviderEntry{Name: "command"},
		},
	}
	config.ApplyDefaults(cfg)
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	_, err := buildProviders(cfg, reg)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("buildProviders() = %v, want ErrProviderNotRegistered", err)
	}
}

func TestPrintStartupSummary(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "whisper"},
			LLM: config.ProviderEntry{Name: "anthropic", Model: "claude-sonnet-4-5-20250929"},
			TTS: config.ProviderEntry{Name: "coqui"},
		},
	}
	config.ApplyDefaults(cfg)

	var buf bytes.Buffer
	printStartupSummary(&buf, cfg)
	out := buf.String()

	for _, want := range []string{"whisper", "anthropic / clau…", "(not configured)", "pcm -", "memory"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
