package cakap

import (
	"strings"
	"testing"
)

func TestDefaultRegistryBuildsMocks(t *testing.T) {
	r := DefaultRegistry()

	rec, err := r.BuildRecognizer(VendorConfig{Provider: "Mock"}, "s1")
	if err != nil {
		t.Fatalf("build recognizer: %v", err)
	}
	if rec.Name() != "mock_stt" {
		t.Fatalf("unexpected recognizer %q", rec.Name())
	}
	synth, err := r.BuildSynthesizer(VendorConfig{Provider: " mock "}, "s1")
	if err != nil {
		t.Fatalf("build synthesizer: %v", err)
	}
	if synth.Name() != "mock_tts" {
		t.Fatalf("unexpected synthesizer %q", synth.Name())
	}
	ag, err := r.BuildAgent(VendorConfig{Provider: "mock"}, "")
	if err != nil {
		t.Fatalf("build agent: %v", err)
	}
	if ag.Name() != "mock_agent" {
		t.Fatalf("unexpected agent %q", ag.Name())
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := DefaultRegistry()
	if _, err := r.BuildSynthesizer(VendorConfig{Provider: "nope"}, "s1"); err == nil {
		t.Fatal("expected error for unknown provider")
	} else if !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistryRequiresVendorKeys(t *testing.T) {
	r := DefaultRegistry()
	cases := []struct {
		name  string
		build func() error
	}{
		{"deepgram stt", func() error {
			_, err := r.BuildRecognizer(VendorConfig{Provider: "deepgram"}, "s1")
			return err
		}},
		{"elevenlabs tts", func() error {
			_, err := r.BuildSynthesizer(VendorConfig{Provider: "elevenlabs"}, "s1")
			return err
		}},
		{"openai agent", func() error {
			_, err := r.BuildAgent(VendorConfig{Provider: "openai"}, "")
			return err
		}},
	}
	for _, tc := range cases {
		err := tc.build()
		if err == nil {
			t.Fatalf("%s: expected missing api key error", tc.name)
		}
		if !strings.Contains(err.Error(), "api_key") {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestRegistryDecodesVendorSettings(t *testing.T) {
	r := DefaultRegistry()
	rec, err := r.BuildRecognizer(VendorConfig{
		Provider: "deepgram",
		Settings: map[string]any{"api_key": "k", "sample_rate": "16000"},
	}, "s1")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rec.Name() != "deepgram_streaming" {
		t.Fatalf("unexpected recognizer %q", rec.Name())
	}
}

func TestRegistryAgentBasePromptFallback(t *testing.T) {
	r := DefaultRegistry()
	if _, err := r.BuildAgent(VendorConfig{
		Provider: "openai",
		Settings: map[string]any{"api_key": "k"},
	}, "You are a concise voice assistant."); err != nil {
		t.Fatalf("build: %v", err)
	}
}
