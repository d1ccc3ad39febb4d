package cakap

import (
	"fmt"
	"strings"

	"github.com/raihanmd/cakap/pkg/adapters/stt"
	"github.com/raihanmd/cakap/pkg/adapters/tts"
	"github.com/raihanmd/cakap/pkg/agent"
	"github.com/raihanmd/cakap/pkg/configutil"
	"github.com/raihanmd/cakap/pkg/providers/deepgram"
	"github.com/raihanmd/cakap/pkg/providers/elevenlabs"
	"github.com/raihanmd/cakap/pkg/providers/inworld"
	"github.com/raihanmd/cakap/pkg/providers/mock"
	"github.com/raihanmd/cakap/pkg/providers/openai"
)

// RecognizerFactory builds a fresh recognizer for one session. Sessions
// reconnect by calling the factory again, so it must not share connection
// state between calls.
type RecognizerFactory func(settings map[string]any, sessionID string) (stt.Recognizer, error)

// SynthesizerFactory builds a synthesizer scoped to one session.
type SynthesizerFactory func(settings map[string]any, sessionID string) (tts.Synthesizer, error)

// AgentFactory builds an agent, typically shared across sessions.
type AgentFactory func(settings map[string]any, basePrompt string) (agent.Agent, error)

// ProviderRegistry maps provider names from config to constructors.
// Lookups are case-insensitive and whitespace-tolerant.
type ProviderRegistry struct {
	recognizers  map[string]RecognizerFactory
	synthesizers map[string]SynthesizerFactory
	agents       map[string]AgentFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		recognizers:  make(map[string]RecognizerFactory),
		synthesizers: make(map[string]SynthesizerFactory),
		agents:       make(map[string]AgentFactory),
	}
}

func (r *ProviderRegistry) RegisterRecognizer(name string, f RecognizerFactory) {
	r.recognizers[registryKey(name)] = f
}

func (r *ProviderRegistry) RegisterSynthesizer(name string, f SynthesizerFactory) {
	r.synthesizers[registryKey(name)] = f
}

func (r *ProviderRegistry) RegisterAgent(name string, f AgentFactory) {
	r.agents[registryKey(name)] = f
}

func (r *ProviderRegistry) BuildRecognizer(cfg VendorConfig, sessionID string) (stt.Recognizer, error) {
	f, ok := r.recognizers[registryKey(cfg.Provider)]
	if !ok {
		return nil, fmt.Errorf("stt provider not registered: %s", cfg.Provider)
	}
	return f(cfg.Settings, sessionID)
}

func (r *ProviderRegistry) BuildSynthesizer(cfg VendorConfig, sessionID string) (tts.Synthesizer, error) {
	f, ok := r.synthesizers[registryKey(cfg.Provider)]
	if !ok {
		return nil, fmt.Errorf("tts provider not registered: %s", cfg.Provider)
	}
	return f(cfg.Settings, sessionID)
}

func (r *ProviderRegistry) BuildAgent(cfg VendorConfig, basePrompt string) (agent.Agent, error) {
	f, ok := r.agents[registryKey(cfg.Provider)]
	if !ok {
		return nil, fmt.Errorf("agent provider not registered: %s", cfg.Provider)
	}
	return f(cfg.Settings, basePrompt)
}

// DefaultRegistry returns a registry preloaded with every bundled provider.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()

	r.RegisterRecognizer("deepgram", func(settings map[string]any, sessionID string) (stt.Recognizer, error) {
		var cfg deepgram.Config
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, fmt.Errorf("deepgram stt settings: %w", err)
		}
		if err := configutil.RequireString(cfg.APIKey, "vendors.stt.settings.api_key"); err != nil {
			return nil, err
		}
		cfg.SessionID = sessionID
		return deepgram.NewRecognizer(cfg), nil
	})
	r.RegisterRecognizer("mock", func(settings map[string]any, _ string) (stt.Recognizer, error) {
		var cfg mock.STTConfig
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, fmt.Errorf("mock stt settings: %w", err)
		}
		return mock.NewRecognizer(cfg), nil
	})

	r.RegisterSynthesizer("deepgram", func(settings map[string]any, sessionID string) (tts.Synthesizer, error) {
		var cfg deepgram.TTSConfig
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, fmt.Errorf("deepgram tts settings: %w", err)
		}
		if err := configutil.RequireString(cfg.APIKey, "vendors.tts.settings.api_key"); err != nil {
			return nil, err
		}
		cfg.SessionID = sessionID
		return deepgram.NewSynthesizer(cfg), nil
	})
	r.RegisterSynthesizer("elevenlabs", func(settings map[string]any, sessionID string) (tts.Synthesizer, error) {
		var cfg elevenlabs.Config
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, fmt.Errorf("elevenlabs settings: %w", err)
		}
		if err := configutil.RequireString(cfg.APIKey, "vendors.tts.settings.api_key"); err != nil {
			return nil, err
		}
		cfg.SessionID = sessionID
		return elevenlabs.New(cfg), nil
	})
	r.RegisterSynthesizer("inworld", func(settings map[string]any, sessionID string) (tts.Synthesizer, error) {
		var cfg inworld.Config
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, fmt.Errorf("inworld settings: %w", err)
		}
		if err := configutil.RequireString(cfg.APIKey, "vendors.tts.settings.api_key"); err != nil {
			return nil, err
		}
		cfg.SessionID = sessionID
		return inworld.New(cfg), nil
	})
	r.RegisterSynthesizer("mock", func(settings map[string]any, _ string) (tts.Synthesizer, error) {
		var cfg mock.TTSConfig
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, fmt.Errorf("mock tts settings: %w", err)
		}
		return mock.NewSynthesizer(cfg), nil
	})

	r.RegisterAgent("openai", func(settings map[string]any, basePrompt string) (agent.Agent, error) {
		var cfg openai.Config
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, fmt.Errorf("openai settings: %w", err)
		}
		if err := configutil.RequireString(cfg.APIKey, "vendors.agent.settings.api_key"); err != nil {
			return nil, err
		}
		if cfg.SystemPrompt == "" {
			cfg.SystemPrompt = basePrompt
		}
		return openai.New(cfg), nil
	})
	r.RegisterAgent("mock", func(settings map[string]any, _ string) (agent.Agent, error) {
		var cfg mock.AgentConfig
		if err := configutil.DecodeSettings(settings, &cfg); err != nil {
			return nil, fmt.Errorf("mock agent settings: %w", err)
		}
		return mock.NewAgent(cfg), nil
	})

	return r
}

func registryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
