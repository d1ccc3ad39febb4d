package cakap

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT   VendorConfig `mapstructure:"stt"`
	TTS   VendorConfig `mapstructure:"tts"`
	Agent VendorConfig `mapstructure:"agent"`
}

type TransportConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type SessionConfig struct {
	SampleRate            int `mapstructure:"sample_rate"`
	InterUtterancePauseMS int `mapstructure:"inter_utterance_pause_ms"`
	TrackTimeoutMS        int `mapstructure:"track_timeout_ms"`
	MaxReconnects         int `mapstructure:"max_reconnects"`
	MaxHistory            int `mapstructure:"max_history"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	BasePrompt  string          `mapstructure:"base_prompt"`
	Session     SessionConfig   `mapstructure:"session"`
	Vendors     VendorsConfig   `mapstructure:"vendors"`
	Transport   TransportConfig `mapstructure:"transport"`
	Privacy     PrivacyConfig   `mapstructure:"privacy"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("session.sample_rate", 24000)
	v.SetDefault("session.inter_utterance_pause_ms", 400)
	v.SetDefault("session.track_timeout_ms", 10000)
	v.SetDefault("session.max_reconnects", 3)
	v.SetDefault("session.max_history", 100)
	v.SetDefault("vendors.stt.provider", "mock")
	v.SetDefault("vendors.tts.provider", "mock")
	v.SetDefault("vendors.agent.provider", "mock")
	v.SetDefault("transport.provider", "ws")
	v.SetDefault("privacy.redact_pii", true)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	expandEnvValues(cfg.Vendors.STT.Settings)
	expandEnvValues(cfg.Vendors.TTS.Settings)
	expandEnvValues(cfg.Vendors.Agent.Settings)
	expandEnvValues(cfg.Transport.Settings)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	for _, pair := range []struct{ name, provider string }{
		{"vendors.stt", c.Vendors.STT.Provider},
		{"vendors.tts", c.Vendors.TTS.Provider},
		{"vendors.agent", c.Vendors.Agent.Provider},
	} {
		if strings.TrimSpace(pair.provider) == "" {
			return fmt.Errorf("%s.provider is required", pair.name)
		}
	}
	return nil
}

// expandEnvValues resolves ${VAR} references in settings values so API
// keys can live in the environment instead of the config file.
func expandEnvValues(settings map[string]any) {
	for k, val := range settings {
		if s, ok := val.(string); ok {
			settings[k] = os.ExpandEnv(s)
		}
	}
}
