/*
 * This file is part of TransLive (https://github.com/translive/translive).
 * Copyright (C) 2026 TransLive Authors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration bag, populated once at startup
type Config struct {
	DashScope DashScopeConfig `yaml:"dashscope"`
	Model     ModelConfig     `yaml:"model"`
	Audio     AudioConfig     `yaml:"audio"`
	Bus       BusConfig       `yaml:"bus"`
	Channels  []ChannelConfig `yaml:"channels"`
}

type DashScopeConfig struct {
	APIKey       string `yaml:"api_key"`
	WebsocketURL string `yaml:"websocket_url"`
}

type ModelConfig struct {
	Name         string  `yaml:"name"`
	VADEnabled   bool    `yaml:"vad_enabled"`
	VADThreshold float64 `yaml:"vad_threshold"`
	VADSilenceMS int     `yaml:"vad_silence_duration_ms"`
}

type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	Format     string `yaml:"format"`
}

type BusConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Servers       []string `yaml:"servers"`
	SubjectPrefix string   `yaml:"subject_prefix"`
}

type ChannelConfig struct {
	Name       string `yaml:"name"`
	TargetLang string `yaml:"target_lang"`
	Source     string `yaml:"source"`
	Device     *int   `yaml:"device"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		DashScope: DashScopeConfig{
			WebsocketURL: "wss://dashscope.aliyuncs.com/api-ws/v1/realtime",
		},
		Model: ModelConfig{
			Name:         "qwen3-livetranslate-flash-realtime",
			VADEnabled:   true,
			VADThreshold: 0.0,
			VADSilenceMS: 400,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Format:     "pcm",
		},
		Bus: BusConfig{
			Enabled:       false,
			Servers:       []string{"nats://localhost:4222"},
			SubjectPrefix: "translive.transcript",
		},
	}
}

// Load reads the optional YAML file at path, applies environment overrides
// and validates the result
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.DashScope.APIKey, "DASHSCOPE_API_KEY")
	overrideString(&cfg.DashScope.WebsocketURL, "TRANSLIVE_WEBSOCKET_URL")
	overrideString(&cfg.Model.Name, "TRANSLIVE_MODEL")
	overrideBool(&cfg.Model.VADEnabled, "TRANSLIVE_VAD_ENABLED")
	overrideFloat(&cfg.Model.VADThreshold, "TRANSLIVE_VAD_THRESHOLD")
	overrideInt(&cfg.Model.VADSilenceMS, "TRANSLIVE_VAD_SILENCE_DURATION_MS")
	overrideInt(&cfg.Audio.SampleRate, "TRANSLIVE_SAMPLE_RATE")
	overrideString(&cfg.Audio.Format, "TRANSLIVE_AUDIO_FORMAT")
	overrideBool(&cfg.Bus.Enabled, "TRANSLIVE_BUS_ENABLED")
	overrideStringSlice(&cfg.Bus.Servers, "TRANSLIVE_BUS_SERVERS")
	overrideString(&cfg.Bus.SubjectPrefix, "TRANSLIVE_BUS_SUBJECT_PREFIX")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.DashScope.WebsocketURL == "" {
		return errors.New("dashscope.websocket_url must not be empty")
	}
	if !strings.HasPrefix(cfg.DashScope.WebsocketURL, "ws://") &&
		!strings.HasPrefix(cfg.DashScope.WebsocketURL, "wss://") {
		return errors.New("dashscope.websocket_url must use ws:// or wss://")
	}
	if cfg.Model.Name == "" {
		return errors.New("model.name must not be empty")
	}
	if cfg.Model.VADSilenceMS < 0 {
		return errors.New("model.vad_silence_duration_ms must be >= 0")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Format != "pcm" {
		return errors.New("audio.format must be pcm")
	}
	if cfg.Bus.Enabled {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when the bus is enabled")
		}
		if cfg.Bus.SubjectPrefix == "" {
			return errors.New("bus.subject_prefix must not be empty when the bus is enabled")
		}
	}

	seen := make(map[string]bool)
	for _, ch := range cfg.Channels {
		if ch.Name == "" {
			return errors.New("channels[].name must not be empty")
		}
		if seen[ch.Name] {
			return fmt.Errorf("duplicate channel name %q in config", ch.Name)
		}
		seen[ch.Name] = true
		if ch.TargetLang == "" {
			return fmt.Errorf("channel %q: target_lang must not be empty", ch.Name)
		}
		switch ch.Source {
		case "microphone", "system-loopback", "both":
		default:
			return fmt.Errorf("channel %q: source must be one of microphone|system-loopback|both", ch.Name)
		}
	}
	return nil
}
