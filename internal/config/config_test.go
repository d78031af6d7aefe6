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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "translive.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "wss://dashscope.aliyuncs.com/api-ws/v1/realtime", cfg.DashScope.WebsocketURL)
	assert.Equal(t, "qwen3-livetranslate-flash-realtime", cfg.Model.Name)
	assert.True(t, cfg.Model.VADEnabled)
	assert.Equal(t, 400, cfg.Model.VADSilenceMS)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, "pcm", cfg.Audio.Format)
	assert.False(t, cfg.Bus.Enabled)
	assert.Equal(t, "translive.transcript", cfg.Bus.SubjectPrefix)
	assert.Empty(t, cfg.Channels)
}

func TestLoadWithoutPath(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, Default().DashScope.WebsocketURL, cfg.DashScope.WebsocketURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/translive.yaml")

	assert.Error(t, err)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
dashscope:
  api_key: sk-from-file
model:
  vad_silence_duration_ms: 800
audio:
  sample_rate: 16000
channels:
  - name: speaker
    target_lang: en
    source: microphone
  - name: room
    target_lang: ja
    source: system-loopback
    device: 4
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.DashScope.APIKey)
	assert.Equal(t, 800, cfg.Model.VADSilenceMS)
	// Untouched keys keep their defaults.
	assert.Equal(t, "qwen3-livetranslate-flash-realtime", cfg.Model.Name)

	require.Len(t, cfg.Channels, 2)
	assert.Equal(t, "speaker", cfg.Channels[0].Name)
	require.NotNil(t, cfg.Channels[1].Device)
	assert.Equal(t, 4, *cfg.Channels[1].Device)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "dashscope: [not a mapping")

	_, err := Load(path)

	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DASHSCOPE_API_KEY", "sk-from-env")
	t.Setenv("TRANSLIVE_MODEL", "qwen3-livetranslate-plus-realtime")
	t.Setenv("TRANSLIVE_VAD_ENABLED", "false")
	t.Setenv("TRANSLIVE_BUS_SERVERS", "nats://a:4222, nats://b:4222")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.DashScope.APIKey)
	assert.Equal(t, "qwen3-livetranslate-plus-realtime", cfg.Model.Name)
	assert.False(t, cfg.Model.VADEnabled)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.Bus.Servers)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeConfigFile(t, "dashscope:\n  api_key: sk-from-file\n")
	t.Setenv("DASHSCOPE_API_KEY", "sk-from-env")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.DashScope.APIKey)
}

func TestEnvOverrideInvalidValuesIgnored(t *testing.T) {
	t.Setenv("TRANSLIVE_SAMPLE_RATE", "fast")
	t.Setenv("TRANSLIVE_VAD_ENABLED", "sometimes")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.True(t, cfg.Model.VADEnabled)
}

func TestValidateRejectsBadURL(t *testing.T) {
	path := writeConfigFile(t, "dashscope:\n  websocket_url: https://example.com\n")

	_, err := Load(path)

	assert.ErrorContains(t, err, "ws:// or wss://")
}

func TestValidateRejectsBadFormat(t *testing.T) {
	path := writeConfigFile(t, "audio:\n  format: mp3\n")

	_, err := Load(path)

	assert.ErrorContains(t, err, "format must be pcm")
}

func TestValidateRejectsDuplicateChannels(t *testing.T) {
	path := writeConfigFile(t, `
channels:
  - name: mic
    target_lang: en
    source: microphone
  - name: mic
    target_lang: ja
    source: system-loopback
`)

	_, err := Load(path)

	assert.ErrorContains(t, err, "duplicate channel name")
}

func TestValidateRejectsUnknownSource(t *testing.T) {
	path := writeConfigFile(t, `
channels:
  - name: mic
    target_lang: en
    source: radio
`)

	_, err := Load(path)

	assert.ErrorContains(t, err, "source must be one of")
}

func TestValidateBusRequiresServers(t *testing.T) {
	path := writeConfigFile(t, "bus:\n  enabled: true\n  servers: []\n")

	_, err := Load(path)

	assert.ErrorContains(t, err, "bus.servers")
}
