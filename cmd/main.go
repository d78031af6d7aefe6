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

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/translive/translive-go/internal/audio"
	"github.com/translive/translive-go/internal/config"
	"github.com/translive/translive-go/internal/interp"
	natsbus "github.com/translive/translive-go/internal/nats"
	"github.com/translive/translive-go/internal/session"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	listDevices := flag.Bool("list-devices", false, "List capture devices and exit")
	target := flag.String("target", "en", "Target language for flag-built channels")
	source := flag.String("source", audio.SourceMic, "Audio source: microphone, system-loopback or both")
	device := flag.Int("device", -1, "Explicit device ID (-1 for auto-select)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	backend := audio.NewPortAudioBackend()
	if err := backend.Initialize(); err != nil {
		log.Fatalf("❌ Audio init failed: %v", err)
	}
	defer func() {
		if err := backend.Terminate(); err != nil {
			log.Printf("⚠️ Audio terminate failed: %v", err)
		}
	}()

	if *listDevices {
		devices, err := audio.Enumerate(backend)
		if err != nil {
			log.Fatalf("❌ Device enumeration failed: %v", err)
		}
		for _, dev := range devices {
			kind := "input"
			if dev.IsLoopback {
				kind = "loopback"
			}
			fmt.Printf("[%d] %s (%s, %dch, %.0fHz)\n", dev.ID, dev.Name, kind, dev.Channels, dev.SampleRate)
		}
		return
	}

	interpreter, err := interp.New(cfg, backend)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	var publisher *natsbus.ResultPublisher
	if cfg.Bus.Enabled {
		publisher, err = natsbus.NewResultPublisher(cfg.Bus.Servers, cfg.Bus.SubjectPrefix)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		defer publisher.Close()
	}

	interpreter.SetResultSink(func(channel string, result session.TranslationResult) {
		fmt.Println(formatResult(channel, result))
		if publisher != nil {
			if err := publisher.Publish(channel, result); err != nil {
				log.Printf("⚠️ Bus publish failed: %v", err)
			}
		}
	})

	channels := buildChannels(cfg.Channels, *target, *source, *device)
	for _, cc := range channels {
		if err := interpreter.AddChannel(cc); err != nil {
			log.Fatalf("❌ Add channel failed: %v", err)
		}
	}

	if err := interpreter.Start(); err != nil {
		log.Fatalf("❌ Start failed: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if err := interpreter.Stop(); err != nil {
		log.Printf("⚠️ Shutdown finished with errors: %v", err)
	}
}

// buildChannels maps configured channels to channel configs, expanding the
// "both" source into one microphone and one loopback channel. Without any
// configured channels it builds them from the command-line flags.
func buildChannels(configured []config.ChannelConfig, target, source string, device int) []interp.ChannelConfig {
	var deviceID *int
	if device >= 0 {
		d := device
		deviceID = &d
	}

	if len(configured) == 0 {
		configured = []config.ChannelConfig{{
			Name:       defaultChannelName(source),
			TargetLang: target,
			Source:     source,
			Device:     deviceID,
		}}
	}

	var channels []interp.ChannelConfig
	for _, cc := range configured {
		if cc.Source == "both" {
			channels = append(channels,
				interp.ChannelConfig{
					Name:       cc.Name + "-mic",
					TargetLang: cc.TargetLang,
					Source:     audio.SourceMic,
				},
				interp.ChannelConfig{
					Name:       cc.Name + "-system",
					TargetLang: cc.TargetLang,
					Source:     audio.SourceLoopback,
				})
			continue
		}
		channels = append(channels, interp.ChannelConfig{
			Name:       cc.Name,
			TargetLang: cc.TargetLang,
			Source:     cc.Source,
			Device:     cc.Device,
		})
	}
	return channels
}

func defaultChannelName(source string) string {
	switch source {
	case audio.SourceLoopback:
		return "system"
	case "both":
		return "live"
	default:
		return "mic"
	}
}

// formatResult renders one result as a console line: interim results are
// marked with an ellipsis, finals with a check mark.
func formatResult(channel string, result session.TranslationResult) string {
	marker := "…"
	if result.IsFinal {
		marker = "✔"
	}

	text := result.SourceText
	switch {
	case result.SourceText != "" && result.TranslatedText != "":
		text = result.SourceText + " → " + result.TranslatedText
	case result.TranslatedText != "":
		text = result.TranslatedText
	}

	return fmt.Sprintf("[%s] %s %s", channel, marker, text)
}
