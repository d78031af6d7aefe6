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

package interp

import (
	"errors"
	"fmt"
	"log"

	"github.com/translive/translive-go/internal/audio"
	"github.com/translive/translive-go/internal/session"
)

// ChannelConfig describes one capture-plus-translation pipeline. Name must
// be unique within an Interpreter; source and device are fixed at add time,
// only the target language is hot-switchable.
type ChannelConfig struct {
	Name       string
	TargetLang string
	Source     string // audio.SourceMic or audio.SourceLoopback
	Device     *int   // explicit device ID, nil for auto-select
}

// ResultSink receives every TranslationResult tagged with the channel that
// produced it. It is invoked from each channel's session goroutine; callers
// needing another execution context marshal themselves.
type ResultSink func(channel string, result session.TranslationResult)

// translator is the streaming-session surface a channel needs, abstracted
// for tests.
type translator interface {
	Start() error
	Stop() error
	SendAudio(pcm []byte)
	SwitchLanguage(targetLang string) error
	SetTargetLang(targetLang string)
	IsRunning() bool
}

// capturer is the audio-capture surface a channel needs, abstracted for tests.
type capturer interface {
	Resolve(sourceType string, deviceID *int) (audio.Device, error)
	Start(dev audio.Device, onFrame audio.FrameFunc) error
	Stop() error
}

// channel binds one audio capture to one streaming session. It is the
// per-channel context object: callbacks close over the channel, never over
// loop variables.
type channel struct {
	cfg     ChannelConfig
	capture capturer
	session translator
}

// start brings the session up first, then begins capture feeding it. If
// capture cannot start, the session is torn back down.
func (ch *channel) start() error {
	if err := ch.session.Start(); err != nil {
		return err
	}
	if !ch.session.IsRunning() {
		// A concurrent stop won the race during connect; capture must not
		// feed a dead session.
		_ = ch.session.Stop()
		return fmt.Errorf("channel %q: session stopped during start", ch.cfg.Name)
	}

	dev, err := ch.capture.Resolve(ch.cfg.Source, ch.cfg.Device)
	if err != nil {
		_ = ch.session.Stop()
		return err
	}

	if err := ch.capture.Start(dev, ch.session.SendAudio); err != nil {
		_ = ch.session.Stop()
		return err
	}

	log.Printf("🎧 Channel %q capturing %s → %s", ch.cfg.Name, ch.cfg.Source, ch.cfg.TargetLang)
	return nil
}

// stop halts capture before the session so the transport never receives
// orphaned sends, and reports both failures when both fail.
func (ch *channel) stop() error {
	captureErr := ch.capture.Stop()
	sessionErr := ch.session.Stop()
	return errors.Join(captureErr, sessionErr)
}

// switchLanguage recreates the session for a new target; capture is
// oblivious to the translation target and keeps running.
func (ch *channel) switchLanguage(targetLang string) error {
	if err := ch.session.SwitchLanguage(targetLang); err != nil {
		return err
	}
	ch.cfg.TargetLang = targetLang
	return nil
}
