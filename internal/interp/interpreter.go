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
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/translive/translive-go/internal/audio"
	"github.com/translive/translive-go/internal/config"
	"github.com/translive/translive-go/internal/session"
)

var (
	// ErrMissingAPIKey means no API credential was resolvable from
	// configuration or environment
	ErrMissingAPIKey = errors.New("no API key configured; set DASHSCOPE_API_KEY or dashscope.api_key")

	// ErrDuplicateChannel means a channel with that name already exists
	ErrDuplicateChannel = errors.New("duplicate channel name")

	// ErrUnknownChannel means no channel with that name exists
	ErrUnknownChannel = errors.New("unknown channel")
)

// Interpreter supervises a set of named channels, fanning lifecycle
// operations out to all of them and routing every channel's results into a
// single externally supplied sink.
type Interpreter struct {
	cfg     config.Config
	backend audio.Backend

	// lifecycleMu serializes whole Start/Stop transitions so two
	// overlapping calls can never fan out against the same channels; the
	// loser blocks until the transition completes and then hits the
	// idempotent no-op.
	lifecycleMu sync.Mutex

	mu       sync.Mutex
	running  bool
	channels map[string]*channel
	order    []string
	sink     ResultSink
}

// New validates the credential and creates an idle supervisor. The backend
// must already be initialized by the caller, who also owns its termination.
func New(cfg config.Config, backend audio.Backend) (*Interpreter, error) {
	if cfg.DashScope.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Interpreter{
		cfg:      cfg,
		backend:  backend,
		channels: make(map[string]*channel),
	}, nil
}

// SetResultSink registers the callback that receives every channel's
// results, tagged with the channel name
func (i *Interpreter) SetResultSink(sink ResultSink) {
	i.mu.Lock()
	i.sink = sink
	i.mu.Unlock()
}

// AddChannel registers a new channel. Fails on duplicate names; the
// source type and device selector are fixed from here on.
func (i *Interpreter) AddChannel(cc ChannelConfig) error {
	if cc.Name == "" {
		return fmt.Errorf("channel name must not be empty")
	}
	switch cc.Source {
	case audio.SourceMic, audio.SourceLoopback:
	default:
		return fmt.Errorf("unknown source type %q", cc.Source)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, exists := i.channels[cc.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateChannel, cc.Name)
	}

	name := cc.Name
	sess := session.New(i.sessionConfig(), cc.TargetLang, func(result session.TranslationResult) {
		i.dispatch(name, result)
	})

	i.channels[name] = &channel{
		cfg:     cc,
		capture: audio.NewCapture(i.backend, i.cfg.Audio.SampleRate),
		session: sess,
	}
	i.order = append(i.order, name)

	log.Printf("➕ Channel added: %s (%s) → %s", name, cc.Source, cc.TargetLang)
	return nil
}

// Start brings every channel up. Already running is a no-op. If any channel
// fails to start, every channel is stopped again and the failure returned.
func (i *Interpreter) Start() error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	i.mu.Lock()
	if i.running {
		i.mu.Unlock()
		return nil
	}
	chans := i.ordered()
	i.mu.Unlock()

	var g errgroup.Group
	for _, ch := range chans {
		g.Go(ch.start)
	}
	if err := g.Wait(); err != nil {
		for _, ch := range chans {
			_ = ch.stop()
		}
		return err
	}

	i.mu.Lock()
	i.running = true
	i.mu.Unlock()
	log.Println("✅ Interpreter started")
	return nil
}

// Stop halts every channel. Best effort: each channel is stopped even when
// a sibling's stop fails, and the individual failures are aggregated.
func (i *Interpreter) Stop() error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return nil
	}
	i.running = false
	chans := i.ordered()
	i.mu.Unlock()

	var errs []error
	for _, ch := range chans {
		if err := ch.stop(); err != nil {
			errs = append(errs, fmt.Errorf("channel %q: %w", ch.cfg.Name, err))
		}
	}

	log.Println("🛑 Interpreter stopped")
	return errors.Join(errs...)
}

// SwitchLanguage changes one channel's translation target. On a live
// channel the session is recreated; on a stopped one only the target is
// recorded for the next start.
func (i *Interpreter) SwitchLanguage(channelName, targetLang string) error {
	i.mu.Lock()
	ch, ok := i.channels[channelName]
	running := i.running
	i.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channelName)
	}

	if !running {
		ch.session.SetTargetLang(targetLang)
		i.mu.Lock()
		ch.cfg.TargetLang = targetLang
		i.mu.Unlock()
		return nil
	}

	log.Printf("🔀 Switching channel %q to %s", channelName, targetLang)
	return ch.switchLanguage(targetLang)
}

// IsRunning reports whether the supervisor has been started
func (i *Interpreter) IsRunning() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.running
}

// ChannelNames returns the channel names in add order
func (i *Interpreter) ChannelNames() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.order...)
}

// EnumerateDevices lists all currently available capture devices
func (i *Interpreter) EnumerateDevices() ([]audio.Device, error) {
	return audio.Enumerate(i.backend)
}

// dispatch forwards one result to the registered sink, tagged with its
// channel name. Called from each channel's session goroutine.
func (i *Interpreter) dispatch(channelName string, result session.TranslationResult) {
	i.mu.Lock()
	sink := i.sink
	i.mu.Unlock()
	if sink != nil {
		sink(channelName, result)
	}
}

func (i *Interpreter) ordered() []*channel {
	chans := make([]*channel, 0, len(i.order))
	for _, name := range i.order {
		chans = append(chans, i.channels[name])
	}
	return chans
}

func (i *Interpreter) sessionConfig() session.Config {
	return session.Config{
		APIKey:       i.cfg.DashScope.APIKey,
		URL:          i.cfg.DashScope.WebsocketURL,
		Model:        i.cfg.Model.Name,
		SampleRate:   i.cfg.Audio.SampleRate,
		Format:       i.cfg.Audio.Format,
		VADEnabled:   i.cfg.Model.VADEnabled,
		VADThreshold: i.cfg.Model.VADThreshold,
		VADSilenceMS: i.cfg.Model.VADSilenceMS,
	}
}
