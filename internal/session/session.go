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

package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	dialTimeout   = 10 * time.Second
	writeWait     = 10 * time.Second
	stopJoinWait  = 3 * time.Second
	closeGraceMax = time.Second
)

// ErrConnection means the transport could not be established or was lost
var ErrConnection = errors.New("session connection failed")

// State is the lifecycle phase of a streaming session. All transitions go
// through Start and Stop under the session mutex.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConfiguring
	StateStreaming
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConfiguring:
		return "configuring"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config holds the connection parameters for one streaming session,
// resolved once before Start. No hot-reload within a running session.
type Config struct {
	APIKey       string
	URL          string
	Model        string
	SampleRate   int
	Format       string
	VADEnabled   bool
	VADThreshold float64
	VADSilenceMS int
}

// ResultFunc receives every TranslationResult, from the session's read
// goroutine only. Consumers needing a different execution context must
// marshal themselves.
type ResultFunc func(TranslationResult)

// Session owns one realtime recognize+translate connection for a single
// audio channel. The target language is fixed per connection; switching it
// tears the session down and builds a new one with the same result sink.
type Session struct {
	cfg      Config
	onResult ResultFunc

	mu         sync.Mutex
	targetLang string
	state      State
	conn       *websocket.Conn
	done       chan struct{}

	// writeMu serializes websocket writes between the configure step, the
	// capture goroutine's audio frames, and the close handshake.
	writeMu sync.Mutex
}

// New creates a session for the given target language. Nothing is connected
// until Start.
func New(cfg Config, targetLang string, onResult ResultFunc) *Session {
	return &Session{
		cfg:        cfg,
		targetLang: targetLang,
		onResult:   onResult,
		state:      StateIdle,
	}
}

// Start dials the service, sends the session configuration and begins the
// read loop. Safe to race with Stop: a Stop that lands mid-connect wins and
// the freshly dialed transport is discarded.
func (s *Session) Start() error {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateClosed, StateError:
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session already %s", state)
	}
	s.state = StateConnecting
	targetLang := s.targetLang
	s.mu.Unlock()

	conn, err := s.dial()
	if err != nil {
		s.mu.Lock()
		s.state = StateError
		s.mu.Unlock()
		log.Printf("❌ Session connect failed: %v", err)
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Stop was called while dialing; discard the transport.
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.state = StateConfiguring
	s.mu.Unlock()

	if err := s.writeJSON(conn, s.configurePayload(targetLang)); err != nil {
		_ = s.Stop()
		log.Printf("❌ Session configure failed: %v", err)
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	s.mu.Lock()
	if s.state != StateConfiguring {
		s.mu.Unlock()
		return nil
	}
	// This protocol variant accepts audio immediately after session.update;
	// the session.updated ack arrives asynchronously as a lifecycle event.
	s.state = StateStreaming
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go s.readLoop(conn, done)

	log.Printf("🌐 Session started (target_lang=%s)", targetLang)
	return nil
}

// SendAudio transmits one PCM chunk. Audio is silently dropped unless the
// session is streaming; stale audio has no value, so nothing is queued.
func (s *Session) SendAudio(pcm []byte) {
	if len(pcm) == 0 {
		return
	}

	s.mu.Lock()
	if s.state != StateStreaming || s.conn == nil {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.mu.Unlock()

	msg := audioAppend{
		EventID: uuid.NewString(),
		Type:    typeAudioAppend,
		Audio:   base64.StdEncoding.EncodeToString(pcm),
	}
	if err := s.writeJSON(conn, msg); err != nil {
		log.Printf("⚠️ Send audio error: %v", err)
	}
}

// Stop closes the transport and discards the session identity. Safe to call
// from any state, any goroutine, any number of times; the read loop join is
// bounded so a wedged socket never freezes the caller.
func (s *Session) Stop() error {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateClosed, StateError:
		s.state = StateClosed
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosing
	conn := s.conn
	done := s.done
	s.conn = nil
	s.done = nil
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGraceMax))
		s.writeMu.Unlock()
		_ = conn.Close()
	}

	if done != nil {
		select {
		case <-done:
		case <-time.After(stopJoinWait):
			log.Printf("⚠️ Session read loop did not exit within %v, abandoning", stopJoinWait)
		}
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	log.Println("🔌 Session stopped")
	return nil
}

// SwitchLanguage recreates the session with a new translation target. The
// remote protocol fixes the target at configuration time, so this is a full
// stop-then-start preserving the registered result sink.
func (s *Session) SwitchLanguage(targetLang string) error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.SetTargetLang(targetLang)
	return s.Start()
}

// SetTargetLang records the translation target for the next Start
func (s *Session) SetTargetLang(targetLang string) {
	s.mu.Lock()
	s.targetLang = targetLang
	s.mu.Unlock()
}

// TargetLang returns the current translation target
func (s *Session) TargetLang() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetLang
}

// IsRunning reports whether the session is live (connecting through
// streaming). It turns false on Stop and on unrecoverable transport errors;
// there is no automatic reconnect — the supervisor restarts explicitly.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateConnecting, StateConfiguring, StateStreaming:
		return true
	}
	return false
}

// CurrentState returns the session's lifecycle phase
func (s *Session) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) dial() (*websocket.Conn, error) {
	endpoint := s.cfg.URL
	if s.cfg.Model != "" {
		endpoint += "?model=" + url.QueryEscape(s.cfg.Model)
	}

	hdr := http.Header{}
	hdr.Set("Authorization", "bearer "+s.cfg.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(endpoint, hdr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Session) configurePayload(targetLang string) sessionUpdate {
	var vad *turnDetection
	if s.cfg.VADEnabled {
		vad = &turnDetection{
			Type:              "server_vad",
			Threshold:         s.cfg.VADThreshold,
			SilenceDurationMS: s.cfg.VADSilenceMS,
		}
	}
	return sessionUpdate{
		EventID: uuid.NewString(),
		Type:    typeSessionUpdate,
		Session: sessionParams{
			OutputModalities:              []string{"text"},
			InputAudioFormat:              s.cfg.Format,
			SampleRate:                    s.cfg.SampleRate,
			EnableInputAudioTranscription: true,
			InputAudioTranscription:       transcriptionParams{Language: "auto"},
			TurnDetection:                 vad,
			Translation:                   translationParams{Language: targetLang},
		},
	}
}

func (s *Session) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop receives and dispatches inbound events until the transport dies.
// Results are delivered from this goroutine only, exactly once each.
func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closing := s.state == StateClosing || s.state == StateClosed
			if !closing {
				s.state = StateError
				s.conn = nil
			}
			s.mu.Unlock()
			if !closing {
				log.Printf("❌ Session read error: %v", err)
			}
			return
		}
		s.handleEvent(payload)
	}
}

func (s *Session) handleEvent(payload []byte) {
	var ev serverEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		// Malformed messages are skipped, never surfaced as results.
		log.Printf("⚠️ Skipping malformed event: %v", err)
		return
	}

	switch ev.Type {
	case eventSessionCreated:
		log.Printf("🌐 Session created: %s", ev.Session.ID)
		return
	case eventSessionUpdated:
		return
	case eventSpeechStarted:
		log.Println("🗣️ Speech started")
		return
	case eventSpeechStopped:
		log.Println("🤫 Speech stopped")
		return
	case eventError:
		log.Printf("❌ Service error: %s %s", ev.Error.Code, ev.Error.Message)
		return
	}

	s.mu.Lock()
	targetLang := s.targetLang
	onResult := s.onResult
	s.mu.Unlock()

	if result, ok := classify(&ev, targetLang); ok && onResult != nil {
		onResult(result)
	}
}
