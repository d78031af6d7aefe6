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

package audio

import (
	"fmt"
	"sync"
	"time"
)

// MockBackend implements Backend for testing without hardware dependencies
type MockBackend struct {
	mu            sync.Mutex
	initialized   bool
	inputs        []Device
	loopbacks     []Device
	defaultInput  *Device
	defaultOutput *Device

	inputErr    error
	loopbackErr error
	openErr     error

	readSignal []int16
	readErr    error
	readDelay  time.Duration
	maxReads   int

	opened []*MockStream
}

// NewMockBackend creates a mock backend with a plausible default device set
func NewMockBackend() *MockBackend {
	mic := Device{ID: 0, Name: "Mock Microphone", Channels: 1, SampleRate: 16000}
	speakers := Device{ID: 1, Name: "Mock Speakers", Channels: 2, SampleRate: 48000}
	loopback := Device{ID: 2, Name: "Mock Speakers [Loopback]", Channels: 2, SampleRate: 48000, IsLoopback: true}
	return &MockBackend{
		inputs:        []Device{mic},
		loopbacks:     []Device{loopback},
		defaultInput:  &mic,
		defaultOutput: &speakers,
		readDelay:     time.Millisecond,
	}
}

// SetDevices replaces the enumerable input and loopback device lists
func (m *MockBackend) SetDevices(inputs, loopbacks []Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = inputs
	m.loopbacks = loopbacks
}

// SetDefaultInput configures the system default microphone (nil for none)
func (m *MockBackend) SetDefaultInput(dev *Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultInput = dev
}

// SetDefaultOutput configures the system default playback device (nil for none)
func (m *MockBackend) SetDefaultOutput(dev *Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultOutput = dev
}

// SetInputDevicesError configures InputDevices() to fail
func (m *MockBackend) SetInputDevicesError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputErr = err
}

// SetLoopbackDevicesError configures LoopbackDevices() to fail
func (m *MockBackend) SetLoopbackDevicesError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loopbackErr = err
}

// SetOpenError configures stream creation to fail
func (m *MockBackend) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// SetReadSignal sets the sample pattern repeated into every stream read
func (m *MockBackend) SetReadSignal(signal []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readSignal = signal
}

// SetReadError makes stream reads fail after maxReads successful reads
func (m *MockBackend) SetReadError(err error, maxReads int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
	m.maxReads = maxReads
}

// OpenedStreams returns every stream the backend has created
func (m *MockBackend) OpenedStreams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.opened...)
}

// Initialize initializes the mock audio subsystem
func (m *MockBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	return nil
}

// Terminate terminates the mock audio subsystem
func (m *MockBackend) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	return nil
}

// InputDevices lists the configured non-loopback capture devices
func (m *MockBackend) InputDevices() ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inputErr != nil {
		return nil, m.inputErr
	}
	return append([]Device(nil), m.inputs...), nil
}

// LoopbackDevices lists the configured loopback devices
func (m *MockBackend) LoopbackDevices() ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loopbackErr != nil {
		return nil, m.loopbackErr
	}
	return append([]Device(nil), m.loopbacks...), nil
}

// DefaultInputDevice returns the configured default microphone
func (m *MockBackend) DefaultInputDevice() (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defaultInput == nil {
		return Device{}, fmt.Errorf("no default input device")
	}
	return *m.defaultInput, nil
}

// DefaultOutputDevice returns the configured default playback device
func (m *MockBackend) DefaultOutputDevice() (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defaultOutput == nil {
		return Device{}, fmt.Errorf("no default output device")
	}
	return *m.defaultOutput, nil
}

// OpenInputStream creates a mock capture stream producing the configured signal
func (m *MockBackend) OpenInputStream(dev Device, channels int, sampleRate float64, framesPerBuffer int) (InputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("mock backend not initialized")
	}
	if m.openErr != nil {
		return nil, m.openErr
	}

	stream := &MockStream{
		device:    dev,
		signal:    append([]int16(nil), m.readSignal...),
		readErr:   m.readErr,
		maxReads:  m.maxReads,
		readDelay: m.readDelay,
		stopped:   make(chan struct{}),
	}
	m.opened = append(m.opened, stream)
	return stream, nil
}

// MockStream implements InputStream with synthetic sample data
type MockStream struct {
	device    Device
	signal    []int16
	readErr   error
	maxReads  int
	readDelay time.Duration

	mu       sync.Mutex
	reads    int
	started  bool
	closed   bool
	stopOnce sync.Once
	stopped  chan struct{}
}

// Start marks the stream as active
func (s *MockStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream is closed")
	}
	s.started = true
	return nil
}

// Read fills buf with the configured signal pattern, simulating device pacing
func (s *MockStream) Read(buf []int16) error {
	s.mu.Lock()
	if !s.started || s.closed {
		s.mu.Unlock()
		return fmt.Errorf("stream not active")
	}
	if s.readErr != nil && s.reads >= s.maxReads {
		s.mu.Unlock()
		return s.readErr
	}
	s.reads++
	signal := s.signal
	s.mu.Unlock()

	select {
	case <-time.After(s.readDelay):
	case <-s.stopped:
		return fmt.Errorf("stream stopped")
	}

	if len(signal) == 0 {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	for i := range buf {
		buf[i] = signal[i%len(signal)]
	}
	return nil
}

// Reads returns how many reads completed or were attempted
func (s *MockStream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// IsClosed reports whether Close was called
func (s *MockStream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stop unblocks any pending read and marks the stream inactive
func (s *MockStream) Stop() error {
	s.stopOnce.Do(func() { close(s.stopped) })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// Close releases the mock stream
func (s *MockStream) Close() error {
	s.stopOnce.Do(func() { close(s.stopped) })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
