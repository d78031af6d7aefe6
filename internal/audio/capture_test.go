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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *MockBackend {
	t.Helper()
	backend := NewMockBackend()
	require.NoError(t, backend.Initialize())
	t.Cleanup(func() { _ = backend.Terminate() })
	return backend
}

func TestEnumerateCombinesInputsAndLoopbacks(t *testing.T) {
	backend := newTestBackend(t)

	devices, err := Enumerate(backend)

	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.False(t, devices[0].IsLoopback)
	assert.True(t, devices[1].IsLoopback)
}

func TestEnumeratePartialFailureTolerated(t *testing.T) {
	backend := newTestBackend(t)
	backend.SetLoopbackDevicesError(errors.New("loopback driver gone"))

	devices, err := Enumerate(backend)

	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Mock Microphone", devices[0].Name)
}

func TestEnumerateTotalFailure(t *testing.T) {
	backend := newTestBackend(t)
	backend.SetInputDevicesError(errors.New("no host api"))
	backend.SetLoopbackDevicesError(errors.New("no host api"))

	_, err := Enumerate(backend)

	assert.Error(t, err)
}

func TestResolveExplicitDevice(t *testing.T) {
	backend := newTestBackend(t)
	id := 2

	dev, err := Resolve(backend, SourceLoopback, &id)

	require.NoError(t, err)
	assert.Equal(t, 2, dev.ID)
	assert.True(t, dev.IsLoopback)
}

func TestResolveExplicitDeviceMissingFallsBack(t *testing.T) {
	backend := newTestBackend(t)
	id := 99

	dev, err := Resolve(backend, SourceMic, &id)

	require.NoError(t, err)
	assert.Equal(t, "Mock Microphone", dev.Name)
}

func TestResolveMicDefault(t *testing.T) {
	backend := newTestBackend(t)

	dev, err := Resolve(backend, SourceMic, nil)

	require.NoError(t, err)
	assert.Equal(t, "Mock Microphone", dev.Name)
}

func TestResolveMicNoDefault(t *testing.T) {
	backend := newTestBackend(t)
	backend.SetDefaultInput(nil)

	_, err := Resolve(backend, SourceMic, nil)

	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestResolveLoopbackExactMatch(t *testing.T) {
	backend := newTestBackend(t)

	dev, err := Resolve(backend, SourceLoopback, nil)

	require.NoError(t, err)
	assert.Equal(t, "Mock Speakers [Loopback]", dev.Name)
}

func TestResolveLoopbackPrefersExactMatch(t *testing.T) {
	backend := newTestBackend(t)
	output := Device{ID: 1, Name: "Speakers (Realtek)", Channels: 2, SampleRate: 48000}
	backend.SetDefaultOutput(&output)
	backend.SetDevices(backend.inputs, []Device{
		{ID: 2, Name: "Headphones [Loopback]", Channels: 2, SampleRate: 48000, IsLoopback: true},
		{ID: 3, Name: "Speakers (Realtek) [Loopback]", Channels: 2, SampleRate: 48000, IsLoopback: true},
	})

	dev, err := Resolve(backend, SourceLoopback, nil)

	require.NoError(t, err)
	assert.Equal(t, "Speakers (Realtek) [Loopback]", dev.Name)
}

func TestResolveLoopbackPrefixMatch(t *testing.T) {
	backend := newTestBackend(t)
	// The loopback name carries extra driver suffixes, so only the leading
	// characters of the output name still match.
	output := Device{ID: 1, Name: "Speakers (Realtek High Definition Audio)", Channels: 2, SampleRate: 48000}
	loopback := Device{ID: 2, Name: "Speakers (Realtek HD Audio) [Loopback]", Channels: 2, SampleRate: 48000, IsLoopback: true}
	backend.SetDefaultOutput(&output)
	backend.SetDevices(backend.inputs, []Device{loopback})

	dev, err := Resolve(backend, SourceLoopback, nil)

	require.NoError(t, err)
	assert.Equal(t, loopback.Name, dev.Name)
}

func TestResolveLoopbackNoMatch(t *testing.T) {
	backend := newTestBackend(t)
	output := Device{ID: 1, Name: "HDMI Output", Channels: 2, SampleRate: 48000}
	backend.SetDefaultOutput(&output)

	_, err := Resolve(backend, SourceLoopback, nil)

	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestCaptureDeliversNormalizedChunks(t *testing.T) {
	backend := newTestBackend(t)
	backend.SetReadSignal([]int16{1000, 1000})

	capture := NewCapture(backend, 16000)
	dev, err := capture.Resolve(SourceLoopback, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var chunks [][]byte
	err = capture.Start(dev, func(pcm []byte) {
		mu.Lock()
		chunks = append(chunks, pcm)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(chunks) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, capture.Stop())

	mu.Lock()
	defer mu.Unlock()
	// Loopback device is 48kHz stereo; each chunk must come out as 100ms
	// of mono 16kHz PCM, i.e. 1600 samples.
	assert.InDelta(t, 3200, len(chunks[0]), 2)
	assert.Zero(t, len(chunks[0])%2)
}

func TestCaptureStartTwiceRejected(t *testing.T) {
	backend := newTestBackend(t)
	capture := NewCapture(backend, 16000)
	dev, err := capture.Resolve(SourceMic, nil)
	require.NoError(t, err)

	require.NoError(t, capture.Start(dev, func([]byte) {}))
	defer func() { _ = capture.Stop() }()

	assert.Error(t, capture.Start(dev, func([]byte) {}))
}

func TestCaptureStartRequiresCallback(t *testing.T) {
	backend := newTestBackend(t)
	capture := NewCapture(backend, 16000)
	dev, err := capture.Resolve(SourceMic, nil)
	require.NoError(t, err)

	assert.Error(t, capture.Start(dev, nil))
}

func TestCaptureOpenFailure(t *testing.T) {
	backend := newTestBackend(t)
	backend.SetOpenError(errors.New("device busy"))

	capture := NewCapture(backend, 16000)
	dev, err := capture.Resolve(SourceMic, nil)
	require.NoError(t, err)

	err = capture.Start(dev, func([]byte) {})
	assert.ErrorIs(t, err, ErrDeviceOpen)
	assert.False(t, capture.IsRunning())
}

func TestCaptureStopIdempotent(t *testing.T) {
	backend := newTestBackend(t)
	capture := NewCapture(backend, 16000)
	dev, err := capture.Resolve(SourceMic, nil)
	require.NoError(t, err)

	require.NoError(t, capture.Start(dev, func([]byte) {}))
	require.NoError(t, capture.Stop())
	assert.NoError(t, capture.Stop())
	assert.NoError(t, capture.Stop())
	assert.False(t, capture.IsRunning())
}

func TestCaptureStopClosesStream(t *testing.T) {
	backend := newTestBackend(t)
	capture := NewCapture(backend, 16000)
	dev, err := capture.Resolve(SourceMic, nil)
	require.NoError(t, err)

	require.NoError(t, capture.Start(dev, func([]byte) {}))
	require.NoError(t, capture.Stop())

	streams := backend.OpenedStreams()
	require.Len(t, streams, 1)
	assert.Eventually(t, streams[0].IsClosed, time.Second, 5*time.Millisecond)
}

func TestCaptureReadErrorEndsLoop(t *testing.T) {
	backend := newTestBackend(t)
	backend.SetReadError(errors.New("device unplugged"), 2)

	capture := NewCapture(backend, 16000)
	dev, err := capture.Resolve(SourceMic, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	delivered := 0
	require.NoError(t, capture.Start(dev, func([]byte) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}))
	defer func() { _ = capture.Stop() }()

	streams := backend.OpenedStreams()
	require.Len(t, streams, 1)
	assert.Eventually(t, streams[0].IsClosed, 2*time.Second, 5*time.Millisecond)

	// A dead loop must report itself dead.
	assert.Eventually(t, func() bool { return !capture.IsRunning() }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, delivered)
}

func TestCaptureRestartAfterReadError(t *testing.T) {
	backend := newTestBackend(t)
	backend.SetReadError(errors.New("device unplugged"), 0)

	capture := NewCapture(backend, 16000)
	dev, err := capture.Resolve(SourceMic, nil)
	require.NoError(t, err)

	require.NoError(t, capture.Start(dev, func([]byte) {}))
	require.Eventually(t, func() bool { return !capture.IsRunning() }, 2*time.Second, 5*time.Millisecond)

	// No intervening Stop needed once the loop died on its own.
	backend.SetReadError(nil, 0)
	require.NoError(t, capture.Start(dev, func([]byte) {}))
	assert.True(t, capture.IsRunning())
	require.NoError(t, capture.Stop())
}

// wedgedBackend opens streams whose reads block forever and ignore Stop,
// standing in for a hung device driver.
type wedgedBackend struct {
	*MockBackend
}

func (b *wedgedBackend) OpenInputStream(dev Device, channels int, sampleRate float64, framesPerBuffer int) (InputStream, error) {
	return &wedgedStream{block: make(chan struct{})}, nil
}

type wedgedStream struct {
	block chan struct{}
}

func (s *wedgedStream) Start() error { return nil }

func (s *wedgedStream) Read(buf []int16) error {
	<-s.block
	return errors.New("unreachable")
}

func (s *wedgedStream) Stop() error  { return nil }
func (s *wedgedStream) Close() error { return nil }

func TestCaptureStopAbandonsWedgedLoop(t *testing.T) {
	backend := newTestBackend(t)
	capture := NewCapture(&wedgedBackend{backend}, 16000)
	dev, err := capture.Resolve(SourceMic, nil)
	require.NoError(t, err)

	require.NoError(t, capture.Start(dev, func([]byte) {}))

	// The join times out, the loop is abandoned, and that is a clean stop,
	// not a shutdown failure.
	assert.NoError(t, capture.Stop())
	assert.False(t, capture.IsRunning())
}
