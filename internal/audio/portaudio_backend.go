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
	"strings"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend implements Backend using the real PortAudio library
type PortAudioBackend struct {
	initialized bool
}

// NewPortAudioBackend creates a new PortAudio backend
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

// Initialize initializes the PortAudio subsystem
func (p *PortAudioBackend) Initialize() error {
	if p.initialized {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	p.initialized = true
	return nil
}

// Terminate terminates the PortAudio subsystem
func (p *PortAudioBackend) Terminate() error {
	if !p.initialized {
		return nil
	}

	err := portaudio.Terminate()
	p.initialized = false
	return err
}

// InputDevices lists all non-loopback devices that can capture audio
func (p *PortAudioBackend) InputDevices() ([]Device, error) {
	return p.captureDevices(false)
}

// LoopbackDevices lists all loopback (system-audio mirror) capture devices.
// On hosts without a loopback-capable API this returns an empty slice.
func (p *PortAudioBackend) LoopbackDevices() ([]Device, error) {
	return p.captureDevices(true)
}

func (p *PortAudioBackend) captureDevices(loopback bool) ([]Device, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	var devices []Device
	for i, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		if isLoopbackName(info.Name) != loopback {
			continue
		}
		devices = append(devices, deviceFromInfo(i, info))
	}
	return devices, nil
}

// DefaultInputDevice returns the system default microphone
func (p *PortAudioBackend) DefaultInputDevice() (Device, error) {
	if !p.initialized {
		return Device{}, fmt.Errorf("PortAudio not initialized")
	}

	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("no default input device: %w", err)
	}
	id, err := p.deviceIndex(info)
	if err != nil {
		return Device{}, err
	}
	return deviceFromInfo(id, info), nil
}

// DefaultOutputDevice returns the system default playback device
func (p *PortAudioBackend) DefaultOutputDevice() (Device, error) {
	if !p.initialized {
		return Device{}, fmt.Errorf("PortAudio not initialized")
	}

	info, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("no default output device: %w", err)
	}
	id, err := p.deviceIndex(info)
	if err != nil {
		return Device{}, err
	}
	dev := deviceFromInfo(id, info)
	dev.Channels = info.MaxOutputChannels
	return dev, nil
}

// OpenInputStream opens a capture stream on a specific device at its native format
func (p *PortAudioBackend) OpenInputStream(dev Device, channels int, sampleRate float64, framesPerBuffer int) (InputStream, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	if dev.ID < 0 || dev.ID >= len(infos) {
		return nil, fmt.Errorf("device index %d out of range", dev.ID)
	}
	info := infos[dev.ID]

	buffer := make([]int16, framesPerBuffer*channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  info.DefaultHighInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}

	return &portAudioStream{stream: stream, buffer: buffer}, nil
}

func (p *PortAudioBackend) deviceIndex(target *portaudio.DeviceInfo) (int, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for i, info := range infos {
		if info == target || info.Name == target.Name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("device %q not found in device list", target.Name)
}

func deviceFromInfo(id int, info *portaudio.DeviceInfo) Device {
	return Device{
		ID:         id,
		Name:       info.Name,
		Channels:   info.MaxInputChannels,
		SampleRate: info.DefaultSampleRate,
		IsLoopback: isLoopbackName(info.Name),
	}
}

// isLoopbackName reports whether a device name identifies a system-audio
// mirror: WASAPI loopback endpoints carry a "[Loopback]" suffix, PulseAudio
// monitor sources say "Monitor of ..." or end in ".monitor".
func isLoopbackName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "[loopback]") ||
		strings.Contains(lower, "(loopback)") ||
		strings.HasPrefix(lower, "monitor of") ||
		strings.HasSuffix(lower, ".monitor")
}

// portAudioStream implements InputStream using a PortAudio stream
type portAudioStream struct {
	stream *portaudio.Stream
	buffer []int16
}

// Start starts the capture stream
func (s *portAudioStream) Start() error {
	if s.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	return s.stream.Start()
}

// Read blocks until the stream buffer is filled, then copies it into buf
func (s *portAudioStream) Read(buf []int16) error {
	if s.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	if err := s.stream.Read(); err != nil {
		return err
	}
	copy(buf, s.buffer)
	return nil
}

// Stop stops the capture stream
func (s *portAudioStream) Stop() error {
	if s.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	return s.stream.Stop()
}

// Close closes the capture stream and releases the device
func (s *portAudioStream) Close() error {
	if s.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	return s.stream.Close()
}
