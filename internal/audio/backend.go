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

// Device describes one capture-capable endpoint as reported by the backend.
// Descriptors are produced fresh on every enumeration; devices can appear
// and disappear between calls, so they must never be cached.
type Device struct {
	ID         int
	Name       string
	Channels   int
	SampleRate float64
	IsLoopback bool
}

// Backend provides an abstraction layer for the audio host API
// This enables dependency injection and makes testing hardware-independent
type Backend interface {
	// Initialize the audio subsystem
	Initialize() error

	// Terminate the audio subsystem
	Terminate() error

	// InputDevices lists all usable microphone-style capture devices
	InputDevices() ([]Device, error)

	// LoopbackDevices lists all loopback (system-audio) capture devices
	LoopbackDevices() ([]Device, error)

	// DefaultInputDevice returns the system default microphone
	DefaultInputDevice() (Device, error)

	// DefaultOutputDevice returns the system default playback device,
	// used to locate its loopback counterpart
	DefaultOutputDevice() (Device, error)

	// OpenInputStream opens a capture stream on a specific device at its
	// native rate and channel count
	OpenInputStream(dev Device, channels int, sampleRate float64, framesPerBuffer int) (InputStream, error)
}

// InputStream abstracts a running capture stream delivering interleaved
// signed 16-bit samples
type InputStream interface {
	// Start the capture stream
	Start() error

	// Read blocks until buf is filled with the next interleaved samples
	Read(buf []int16) error

	// Stop the capture stream
	Stop() error

	// Close the capture stream and release the device
	Close() error
}
