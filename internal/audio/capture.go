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
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Audio source types
const (
	SourceMic      = "microphone"
	SourceLoopback = "system-loopback"
)

const (
	// chunkMillis is the wall-clock duration of every delivered PCM chunk
	chunkMillis = 100

	// prefixMatchLen is how many leading characters of the default output
	// device name are used for the fuzzy loopback match
	prefixMatchLen = 15

	// stopJoinWait bounds how long Stop waits for the capture loop before
	// abandoning it, so a wedged device read cannot freeze the caller
	stopJoinWait = 3 * time.Second
)

var (
	// ErrDeviceNotFound means no capture device satisfied the selection policy
	ErrDeviceNotFound = errors.New("no matching audio device")

	// ErrDeviceOpen means the selected device could not be opened for capture
	ErrDeviceOpen = errors.New("failed to open audio device")
)

// FrameFunc receives each normalized PCM chunk, synchronously from the
// capture goroutine.
type FrameFunc func(pcm []byte)

// Enumerate lists all usable input devices and all usable loopback devices.
// A failure in one sub-category is logged and skipped rather than failing
// the whole call; only total failure returns an error.
func Enumerate(backend Backend) ([]Device, error) {
	inputs, inErr := backend.InputDevices()
	if inErr != nil {
		log.Printf("⚠️ Cannot enumerate input devices: %v", inErr)
	}
	loopbacks, lbErr := backend.LoopbackDevices()
	if lbErr != nil {
		log.Printf("⚠️ Cannot enumerate loopback devices: %v", lbErr)
	}
	if inErr != nil && lbErr != nil {
		return nil, fmt.Errorf("device enumeration failed: %w", inErr)
	}
	return append(inputs, loopbacks...), nil
}

// Resolve picks the capture device for a source type. Selection order: the
// explicit device ID when given and valid, then the system default input
// for microphones, then the loopback counterpart of the system default
// output matched by exact name and falling back to a 15-character prefix.
func Resolve(backend Backend, sourceType string, deviceID *int) (Device, error) {
	if deviceID != nil {
		devices, err := Enumerate(backend)
		if err == nil {
			for _, dev := range devices {
				if dev.ID == *deviceID {
					log.Printf("🎛️ Using specified device: [%d] %s", dev.ID, dev.Name)
					return dev, nil
				}
			}
		}
		log.Printf("⚠️ Specified device %d unavailable, auto-selecting...", *deviceID)
	}

	if sourceType == SourceLoopback {
		return resolveLoopback(backend)
	}
	return resolveDefaultMic(backend)
}

func resolveDefaultMic(backend Backend) (Device, error) {
	dev, err := backend.DefaultInputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("%w: no default microphone: %v", ErrDeviceNotFound, err)
	}
	log.Printf("🎤 Default microphone: %s", dev.Name)
	return dev, nil
}

func resolveLoopback(backend Backend) (Device, error) {
	output, err := backend.DefaultOutputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("%w: no default output device: %v", ErrDeviceNotFound, err)
	}
	log.Printf("🔊 Default output device: %s", output.Name)

	loopbacks, err := backend.LoopbackDevices()
	if err != nil {
		return Device{}, fmt.Errorf("%w: loopback enumeration failed: %v", ErrDeviceNotFound, err)
	}

	for _, dev := range loopbacks {
		if strings.Contains(dev.Name, output.Name) {
			log.Printf("🔁 Found loopback: %s", dev.Name)
			return dev, nil
		}
	}

	prefix := output.Name
	if len(prefix) > prefixMatchLen {
		prefix = prefix[:prefixMatchLen]
	}
	for _, dev := range loopbacks {
		if strings.Contains(dev.Name, prefix) {
			log.Printf("🔁 Found loopback (fuzzy): %s", dev.Name)
			return dev, nil
		}
	}

	return Device{}, fmt.Errorf("%w: no loopback device for output %q", ErrDeviceNotFound, output.Name)
}

// Capture reads continuous PCM from one device on a dedicated goroutine and
// delivers fixed-duration chunks normalized to mono at the target rate.
type Capture struct {
	backend    Backend
	sampleRate int

	mu      sync.Mutex
	running bool
	done    chan struct{}
	device  Device
}

// NewCapture creates a capture pipeline that normalizes to sampleRate/mono
func NewCapture(backend Backend, sampleRate int) *Capture {
	return &Capture{backend: backend, sampleRate: sampleRate}
}

// Enumerate lists all currently available capture devices
func (c *Capture) Enumerate() ([]Device, error) {
	return Enumerate(c.backend)
}

// Resolve applies the device selection policy for a source type
func (c *Capture) Resolve(sourceType string, deviceID *int) (Device, error) {
	return Resolve(c.backend, sourceType, deviceID)
}

// Start opens the device at its native format and begins the capture loop.
// onFrame is invoked synchronously from the capture goroutine for every
// produced chunk; empty chunks are never delivered.
func (c *Capture) Start(dev Device, onFrame FrameFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("capture already running on %q", c.device.Name)
	}
	if onFrame == nil {
		return fmt.Errorf("frame callback is required")
	}

	deviceRate := int(dev.SampleRate)
	if deviceRate <= 0 {
		deviceRate = c.sampleRate
	}
	channels := dev.Channels
	if channels < 1 {
		channels = 1
	}

	// Device-side read size scaled so each chunk spans chunkMillis of
	// wall-clock time regardless of the native rate.
	targetFrames := c.sampleRate * chunkMillis / 1000
	deviceFrames := targetFrames * deviceRate / c.sampleRate
	if deviceFrames <= 0 {
		deviceFrames = targetFrames
	}

	if deviceRate != c.sampleRate || channels != 1 {
		log.Printf("🔄 Resampling: %dHz/%dch → %dHz/1ch", deviceRate, channels, c.sampleRate)
	}

	stream, err := c.backend.OpenInputStream(dev, channels, float64(deviceRate), deviceFrames)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceOpen, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("%w: %v", ErrDeviceOpen, err)
	}

	log.Printf("🎙️ Audio stream opened: %s", dev.Name)

	c.device = dev
	c.running = true
	c.done = make(chan struct{})
	go c.captureLoop(stream, deviceFrames, channels, deviceRate, onFrame, c.done)
	return nil
}

func (c *Capture) captureLoop(stream InputStream, deviceFrames, channels, deviceRate int, onFrame FrameFunc, done chan struct{}) {
	defer func() {
		if err := stream.Stop(); err != nil {
			log.Printf("⚠️ Failed to stop input stream: %v", err)
		}
		if err := stream.Close(); err != nil {
			log.Printf("⚠️ Failed to close input stream: %v", err)
		}
		log.Println("🎙️ Audio stream closed")
		close(done)
	}()

	buf := make([]int16, deviceFrames*channels)
	for c.IsRunning() {
		if err := stream.Read(buf); err != nil {
			// Mid-stream read errors terminate the loop; restarting is
			// the caller's responsibility. The running flag is cleared so
			// IsRunning reflects the dead loop and Start works again
			// without a prior Stop.
			c.mu.Lock()
			wasRunning := c.running
			c.running = false
			c.mu.Unlock()
			if wasRunning {
				log.Printf("❌ Audio read error: %v", err)
			}
			return
		}

		pcm := Normalize(buf, channels, deviceRate, c.sampleRate)
		if len(pcm) > 0 {
			onFrame(pcm)
		}
	}
}

// Stop signals the capture loop to exit and waits for it with a bounded
// join. A loop stuck in a device read is abandoned after the bound rather
// than blocking the caller. Stopping an already-stopped capture is a no-op.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	done := c.done
	c.done = nil
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(stopJoinWait):
			// Abandoning past the bound is accepted; the loop is detached,
			// not a shutdown failure.
			log.Printf("⚠️ Capture loop for %q did not exit within %v, abandoning", c.device.Name, stopJoinWait)
			return nil
		}
	}
	log.Println("🎤 Audio capture stopped")
	return nil
}

// IsRunning reports whether the capture loop is active
func (c *Capture) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// DeviceName returns the name of the device currently or last captured from
func (c *Capture) DeviceName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device.Name
}
