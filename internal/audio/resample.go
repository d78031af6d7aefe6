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
	"encoding/binary"
	"math"
)

// Normalize converts interleaved device samples into the wire format the
// streaming service expects: mono, target sample rate, little-endian
// signed 16-bit PCM with no header or padding.
func Normalize(samples []int16, channels, deviceRate, targetRate int) []byte {
	mono := downmix(samples, channels)
	if deviceRate != targetRate {
		mono = resampleLinear(mono, deviceRate, targetRate)
	}
	return pcmBytes(mono)
}

// downmix averages all channels of each frame into a single mono sample
func downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	mono := make([]int16, 0, (len(samples)+channels-1)/channels)
	for i := 0; i < len(samples); i += channels {
		end := i + channels
		if end > len(samples) {
			end = len(samples)
		}
		sum := 0
		for _, s := range samples[i:end] {
			sum += int(s)
		}
		mono = append(mono, int16(sum/(end-i)))
	}
	return mono
}

// resampleLinear produces round(len*dst/src) output samples by linear
// interpolation between adjacent input samples at fractional positions.
// Interpolated values are clamped to the signed 16-bit range.
func resampleLinear(samples []int16, srcRate, dstRate int) []int16 {
	if len(samples) == 0 || srcRate <= 0 || dstRate <= 0 {
		return nil
	}
	ratio := float64(dstRate) / float64(srcRate)
	outLen := int(math.Round(float64(len(samples)) * ratio))
	out := make([]int16, 0, outLen)
	for i := 0; i < outLen; i++ {
		pos := float64(i) / ratio
		idx := int(pos)
		frac := pos - float64(idx)

		var value int
		switch {
		case idx+1 < len(samples):
			value = int(float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac)
		case idx < len(samples):
			value = int(samples[idx])
		default:
			return out
		}
		out = append(out, clamp16(value))
	}
	return out
}

func clamp16(v int) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// pcmBytes serializes samples as tightly packed little-endian int16
func pcmBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}
