/**
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package audio

import (
	"fmt"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"

	"github.com/boriwo/glyphplay/internal/media"
	"github.com/boriwo/glyphplay/internal/ringbuf"
)

// DefaultSampleRate is the device rate used when none is configured.
const DefaultSampleRate = 44100

// Driver is the audio output. Once Play is called, the driver pulls samples
// from the ring on its own goroutine until Close.
type Driver interface {
	Format() media.AudioFormat
	Play(ring *ringbuf.Buffer, channels int) error
	Close() error
}

// BeepDriver plays through the beep speaker.
type BeepDriver struct {
	rate    beep.SampleRate
	latency time.Duration
	started bool
}

var _ Driver = (*BeepDriver)(nil)

// NewBeepDriver returns a driver for the default output device.
func NewBeepDriver(sampleRate int, latency time.Duration) *BeepDriver {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if latency <= 0 {
		latency = time.Second / 10
	}
	return &BeepDriver{rate: beep.SampleRate(sampleRate), latency: latency}
}

// Format reports the format beep mixes in: stereo float.
func (d *BeepDriver) Format() media.AudioFormat {
	return media.AudioFormat{SampleRate: int(d.rate), Channels: 2, Sample: media.SampleFormatF32}
}

// Play initializes the speaker and starts the callback.
func (d *BeepDriver) Play(ring *ringbuf.Buffer, channels int) error {
	if err := speaker.Init(d.rate, d.rate.N(d.latency)); err != nil {
		return fmt.Errorf("initializing speaker: %w", err)
	}
	d.started = true
	speaker.Play(streamRing(ring, channels))
	return nil
}

// Close stops playback and releases the device.
func (d *BeepDriver) Close() error {
	if !d.started {
		return nil
	}
	d.started = false
	speaker.Clear()
	speaker.Close()
	return nil
}

// streamRing adapts the ring to a beep streamer. It never ends on its own;
// an empty ring plays silence.
//
// See https://github.com/faiface/beep/wiki/Making-own-streamers
func streamRing(ring *ringbuf.Buffer, channels int) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		fill(samples, ring, channels)
		return len(samples), true
	})
}

// fill writes one stereo frame per slot, taking channels samples from the
// ring per frame. Mono is duplicated; channels past the second are dropped.
func fill(samples [][2]float64, ring *ringbuf.Buffer, channels int) {
	for i := range samples {
		left := float64(ring.PopOrSilence())
		right := left
		if channels > 1 {
			right = float64(ring.PopOrSilence())
			for c := 2; c < channels; c++ {
				ring.PopOrSilence()
			}
		}
		samples[i] = [2]float64{left, right}
	}
}
