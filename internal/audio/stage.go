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

// Package audio decodes and resamples the audio stream into the playback ring
// and feeds the ring to the audio driver's real-time callback.
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boriwo/glyphplay/internal/media"
	"github.com/boriwo/glyphplay/internal/ringbuf"
)

// DefaultPollInterval is how long the producer sleeps while the ring is full.
const DefaultPollInterval = 10 * time.Millisecond

// ErrUnsupportedFormat is returned when the device negotiated anything other
// than interleaved float samples.
var ErrUnsupportedFormat = errors.New("unsupported output sample format")

// ErrPartialFrame is returned when a resampled chunk does not hold a whole
// number of sample frames for the stream's channel count.
var ErrPartialFrame = errors.New("resampled chunk is not a whole number of frames")

// Stage decodes audio packets and pushes each resampled chunk into the ring
// as a whole.
type Stage struct {
	stream    media.Stream
	decoder   media.Decoder
	resampler media.Resampler
	ring      *ringbuf.Buffer
	poll      time.Duration
}

// NewStage opens a decoder for stream and a resampler to the device format.
func NewStage(src media.Source, stream media.Stream, device media.AudioFormat, ring *ringbuf.Buffer, poll time.Duration) (*Stage, error) {
	if device.Sample != media.SampleFormatF32 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, device.Sample)
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	dec, err := src.NewDecoder(stream)
	if err != nil {
		return nil, fmt.Errorf("creating audio decoder: %w", err)
	}
	rs, err := src.NewResampler(stream, device)
	if err != nil {
		dec.Close()
		return nil, fmt.Errorf("creating resampler: %w", err)
	}
	return &Stage{
		stream:    stream,
		decoder:   dec,
		resampler: rs,
		ring:      ring,
		poll:      poll,
	}, nil
}

// StreamIndex returns the index of the decoded stream.
func (s *Stage) StreamIndex() int { return s.stream.Index }

// Channels returns the channel count of the samples pushed into the ring.
// The resampler is pinned to this layout.
func (s *Stage) Channels() int { return max(s.stream.Channels, 1) }

// Decode submits a packet and pushes every resampled frame into the ring,
// waiting for free space when needed.
func (s *Stage) Decode(ctx context.Context, pkt media.Packet) error {
	if err := s.decoder.SendPacket(pkt); err != nil {
		return fmt.Errorf("decoding audio: %w", err)
	}
	return s.drain(ctx)
}

// Flush signals end of stream and pushes what the decoder buffered, followed
// by the resampler's delayed tail.
func (s *Stage) Flush(ctx context.Context) error {
	if err := s.decoder.SendPacket(nil); err != nil {
		return fmt.Errorf("flushing audio decoder: %w", err)
	}
	if err := s.drain(ctx); err != nil {
		return err
	}
	tail, err := s.resampler.Flush()
	if err != nil {
		return fmt.Errorf("flushing resampler: %w", err)
	}
	return s.push(ctx, tail)
}

func (s *Stage) drain(ctx context.Context) error {
	for {
		f, err := s.decoder.ReceiveFrame()
		if errors.Is(err, media.ErrNoFrame) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decoding audio: %w", err)
		}
		samples, err := s.resampler.Resample(f)
		if err != nil {
			return err
		}
		if err := s.push(ctx, samples); err != nil {
			return err
		}
	}
}

// push blocks until the whole chunk fits. Decoding can only run ahead of
// playback by the ring's capacity.
func (s *Stage) push(ctx context.Context, chunk []float32) error {
	if len(chunk) == 0 {
		return nil
	}
	if ch := s.Channels(); len(chunk)%ch != 0 {
		return fmt.Errorf("%w: %d samples for %d channels", ErrPartialFrame, len(chunk), ch)
	}
	for {
		ok, err := s.ring.TryPush(chunk)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.poll):
		}
	}
}

// WaitDrained blocks until the consumer has played everything in the ring.
func (s *Stage) WaitDrained(ctx context.Context) error {
	for s.ring.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.poll):
		}
	}
	return nil
}

// Close releases the decoder and resampler.
func (s *Stage) Close() {
	s.resampler.Close()
	s.decoder.Close()
}
