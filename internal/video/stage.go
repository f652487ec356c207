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

// Package video decodes one video stream and turns every decoded frame into
// a scaled pixel grid.
package video

import (
	"errors"
	"fmt"
	"math"

	"github.com/boriwo/glyphplay/internal/frame"
	"github.com/boriwo/glyphplay/internal/media"
)

const (
	// DefaultFrameRate replaces a missing or implausible declared frame rate.
	DefaultFrameRate = 24
	// MaxFrameRate is the largest declared rate taken at face value.
	MaxFrameRate = 1000
)

// GridWriter receives the grids a Stage produces, in decode order.
type GridWriter interface {
	WriteGrid(g frame.Grid) error
}

// ScaledSize returns the output size for a native size and an optional
// maximum width (0 disables downscaling). It never upscales and keeps the
// aspect ratio.
func ScaledSize(width, height, maxWidth int) (int, int) {
	if maxWidth <= 0 || width <= maxWidth {
		return width, height
	}
	factor := float64(maxWidth) / float64(width)
	w := int(math.Round(float64(width) * factor))
	h := int(math.Round(float64(height) * factor))
	return max(w, 1), max(h, 1)
}

// FrameRate returns the declared frame rate rounded to whole frames per
// second, or DefaultFrameRate when it is absent or above MaxFrameRate.
func FrameRate(r media.Rational) int {
	if r.Num <= 0 || r.Den <= 0 {
		return DefaultFrameRate
	}
	fps := int(math.Round(float64(r.Num) / float64(r.Den)))
	if fps <= 0 || fps > MaxFrameRate {
		return DefaultFrameRate
	}
	return fps
}

// Stage wraps the decoder and scaler of the selected video stream.
type Stage struct {
	stream    media.Stream
	decoder   media.Decoder
	scaler    media.Scaler
	width     int
	height    int
	frameRate int
}

// NewStage opens a decoder for stream and a scaler targeting RGB24 at the
// size ScaledSize computes for maxWidth.
func NewStage(src media.Source, stream media.Stream, maxWidth int, alg media.ScaleAlgorithm) (*Stage, error) {
	if stream.Width <= 0 || stream.Height <= 0 {
		return nil, fmt.Errorf("video stream %d has invalid size %dx%d", stream.Index, stream.Width, stream.Height)
	}
	dec, err := src.NewDecoder(stream)
	if err != nil {
		return nil, fmt.Errorf("creating video decoder: %w", err)
	}
	w, h := ScaledSize(stream.Width, stream.Height, maxWidth)
	sc, err := src.NewScaler(stream, w, h, alg)
	if err != nil {
		dec.Close()
		return nil, fmt.Errorf("creating scaler: %w", err)
	}
	return &Stage{
		stream:    stream,
		decoder:   dec,
		scaler:    sc,
		width:     w,
		height:    h,
		frameRate: FrameRate(stream.FrameRate),
	}, nil
}

// StreamIndex returns the index of the decoded stream.
func (s *Stage) StreamIndex() int { return s.stream.Index }

// Size returns the grid size every frame is scaled to.
func (s *Stage) Size() (int, int) { return s.width, s.height }

// FrameRate returns the sanitized frame rate of the stream.
func (s *Stage) FrameRate() int { return s.frameRate }

// FrameCount returns the declared number of frames, 0 if unknown.
func (s *Stage) FrameCount() int64 { return s.stream.FrameCount }

// Decode submits a packet and forwards every frame the decoder yields.
func (s *Stage) Decode(pkt media.Packet, out GridWriter) error {
	if err := s.decoder.SendPacket(pkt); err != nil {
		return fmt.Errorf("decoding video: %w", err)
	}
	return s.drain(out)
}

// Flush signals end of stream and forwards the frames the decoder buffered.
func (s *Stage) Flush(out GridWriter) error {
	if err := s.decoder.SendPacket(nil); err != nil {
		return fmt.Errorf("flushing video decoder: %w", err)
	}
	return s.drain(out)
}

func (s *Stage) drain(out GridWriter) error {
	for {
		f, err := s.decoder.ReceiveFrame()
		if errors.Is(err, media.ErrNoFrame) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decoding video: %w", err)
		}
		img, err := s.scaler.Scale(f)
		if err != nil {
			return err
		}
		grid, err := frame.Build(img.Pix, img.Width)
		if err != nil {
			return err
		}
		if err := out.WriteGrid(grid); err != nil {
			return err
		}
	}
}

// Close releases the decoder and scaler.
func (s *Stage) Close() {
	s.scaler.Close()
	s.decoder.Close()
}
