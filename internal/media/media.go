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

// Package media defines the collaborators the pipeline drives: a demuxing
// source, per-stream decoders, a scaler, a resampler and a video encoder.
// The libav subpackage implements them on top of ffmpeg.
package media

import (
	"errors"
	"image"
)

// ErrNoFrame is returned by Decoder.ReceiveFrame when the decoder has no more
// output for the packets it was given so far.
var ErrNoFrame = errors.New("no frame available")

// Type is the kind of a stream.
type Type int

const (
	TypeUnknown Type = iota
	TypeVideo
	TypeAudio
)

func (t Type) String() string {
	switch t {
	case TypeVideo:
		return "video"
	case TypeAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Rational is a fraction such as a frame rate.
type Rational struct {
	Num, Den int
}

// Stream describes one stream of an opened source.
type Stream struct {
	Index int
	Type  Type
	Codec string

	// video
	Width      int
	Height     int
	FrameRate  Rational
	FrameCount int64

	// audio
	SampleRate int
	Channels   int

	// disposition
	Default         bool
	Impaired        bool // hearing or visually impaired variant
	AttachedPicture bool // cover art, a single still frame
}

// BestStream picks the preferred stream of type t the way ffmpeg's
// av_find_best_stream ranks them: streams flagged as the default and not
// impaired first, then moving pictures over attached cover art, then the
// most pixels or channels. Ties go to the stream that comes first.
func BestStream(streams []Stream, t Type) (Stream, bool) {
	var (
		best  Stream
		found bool
	)
	for _, st := range streams {
		if st.Type != t {
			continue
		}
		if !found || better(st, best) {
			best, found = st, true
		}
	}
	return best, found
}

func better(a, b Stream) bool {
	if da, db := disposition(a), disposition(b); da != db {
		return da > db
	}
	if a.AttachedPicture != b.AttachedPicture {
		return !a.AttachedPicture
	}
	return size(a) > size(b)
}

func disposition(s Stream) int {
	n := 0
	if !s.Impaired {
		n++
	}
	if s.Default {
		n++
	}
	return n
}

func size(s Stream) int {
	if s.Type == TypeAudio {
		return s.Channels
	}
	return s.Width * s.Height
}

// SampleFormat identifies the layout of one audio sample.
type SampleFormat int

const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatF32
	SampleFormatI16
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatF32:
		return "f32"
	case SampleFormatI16:
		return "i16"
	default:
		return "unknown"
	}
}

// AudioFormat is the sample format and rate an audio device negotiated.
type AudioFormat struct {
	SampleRate int
	Channels   int
	Sample     SampleFormat
}

// ScaleAlgorithm names the interpolation the scaler uses, e.g. "bicubic".
// It is passed through to the scaler unchanged.
type ScaleAlgorithm string

// Packet is one compressed chunk of a single stream. It stays valid until the
// next call to Source.ReadPacket.
type Packet interface {
	StreamIndex() int
}

// Frame is one decoded unit owned by its decoder. It stays valid until the
// next call to ReceiveFrame on the same decoder.
type Frame interface {
	Type() Type
}

// Image is a tightly packed RGB24 picture.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// Decoder decodes the packets of one stream. A decoder may emit zero, one or
// several frames per packet, so callers drain ReceiveFrame until ErrNoFrame.
type Decoder interface {
	// SendPacket submits a packet. A nil packet signals end of stream and
	// makes the decoder release everything it buffered.
	SendPacket(pkt Packet) error
	ReceiveFrame() (Frame, error)
	Close()
}

// Scaler converts decoded video frames to RGB24 at a fixed size.
type Scaler interface {
	Scale(f Frame) (Image, error)
	Close()
}

// Resampler converts decoded audio frames to interleaved float32 samples in
// the destination rate. The output always has Stream.Channels channels.
type Resampler interface {
	Resample(f Frame) ([]float32, error)
	// Flush returns the samples still held back by the resampler's delay.
	Flush() ([]float32, error)
	Close()
}

// Source is an opened media file.
type Source interface {
	// BestStream returns the preferred stream of the given type.
	BestStream(t Type) (Stream, bool)
	// ReadPacket returns the next packet in container order, or io.EOF.
	ReadPacket() (Packet, error)
	NewDecoder(s Stream) (Decoder, error)
	NewScaler(s Stream, width, height int, alg ScaleAlgorithm) (Scaler, error)
	NewResampler(s Stream, dst AudioFormat) (Resampler, error)
	Close() error
}

// Opener opens a source by path.
type Opener func(path string) (Source, error)

// EncoderOptions configures a video Encoder.
type EncoderOptions struct {
	Path      string
	Width     int
	Height    int
	FrameRate int
	Codec     string
}

// Encoder compresses pictures into a silent video container.
type Encoder interface {
	WriteImage(img *image.RGBA) error
	// Close flushes the encoder and finalizes the container.
	Close() error
}

// EncoderFactory creates encoders.
type EncoderFactory func(opts EncoderOptions) (Encoder, error)
