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

// Package mediatest provides in-memory media collaborators for tests.
package mediatest

import (
	"errors"
	"image"
	"io"
	"sync"

	"github.com/boriwo/glyphplay/internal/media"
)

// Packet is a fake packet. Frames are the frames the decoder yields once the
// packet has been sent.
type Packet struct {
	Stream int
	Frames []*Frame
}

// StreamIndex implements media.Packet.
func (p *Packet) StreamIndex() int { return p.Stream }

// Frame is a fake decoded frame. Video frames carry packed RGB24 pixels at
// the scaler's output size; audio frames carry interleaved samples.
type Frame struct {
	Kind    media.Type
	Pix     []byte
	Samples []float32
}

// Type implements media.Frame.
func (f *Frame) Type() media.Type { return f.Kind }

// Decoder queues the frames of every sent packet. Frames listed in Buffered
// are held back until the end-of-stream signal.
type Decoder struct {
	Buffered []*Frame
	SendErr  error

	mu      sync.Mutex
	queue   []*Frame
	Sent    int
	Flushed bool
	Closed  bool
}

// SendPacket implements media.Decoder.
func (d *Decoder) SendPacket(pkt media.Packet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SendErr != nil {
		return d.SendErr
	}
	if pkt == nil {
		d.Flushed = true
		d.queue = append(d.queue, d.Buffered...)
		d.Buffered = nil
		return nil
	}
	d.Sent++
	if p, ok := pkt.(*Packet); ok {
		d.queue = append(d.queue, p.Frames...)
	}
	return nil
}

// ReceiveFrame implements media.Decoder.
func (d *Decoder) ReceiveFrame() (media.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil, media.ErrNoFrame
	}
	f := d.queue[0]
	d.queue = d.queue[1:]
	return f, nil
}

// Close implements media.Decoder.
func (d *Decoder) Close() {
	d.mu.Lock()
	d.Closed = true
	d.mu.Unlock()
}

// Scaler passes frame pixels through unchanged.
type Scaler struct {
	Width, Height int
	Closed        bool
}

// Scale implements media.Scaler.
func (s *Scaler) Scale(f media.Frame) (media.Image, error) {
	ff, ok := f.(*Frame)
	if !ok {
		return media.Image{}, errors.New("not a fake frame")
	}
	return media.Image{Width: s.Width, Height: s.Height, Pix: ff.Pix}, nil
}

// Close implements media.Scaler.
func (s *Scaler) Close() { s.Closed = true }

// Resampler passes frame samples through unchanged and returns Tail on
// Flush.
type Resampler struct {
	Tail    []float32
	Flushed bool
	Closed  bool
}

// Resample implements media.Resampler.
func (r *Resampler) Resample(f media.Frame) ([]float32, error) {
	ff, ok := f.(*Frame)
	if !ok {
		return nil, errors.New("not a fake frame")
	}
	return ff.Samples, nil
}

// Flush implements media.Resampler.
func (r *Resampler) Flush() ([]float32, error) {
	r.Flushed = true
	return r.Tail, nil
}

// Close implements media.Resampler.
func (r *Resampler) Close() { r.Closed = true }

// Source serves a fixed packet list.
type Source struct {
	Streams  []media.Stream
	Packets  []*Packet
	Decoders map[int]*Decoder
	ReadErr  error

	Scaler    *Scaler
	Resampler *Resampler
	Closed    bool

	next int
}

// BestStream implements media.Source.
func (s *Source) BestStream(t media.Type) (media.Stream, bool) {
	return media.BestStream(s.Streams, t)
}

// ReadPacket implements media.Source.
func (s *Source) ReadPacket() (media.Packet, error) {
	if s.next >= len(s.Packets) {
		if s.ReadErr != nil {
			return nil, s.ReadErr
		}
		return nil, io.EOF
	}
	p := s.Packets[s.next]
	s.next++
	return p, nil
}

// NewDecoder implements media.Source.
func (s *Source) NewDecoder(st media.Stream) (media.Decoder, error) {
	if s.Decoders == nil {
		s.Decoders = map[int]*Decoder{}
	}
	d, ok := s.Decoders[st.Index]
	if !ok {
		d = &Decoder{}
		s.Decoders[st.Index] = d
	}
	return d, nil
}

// NewScaler implements media.Source.
func (s *Source) NewScaler(_ media.Stream, width, height int, _ media.ScaleAlgorithm) (media.Scaler, error) {
	s.Scaler = &Scaler{Width: width, Height: height}
	return s.Scaler, nil
}

// NewResampler implements media.Source.
func (s *Source) NewResampler(_ media.Stream, dst media.AudioFormat) (media.Resampler, error) {
	if dst.Sample != media.SampleFormatF32 {
		return nil, errors.New("unsupported sample format")
	}
	if s.Resampler == nil {
		s.Resampler = &Resampler{}
	}
	return s.Resampler, nil
}

// Close implements media.Source.
func (s *Source) Close() error {
	s.Closed = true
	return nil
}

// VideoFrame returns a width x height frame filled with one gray level.
func VideoFrame(width, height int, level byte) *Frame {
	pix := make([]byte, width*height*3)
	for i := range pix {
		pix[i] = level
	}
	return &Frame{Kind: media.TypeVideo, Pix: pix}
}

// Encoder records the pictures it is given.
type Encoder struct {
	Options media.EncoderOptions
	Images  []*image.RGBA
	Closed  bool
}

// WriteImage implements media.Encoder. It keeps a copy, since callers may
// reuse img.
func (e *Encoder) WriteImage(img *image.RGBA) error {
	cp := *img
	cp.Pix = append([]byte(nil), img.Pix...)
	e.Images = append(e.Images, &cp)
	return nil
}

// Close implements media.Encoder.
func (e *Encoder) Close() error {
	e.Closed = true
	return nil
}
