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

package libav

import (
	"errors"
	"fmt"
	"image"

	"github.com/asticode/go-astiav"

	"github.com/boriwo/glyphplay/internal/media"
)

// fallbackCodec is used when the configured encoder is not compiled in.
const fallbackCodec = "mpeg4"

// Encoder writes RGBA pictures as a silent video stream.
type Encoder struct {
	oc     *astiav.FormatContext
	pb     *astiav.IOContext
	cc     *astiav.CodecContext
	stream *astiav.Stream
	ssc    *astiav.SoftwareScaleContext
	rgba   *astiav.Frame
	yuv    *astiav.Frame
	pkt    *astiav.Packet
	pts    int64
	closed bool
}

var _ media.Encoder = (*Encoder)(nil)

// NewEncoder creates the output container at opts.Path and writes its header.
func NewEncoder(opts media.EncoderOptions) (media.Encoder, error) {
	codec := astiav.FindEncoderByName(opts.Codec)
	if codec == nil {
		codec = astiav.FindEncoderByName(fallbackCodec)
	}
	if codec == nil {
		return nil, fmt.Errorf("no encoder for %q", opts.Codec)
	}

	e := &Encoder{}
	if err := e.open(codec, opts); err != nil {
		e.free()
		return nil, err
	}
	return e, nil
}

func (e *Encoder) open(codec *astiav.Codec, opts media.EncoderOptions) error {
	// yuv420p wants even dimensions
	w, h := opts.Width&^1, opts.Height&^1
	if w == 0 || h == 0 {
		return fmt.Errorf("invalid output size %dx%d", opts.Width, opts.Height)
	}

	oc, err := astiav.AllocOutputFormatContext(nil, "", opts.Path)
	if err != nil {
		return fmt.Errorf("allocating output context for %s: %w", opts.Path, err)
	}
	e.oc = oc

	e.cc = astiav.AllocCodecContext(codec)
	if e.cc == nil {
		return errors.New("allocating encoder context failed")
	}
	e.cc.SetWidth(w)
	e.cc.SetHeight(h)
	e.cc.SetPixelFormat(astiav.PixelFormatYuv420P)
	e.cc.SetTimeBase(astiav.NewRational(1, opts.FrameRate))
	e.cc.SetFramerate(astiav.NewRational(opts.FrameRate, 1))
	if oc.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader) {
		e.cc.SetFlags(astiav.NewCodecContextFlags(astiav.CodecContextFlagGlobalHeader))
	}
	if err := e.cc.Open(codec, nil); err != nil {
		return fmt.Errorf("opening %s encoder: %w", codec.Name(), err)
	}

	e.stream = oc.NewStream(nil)
	if e.stream == nil {
		return errors.New("creating output stream failed")
	}
	if err := e.cc.ToCodecParameters(e.stream.CodecParameters()); err != nil {
		return fmt.Errorf("copying encoder parameters: %w", err)
	}
	e.stream.SetTimeBase(e.cc.TimeBase())

	if !oc.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		pb, err := astiav.OpenIOContext(opts.Path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
		if err != nil {
			return fmt.Errorf("opening %s: %w", opts.Path, err)
		}
		e.pb = pb
		oc.SetPb(pb)
	}
	if err := oc.WriteHeader(nil); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	e.ssc, err = astiav.CreateSoftwareScaleContext(
		opts.Width, opts.Height, astiav.PixelFormatRgba,
		w, h, astiav.PixelFormatYuv420P,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return fmt.Errorf("creating rgba -> yuv420p context: %w", err)
	}

	e.rgba = astiav.AllocFrame()
	e.rgba.SetWidth(opts.Width)
	e.rgba.SetHeight(opts.Height)
	e.rgba.SetPixelFormat(astiav.PixelFormatRgba)
	if err := e.rgba.AllocBuffer(1); err != nil {
		return fmt.Errorf("allocating rgba frame: %w", err)
	}

	e.yuv = astiav.AllocFrame()
	e.yuv.SetWidth(w)
	e.yuv.SetHeight(h)
	e.yuv.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := e.yuv.AllocBuffer(0); err != nil {
		return fmt.Errorf("allocating yuv frame: %w", err)
	}

	e.pkt = astiav.AllocPacket()
	return nil
}

// WriteImage encodes one picture and muxes every packet the encoder emits.
func (e *Encoder) WriteImage(img *image.RGBA) error {
	if err := e.rgba.Data().FromImage(img); err != nil {
		return fmt.Errorf("loading picture: %w", err)
	}
	if err := e.yuv.MakeWritable(); err != nil {
		return fmt.Errorf("making frame writable: %w", err)
	}
	if err := e.ssc.ScaleFrame(e.rgba, e.yuv); err != nil {
		return fmt.Errorf("converting picture: %w", err)
	}
	e.yuv.SetPts(e.pts)
	e.pts++
	if err := e.cc.SendFrame(e.yuv); err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}
	return e.drain()
}

func (e *Encoder) drain() error {
	for {
		err := e.cc.ReceivePacket(e.pkt)
		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receiving packet: %w", err)
		}
		e.pkt.SetStreamIndex(e.stream.Index())
		e.pkt.RescaleTs(e.cc.TimeBase(), e.stream.TimeBase())
		err = e.oc.WriteInterleavedFrame(e.pkt)
		e.pkt.Unref()
		if err != nil {
			return fmt.Errorf("writing packet: %w", err)
		}
	}
}

// Close flushes buffered packets, writes the trailer and releases everything.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	defer e.free()

	if err := e.cc.SendFrame(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("flushing encoder: %w", err)
	}
	if err := e.drain(); err != nil {
		return err
	}
	if err := e.oc.WriteTrailer(); err != nil {
		return fmt.Errorf("writing trailer: %w", err)
	}
	return nil
}

func (e *Encoder) free() {
	if e.pkt != nil {
		e.pkt.Free()
	}
	if e.yuv != nil {
		e.yuv.Free()
	}
	if e.rgba != nil {
		e.rgba.Free()
	}
	if e.ssc != nil {
		e.ssc.Free()
	}
	if e.cc != nil {
		e.cc.Free()
	}
	if e.pb != nil {
		_ = e.pb.Close()
		e.pb.Free()
	}
	if e.oc != nil {
		e.oc.Free()
	}
	*e = Encoder{closed: true}
}
