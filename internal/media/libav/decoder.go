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

	"github.com/asticode/go-astiav"

	"github.com/boriwo/glyphplay/internal/media"
)

type frame struct {
	f *astiav.Frame
	t media.Type
}

func (f *frame) Type() media.Type {
	return f.t
}

type decoder struct {
	cc    *astiav.CodecContext
	frame *frame
}

// NewDecoder opens a decoder for one stream of the source.
func (s *Source) NewDecoder(ms media.Stream) (media.Decoder, error) {
	st, err := s.stream(ms.Index)
	if err != nil {
		return nil, err
	}
	par := st.CodecParameters()
	codec := astiav.FindDecoder(par.CodecID())
	if codec == nil {
		return nil, fmt.Errorf("no decoder for %s", par.CodecID())
	}
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, fmt.Errorf("allocating %s decoder context failed", codec.Name())
	}
	if err := par.ToCodecContext(cc); err != nil {
		cc.Free()
		return nil, fmt.Errorf("copying codec parameters: %w", err)
	}
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("opening %s decoder: %w", codec.Name(), err)
	}
	return &decoder{
		cc:    cc,
		frame: &frame{f: astiav.AllocFrame(), t: ms.Type},
	}, nil
}

func (d *decoder) SendPacket(pkt media.Packet) error {
	var p *astiav.Packet
	if pkt != nil {
		lp, ok := pkt.(*packet)
		if !ok {
			return fmt.Errorf("unexpected packet type %T", pkt)
		}
		p = lp.p
	}
	if err := d.cc.SendPacket(p); err != nil && !errors.Is(err, astiav.ErrEagain) && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("sending packet: %w", err)
	}
	return nil
}

func (d *decoder) ReceiveFrame() (media.Frame, error) {
	err := d.cc.ReceiveFrame(d.frame.f)
	switch {
	case err == nil:
		return d.frame, nil
	case errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrEof):
		return nil, media.ErrNoFrame
	default:
		return nil, fmt.Errorf("receiving frame: %w", err)
	}
}

func (d *decoder) Close() {
	d.frame.f.Free()
	d.cc.Free()
}

func rawFrame(f media.Frame) (*astiav.Frame, error) {
	lf, ok := f.(*frame)
	if !ok {
		return nil, fmt.Errorf("unexpected frame type %T", f)
	}
	return lf.f, nil
}
