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

// Package libav implements the media collaborators on top of ffmpeg through
// go-astiav.
package libav

import (
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"

	"github.com/boriwo/glyphplay/internal/media"
)

func init() {
	astiav.SetLogLevel(astiav.LogLevelError)
}

type packet struct {
	p *astiav.Packet
}

func (p *packet) StreamIndex() int {
	return p.p.StreamIndex()
}

// Source is an opened input file.
type Source struct {
	fc      *astiav.FormatContext
	pkt     *packet
	streams []media.Stream
}

var _ media.Source = (*Source)(nil)

// Open opens and probes path. Images are opened the same way and show up as
// a single-frame video stream.
func Open(path string) (media.Source, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("allocating format context failed")
	}
	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("probing %s: %w", path, err)
	}

	s := &Source{
		fc:  fc,
		pkt: &packet{p: astiav.AllocPacket()},
	}
	for _, st := range fc.Streams() {
		s.streams = append(s.streams, describe(st))
	}
	return s, nil
}

func describe(st *astiav.Stream) media.Stream {
	par := st.CodecParameters()
	disp := st.DispositionFlags()
	out := media.Stream{
		Index:           st.Index(),
		Codec:           par.CodecID().String(),
		Default:         disp.Has(astiav.StreamDispositionFlagDefault),
		Impaired:        disp.Has(astiav.StreamDispositionFlagHearingImpaired) || disp.Has(astiav.StreamDispositionFlagVisualImpaired),
		AttachedPicture: disp.Has(astiav.StreamDispositionFlagAttachedPic),
	}
	switch par.MediaType() {
	case astiav.MediaTypeVideo:
		out.Type = media.TypeVideo
		out.Width = par.Width()
		out.Height = par.Height()
		r := st.AvgFrameRate()
		if r.Num() <= 0 || r.Den() <= 0 {
			r = st.RFrameRate()
		}
		out.FrameRate = media.Rational{Num: r.Num(), Den: r.Den()}
		out.FrameCount = st.NbFrames()
	case astiav.MediaTypeAudio:
		out.Type = media.TypeAudio
		out.SampleRate = par.SampleRate()
		out.Channels = outputLayout(par).Channels()
	}
	return out
}

// outputLayout is the layout audio of the stream is resampled to. Streams
// without a usable layout are played as stereo.
func outputLayout(par *astiav.CodecParameters) astiav.ChannelLayout {
	l := par.ChannelLayout()
	if l.Channels() <= 0 {
		return astiav.ChannelLayoutStereo
	}
	return l
}

// BestStream picks the preferred stream of type t, skipping cover art when a
// moving picture exists.
func (s *Source) BestStream(t media.Type) (media.Stream, bool) {
	return media.BestStream(s.streams, t)
}

// ReadPacket reads the next packet. The previous packet is released.
func (s *Source) ReadPacket() (media.Packet, error) {
	s.pkt.p.Unref()
	if err := s.fc.ReadFrame(s.pkt.p); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading packet: %w", err)
	}
	return s.pkt, nil
}

// Close releases the input.
func (s *Source) Close() error {
	if s.pkt != nil {
		s.pkt.p.Free()
		s.pkt = nil
	}
	if s.fc != nil {
		s.fc.CloseInput()
		s.fc.Free()
		s.fc = nil
	}
	return nil
}

func (s *Source) stream(index int) (*astiav.Stream, error) {
	for _, st := range s.fc.Streams() {
		if st.Index() == index {
			return st, nil
		}
	}
	return nil, fmt.Errorf("stream %d not found", index)
}
