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
	"encoding/binary"
	"fmt"
	"math"

	"github.com/asticode/go-astiav"

	"github.com/boriwo/glyphplay/internal/media"
)

type resampler struct {
	swr    *astiav.SoftwareResampleContext
	dst    *astiav.Frame
	rate   int
	layout astiav.ChannelLayout
	used   bool
}

// NewResampler converts frames of the stream to packed float32 at the
// destination rate. The output layout is pinned to the stream's layout, so
// every chunk carries media.Stream.Channels channels.
func (s *Source) NewResampler(st media.Stream, dst media.AudioFormat) (media.Resampler, error) {
	if dst.Sample != media.SampleFormatF32 {
		return nil, fmt.Errorf("resampling to %s is not supported", dst.Sample)
	}
	streams := s.fc.Streams()
	if st.Index < 0 || st.Index >= len(streams) {
		return nil, fmt.Errorf("no stream with index %d", st.Index)
	}
	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		return nil, fmt.Errorf("allocating resample context failed")
	}
	return &resampler{
		swr:    swr,
		dst:    astiav.AllocFrame(),
		rate:   dst.SampleRate,
		layout: outputLayout(streams[st.Index].CodecParameters()),
	}, nil
}

func (r *resampler) Resample(f media.Frame) ([]float32, error) {
	src, err := rawFrame(f)
	if err != nil {
		return nil, err
	}
	r.used = true
	return r.convert(src)
}

// Flush converts without input, which makes swresample release the samples
// held back by its filter delay.
func (r *resampler) Flush() ([]float32, error) {
	if !r.used {
		return nil, nil
	}
	return r.convert(nil)
}

func (r *resampler) convert(src *astiav.Frame) ([]float32, error) {
	r.dst.Unref()
	r.dst.SetSampleFormat(astiav.SampleFormatFlt)
	r.dst.SetChannelLayout(r.layout)
	r.dst.SetSampleRate(r.rate)
	if err := r.swr.ConvertFrame(src, r.dst); err != nil {
		return nil, fmt.Errorf("resampling frame: %w", err)
	}
	if r.dst.NbSamples() == 0 {
		return nil, nil
	}
	raw, err := r.dst.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("reading resampled data: %w", err)
	}
	n := min(len(raw)/4, r.dst.NbSamples()*r.layout.Channels())
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

func (r *resampler) Close() {
	r.dst.Free()
	r.swr.Free()
}
