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

package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boriwo/glyphplay/internal/audio"
	"github.com/boriwo/glyphplay/internal/frame"
	"github.com/boriwo/glyphplay/internal/glyph"
	"github.com/boriwo/glyphplay/internal/media"
	"github.com/boriwo/glyphplay/internal/media/mediatest"
	"github.com/boriwo/glyphplay/internal/ringbuf"
	"github.com/boriwo/glyphplay/internal/sink"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSink keeps the glyphs of every frame it receives.
type recordingSink struct {
	info     sink.StreamInfo
	frames   [][][]rune
	indices  []int64
	started  bool
	finished bool
	closed   bool
	writeErr error
	onStart  func()
}

func (r *recordingSink) Start(_ context.Context, info sink.StreamInfo) error {
	if r.onStart != nil {
		r.onStart()
	}
	r.started = true
	r.info = info
	return nil
}

func (r *recordingSink) WriteFrame(_ context.Context, g frame.Grid, info sink.FrameInfo) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	rows := make([][]rune, len(g))
	for y, row := range g {
		rows[y] = make([]rune, len(row))
		for x, p := range row {
			rows[y][x] = glyph.ForPixel(p.R, p.G, p.B)
		}
	}
	r.frames = append(r.frames, rows)
	r.indices = append(r.indices, info.Index)
	return nil
}

func (r *recordingSink) Finish(context.Context) error {
	r.finished = true
	return nil
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

// fakeDriver drains the ring on its own goroutine, like a device callback.
type fakeDriver struct {
	format media.AudioFormat
	err    error

	mu       sync.Mutex
	played   []float32
	channels int
	started  bool
	closed   bool
	stop     chan struct{}
	done     chan struct{}
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{format: media.AudioFormat{SampleRate: 44100, Channels: 2, Sample: media.SampleFormatF32}}
}

func (d *fakeDriver) Format() media.AudioFormat { return d.format }

func (d *fakeDriver) Play(ring *ringbuf.Buffer, channels int) error {
	if d.err != nil {
		return d.err
	}
	d.started = true
	d.channels = channels
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go func() {
		defer close(d.done)
		for {
			select {
			case <-d.stop:
				return
			default:
			}
			if ring.Len() == 0 {
				time.Sleep(time.Millisecond)
				continue
			}
			s := ring.PopOrSilence()
			d.mu.Lock()
			d.played = append(d.played, s)
			d.mu.Unlock()
		}
	}()
	return nil
}

func (d *fakeDriver) Close() error {
	if d.stop != nil {
		close(d.stop)
		<-d.done
		d.stop = nil
	}
	d.closed = true
	return nil
}

func (d *fakeDriver) samples() []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float32(nil), d.played...)
}

func opener(src *mediatest.Source) media.Opener {
	return func(string) (media.Source, error) { return src, nil }
}

func videoStream(index, w, h int) media.Stream {
	return media.Stream{Index: index, Type: media.TypeVideo, Codec: "rawvideo", Width: w, Height: h}
}

func TestRun_TwoFrameVideoWithoutAudio(t *testing.T) {
	src := &mediatest.Source{
		Streams: []media.Stream{videoStream(0, 8, 2)},
		Packets: []*mediatest.Packet{
			{Stream: 0, Frames: []*mediatest.Frame{mediatest.VideoFrame(8, 2, 0)}},
			{Stream: 0, Frames: []*mediatest.Frame{mediatest.VideoFrame(8, 2, 255)}},
		},
	}
	out := &recordingSink{}
	driver := newFakeDriver()
	s := New(Options{Path: "synthetic", Audio: true}, opener(src), out, driver, discardLogger())

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, StateClosed, s.State())
	assert.False(t, driver.started, "no audio stream means no audio stage")
	assert.Nil(t, src.Resampler)
	assert.Equal(t, sink.StreamInfo{Width: 8, Height: 2, FrameRate: 24}, out.info)

	require.Len(t, out.frames, 2)
	for _, f := range out.frames {
		require.Len(t, f, 2)
		for _, row := range f {
			assert.Len(t, row, 8)
		}
	}
	assert.Equal(t, ' ', out.frames[0][0][0], "black frame first")
	assert.Equal(t, '@', out.frames[1][1][7], "white frame second")
	assert.Equal(t, []int64{0, 1}, out.indices)
	assert.True(t, out.finished)
	assert.True(t, out.closed)
	assert.True(t, src.Closed)
	assert.True(t, src.Decoders[0].Flushed)
	assert.True(t, src.Decoders[0].Closed)
}

func TestRun_FlushedFramesFollowStreamedOnes(t *testing.T) {
	src := &mediatest.Source{
		Streams: []media.Stream{videoStream(0, 2, 1)},
		Packets: []*mediatest.Packet{
			{Stream: 0, Frames: []*mediatest.Frame{mediatest.VideoFrame(2, 1, 0)}},
		},
		Decoders: map[int]*mediatest.Decoder{
			0: {Buffered: []*mediatest.Frame{mediatest.VideoFrame(2, 1, 255)}},
		},
	}
	out := &recordingSink{}
	s := New(Options{}, opener(src), out, nil, discardLogger())

	require.NoError(t, s.Run(context.Background()))

	require.Len(t, out.frames, 2)
	assert.Equal(t, ' ', out.frames[0][0][0])
	assert.Equal(t, '@', out.frames[1][0][0])
	assert.Equal(t, int64(2), s.Frames())
}

func TestRun_RoutesPacketsByStream(t *testing.T) {
	src := &mediatest.Source{
		Streams: []media.Stream{
			videoStream(0, 2, 1),
			{Index: 1, Type: media.TypeAudio, SampleRate: 48000, Channels: 2},
		},
		Packets: []*mediatest.Packet{
			{Stream: 0, Frames: []*mediatest.Frame{mediatest.VideoFrame(2, 1, 100)}},
			{Stream: 1, Frames: []*mediatest.Frame{{Kind: media.TypeAudio, Samples: []float32{0.1, 0.2, 0.3, 0.4}}}},
			{Stream: 5},
			{Stream: 1, Frames: []*mediatest.Frame{{Kind: media.TypeAudio, Samples: []float32{0.5, 0.6}}}},
			{Stream: 0, Frames: []*mediatest.Frame{mediatest.VideoFrame(2, 1, 200)}},
		},
	}
	out := &recordingSink{}
	driver := newFakeDriver()
	s := New(Options{Audio: true, RingCapacity: 8, PollInterval: time.Millisecond}, opener(src), out, driver, discardLogger())

	require.NoError(t, s.Run(context.Background()))

	assert.Len(t, out.frames, 2)
	assert.Equal(t, int64(1), s.Dropped())
	assert.True(t, driver.started)
	assert.Equal(t, 2, driver.channels)
	assert.True(t, driver.closed)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, driver.samples(), "ring is drained before the driver stops")
	assert.Equal(t, 2, src.Decoders[1].Sent)
	assert.True(t, src.Decoders[1].Flushed)
	assert.True(t, src.Resampler.Closed)
}

func TestRun_AudioStartsAfterSinkIsReady(t *testing.T) {
	src := &mediatest.Source{
		Streams: []media.Stream{
			videoStream(0, 2, 1),
			{Index: 1, Type: media.TypeAudio, SampleRate: 44100, Channels: 2},
		},
		Packets: []*mediatest.Packet{
			{Stream: 0, Frames: []*mediatest.Frame{mediatest.VideoFrame(2, 1, 0)}},
		},
	}
	driver := newFakeDriver()
	playingDuringStart := true
	out := &recordingSink{onStart: func() { playingDuringStart = driver.started }}
	s := New(Options{Audio: true, RingCapacity: 8, PollInterval: time.Millisecond}, opener(src), out, driver, discardLogger())

	require.NoError(t, s.Run(context.Background()))
	assert.False(t, playingDuringStart, "the driver must not play while the sink waits for the terminal")
	assert.True(t, driver.started)
	assert.True(t, driver.closed)
}

func TestRun_SinkStartFailureLeavesDriverIdle(t *testing.T) {
	src := &mediatest.Source{
		Streams: []media.Stream{
			videoStream(0, 2, 1),
			{Index: 1, Type: media.TypeAudio, SampleRate: 44100, Channels: 2},
		},
	}
	driver := newFakeDriver()
	out := &failingStartSink{err: context.Canceled}
	s := New(Options{Audio: true}, opener(src), out, driver, discardLogger())

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, driver.started)
	assert.True(t, src.Resampler.Closed)
}

// failingStartSink fails in Start, as an interrupted fit gate does.
type failingStartSink struct {
	recordingSink
	err error
}

func (f *failingStartSink) Start(context.Context, sink.StreamInfo) error { return f.err }

func TestRun_AudioDisabledDropsAudioPackets(t *testing.T) {
	src := &mediatest.Source{
		Streams: []media.Stream{
			videoStream(0, 2, 1),
			{Index: 1, Type: media.TypeAudio, Channels: 1},
		},
		Packets: []*mediatest.Packet{
			{Stream: 1},
			{Stream: 0, Frames: []*mediatest.Frame{mediatest.VideoFrame(2, 1, 0)}},
		},
	}
	driver := newFakeDriver()
	s := New(Options{Audio: false}, opener(src), &recordingSink{}, driver, discardLogger())

	require.NoError(t, s.Run(context.Background()))
	assert.False(t, driver.started)
	assert.Equal(t, int64(1), s.Dropped())
	assert.NotContains(t, src.Decoders, 1)
}

func TestRun_NoVideoStream(t *testing.T) {
	src := &mediatest.Source{Streams: []media.Stream{{Index: 0, Type: media.TypeAudio, Channels: 2}}}
	out := &recordingSink{}
	s := New(Options{Audio: true}, opener(src), out, newFakeDriver(), discardLogger())

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoVideoStream)
	assert.Equal(t, StateError, s.State())
	assert.False(t, out.started)
	assert.True(t, src.Closed)
}

func TestRun_OpenFailure(t *testing.T) {
	failing := func(string) (media.Source, error) { return nil, errors.New("no such file") }
	s := New(Options{Path: "missing.mp4"}, failing, &recordingSink{}, nil, discardLogger())

	err := s.Run(context.Background())
	assert.ErrorContains(t, err, "missing.mp4")
	assert.Equal(t, StateError, s.State())
}

func TestRun_UnsupportedDeviceFormat(t *testing.T) {
	src := &mediatest.Source{
		Streams: []media.Stream{videoStream(0, 2, 1), {Index: 1, Type: media.TypeAudio, Channels: 2}},
	}
	driver := newFakeDriver()
	driver.format.Sample = media.SampleFormatI16
	s := New(Options{Audio: true}, opener(src), &recordingSink{}, driver, discardLogger())

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, audio.ErrUnsupportedFormat)
	assert.False(t, driver.started)
	assert.True(t, src.Decoders[0].Closed)
}

func TestRun_MalformedFrameIsFatal(t *testing.T) {
	src := &mediatest.Source{
		Streams: []media.Stream{videoStream(0, 2, 1)},
		Packets: []*mediatest.Packet{
			{Stream: 0, Frames: []*mediatest.Frame{{Kind: media.TypeVideo, Pix: []byte{1, 2, 3, 4}}}},
		},
	}
	out := &recordingSink{}
	s := New(Options{}, opener(src), out, nil, discardLogger())

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, frame.ErrMalformedFrame)
	assert.False(t, out.finished)
	assert.True(t, out.closed)
}

func TestRun_SinkErrorStopsSession(t *testing.T) {
	src := &mediatest.Source{
		Streams: []media.Stream{videoStream(0, 1, 1)},
		Packets: []*mediatest.Packet{
			{Stream: 0, Frames: []*mediatest.Frame{mediatest.VideoFrame(1, 1, 0)}},
			{Stream: 0, Frames: []*mediatest.Frame{mediatest.VideoFrame(1, 1, 0)}},
		},
	}
	out := &recordingSink{writeErr: errors.New("broken pipe")}
	s := New(Options{}, opener(src), out, nil, discardLogger())

	err := s.Run(context.Background())
	assert.ErrorContains(t, err, "broken pipe")
	assert.Equal(t, 1, src.Decoders[0].Sent)
}

func TestRun_Cancelled(t *testing.T) {
	src := &mediatest.Source{
		Streams: []media.Stream{videoStream(0, 1, 1)},
		Packets: []*mediatest.Packet{
			{Stream: 0, Frames: []*mediatest.Frame{mediatest.VideoFrame(1, 1, 0)}},
		},
	}
	out := &recordingSink{}
	s := New(Options{}, opener(src), out, nil, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.frames)
	assert.True(t, out.closed, "sink is closed so the terminal gets its cursor back")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "selecting_streams", StateSelectingStreams.String())
	assert.Equal(t, "error", StateError.String())
}
