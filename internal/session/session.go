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

// Package session drives one playback or export: it opens the source, picks
// the streams, and pumps packets through the video and audio stages into a
// sink until the source is exhausted.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/boriwo/glyphplay/internal/audio"
	"github.com/boriwo/glyphplay/internal/frame"
	"github.com/boriwo/glyphplay/internal/media"
	"github.com/boriwo/glyphplay/internal/ringbuf"
	"github.com/boriwo/glyphplay/internal/sink"
	"github.com/boriwo/glyphplay/internal/video"
)

// ErrNoVideoStream is returned when the source has nothing to draw.
var ErrNoVideoStream = errors.New("no video stream found")

// State is the lifecycle position of a session.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateSelectingStreams
	StateStreaming
	StateFlushing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateSelectingStreams:
		return "selecting_streams"
	case StateStreaming:
		return "streaming"
	case StateFlushing:
		return "flushing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Options configures a session.
type Options struct {
	Path           string
	MaxWidth       int // 0 disables downscaling
	ScaleAlgorithm media.ScaleAlgorithm
	Audio          bool // play the audio stream through the driver
	RingCapacity   int  // samples, power of two
	PollInterval   time.Duration
}

// Session runs the pipeline once.
type Session struct {
	opts   Options
	open   media.Opener
	sink   sink.FrameSink
	driver audio.Driver
	logger *slog.Logger

	state   State
	frames  int64
	dropped int64
}

// New creates a session. driver may be nil when opts.Audio is false.
func New(opts Options, open media.Opener, out sink.FrameSink, driver audio.Driver, logger *slog.Logger) *Session {
	if opts.RingCapacity <= 0 {
		opts.RingCapacity = ringbuf.DefaultCapacity
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = audio.DefaultPollInterval
	}
	return &Session{
		opts:   opts,
		open:   open,
		sink:   out,
		driver: driver,
		logger: logger,
	}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Frames returns the number of frames handed to the sink.
func (s *Session) Frames() int64 { return s.frames }

// Dropped returns the number of packets that belonged to neither stage.
func (s *Session) Dropped() int64 { return s.dropped }

func (s *Session) setState(st State) {
	s.logger.Debug("session state", slog.String("from", s.state.String()), slog.String("to", st.String()))
	s.state = st
}

// Run plays the source to the end. Any error leaves the session in
// StateError with every resource released.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			s.setState(StateError)
		}
	}()

	s.setState(StateOpening)
	src, err := s.open(s.opts.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.opts.Path, err)
	}
	defer src.Close()

	s.setState(StateSelectingStreams)
	vs, ok := src.BestStream(media.TypeVideo)
	if !ok {
		return ErrNoVideoStream
	}
	vstage, err := video.NewStage(src, vs, s.opts.MaxWidth, s.opts.ScaleAlgorithm)
	if err != nil {
		return err
	}
	defer vstage.Close()

	astage, ring, err := s.openAudio(src)
	if err != nil {
		return err
	}
	if astage != nil {
		defer astage.Close()
	}

	w, h := vstage.Size()
	s.logger.Info("streams selected",
		slog.Int("video_stream", vs.Index),
		slog.String("codec", vs.Codec),
		slog.Int("width", w),
		slog.Int("height", h),
		slog.Int("fps", vstage.FrameRate()),
		slog.Bool("audio", astage != nil))

	info := sink.StreamInfo{Width: w, Height: h, FrameRate: vstage.FrameRate(), FrameCount: vstage.FrameCount()}
	if err := s.sink.Start(ctx, info); err != nil {
		return fmt.Errorf("starting output: %w", err)
	}
	defer s.sink.Close()

	// the driver starts once the sink is ready, so a fit gate wait does not
	// count as underruns
	if astage != nil {
		if err := s.driver.Play(ring, astage.Channels()); err != nil {
			return fmt.Errorf("starting audio: %w", err)
		}
		defer s.driver.Close()
	}

	out := &sinkWriter{ctx: ctx, sink: s.sink, frames: &s.frames}
	audioIndex := -1
	if astage != nil {
		audioIndex = astage.StreamIndex()
	}

	s.setState(StateStreaming)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkt, err := src.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading packet: %w", err)
		}
		switch pkt.StreamIndex() {
		case vstage.StreamIndex():
			err = vstage.Decode(pkt, out)
		case audioIndex:
			err = astage.Decode(ctx, pkt)
		default:
			s.dropped++
		}
		if err != nil {
			return err
		}
	}

	s.setState(StateFlushing)
	if err := vstage.Flush(out); err != nil {
		return err
	}
	if astage != nil {
		if err := astage.Flush(ctx); err != nil {
			return err
		}
		if err := astage.WaitDrained(ctx); err != nil {
			return err
		}
		if n := ring.Underruns(); n > 0 {
			s.logger.Warn("audio underruns", slog.Uint64("samples", n))
		}
	}
	if err := s.sink.Finish(ctx); err != nil {
		return err
	}

	s.setState(StateClosed)
	s.logger.Info("session finished", slog.Int64("frames", s.frames), slog.Int64("dropped_packets", s.dropped))
	return nil
}

// openAudio builds the audio stage and its ring. It returns a nil stage when
// audio is disabled or the source has no audio stream.
func (s *Session) openAudio(src media.Source) (*audio.Stage, *ringbuf.Buffer, error) {
	if !s.opts.Audio || s.driver == nil {
		return nil, nil, nil
	}
	as, ok := src.BestStream(media.TypeAudio)
	if !ok {
		s.logger.Warn("no audio stream, playing video only")
		return nil, nil, nil
	}
	ring, err := ringbuf.New(s.opts.RingCapacity)
	if err != nil {
		return nil, nil, err
	}
	stage, err := audio.NewStage(src, as, s.driver.Format(), ring, s.opts.PollInterval)
	if err != nil {
		return nil, nil, err
	}
	return stage, ring, nil
}

// sinkWriter forwards the video stage's grids to the sink in order.
type sinkWriter struct {
	ctx    context.Context
	sink   sink.FrameSink
	frames *int64
}

func (w *sinkWriter) WriteGrid(g frame.Grid) error {
	if err := w.sink.WriteFrame(w.ctx, g, sink.FrameInfo{Index: *w.frames}); err != nil {
		return err
	}
	*w.frames++
	return nil
}
