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

package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/boriwo/glyphplay/internal/frame"
	"github.com/boriwo/glyphplay/internal/media"
	"github.com/boriwo/glyphplay/internal/observability"
	"github.com/boriwo/glyphplay/internal/raster"
	"github.com/boriwo/glyphplay/internal/video"
)

// Merger combines the video of one file with the audio of another.
type Merger interface {
	Merge(ctx context.Context, original, video, output string) error
}

// FileOptions configures a File sink.
type FileOptions struct {
	Source  string // input whose audio track is copied
	Output  string
	WorkDir string // where the silent intermediate video is written
	Codec   string
	// Progress receives the live overlay; nil disables it.
	Progress io.Writer
}

// File renders every grid to an image, encodes a silent video, and merges
// the source's audio into Output when the stream ends.
type File struct {
	opts       FileOptions
	renderer   *raster.Renderer
	newEncoder media.EncoderFactory
	merger     Merger
	logger     *slog.Logger

	enc      media.Encoder
	tmp      string
	frames   int64
	encTotal time.Duration
	encMax   time.Duration
	progress *progress
}

var _ FrameSink = (*File)(nil)

// NewFile creates a file sink.
func NewFile(opts FileOptions, renderer *raster.Renderer, newEncoder media.EncoderFactory, merger Merger, logger *slog.Logger) *File {
	return &File{
		opts:       opts,
		renderer:   renderer,
		newEncoder: newEncoder,
		merger:     merger,
		logger:     logger,
	}
}

// Start creates the intermediate video.
func (f *File) Start(_ context.Context, info StreamInfo) error {
	if f.opts.Output == "" {
		return errors.New("no output path")
	}
	fps := info.FrameRate
	if fps <= 0 {
		fps = video.DefaultFrameRate
	}
	f.tmp = filepath.Join(f.opts.WorkDir, uuid.NewString()+".mp4")
	w, h := f.renderer.Size(info.Width, info.Height)

	enc, err := f.newEncoder(media.EncoderOptions{
		Path:      f.tmp,
		Width:     w,
		Height:    h,
		FrameRate: fps,
		Codec:     f.opts.Codec,
	})
	if err != nil {
		return fmt.Errorf("creating encoder: %w", err)
	}
	f.enc = enc
	if f.opts.Progress != nil {
		f.progress = newProgress(f.opts.Progress, info.FrameCount)
	}

	f.logger.Info("exporting",
		slog.String("intermediate", f.tmp),
		slog.Int("width", w),
		slog.Int("height", h),
		slog.Int("fps", fps))
	return nil
}

// WriteFrame renders and encodes one grid.
func (f *File) WriteFrame(_ context.Context, g frame.Grid, _ FrameInfo) error {
	if f.enc == nil {
		return errors.New("file sink not started")
	}
	img, err := f.renderer.Render(g)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := f.enc.WriteImage(img); err != nil {
		return fmt.Errorf("encoding frame %d: %w", f.frames, err)
	}
	d := time.Since(start)
	f.encTotal += d
	f.encMax = max(f.encMax, d)
	f.frames++

	if f.progress != nil {
		f.progress.update(g, f.frames)
	}
	return nil
}

// Finish closes the intermediate video, merges the audio and removes the
// intermediate file.
func (f *File) Finish(ctx context.Context) error {
	defer observability.TrackTime(f.logger, time.Now(), "finish_export")

	if f.enc == nil {
		return errors.New("file sink not started")
	}
	err := f.enc.Close()
	f.enc = nil
	if err != nil {
		return fmt.Errorf("finalizing video: %w", err)
	}
	if f.frames > 0 {
		f.logger.Debug("encode timing",
			slog.Int64("frames", f.frames),
			slog.Duration("avg", f.encTotal/time.Duration(f.frames)),
			slog.Duration("max", f.encMax))
	}

	if err := f.merger.Merge(ctx, f.opts.Source, f.tmp, f.opts.Output); err != nil {
		return fmt.Errorf("merging audio: %w", err)
	}
	f.removeTmp()

	attrs := []any{slog.String("output", f.opts.Output), slog.Int64("frames", f.frames)}
	if st, err := os.Stat(f.opts.Output); err == nil {
		attrs = append(attrs, slog.String("size", humanize.Bytes(uint64(st.Size()))))
	}
	f.logger.Info("export complete", attrs...)
	return nil
}

// Close releases the encoder and intermediate file after a failed export.
func (f *File) Close() error {
	var err error
	if f.enc != nil {
		err = f.enc.Close()
		f.enc = nil
	}
	f.removeTmp()
	return err
}

// removeTmp deletes the intermediate video. Failure is only logged.
func (f *File) removeTmp() {
	if f.tmp == "" {
		return
	}
	if err := os.Remove(f.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		f.logger.Warn("failed to remove intermediate video",
			slog.String("path", f.tmp),
			slog.String("error", err.Error()))
	}
	f.tmp = ""
}
