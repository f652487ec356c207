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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boriwo/glyphplay/internal/frame"
	"github.com/boriwo/glyphplay/internal/media"
	"github.com/boriwo/glyphplay/internal/media/mediatest"
	"github.com/boriwo/glyphplay/internal/raster"
)

type mergeCall struct {
	original, video, output string
	videoExisted            bool
}

type fakeMerger struct {
	calls []mergeCall
	err   error
}

func (m *fakeMerger) Merge(_ context.Context, original, video, output string) error {
	_, statErr := os.Stat(video)
	m.calls = append(m.calls, mergeCall{original, video, output, statErr == nil})
	if m.err != nil {
		return m.err
	}
	return os.WriteFile(output, []byte("merged"), 0o600)
}

type fileFixture struct {
	sink    *File
	merger  *fakeMerger
	encoder *mediatest.Encoder
	workDir string
	output  string
	logs    *bytes.Buffer
}

func newFileFixture(t *testing.T, progress *bytes.Buffer, makeTmp func(path string) error) *fileFixture {
	t.Helper()
	font, err := raster.LoadFont("")
	require.NoError(t, err)
	renderer, err := raster.New(font, raster.DefaultFontSize, raster.DefaultKerning)
	require.NoError(t, err)

	fx := &fileFixture{
		merger:  &fakeMerger{},
		workDir: t.TempDir(),
		output:  filepath.Join(t.TempDir(), "out.mp4"),
		logs:    &bytes.Buffer{},
	}
	factory := func(opts media.EncoderOptions) (media.Encoder, error) {
		if makeTmp != nil {
			if err := makeTmp(opts.Path); err != nil {
				return nil, err
			}
		}
		fx.encoder = &mediatest.Encoder{Options: opts}
		return fx.encoder, nil
	}
	opts := FileOptions{Source: "movie.mp4", Output: fx.output, WorkDir: fx.workDir, Codec: "libx264"}
	if progress != nil {
		opts.Progress = progress
	}
	logger := slog.New(slog.NewTextHandler(fx.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fx.sink = NewFile(opts, renderer, factory, fx.merger, logger)
	return fx
}

func touch(path string) error {
	return os.WriteFile(path, []byte("silent"), 0o600)
}

func TestFile_Export(t *testing.T) {
	fx := newFileFixture(t, nil, touch)
	ctx := context.Background()

	require.NoError(t, fx.sink.Start(ctx, StreamInfo{Width: 8, Height: 2}))
	opts := fx.encoder.Options
	assert.Equal(t, fx.workDir, filepath.Dir(opts.Path))
	assert.Equal(t, ".mp4", filepath.Ext(opts.Path))
	assert.Equal(t, 64, opts.Width)
	assert.Equal(t, 16, opts.Height)
	assert.Equal(t, 24, opts.FrameRate, "missing rate falls back to 24")
	assert.Equal(t, "libx264", opts.Codec)

	for i := 0; i < 2; i++ {
		require.NoError(t, fx.sink.WriteFrame(ctx, solidGrid(8, 2, frame.Pixel{R: 255, G: 255, B: 255}), FrameInfo{Index: int64(i)}))
	}
	require.NoError(t, fx.sink.Finish(ctx))
	require.NoError(t, fx.sink.Close())

	assert.True(t, fx.encoder.Closed)
	require.Len(t, fx.encoder.Images, 2)
	assert.Equal(t, 64, fx.encoder.Images[0].Rect.Dx())

	require.Len(t, fx.merger.calls, 1)
	call := fx.merger.calls[0]
	assert.Equal(t, "movie.mp4", call.original)
	assert.Equal(t, opts.Path, call.video)
	assert.Equal(t, fx.output, call.output)
	assert.True(t, call.videoExisted, "merge runs before the intermediate file is removed")

	assert.NoFileExists(t, opts.Path)
	assert.FileExists(t, fx.output)
	assert.Contains(t, fx.logs.String(), "export complete")
	assert.Contains(t, fx.logs.String(), "encode timing")
}

func TestFile_UsesDeclaredFrameRate(t *testing.T) {
	fx := newFileFixture(t, nil, nil)

	require.NoError(t, fx.sink.Start(context.Background(), StreamInfo{Width: 1, Height: 1, FrameRate: 30}))
	assert.Equal(t, 30, fx.encoder.Options.FrameRate)
	require.NoError(t, fx.sink.Close())
}

func TestFile_MergeFailureIsFatal(t *testing.T) {
	fx := newFileFixture(t, nil, touch)
	fx.merger.err = errors.New("ffmpeg missing")
	ctx := context.Background()

	require.NoError(t, fx.sink.Start(ctx, StreamInfo{Width: 2, Height: 2}))
	require.NoError(t, fx.sink.WriteFrame(ctx, solidGrid(2, 2, frame.Pixel{}), FrameInfo{}))
	tmp := fx.encoder.Options.Path

	err := fx.sink.Finish(ctx)
	assert.ErrorContains(t, err, "ffmpeg missing")

	require.NoError(t, fx.sink.Close())
	assert.NoFileExists(t, tmp)
}

func TestFile_RemovalFailureIsOnlyLogged(t *testing.T) {
	// a non-empty directory in place of the intermediate file cannot be removed
	fx := newFileFixture(t, nil, func(path string) error {
		if err := os.Mkdir(path, 0o700); err != nil {
			return err
		}
		return touch(filepath.Join(path, "keep"))
	})
	ctx := context.Background()

	require.NoError(t, fx.sink.Start(ctx, StreamInfo{Width: 2, Height: 2}))
	require.NoError(t, fx.sink.WriteFrame(ctx, solidGrid(2, 2, frame.Pixel{}), FrameInfo{}))

	require.NoError(t, fx.sink.Finish(ctx))
	assert.Contains(t, fx.logs.String(), "failed to remove intermediate video")
	assert.FileExists(t, fx.output)
}

func TestFile_EncoderFailure(t *testing.T) {
	fx := newFileFixture(t, nil, func(string) error { return errors.New("no codec") })

	err := fx.sink.Start(context.Background(), StreamInfo{Width: 2, Height: 2})
	assert.ErrorContains(t, err, "no codec")
	assert.NoError(t, fx.sink.Close())
}

func TestFile_WriteBeforeStart(t *testing.T) {
	fx := newFileFixture(t, nil, nil)

	err := fx.sink.WriteFrame(context.Background(), solidGrid(1, 1, frame.Pixel{}), FrameInfo{})
	assert.Error(t, err)
}

func TestFile_ProgressOverlay(t *testing.T) {
	var overlay bytes.Buffer
	fx := newFileFixture(t, &overlay, nil)
	ctx := context.Background()

	require.NoError(t, fx.sink.Start(ctx, StreamInfo{Width: 80, Height: 4, FrameCount: 2}))
	clock := time.Unix(0, 0)
	fx.sink.progress.now = func() time.Time { return clock }

	require.NoError(t, fx.sink.WriteFrame(ctx, solidGrid(80, 4, frame.Pixel{R: 255, G: 255, B: 255}), FrameInfo{Index: 0}))
	first := overlay.String()
	assert.Contains(t, first, strings.Repeat("@", 40)+"\n", "preview is downsampled to 40 columns")
	assert.Contains(t, first, "50%  frame 1")

	clock = clock.Add(2 * time.Second)
	require.NoError(t, fx.sink.WriteFrame(ctx, solidGrid(80, 4, frame.Pixel{}), FrameInfo{Index: 1}))
	second := strings.TrimPrefix(overlay.String(), first)
	assert.True(t, strings.HasPrefix(second, "\x1b[3A"), "overlay redraws in place")
	assert.Contains(t, second, "100%  frame 2  elapsed 2s  1 fps")

	require.NoError(t, fx.sink.Close())
}
