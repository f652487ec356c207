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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/boriwo/glyphplay/internal/frame"
	"github.com/boriwo/glyphplay/internal/glyph"
)

const (
	hideCursor   = "\x1b[?25l"
	showCursor   = "\x1b[?25h"
	blackBack    = "\x1b[48;2;0;0;0m"
	resetColors  = "\x1b[0m"
	glyphsPerPix = 2
)

// TerminalOptions configures a Terminal sink.
type TerminalOptions struct {
	ColorMode    glyph.ColorMode
	Pace         bool // wait one frame period between frames
	Sizer        Sizer
	PollInterval time.Duration
}

// Terminal draws every frame in place with ANSI control sequences. Each
// pixel becomes two glyph columns so cells come out roughly square.
type Terminal struct {
	out    *bufio.Writer
	opts   TerminalOptions
	logger *slog.Logger

	ticker  *time.Ticker
	rows    int
	drawn   int64
	started bool
}

var _ FrameSink = (*Terminal)(nil)

// NewTerminal returns a sink writing to out. A nil Sizer skips the fit gate.
func NewTerminal(out io.Writer, opts TerminalOptions, logger *slog.Logger) *Terminal {
	return &Terminal{
		out:    bufio.NewWriterSize(out, 64*1024),
		opts:   opts,
		logger: logger,
	}
}

// Start waits for the terminal to fit the grid and hides the cursor.
func (t *Terminal) Start(ctx context.Context, info StreamInfo) error {
	if t.opts.Sizer != nil {
		if err := WaitForFit(ctx, t.opts.Sizer, glyphsPerPix*info.Width, info.Height, t.opts.PollInterval, t.out, t.logger); err != nil {
			return err
		}
	}
	if t.opts.Pace && info.FrameRate > 0 {
		t.ticker = time.NewTicker(time.Second / time.Duration(info.FrameRate))
	}
	t.started = true
	t.out.WriteString(hideCursor)
	return t.out.Flush()
}

// WriteFrame draws g and moves the cursor back to its top-left corner.
func (t *Terminal) WriteFrame(ctx context.Context, g frame.Grid, _ FrameInfo) error {
	if t.ticker != nil && t.drawn > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.ticker.C:
		}
	}
	t.draw(g)
	t.drawn++
	if err := t.out.Flush(); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

func (t *Terminal) draw(g frame.Grid) {
	t.out.WriteString(blackBack)
	for _, row := range g {
		for _, p := range row {
			sym := glyph.ForPixel(p.R, p.G, p.B)
			t.out.WriteString(t.opts.ColorMode.Foreground(p.R, p.G, p.B))
			for i := 0; i < glyphsPerPix; i++ {
				t.out.WriteRune(sym)
			}
		}
		t.out.WriteByte('\n')
	}
	t.out.WriteString(resetColors)
	t.rows = g.Height()
	if t.rows > 0 {
		t.out.WriteString(cursorUp(t.rows))
	}
}

// Finish leaves the last frame on screen.
func (t *Terminal) Finish(context.Context) error {
	return t.restore()
}

// Close restores the cursor. It is a no-op after Finish.
func (t *Terminal) Close() error {
	return t.restore()
}

func (t *Terminal) restore() error {
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	if !t.started {
		return nil
	}
	t.started = false
	if t.rows > 0 {
		t.out.WriteString(cursorDown(t.rows))
	}
	t.out.WriteString(resetColors)
	t.out.WriteString(showCursor)
	return t.out.Flush()
}

func cursorUp(n int) string {
	return "\x1b[" + strconv.Itoa(n) + "A"
}

func cursorDown(n int) string {
	return "\x1b[" + strconv.Itoa(n) + "B"
}
