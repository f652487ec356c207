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
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"
)

// DefaultPollInterval is how often the terminal size is re-checked.
const DefaultPollInterval = 500 * time.Millisecond

// Sizer reports the terminal size in character cells.
type Sizer interface {
	Size() (cols, rows int, err error)
}

// TermSizer queries the terminal attached to a file descriptor.
type TermSizer struct {
	Fd int
}

// StdoutSizer returns a sizer for the process's standard output.
func StdoutSizer() TermSizer {
	return TermSizer{Fd: int(os.Stdout.Fd())}
}

// Size implements Sizer.
func (s TermSizer) Size() (int, int, error) {
	return term.GetSize(s.Fd)
}

// WaitForFit blocks until the terminal is at least minCols x minRows,
// printing the shortfall to out on every poll. If the size cannot be
// determined it logs a warning once and returns without waiting.
func WaitForFit(ctx context.Context, sizer Sizer, minCols, minRows int, interval time.Duration, out io.Writer, logger *slog.Logger) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	cols, rows, err := sizer.Size()
	if err != nil {
		logger.Warn("unable to get terminal dimensions, not waiting for fit", slog.String("error", err.Error()))
		return nil
	}
	if cols >= minCols && rows >= minRows {
		return nil
	}

	fmt.Fprintf(out, "\x1b[1;31m%d x %d\x1b[0m (current: %d x %d)\n", minCols, minRows, cols, rows)
	flush(out)
	for cols < minCols || rows < minRows {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		c, r, err := sizer.Size()
		if err != nil {
			logger.Warn("lost terminal dimensions, not waiting for fit", slog.String("error", err.Error()))
			return nil
		}
		cols, rows = c, r
		fmt.Fprintf(out, "\x1b[1A\x1b[2K\x1b[1;31m%d x %d\x1b[0m (current: %d x %d)\n", minCols, minRows, cols, rows)
		flush(out)
	}
	fmt.Fprintf(out, "\x1b[1A\x1b[2K\x1b[1;32m%d x %d\x1b[0m\n", cols, rows)
	flush(out)
	return nil
}

// flush pushes buffered status lines to the terminal while the gate waits.
func flush(out io.Writer) {
	if f, ok := out.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
}
