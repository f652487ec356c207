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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/boriwo/glyphplay/internal/frame"
	"github.com/boriwo/glyphplay/internal/glyph"
)

// previewWidth is the column count of the progress preview.
const previewWidth = 40

// progress redraws a small glyph preview and a status line in place.
type progress struct {
	out   *bufio.Writer
	total int64
	now   func() time.Time

	start       time.Time
	windowStart time.Time
	windowCount int
	fps         float64
	lines       int
}

func newProgress(w io.Writer, total int64) *progress {
	return &progress{out: bufio.NewWriter(w), total: total, now: time.Now}
}

// update redraws the overlay after done frames, previewing g.
func (p *progress) update(g frame.Grid, done int64) {
	now := p.now()
	if p.start.IsZero() {
		p.start, p.windowStart = now, now
	}
	p.windowCount++
	if elapsed := now.Sub(p.windowStart); elapsed >= time.Second {
		p.fps = float64(p.windowCount) / elapsed.Seconds()
		p.windowStart, p.windowCount = now, 0
	}

	if p.lines > 0 {
		fmt.Fprintf(p.out, "\x1b[%dA", p.lines)
	}
	preview := g.Sample(previewWidth)
	var sb strings.Builder
	for _, row := range preview {
		sb.Reset()
		for _, px := range row {
			sb.WriteRune(glyph.ForPixel(px.R, px.G, px.B))
		}
		fmt.Fprintf(p.out, "\x1b[2K%s\n", sb.String())
	}
	fmt.Fprintf(p.out, "\x1b[2K%s\n", p.status(done, now.Sub(p.start)))
	p.lines = preview.Height() + 1
	p.out.Flush()
}

func (p *progress) status(done int64, elapsed time.Duration) string {
	pct := "?"
	if p.total > 0 {
		pct = fmt.Sprintf("%d%%", min(done*100/p.total, 100))
	}
	return fmt.Sprintf("%s  frame %s  elapsed %s  %s fps",
		pct, humanize.Comma(done), elapsed.Truncate(time.Second), humanize.FtoaWithDigits(p.fps, 1))
}
