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

// Package frame turns packed RGB24 buffers into row-major pixel grids.
package frame

import (
	"errors"
	"fmt"
)

// BytesPerPixel is the size of one packed RGB24 pixel.
const BytesPerPixel = 3

// ErrMalformedFrame is returned when a buffer cannot be split into whole rows.
var ErrMalformedFrame = errors.New("malformed frame")

// Pixel is one RGB triple.
type Pixel struct {
	R, G, B uint8
}

// Grid is a row-major matrix of pixels. All rows have the same length.
type Grid [][]Pixel

// Width returns the number of pixels per row.
func (g Grid) Width() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Height returns the number of rows.
func (g Grid) Height() int {
	return len(g)
}

// Build reshapes an interleaved R,G,B buffer into a grid of the given width.
// The buffer length must be a multiple of width*3; a short trailing row or
// pixel is reported as ErrMalformedFrame rather than dropped.
func Build(buf []byte, width int) (Grid, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: width %d", ErrMalformedFrame, width)
	}
	stride := width * BytesPerPixel
	if len(buf)%stride != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of row stride %d", ErrMalformedFrame, len(buf), stride)
	}
	rows := len(buf) / stride
	grid := make(Grid, rows)
	for y := 0; y < rows; y++ {
		line := buf[y*stride : (y+1)*stride]
		row := make([]Pixel, width)
		for x := range row {
			o := x * BytesPerPixel
			row[x] = Pixel{R: line[o], G: line[o+1], B: line[o+2]}
		}
		grid[y] = row
	}
	return grid, nil
}

// Flatten writes the grid back out as an interleaved R,G,B buffer.
func (g Grid) Flatten() []byte {
	out := make([]byte, 0, g.Width()*g.Height()*BytesPerPixel)
	for _, row := range g {
		for _, p := range row {
			out = append(out, p.R, p.G, p.B)
		}
	}
	return out
}

// Sample returns a grid reduced to at most maxWidth columns by picking every
// n-th pixel in both directions, keeping the aspect ratio.
func (g Grid) Sample(maxWidth int) Grid {
	w := g.Width()
	if maxWidth <= 0 || w <= maxWidth {
		return g
	}
	step := (w + maxWidth - 1) / maxWidth
	out := make(Grid, 0, (g.Height()+step-1)/step)
	for y := 0; y < g.Height(); y += step {
		row := make([]Pixel, 0, maxWidth)
		for x := 0; x < w; x += step {
			row = append(row, g[y][x])
		}
		out = append(out, row)
	}
	return out
}
