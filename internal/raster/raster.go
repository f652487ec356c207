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

// Package raster draws glyph grids into images for video export.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/boriwo/glyphplay/internal/frame"
	"github.com/boriwo/glyphplay/internal/glyph"
)

const (
	DefaultFontSize = 12
	DefaultKerning  = 4
)

// LoadFont parses a TrueType font file. An empty path selects the embedded
// Go Mono font.
func LoadFont(path string) (*truetype.Font, error) {
	data := gomono.TTF
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading font: %w", err)
		}
		data = b
	}
	f, err := freetype.ParseFont(data)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	return f, nil
}

// Renderer draws each grid cell as one glyph in the cell's color on a black
// background. Cells are fontSize-kerning pixels square, so neighbouring
// glyphs overlap slightly.
type Renderer struct {
	ctx  *freetype.Context
	cell int
	dst  *image.RGBA
}

// New returns a renderer for font at the given size.
func New(font *truetype.Font, fontSize, kerning int) (*Renderer, error) {
	if fontSize <= 0 || kerning < 0 || kerning >= fontSize {
		return nil, fmt.Errorf("invalid font size %d with kerning %d", fontSize, kerning)
	}
	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(font)
	c.SetFontSize(float64(fontSize))
	return &Renderer{ctx: c, cell: fontSize - kerning}, nil
}

// CellSize returns the edge length of one cell in pixels.
func (r *Renderer) CellSize() int { return r.cell }

// Size returns the image size for a grid of cols x rows cells.
func (r *Renderer) Size(cols, rows int) (int, int) {
	return cols * r.cell, rows * r.cell
}

// Render draws g. The returned image is reused by the next call.
func (r *Renderer) Render(g frame.Grid) (*image.RGBA, error) {
	w, h := r.Size(g.Width(), g.Height())
	if r.dst == nil || r.dst.Rect.Dx() != w || r.dst.Rect.Dy() != h {
		r.dst = image.NewRGBA(image.Rect(0, 0, w, h))
		r.ctx.SetDst(r.dst)
		r.ctx.SetClip(r.dst.Bounds())
	}
	draw.Draw(r.dst, r.dst.Bounds(), image.Black, image.Point{}, draw.Src)

	for y, row := range g {
		for x, p := range row {
			sym := glyph.ForPixel(p.R, p.G, p.B)
			if sym == glyph.Palette[0] {
				continue
			}
			r.ctx.SetSrc(image.NewUniform(color.RGBA{R: p.R, G: p.G, B: p.B, A: 0xff}))
			pt := freetype.Pt(x*r.cell, (y+1)*r.cell)
			if _, err := r.ctx.DrawString(string(sym), pt); err != nil {
				return nil, fmt.Errorf("drawing glyph at %d,%d: %w", x, y, err)
			}
		}
	}
	return r.dst, nil
}
