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

// Package glyph maps pixels to text glyphs by lightness.
package glyph

import "math"

// Palette holds the glyphs in order of increasing visual density.
var Palette = [...]rune{' ', '.', ':', '-', '~', '=', '+', '*', 'o', '%', '&', '8', '#', '@'}

// MaxLightness is the lightness of a pure white pixel.
const MaxLightness = 100

// step is the lightness width of every intermediate palette band.
const step = MaxLightness / (len(Palette) - 2)

// Lightness returns the HSL lightness of an RGB pixel as a percentage in [0,100].
func Lightness(r, g, b uint8) int {
	hi := max(r, g, b)
	lo := min(r, g, b)
	return int(math.Round(float64(int(hi)+int(lo)) / (2 * 255) * 100))
}

// Index returns the palette index for a lightness value. 0 and 100 map to the
// first and last glyph; everything between falls into fixed-width bands.
func Index(lightness int) int {
	switch {
	case lightness >= MaxLightness:
		return len(Palette) - 1
	case lightness <= 0:
		return 0
	}
	for i := len(Palette) - 2; i >= 1; i-- {
		if lightness >= i*step {
			return i
		}
	}
	return 0
}

// Symbol returns the glyph for a lightness value.
func Symbol(lightness int) rune {
	return Palette[Index(lightness)]
}

// ForPixel returns the glyph for an RGB pixel.
func ForPixel(r, g, b uint8) rune {
	return Symbol(Lightness(r, g, b))
}
