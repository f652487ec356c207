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

package glyph

import (
	"fmt"
	"strconv"
	"strings"
)

// ColorMode selects how a glyph's source color is written to the terminal.
type ColorMode int

const (
	TrueColor ColorMode = iota
	Xterm256
	Gray
	Mono
)

// ParseColorMode converts a config string into a ColorMode.
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(s) {
	case "", "truecolor", "color":
		return TrueColor, nil
	case "xterm256", "256":
		return Xterm256, nil
	case "gray", "grey":
		return Gray, nil
	case "mono":
		return Mono, nil
	}
	return TrueColor, fmt.Errorf("unknown color mode %q", s)
}

func (m ColorMode) String() string {
	switch m {
	case Xterm256:
		return "xterm256"
	case Gray:
		return "gray"
	case Mono:
		return "mono"
	default:
		return "truecolor"
	}
}

// Foreground returns the control sequence that sets the foreground color.
func (m ColorMode) Foreground(r, g, b uint8) string {
	switch m {
	case Xterm256:
		return xtermColor(r, g, b)
	case Gray:
		return xtermGray(r, g, b)
	case Mono:
		return ""
	default:
		return "\x1b[38;2;" + strconv.Itoa(int(r)) + ";" + strconv.Itoa(int(g)) + ";" + strconv.Itoa(int(b)) + "m"
	}
}

// xtermColor picks the closest entry of the 6x6x6 color cube.
func xtermColor(r, g, b uint8) string {
	code := 16 + 36*(int(r)*6/256) + 6*(int(g)*6/256) + int(b)*6/256
	return "\x1b[38;5;" + strconv.Itoa(code) + "m"
}

// xtermGray picks an entry of the 24-step gray ramp.
func xtermGray(r, g, b uint8) string {
	code := 232 + (255-232)*(int(r)+int(g)+int(b))/(3*255)
	return "\x1b[38;5;" + strconv.Itoa(code) + "m"
}
