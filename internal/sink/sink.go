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

// Package sink implements the outputs a session draws glyph frames into:
// the terminal and an exported video file.
package sink

import (
	"context"

	"github.com/boriwo/glyphplay/internal/frame"
)

// StreamInfo describes the frames a sink is about to receive.
type StreamInfo struct {
	Width      int
	Height     int
	FrameRate  int
	FrameCount int64 // 0 if unknown
}

// FrameInfo describes one frame handed to WriteFrame.
type FrameInfo struct {
	Index int64
}

// FrameSink consumes pixel grids in decode order and maps every cell to its
// glyph. Start is called once before the first frame and Finish once after
// the last. Close releases resources and is safe to call after a failure at
// any point.
type FrameSink interface {
	Start(ctx context.Context, info StreamInfo) error
	WriteFrame(ctx context.Context, g frame.Grid, info FrameInfo) error
	Finish(ctx context.Context) error
	Close() error
}
