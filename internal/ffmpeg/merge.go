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

// Package ffmpeg runs the ffmpeg command-line tool to attach the original
// audio track to an exported glyph video.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// MergeConfig holds configuration for the audio merge step.
type MergeConfig struct {
	// FFmpegPath is the path to the ffmpeg binary.
	// If empty, "ffmpeg" will be used (assumes it's in PATH).
	FFmpegPath string

	// AudioCodec is the codec for the copied audio track.
	// Default: copy (no re-encode)
	AudioCodec string
}

// DefaultMergeConfig returns a MergeConfig with defaults.
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{
		FFmpegPath: "ffmpeg",
		AudioCodec: "copy",
	}
}

// Merger muxes the video of one file with the audio of another.
type Merger struct {
	config MergeConfig
	logger *slog.Logger
}

// NewMerger creates a new Merger.
func NewMerger(cfg MergeConfig, logger *slog.Logger) *Merger {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.AudioCodec == "" {
		cfg.AudioCodec = "copy"
	}
	return &Merger{config: cfg, logger: logger}
}

// Merge writes output with the video stream of video and the first audio
// stream of original, if it has one. The video stream is copied as is.
func (m *Merger) Merge(ctx context.Context, original, video, output string) error {
	if err := validateInput(original); err != nil {
		return err
	}
	if err := validateInput(video); err != nil {
		return err
	}

	args := m.buildArgs(original, video, output)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.config.FFmpegPath, args...)
	cmd.Stdout = nil
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("merge cancelled: %w", ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg execution failed: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg execution failed: %w", err)
	}

	m.logger.Info("merged audio track",
		slog.String("output", output),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// buildArgs constructs the ffmpeg command arguments.
func (m *Merger) buildArgs(original, video, output string) []string {
	return []string{
		"-y", // Overwrite output files without asking
		"-v", "error",
		"-i", video,
		"-i", original,
		"-map", "0:v:0",
		"-map", "1:a:0?", // Optional: sources without audio still merge
		"-c:v", "copy",
		"-c:a", m.config.AudioCodec,
		output,
	}
}

// validateInput checks if the input file exists and is a regular file.
func validateInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", path)
		}
		return fmt.Errorf("failed to access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path is a directory, expected a file: %s", path)
	}
	return nil
}
