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

package cmd

import (
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/boriwo/glyphplay/internal/ffmpeg"
	"github.com/boriwo/glyphplay/internal/media"
	"github.com/boriwo/glyphplay/internal/media/libav"
	"github.com/boriwo/glyphplay/internal/observability"
	"github.com/boriwo/glyphplay/internal/raster"
	"github.com/boriwo/glyphplay/internal/session"
	"github.com/boriwo/glyphplay/internal/sink"
)

var exportCmd = &cobra.Command{
	Use:   "export <path> <output>",
	Short: "Render a video or image to a glyph video file",
	Long: `Render a video or image to a glyph video file.

Each frame is drawn as glyphs in their source colors and encoded into a silent
intermediate video. When all frames are written, ffmpeg copies the audio track
of <path> next to it into <output>.`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

var exportFlags = map[string]string{
	"max-width": "video.max_width",
	"scale":     "video.scale_algorithm",
	"font":      "export.font_file",
	"codec":     "export.codec",
	"work-dir":  "export.work_dir",
}

var exportNegatedFlags = map[string]string{
	"no-progress": "export.progress",
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().Int("max-width", 0, "Maximum picture width in cells (0 keeps the source width)")
	exportCmd.Flags().String("scale", "bicubic", "Scaling algorithm (fast_bilinear, bilinear, bicubic, point, area, bicublin, gauss, sinc, lanczos, spline)")
	exportCmd.Flags().String("font", "", "TrueType font file (default is the embedded Go Mono)")
	exportCmd.Flags().String("codec", "libx264", "Video encoder")
	exportCmd.Flags().String("work-dir", os.TempDir(), "Directory for the intermediate video")
	exportCmd.Flags().Bool("no-progress", false, "Do not show the progress preview")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, exportFlags, exportNegatedFlags)
	if err != nil {
		return err
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	font, err := raster.LoadFont(cfg.Export.FontFile)
	if err != nil {
		return err
	}
	renderer, err := raster.New(font, cfg.Export.FontSize, cfg.Export.Kerning)
	if err != nil {
		return err
	}
	merger := ffmpeg.NewMerger(ffmpeg.MergeConfig{
		FFmpegPath: cfg.Export.FFmpegPath,
		AudioCodec: cfg.Export.AudioCodec,
	}, observability.WithComponent(logger, "ffmpeg"))

	var progress io.Writer
	if cfg.Export.Progress {
		progress = os.Stderr
	}
	out := sink.NewFile(sink.FileOptions{
		Source:   args[0],
		Output:   args[1],
		WorkDir:  cfg.Export.WorkDir,
		Codec:    cfg.Export.Codec,
		Progress: progress,
	}, renderer, libav.NewEncoder, merger, observability.WithComponent(logger, "sink.file"))

	s := session.New(session.Options{
		Path:           args[0],
		MaxWidth:       cfg.Video.MaxWidth,
		ScaleAlgorithm: media.ScaleAlgorithm(cfg.Video.ScaleAlgorithm),
	}, libav.Open, out, nil, observability.WithComponent(logger, "session"))

	return s.Run(ctx)
}
