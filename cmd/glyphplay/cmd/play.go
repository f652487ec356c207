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
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/boriwo/glyphplay/internal/audio"
	"github.com/boriwo/glyphplay/internal/media"
	"github.com/boriwo/glyphplay/internal/media/libav"
	"github.com/boriwo/glyphplay/internal/observability"
	"github.com/boriwo/glyphplay/internal/session"
	"github.com/boriwo/glyphplay/internal/sink"
)

var playCmd = &cobra.Command{
	Use:   "play <path>",
	Short: "Play a video or image in the terminal",
	Long: `Play a video or image in the terminal.

Every pixel is drawn as two colored glyphs, so the terminal must be at least
twice as wide as the (scaled) picture. Playback waits until it is. Audio is
played through the default output device unless --no-audio is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

var playFlags = map[string]string{
	"max-width": "video.max_width",
	"scale":     "video.scale_algorithm",
	"no-audio":  "audio.disabled",
	"color":     "terminal.color_mode",
}

var playNegatedFlags = map[string]string{
	"no-pace": "video.pace",
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().Int("max-width", 0, "Maximum picture width in pixels (0 keeps the source width)")
	playCmd.Flags().String("scale", "bicubic", "Scaling algorithm (fast_bilinear, bilinear, bicubic, point, area, bicublin, gauss, sinc, lanczos, spline)")
	playCmd.Flags().Bool("no-audio", false, "Do not play audio")
	playCmd.Flags().String("color", "truecolor", "Color mode (truecolor, xterm256, gray, mono)")
	playCmd.Flags().Bool("no-pace", false, "Draw frames as fast as they decode")
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, playFlags, playNegatedFlags)
	if err != nil {
		return err
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := sink.NewTerminal(os.Stdout, sink.TerminalOptions{
		ColorMode:    cfg.Terminal.Mode(),
		Pace:         cfg.Video.Pace,
		Sizer:        sink.StdoutSizer(),
		PollInterval: cfg.Terminal.PollInterval,
	}, observability.WithComponent(logger, "sink.terminal"))

	var driver audio.Driver
	if !cfg.Audio.Disabled {
		driver = audio.NewBeepDriver(cfg.Audio.SampleRate, 0)
	}

	s := session.New(session.Options{
		Path:           args[0],
		MaxWidth:       cfg.Video.MaxWidth,
		ScaleAlgorithm: media.ScaleAlgorithm(cfg.Video.ScaleAlgorithm),
		Audio:          !cfg.Audio.Disabled,
		RingCapacity:   cfg.Audio.BufferSamples,
		PollInterval:   cfg.Audio.PollInterval,
	}, libav.Open, out, driver, observability.WithComponent(logger, "session"))

	return run(ctx, s)
}

// run executes s and reports an interrupt as a clean exit.
func run(ctx context.Context, s *session.Session) error {
	err := s.Run(ctx)
	if err != nil && ctx.Err() != nil {
		slog.Info("interrupted", slog.Int64("frames", s.Frames()))
		return nil
	}
	return err
}
