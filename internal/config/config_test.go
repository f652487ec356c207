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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boriwo/glyphplay/internal/glyph"
)

func validTestConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Video:   VideoConfig{ScaleAlgorithm: "bicubic", Pace: true},
		Audio: AudioConfig{
			SampleRate:    44100,
			BufferSamples: 8192,
			PollInterval:  10 * time.Millisecond,
		},
		Terminal: TerminalConfig{ColorMode: "truecolor", PollInterval: 500 * time.Millisecond},
		Export: ExportConfig{
			WorkDir:    "/tmp",
			Codec:      "libx264",
			FontSize:   12,
			Kerning:    4,
			FFmpegPath: "ffmpeg",
			AudioCodec: "copy",
		},
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	// Video defaults
	assert.Equal(t, 0, cfg.Video.MaxWidth)
	assert.Equal(t, "bicubic", cfg.Video.ScaleAlgorithm)
	assert.True(t, cfg.Video.Pace)

	// Audio defaults
	assert.False(t, cfg.Audio.Disabled)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 8192, cfg.Audio.BufferSamples)
	assert.Equal(t, 10*time.Millisecond, cfg.Audio.PollInterval)

	// Terminal defaults
	assert.Equal(t, glyph.TrueColor, cfg.Terminal.Mode())
	assert.Equal(t, 500*time.Millisecond, cfg.Terminal.PollInterval)

	// Export defaults
	assert.Equal(t, os.TempDir(), cfg.Export.WorkDir)
	assert.Equal(t, "libx264", cfg.Export.Codec)
	assert.Empty(t, cfg.Export.FontFile)
	assert.Equal(t, 12, cfg.Export.FontSize)
	assert.Equal(t, 4, cfg.Export.Kerning)
	assert.Equal(t, "ffmpeg", cfg.Export.FFmpegPath)
	assert.Equal(t, "copy", cfg.Export.AudioCodec)
	assert.True(t, cfg.Export.Progress)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "glyphplay.yaml")

	configContent := `
logging:
  level: "debug"
  format: "json"

video:
  max_width: 120
  scale_algorithm: "lanczos"
  pace: false

audio:
  buffer_samples: 16384
  poll_interval: 5ms

terminal:
  color_mode: "gray"

export:
  codec: "mpeg4"
  font_size: 16
  kerning: 6
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 120, cfg.Video.MaxWidth)
	assert.Equal(t, "lanczos", cfg.Video.ScaleAlgorithm)
	assert.False(t, cfg.Video.Pace)
	assert.Equal(t, 16384, cfg.Audio.BufferSamples)
	assert.Equal(t, 5*time.Millisecond, cfg.Audio.PollInterval)
	assert.Equal(t, glyph.Gray, cfg.Terminal.Mode())
	assert.Equal(t, "mpeg4", cfg.Export.Codec)
	assert.Equal(t, 16, cfg.Export.FontSize)
	assert.Equal(t, 6, cfg.Export.Kerning)
}

func TestPrepare(t *testing.T) {
	t.Run("reports the file it read", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "glyphplay.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("video:\n  max_width: 64\n"), 0o600))

		v := viper.New()
		used, err := Prepare(v, configPath)
		require.NoError(t, err)
		assert.Equal(t, configPath, used)
		assert.Equal(t, 64, v.GetInt("video.max_width"))
		assert.Equal(t, "bicubic", v.GetString("video.scale_algorithm"), "defaults are registered")
	})

	t.Run("missing file in search path is fine", func(t *testing.T) {
		chdir(t, t.TempDir())
		t.Setenv("HOME", t.TempDir())

		used, err := Prepare(viper.New(), "")
		require.NoError(t, err)
		assert.Empty(t, used)
	})

	t.Run("broken explicit file fails", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "glyphplay.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("video: [unclosed"), 0o600))

		_, err := Prepare(viper.New(), configPath)
		assert.ErrorContains(t, err, "reading config file")
	})
}

func TestLoad_EnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("GLYPHPLAY_VIDEO_MAX_WIDTH", "80")
	t.Setenv("GLYPHPLAY_AUDIO_DISABLED", "true")
	t.Setenv("GLYPHPLAY_TERMINAL_COLOR_MODE", "mono")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 80, cfg.Video.MaxWidth)
	assert.True(t, cfg.Audio.Disabled)
	assert.Equal(t, glyph.Mono, cfg.Terminal.Mode())
}

func TestLoad_InvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "glyphplay.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("video: [unclosed"), 0o600))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestFromViper_Validates(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("audio.buffer_samples", 1000)

	_, err := FromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio.buffer_samples")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"negative width", func(c *Config) { c.Video.MaxWidth = -1 }, "video.max_width"},
		{"unknown scaler", func(c *Config) { c.Video.ScaleAlgorithm = "nearest" }, "video.scale_algorithm"},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, "audio.sample_rate"},
		{"ring not power of two", func(c *Config) { c.Audio.BufferSamples = 3000 }, "audio.buffer_samples"},
		{"zero poll", func(c *Config) { c.Audio.PollInterval = 0 }, "audio.poll_interval"},
		{"unknown color mode", func(c *Config) { c.Terminal.ColorMode = "sepia" }, "terminal.color_mode"},
		{"terminal poll too short", func(c *Config) { c.Terminal.PollInterval = time.Millisecond }, "terminal.poll_interval"},
		{"no work dir", func(c *Config) { c.Export.WorkDir = "" }, "export.work_dir"},
		{"no codec", func(c *Config) { c.Export.Codec = "" }, "export.codec"},
		{"kerning swallows cell", func(c *Config) { c.Export.Kerning = 12 }, "export.font_size"},
		{"no ffmpeg", func(c *Config) { c.Export.FFmpegPath = "" }, "export.ffmpeg_path"},
		{"no audio codec", func(c *Config) { c.Export.AudioCodec = "" }, "export.audio_codec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// chdir changes the working directory for the duration of the test, like
// testing.T.Chdir on newer toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
