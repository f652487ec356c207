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

// Package config provides configuration management for glyphplay using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/boriwo/glyphplay/internal/glyph"
)

// Default configuration values.
const (
	defaultScaleAlgorithm   = "bicubic"
	defaultSampleRate       = 44100
	defaultBufferSamples    = 8192
	defaultAudioPoll        = 10 * time.Millisecond
	defaultTerminalPoll     = 500 * time.Millisecond
	defaultCodec            = "libx264"
	defaultFontSize         = 12
	defaultKerning          = 4
	defaultFFmpegPath       = "ffmpeg"
	defaultAudioCodec       = "copy"
	maxSampleRate           = 384000
	maxBufferSamples        = 1 << 20
	minTerminalPollInterval = 10 * time.Millisecond
)

// Config holds all configuration for the application.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Video    VideoConfig    `mapstructure:"video"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Terminal TerminalConfig `mapstructure:"terminal"`
	Export   ExportConfig   `mapstructure:"export"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`  // debug, info, warn, error
	Format    string `mapstructure:"format"` // json, text
	AddSource bool   `mapstructure:"add_source"`
}

// VideoConfig holds decode and scale settings.
type VideoConfig struct {
	MaxWidth       int    `mapstructure:"max_width"` // 0 keeps the source width
	ScaleAlgorithm string `mapstructure:"scale_algorithm"`
	Pace           bool   `mapstructure:"pace"`
}

// AudioConfig holds playback settings.
type AudioConfig struct {
	Disabled      bool          `mapstructure:"disabled"`
	SampleRate    int           `mapstructure:"sample_rate"`
	BufferSamples int           `mapstructure:"buffer_samples"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

// TerminalConfig holds terminal rendering settings.
type TerminalConfig struct {
	ColorMode    string        `mapstructure:"color_mode"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ExportConfig holds file export settings.
type ExportConfig struct {
	WorkDir    string `mapstructure:"work_dir"`
	Codec      string `mapstructure:"codec"`
	FontFile   string `mapstructure:"font_file"` // empty uses the embedded Go Mono
	FontSize   int    `mapstructure:"font_size"`
	Kerning    int    `mapstructure:"kerning"`
	FFmpegPath string `mapstructure:"ffmpeg_path"`
	AudioCodec string `mapstructure:"audio_codec"`
	Progress   bool   `mapstructure:"progress"`
}

var validScaleAlgorithms = map[string]bool{
	"fast_bilinear": true, "bilinear": true, "bicubic": true, "point": true, "area": true,
	"bicublin": true, "gauss": true, "sinc": true, "lanczos": true, "spline": true,
}

// Load reads configuration from file, environment variables, and defaults.
// If configPath is empty, it searches for glyphplay.yaml in standard locations.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if _, err := Prepare(v, configPath); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Prepare registers the defaults, the config file and the GLYPHPLAY_
// environment variables with v and reads the file. A missing file in the
// standard locations is not an error. It returns the path of the file that
// was read, or "" when none was.
func Prepare(v *viper.Viper, configPath string) (string, error) {
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("glyphplay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/glyphplay")
	}

	v.SetEnvPrefix("GLYPHPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return "", fmt.Errorf("reading config file: %w", err)
		}
		return "", nil
	}
	return v.ConfigFileUsed(), nil
}

// FromViper unmarshals and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)

	// Video defaults
	v.SetDefault("video.max_width", 0)
	v.SetDefault("video.scale_algorithm", defaultScaleAlgorithm)
	v.SetDefault("video.pace", true)

	// Audio defaults
	v.SetDefault("audio.disabled", false)
	v.SetDefault("audio.sample_rate", defaultSampleRate)
	v.SetDefault("audio.buffer_samples", defaultBufferSamples)
	v.SetDefault("audio.poll_interval", defaultAudioPoll)

	// Terminal defaults
	v.SetDefault("terminal.color_mode", "truecolor")
	v.SetDefault("terminal.poll_interval", defaultTerminalPoll)

	// Export defaults
	v.SetDefault("export.work_dir", os.TempDir())
	v.SetDefault("export.codec", defaultCodec)
	v.SetDefault("export.font_file", "")
	v.SetDefault("export.font_size", defaultFontSize)
	v.SetDefault("export.kerning", defaultKerning)
	v.SetDefault("export.ffmpeg_path", defaultFFmpegPath)
	v.SetDefault("export.audio_codec", defaultAudioCodec)
	v.SetDefault("export.progress", true)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Video validation
	if c.Video.MaxWidth < 0 {
		return fmt.Errorf("video.max_width must not be negative")
	}
	if !validScaleAlgorithms[c.Video.ScaleAlgorithm] {
		return fmt.Errorf("video.scale_algorithm %q is not supported", c.Video.ScaleAlgorithm)
	}

	// Audio validation
	if c.Audio.SampleRate < 1 || c.Audio.SampleRate > maxSampleRate {
		return fmt.Errorf("audio.sample_rate must be between 1 and %d", maxSampleRate)
	}
	n := c.Audio.BufferSamples
	if n < 1 || n > maxBufferSamples || n&(n-1) != 0 {
		return fmt.Errorf("audio.buffer_samples must be a power of two no larger than %d", maxBufferSamples)
	}
	if c.Audio.PollInterval <= 0 {
		return fmt.Errorf("audio.poll_interval must be positive")
	}

	// Terminal validation
	if _, err := glyph.ParseColorMode(c.Terminal.ColorMode); err != nil {
		return fmt.Errorf("terminal.color_mode: %w", err)
	}
	if c.Terminal.PollInterval < minTerminalPollInterval {
		return fmt.Errorf("terminal.poll_interval must be at least %s", minTerminalPollInterval)
	}

	// Export validation
	if c.Export.WorkDir == "" {
		return fmt.Errorf("export.work_dir is required")
	}
	if c.Export.Codec == "" {
		return fmt.Errorf("export.codec is required")
	}
	if c.Export.FontSize <= c.Export.Kerning || c.Export.Kerning < 0 {
		return fmt.Errorf("export.font_size must exceed export.kerning, which must not be negative")
	}
	if c.Export.FFmpegPath == "" {
		return fmt.Errorf("export.ffmpeg_path is required")
	}
	if c.Export.AudioCodec == "" {
		return fmt.Errorf("export.audio_codec is required")
	}

	return nil
}

// Mode returns the parsed color mode. Validate guarantees it parses.
func (c *TerminalConfig) Mode() glyph.ColorMode {
	m, _ := glyph.ParseColorMode(c.ColorMode)
	return m
}
