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

// Package cmd implements the CLI commands for glyphplay.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/boriwo/glyphplay/internal/config"
	"github.com/boriwo/glyphplay/internal/observability"
)

// version is set at build time with -ldflags.
var version = "dev"

// cfgFile holds the config file path from CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "glyphplay",
	Short:   "Play videos and images as colored text glyphs",
	Version: version,
	Long: `glyphplay draws every frame of a video or image as colored text glyphs.

It plays in the terminal with the original audio, or exports the glyph
rendering to a video file with the original audio track merged back in.`,
	SilenceUsage: true,
	// PersistentPreRunE is set in init() to avoid initialization cycle
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if err := initConfig(viper.GetViper()); err != nil {
			return err
		}
		return initLogging()
	}

	// Global flags
	// These flags are NOT bound to viper. They override config/env values only
	// when set explicitly (see applyFlags).
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./glyphplay.yaml or $HOME/.config/glyphplay/glyphplay.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig(v *viper.Viper) error {
	used, err := config.Prepare(v, cfgFile)
	if err != nil {
		return err
	}
	if used != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}
	return nil
}

// initLogging configures the default slog logger.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format) - only if explicitly provided
//  2. Environment variables (GLYPHPLAY_LOGGING_LEVEL, GLYPHPLAY_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, text)
func initLogging() error {
	applyFlags(rootCmd.PersistentFlags(), viper.GetViper(), map[string]string{
		"log-level":  "logging.level",
		"log-format": "logging.format",
	})

	logCfg := config.LoggingConfig{
		Level:     strings.ToLower(viper.GetString("logging.level")),
		Format:    strings.ToLower(viper.GetString("logging.format")),
		AddSource: viper.GetBool("logging.add_source"),
	}
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}
	viper.Set("logging.level", logCfg.Level)
	viper.Set("logging.format", logCfg.Format)

	slog.SetDefault(observability.NewLogger(logCfg))
	return nil
}

// applyFlags copies every explicitly set flag in bindings (flag name to
// config key) into v. Flags left at their default never override env or
// config values.
func applyFlags(flags *pflag.FlagSet, v *viper.Viper, bindings map[string]string) {
	for name, key := range bindings {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		v.Set(key, f.Value.String())
	}
}

// applyNegatedFlags sets key to false for every explicitly set boolean
// "--no-..." flag that is true.
func applyNegatedFlags(flags *pflag.FlagSet, v *viper.Viper, bindings map[string]string) {
	for name, key := range bindings {
		if !flags.Changed(name) {
			continue
		}
		if on, err := flags.GetBool(name); err == nil && on {
			v.Set(key, false)
		}
	}
}

// loadConfig applies the command's flags and validates the result.
func loadConfig(cmd *cobra.Command, bindings, negated map[string]string) (*config.Config, error) {
	v := viper.GetViper()
	applyFlags(cmd.Flags(), v, bindings)
	applyNegatedFlags(cmd.Flags(), v, negated)
	return config.FromViper(v)
}
