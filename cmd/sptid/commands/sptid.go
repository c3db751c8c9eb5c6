// Copyright (C) 2026 SPT Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/sptlabs/sptid/cmd/sptid/directory"
	"go.uber.org/zap"
)

type ctxKey string

const (
	ctxKeyInfo   ctxKey = "info"
	ctxKeyLogger ctxKey = "logger"
)

type Info struct {
	Version string `mapstructure:"version" yaml:"version" json:"version"`
	Date    string `mapstructure:"date" yaml:"date" json:"date"`
}

func SetInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKeyInfo, info)
}

func GetInfo(ctx context.Context) Info {
	return ctx.Value(ctxKeyInfo).(Info)
}

func SetLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, logger)
}

// GetLogger returns the logger stored in ctx, or a no-op logger.
func GetLogger(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(ctxKeyLogger).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// newLogger logs to stderr so stdout only ever holds the identifier or the
// diagnostics.
func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func SptidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sptid",
		Short: "Print the SPT identifier of a connected ESP32",
		Long: "Detect an ESP32 connected over USB, read its MAC address with esptool and\n" +
			"print the device identifier derived from it, for example 'SPT-AABBCCDDEEFF'.\n\n" +
			"esptool is looked up on the PATH, or run as 'python3 -m esptool'. Install it\n" +
			"with 'pip install esptool'.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			cmd.SetContext(SetLogger(cmd.Context(), logger))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := identifyOptionsFromFlags(cmd)
			if err != nil {
				return err
			}

			id, err := identify(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringP("port", "p", ConfiguredPort(), "serial port of the ESP32, detected if not set")
	flags.Bool("all", false, "if set, will consider all serial ports, not just USB ones")
	flags.String("esptool", configuredEsptool(), "path to the esptool executable")
	flags.Duration("timeout", configuredTimeout(), "how long to wait for esptool")
	flags.BoolP("verbose", "v", false, "log progress to stderr")

	cmd.AddCommand(
		PortCmd(),
		RegisterCmd(),
		LookupCmd(),
		ClaimCmd(),
		ConfigCmd(),
		VersionCmd(),
	)
	return cmd
}

func configuredEsptool() string {
	return directory.GetString(directory.EsptoolEnv, directory.EsptoolCfgKey)
}

func configuredTimeout() time.Duration {
	cfg, err := directory.GetUserConfig()
	if err != nil || !cfg.IsSet(directory.TimeoutCfgKey) {
		return DefaultTimeout
	}
	timeout, err := time.ParseDuration(cfg.GetString(directory.TimeoutCfgKey))
	if err != nil || timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}
