// Copyright (C) 2026 SPT Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

type identifyOptions struct {
	// Port is the serial port requested by the user. It is passed to esptool
	// as given, even when it is not enumerated.
	Port string
	// All disables the filtering of ports that are unlikely to be an ESP32.
	All         bool
	Interactive bool
	// Esptool is the configured esptool path. Ignored when Tool is set.
	Esptool string
	Tool    *Esptool
	Timeout time.Duration

	ListPorts func() ([]string, error)
	Pick      func([]string) (string, error)
}

func identifyOptionsFromFlags(cmd *cobra.Command) (identifyOptions, error) {
	opts := identifyOptions{
		ListPorts:   serial.GetPortsList,
		Pick:        pickPort,
		Interactive: isInteractive(),
	}

	var err error
	if opts.Port, err = cmd.Flags().GetString("port"); err != nil {
		return opts, err
	}
	if opts.All, err = cmd.Flags().GetBool("all"); err != nil {
		return opts, err
	}
	if opts.Esptool, err = cmd.Flags().GetString("esptool"); err != nil {
		return opts, err
	}
	if opts.Timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
		return opts, err
	}
	return opts, nil
}

// selectPort decides which of the detected ports esptool should talk to.
func selectPort(ctx context.Context, opts identifyOptions) (string, error) {
	logger := GetLogger(ctx)

	all, err := opts.ListPorts()
	if err != nil {
		return "", fmt.Errorf("failed to list serial ports: %w", err)
	}
	logger.Debug("detected serial ports", zap.Strings("ports", all))
	if len(all) == 0 {
		return "", ErrNoPorts
	}

	if opts.Port != "" {
		// Symlinks such as /dev/serial/by-id/... are never enumerated.
		if !containsPort(all, opts.Port) {
			logger.Debug("requested port is not enumerated", zap.String("port", opts.Port))
		}
		return opts.Port, nil
	}

	ports, err := candidatePorts(all, opts.All)
	if err != nil {
		return "", err
	}
	if len(ports) == 1 || !opts.Interactive || opts.Pick == nil {
		return ports[0], nil
	}
	return opts.Pick(ports)
}

// identify reads the MAC address of the connected device and returns its
// identifier.
func identify(ctx context.Context, opts identifyOptions) (string, error) {
	logger := GetLogger(ctx)

	port, err := selectPort(ctx, opts)
	if err != nil {
		return "", err
	}
	logger.Debug("using serial port", zap.String("port", port))

	tool := opts.Tool
	if tool == nil {
		if tool, err = FindEsptool(opts.Esptool); err != nil {
			return "", err
		}
	}
	logger.Debug("running esptool", zap.Stringer("esptool", tool), zap.Duration("timeout", opts.Timeout))

	output, err := tool.ReadMAC(ctx, port, opts.Timeout)
	if err != nil {
		return "", err
	}

	mac, err := ParseMAC(output)
	if err != nil {
		logger.Debug("unexpected esptool output", zap.String("output", output))
		return "", err
	}
	logger.Debug("read MAC address", zap.String("mac", mac))
	return FormatIdentifier(mac), nil
}
