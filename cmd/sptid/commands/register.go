// Copyright (C) 2026 SPT Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/sptlabs/sptid/cmd/sptid/directory"
	"go.uber.org/zap"
)

func RegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register the connected ESP32 in the device registry",
		Long: "Identify the connected ESP32 and add it to the devices table of the registry\n" +
			"as an unclaimed device. A fresh claim token is generated; only its hash is\n" +
			"stored, so the printed token and claim URL cannot be recovered later.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := GetLogger(ctx)

			name, err := cmd.Flags().GetString("name")
			if err != nil {
				return err
			}

			databaseURL, err := cmd.Flags().GetString("database-url")
			if err != nil {
				return err
			}

			claimBaseURL, err := cmd.Flags().GetString("claim-base-url")
			if err != nil {
				return err
			}

			if databaseURL == "" {
				return ErrNoDatabase
			}

			opts, err := identifyOptionsFromFlags(cmd)
			if err != nil {
				return err
			}

			id, err := identify(ctx, opts)
			if err != nil {
				return err
			}

			store, err := OpenDeviceStore(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			row, token, err := registerDevice(ctx, store, id, name)
			if err != nil {
				return err
			}
			logger.Debug("registered device", zap.String("unique_id", row.UniqueID))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Registered device '%s'\n", row.UniqueID)
			fmt.Fprintf(out, "Token:\t\t%s\n", token)
			fmt.Fprintf(out, "Claim URL:\t%s\n", ClaimURL(claimBaseURL, token))
			return nil
		},
	}

	cmd.Flags().String("name", "", "name for the device")
	addRegistryFlags(cmd.Flags())
	cmd.Flags().String("claim-base-url", directory.GetString(directory.ClaimBaseURLEnv, directory.ClaimBaseURLCfgKey), "base URL of printed claim links")
	return cmd
}

func LookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "lookup <token>",
		Short:        "Show the registered device a claim token belongs to",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			databaseURL, err := cmd.Flags().GetString("database-url")
			if err != nil {
				return err
			}

			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}

			store, err := OpenDeviceStore(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			row, err := store.FindByTokenHash(ctx, HashToken(args[0]))
			if err != nil {
				return err
			}
			return enc.Encode(DeviceRows{row})
		},
	}

	addRegistryFlags(cmd.Flags())
	cmd.Flags().StringP("output", "o", "short", "output format: json, yaml or short")
	return cmd
}

func ClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "claim <token>",
		Short:        "Mark the device a claim token belongs to as claimed",
		Long:         "Mark the unclaimed device a claim token was issued for as claimed.\nA device can only be claimed once.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			databaseURL, err := cmd.Flags().GetString("database-url")
			if err != nil {
				return err
			}

			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}

			store, err := OpenDeviceStore(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			row, err := claimDevice(ctx, store, args[0])
			if err != nil {
				return err
			}
			GetLogger(ctx).Debug("claimed device", zap.String("unique_id", row.UniqueID))
			return enc.Encode(DeviceRows{row})
		},
	}

	addRegistryFlags(cmd.Flags())
	cmd.Flags().StringP("output", "o", "short", "output format: json, yaml or short")
	return cmd
}

func addRegistryFlags(flags *pflag.FlagSet) {
	flags.String("database-url", directory.GetString(directory.DatabaseURLEnv, directory.DatabaseURLCfgKey), "Postgres URL of the device registry")
}
