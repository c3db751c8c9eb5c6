// Copyright (C) 2026 SPT Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func VersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "version",
		Short:        "Print the version of sptid and of the esptool it uses",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			esptoolPath, err := cmd.Flags().GetString("esptool")
			if err != nil {
				return err
			}

			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}

			info := GetInfo(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sptid version:\t%s\n", info.Version)
			fmt.Fprintf(out, "Build date:\t%s\n", info.Date)

			tool, err := FindEsptool(esptoolPath)
			if err != nil {
				fmt.Fprintf(out, "esptool:\tnot found\n")
				return nil
			}

			version, err := tool.Version(cmd.Context(), timeout)
			if err != nil {
				fmt.Fprintf(out, "Warning: Could not retrieve esptool version: %v\n", err)
				return nil
			}
			fmt.Fprintf(out, "esptool version:\t%s (%s)\n", version, tool)
			if version.LessThan(*MinimumEsptoolVersion) {
				fmt.Fprintf(out, "Warning: esptool %s is older than %s. Upgrade it with: pip install --upgrade esptool\n", version, MinimumEsptoolVersion)
			}
			return nil
		},
	}
	return cmd
}
