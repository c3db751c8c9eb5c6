// Copyright (C) 2026 SPT Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sptlabs/sptid/cmd/sptid/directory"
)

func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configure sptid",
		Long: "Configure the sptid command line tool.\n\n" +
			"Known keys: " + strings.Join(directory.ConfigKeys(), ", ") + ".",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:          "get [key]",
			Short:        "Print a stored setting, or all of them",
			Args:         cobra.MaximumNArgs(1),
			SilenceUsage: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := directory.GetUserConfig()
				if err != nil {
					return err
				}
				keys := directory.ConfigKeys()
				if len(args) == 1 {
					if err := checkConfigKey(args[0]); err != nil {
						return err
					}
					keys = args
				}
				for _, key := range keys {
					if cfg.IsSet(key) {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", key, cfg.GetString(key))
					}
				}
				return nil
			},
		},
		&cobra.Command{
			Use:          "set <key> <value>",
			Short:        "Store a setting",
			Args:         cobra.ExactArgs(2),
			SilenceUsage: true,
			RunE: func(_ *cobra.Command, args []string) error {
				cfg, err := directory.GetUserConfig()
				if err != nil {
					return err
				}
				if err := setConfigValue(cfg, args[0], args[1]); err != nil {
					return err
				}
				return directory.WriteConfig(cfg)
			},
		},
		&cobra.Command{
			Use:          "unset <key>",
			Short:        "Remove a stored setting",
			Args:         cobra.ExactArgs(1),
			SilenceUsage: true,
			RunE: func(_ *cobra.Command, args []string) error {
				cfg, err := directory.GetUserConfig()
				if err != nil {
					return err
				}
				updated, err := unsetConfigValue(cfg, args[0])
				if err != nil {
					return err
				}
				return directory.WriteConfig(updated)
			},
		},
	)
	return cmd
}

func checkConfigKey(key string) error {
	if !directory.IsConfigKey(key) {
		return fmt.Errorf("unknown config key '%s'. Must be one of: %s", key, strings.Join(directory.ConfigKeys(), ", "))
	}
	return nil
}

func setConfigValue(cfg *viper.Viper, key string, value string) error {
	if err := checkConfigKey(key); err != nil {
		return err
	}
	if key == directory.TimeoutCfgKey {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid timeout '%s': %w", value, err)
		}
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got '%s'", value)
		}
	}
	cfg.Set(key, value)
	return nil
}

// unsetConfigValue returns a copy of cfg without key. Viper cannot delete
// keys, so the remaining settings are copied into a fresh instance.
func unsetConfigValue(cfg *viper.Viper, key string) (*viper.Viper, error) {
	if err := checkConfigKey(key); err != nil {
		return nil, err
	}

	settings := cfg.AllSettings()
	deleteNested(settings, strings.Split(key, "."))

	res := viper.New()
	res.SetConfigType("yaml")
	res.SetConfigFile(cfg.ConfigFileUsed())
	if err := res.MergeConfigMap(settings); err != nil {
		return nil, err
	}
	return res, nil
}

func deleteNested(settings map[string]interface{}, path []string) {
	if len(path) == 1 {
		delete(settings, path[0])
		return
	}
	child, ok := settings[path[0]].(map[string]interface{})
	if !ok {
		return
	}
	deleteNested(child, path[1:])
	if len(child) == 0 {
		delete(settings, path[0])
	}
}
