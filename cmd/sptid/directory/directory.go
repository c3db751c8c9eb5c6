// Copyright (C) 2026 SPT Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package directory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// UserConfigPathEnv if set, will load the user config from that path.
	UserConfigPathEnv = "SPTID_USER_CONFIG_PATH"

	// PortEnv if set will be used as the serial port of the device.
	PortEnv = "SPTID_PORT"
	// EsptoolEnv if set will be used as the path to the esptool executable.
	EsptoolEnv = "SPTID_ESPTOOL"
	// DatabaseURLEnv if set will be used to connect to the device registry.
	DatabaseURLEnv = "SPTID_DATABASE_URL"
	// ClaimBaseURLEnv if set will be the base of printed claim links.
	ClaimBaseURLEnv = "SPTID_CLAIM_BASE_URL"
)

const (
	PortCfgKey         = "port"
	EsptoolCfgKey      = "esptool"
	TimeoutCfgKey      = "timeout"
	DatabaseURLCfgKey  = "database.url"
	ClaimBaseURLCfgKey = "claim.base-url"
)

// ConfigKeys lists the keys that can be changed through 'sptid config'.
func ConfigKeys() []string {
	return []string{
		PortCfgKey,
		EsptoolCfgKey,
		TimeoutCfgKey,
		DatabaseURLCfgKey,
		ClaimBaseURLCfgKey,
	}
}

func IsConfigKey(key string) bool {
	for _, k := range ConfigKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func GetUserConfigPath() (string, error) {
	if path, ok := os.LookupEnv(UserConfigPathEnv); ok {
		return path, nil
	}

	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homedir, ".config", "sptid", "config.yaml"), nil
}

func GetUserConfig() (*viper.Viper, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config path: %w", err)
	}

	cfg := viper.New()
	cfg.SetConfigType("yaml")
	cfg.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := cfg.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read user config: %w", err)
		}
	}
	return cfg, nil
}

// GetString returns the value of the environment variable env if it is set,
// and otherwise the value stored in the user config under key.
func GetString(env string, key string) string {
	if v, ok := os.LookupEnv(env); ok {
		return v
	}
	cfg, err := GetUserConfig()
	if err != nil {
		return ""
	}
	return cfg.GetString(key)
}

func WriteConfig(cfg *viper.Viper) error {
	file := cfg.ConfigFileUsed()
	dir := filepath.Dir(file)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmpFile := filepath.Join(filepath.Dir(file), ".config.tmp.yaml")
	if err := cfg.WriteConfigAs(tmpFile); err != nil {
		return err
	}
	defer os.Remove(tmpFile)

	return os.Rename(tmpFile, file)
}
