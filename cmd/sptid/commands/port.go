// Copyright (C) 2026 SPT Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sptlabs/sptid/cmd/sptid/directory"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"golang.org/x/term"
)

func PortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "port",
		Short: "List or select the serial port of the ESP32",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(
		ListPortsCmd(),
		SetPortCmd(),
	)
	return cmd
}

func ListPortsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "list",
		Short:        "List the serial ports an ESP32 may be connected to",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}

			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}

			details, err := enumerator.GetDetailedPortsList()
			if err != nil {
				return err
			}
			ports := portsFromDetails(details, all)
			if len(ports) == 0 {
				return noPortsError(portsFromDetails(details, true))
			}
			return enc.Encode(ports)
		},
	}

	cmd.Flags().StringP("output", "o", "short", "output format: json, yaml or short")
	return cmd
}

func SetPortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "set",
		Short:        "Select the serial port you want to use",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			showAll, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}

			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}

			all, err := serial.GetPortsList()
			if err != nil {
				return err
			}

			ports, err := candidatePorts(all, showAll)
			if err != nil {
				return err
			}

			port, err := pickPort(ports)
			if err != nil {
				return err
			}
			return storePort(cmd.OutOrStdout(), cfg, port)
		},
	}
	return cmd
}

func storePort(out io.Writer, cfg *viper.Viper, port string) error {
	cfg.Set(directory.PortCfgKey, port)
	if err := directory.WriteConfig(cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Using serial port '%s'\n", port)
	return nil
}

// Port describes a serial port as reported by the OS.
type Port struct {
	Name         string `mapstructure:"name" yaml:"name" json:"name"`
	IsUSB        bool   `mapstructure:"usb" yaml:"usb" json:"usb"`
	VID          string `mapstructure:"vid,omitempty" yaml:"vid,omitempty" json:"vid,omitempty"`
	PID          string `mapstructure:"pid,omitempty" yaml:"pid,omitempty" json:"pid,omitempty"`
	SerialNumber string `mapstructure:"serialNumber,omitempty" yaml:"serialNumber,omitempty" json:"serialNumber,omitempty"`
	Product      string `mapstructure:"product,omitempty" yaml:"product,omitempty" json:"product,omitempty"`
}

func (p Port) Short() string {
	if !p.IsUSB {
		return p.Name
	}
	res := fmt.Sprintf("%s\t%s:%s", p.Name, p.VID, p.PID)
	if p.Product != "" {
		res += "\t" + p.Product
	}
	return res
}

type Ports []Port

func (p Ports) Elements() []Short {
	var res []Short
	for _, port := range p {
		res = append(res, port)
	}
	return res
}

func portsFromDetails(details []*enumerator.PortDetails, all bool) Ports {
	var names []string
	byName := map[string]*enumerator.PortDetails{}
	for _, d := range details {
		names = append(names, d.Name)
		byName[d.Name] = d
	}
	if !all {
		names = filterPorts(names)
	}
	sort.Strings(names)

	var res Ports
	for _, name := range names {
		d := byName[name]
		res = append(res, Port{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          strings.ToUpper(d.VID),
			PID:          strings.ToUpper(d.PID),
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return res
}

// candidatePorts returns the sorted ports an ESP32 may be connected to.
func candidatePorts(ports []string, all bool) ([]string, error) {
	return candidatePortsFor(runtime.GOOS, ports, all)
}

func candidatePortsFor(goos string, ports []string, all bool) ([]string, error) {
	res := ports
	if !all {
		res = filterPortsFor(goos, ports)
	}
	if len(res) == 0 {
		if len(ports) > 0 {
			hidden := append([]string(nil), ports...)
			sort.Strings(hidden)
			return nil, &FilteredPortsError{Hidden: hidden}
		}
		return nil, ErrNoPorts
	}
	res = append([]string(nil), res...)
	sort.Strings(res)
	return res, nil
}

func noPortsError(hidden Ports) error {
	if len(hidden) == 0 {
		return ErrNoPorts
	}
	var names []string
	for _, p := range hidden {
		names = append(names, p.Name)
	}
	return &FilteredPortsError{Hidden: names}
}

func containsPort(ports []string, port string) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}
	return false
}

func ConfiguredPort() string {
	return directory.GetString(directory.PortEnv, directory.PortCfgKey)
}

// isInteractive reports whether the user can answer a prompt.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func pickPort(ports []string) (string, error) {
	if len(ports) == 0 {
		return "", ErrNoPorts
	}

	prompt := promptui.Select{
		Label:     "Choose what serial port you want to use",
		Items:     ports,
		Templates: &promptui.SelectTemplates{},
	}

	i, _, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("you didn't select anything")
	}

	return ports[i], nil
}

func filterPorts(ports []string) []string {
	return filterPortsFor(runtime.GOOS, ports)
}

func filterPortsFor(goos string, ports []string) []string {
	switch goos {
	case "darwin":
		return darwinFilterPaths(ports)
	case "linux":
		return linuxFilterPaths(ports)
	default:
		return ports
	}
}

func darwinFilterPaths(paths []string) []string {
	existing := map[string]struct{}{}
	for _, p := range paths {
		existing[p] = struct{}{}
	}
	var res []string
	for _, path := range paths {
		if strings.Contains(path, "Bluetooth") {
			continue
		}
		if strings.HasPrefix(path, "/dev/cu") {
			res = append(res, path)
		} else if strings.HasPrefix(path, "/dev/tty") {
			candidate := "/dev/cu" + strings.TrimPrefix(path, "/dev/tty")
			if _, exists := existing[candidate]; !exists {
				res = append(res, path)
			}
		}
	}
	return res
}

func linuxFilterPaths(paths []string) []string {
	res := []string(nil)
	for _, path := range paths {
		if strings.Contains(path, "ttyUSB") || strings.Contains(path, "ttyACM") {
			res = append(res, path)
		}
	}
	return res
}
