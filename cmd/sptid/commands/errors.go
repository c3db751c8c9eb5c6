// Copyright (C) 2026 SPT Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrNoPorts is returned when no candidate serial port is present.
	ErrNoPorts = errors.New("no serial ports detected")

	// ErrEsptoolNotFound is returned when neither an esptool executable nor
	// a Python interpreter with the esptool module could be found.
	ErrEsptoolNotFound = errors.New("esptool not found")

	// ErrTimeout is returned when esptool did not finish within the timeout.
	ErrTimeout = errors.New("timeout while communicating with the device")

	// ErrMACNotFound is returned when the esptool output held no MAC address.
	ErrMACNotFound = errors.New("MAC address not found in esptool output")
)

// FilteredPortsError is returned when serial ports exist but none of them
// looks like a port an ESP32 may be connected to.
type FilteredPortsError struct {
	Hidden []string
}

func (e *FilteredPortsError) Error() string {
	return fmt.Sprintf("%v (ignored: %s)", ErrNoPorts, strings.Join(e.Hidden, ", "))
}

func (e *FilteredPortsError) Unwrap() error {
	return ErrNoPorts
}

// ToolError records a non-zero exit of esptool together with what it wrote
// to stderr.
type ToolError struct {
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("esptool failed: %v", e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Diagnose returns the lines printed to the user for err.
func Diagnose(err error) []string {
	var toolErr *ToolError
	var filteredErr *FilteredPortsError
	switch {
	case errors.As(err, &filteredErr):
		return []string{
			"❌ No serial (COM) ports detected.",
			fmt.Sprintf("Ignored %s; use --all to consider them.", strings.Join(filteredErr.Hidden, ", ")),
		}
	case errors.Is(err, ErrNoPorts):
		return []string{
			"❌ No serial (COM) ports detected.",
			"Check: USB data cable, drivers (CP210x/CH340), and Device Manager → Ports (COM & LPT).",
		}
	case errors.Is(err, ErrEsptoolNotFound):
		return []string{"❌ esptool.py not found. Install it with: pip install esptool"}
	case errors.Is(err, ErrTimeout):
		return []string{"❌ Timeout while trying to communicate with ESP32"}
	case errors.As(err, &toolErr):
		lines := []string{"❌ Failed to run esptool.py"}
		if stderr := strings.TrimSpace(toolErr.Stderr); stderr != "" {
			lines = append(lines, stderr)
		}
		return lines
	case errors.Is(err, ErrMACNotFound):
		return []string{
			"❌ No ESP32 detected or MAC not found.",
			"Make sure the device is connected and not in use.",
		}
	default:
		return []string{"❌ " + err.Error()}
	}
}

// PrintDiagnostic writes the diagnostic lines for err to w.
func PrintDiagnostic(w io.Writer, err error) {
	for _, line := range Diagnose(err) {
		fmt.Fprintln(w, line)
	}
}
