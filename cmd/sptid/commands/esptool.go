// Copyright (C) 2026 SPT Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/coreos/go-semver/semver"
)

const (
	DefaultTimeout = 5 * time.Second

	// Upper bound on how long we wait for esptool's output pipes after the
	// process has been killed.
	esptoolWaitDelay = time.Second
)

// MinimumEsptoolVersion is the oldest esptool release known to print the
// 'MAC:' line we parse.
var MinimumEsptoolVersion = semver.New("3.0.0")

var lookPath = exec.LookPath

// Esptool is a way of running esptool: either an executable, or an
// interpreter with leading arguments such as 'python3 -m esptool'.
type Esptool struct {
	Path string
	Args []string
	// Env is appended to the environment of the process.
	Env []string
}

func (e *Esptool) String() string {
	return strings.Join(append([]string{e.Path}, e.Args...), " ")
}

// FindEsptool locates esptool. A configured path takes precedence; otherwise
// the PATH is searched for an esptool executable and then for a Python
// interpreter to run the esptool module with.
func FindEsptool(configured string) (*Esptool, error) {
	if configured != "" {
		path, err := lookPath(configured)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrEsptoolNotFound, configured)
		}
		return &Esptool{Path: path}, nil
	}

	for _, name := range []string{"esptool", "esptool.py"} {
		if path, err := lookPath(name); err == nil {
			return &Esptool{Path: path}, nil
		}
	}

	for _, name := range []string{"python3", "python"} {
		if path, err := lookPath(name); err == nil {
			return &Esptool{Path: path, Args: []string{"-m", "esptool"}}, nil
		}
	}
	return nil, ErrEsptoolNotFound
}

func (e *Esptool) Command(ctx context.Context, args ...string) *exec.Cmd {
	allArgs := append(append([]string{}, e.Args...), args...)
	cmd := exec.CommandContext(ctx, e.Path, allArgs...)
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	cmd.WaitDelay = esptoolWaitDelay
	return cmd
}

// run executes esptool with the given arguments and returns its stdout.
func (e *Esptool) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := e.Command(ctx, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %v", ErrEsptoolNotFound, err)
		}
		if strings.Contains(stderr.String(), "No module named esptool") {
			return "", ErrEsptoolNotFound
		}
		return "", &ToolError{Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}

// ReadMAC runs 'esptool read_mac' against port and returns what esptool
// printed. An empty port lets esptool pick the port itself.
func (e *Esptool) ReadMAC(ctx context.Context, port string, timeout time.Duration) (string, error) {
	var args []string
	if port != "" {
		args = append(args, "--port", port)
	}
	args = append(args, "read_mac")
	return e.run(ctx, timeout, args...)
}

var matchVersionRegexp = regexp.MustCompile(`v?(\d+)\.(\d+)(?:\.(\d+))?`)

// Version returns the version reported by 'esptool version'.
func (e *Esptool) Version(ctx context.Context, timeout time.Duration) (*semver.Version, error) {
	out, err := e.run(ctx, timeout, "version")
	if err != nil {
		return nil, err
	}
	return parseEsptoolVersion(out)
}

func parseEsptoolVersion(out string) (*semver.Version, error) {
	matches := matchVersionRegexp.FindStringSubmatch(out)
	if matches == nil {
		return nil, fmt.Errorf("could not find a version in esptool output: %q", strings.TrimSpace(out))
	}
	patch := matches[3]
	if patch == "" {
		patch = "0"
	}
	return semver.NewVersion(fmt.Sprintf("%s.%s.%s", matches[1], matches[2], patch))
}
