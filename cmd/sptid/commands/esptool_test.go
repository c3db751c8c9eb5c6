package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-semver/semver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEsptool runs this test binary as esptool. TestHelperEsptool acts
// according to mode.
func fakeEsptool(mode string) *Esptool {
	return &Esptool{
		Path: os.Args[0],
		Args: []string{"-test.run=TestHelperEsptool", "--"},
		Env: []string{
			"SPTID_WANT_HELPER_PROCESS=1",
			"SPTID_HELPER_MODE=" + mode,
		},
	}
}

func TestHelperEsptool(t *testing.T) {
	if os.Getenv("SPTID_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}

	switch os.Getenv("SPTID_HELPER_MODE") {
	case "ok":
		fmt.Print(readMACOutput)
	case "args":
		fmt.Printf("MAC: 00:11:22:33:44:55\nargs: %s\n", strings.Join(args, " "))
	case "garbage":
		fmt.Println("A fatal error occurred: Failed to connect to ESP32: No serial data received.")
	case "fail":
		fmt.Fprintln(os.Stderr, "A fatal error occurred: Could not open /dev/ttyUSB0, the port doesn't exist")
		os.Exit(2)
	case "no-module":
		fmt.Fprintln(os.Stderr, "/usr/bin/python3: No module named esptool")
		os.Exit(1)
	case "hang":
		time.Sleep(time.Minute)
	case "version":
		fmt.Println("esptool.py v4.7.0")
		fmt.Println("4.7.0")
	}
	os.Exit(0)
}

func Test_ReadMAC(t *testing.T) {
	out, err := fakeEsptool("ok").ReadMAC(context.Background(), "/dev/ttyUSB0", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, readMACOutput, out)
}

func Test_ReadMACPassesPort(t *testing.T) {
	out, err := fakeEsptool("args").ReadMAC(context.Background(), "/dev/ttyACM1", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, out, "args: --port /dev/ttyACM1 read_mac")

	out, err = fakeEsptool("args").ReadMAC(context.Background(), "", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, out, "args: read_mac")
}

func Test_ReadMACTimeout(t *testing.T) {
	start := time.Now()
	_, err := fakeEsptool("hang").ReadMAC(context.Background(), "/dev/ttyUSB0", 200*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 30*time.Second)
}

func Test_ReadMACFailure(t *testing.T) {
	_, err := fakeEsptool("fail").ReadMAC(context.Background(), "/dev/ttyUSB0", time.Minute)
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Contains(t, toolErr.Stderr, "Could not open /dev/ttyUSB0")
}

func Test_ReadMACMissingModule(t *testing.T) {
	_, err := fakeEsptool("no-module").ReadMAC(context.Background(), "/dev/ttyUSB0", time.Minute)
	assert.ErrorIs(t, err, ErrEsptoolNotFound)
}

func Test_ReadMACMissingExecutable(t *testing.T) {
	tool := &Esptool{Path: filepath.Join(t.TempDir(), "esptool")}
	_, err := tool.ReadMAC(context.Background(), "/dev/ttyUSB0", time.Minute)
	assert.ErrorIs(t, err, ErrEsptoolNotFound)
}

func Test_EsptoolVersion(t *testing.T) {
	v, err := fakeEsptool("version").Version(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "4.7.0", v.String())
}

func Test_parseEsptoolVersion(t *testing.T) {
	tests := []struct {
		in      string
		version string
	}{
		{in: "esptool.py v4.7.0\n4.7.0\n", version: "4.7.0"},
		{in: "esptool v5.0.2\n5.0.2\n", version: "5.0.2"},
		{in: "esptool.py v2.8\n", version: "2.8.0"},
		{in: "usage: esptool"},
	}

	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			v, err := parseEsptoolVersion(test.in)
			if test.version == "" {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, test.version, v.String())
			}
		})
	}

	old, err := parseEsptoolVersion("esptool.py v2.8")
	require.NoError(t, err)
	assert.True(t, old.LessThan(*MinimumEsptoolVersion))
	assert.False(t, semver.New("4.7.0").LessThan(*MinimumEsptoolVersion))
}

func withLookPath(t *testing.T, found map[string]string) {
	original := lookPath
	lookPath = func(file string) (string, error) {
		if path, ok := found[file]; ok {
			return path, nil
		}
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", file)
	}
	t.Cleanup(func() { lookPath = original })
}

func Test_FindEsptool(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		found      map[string]string
		esptool    *Esptool
	}{
		{
			name:       "configured",
			configured: "/opt/esp/esptool",
			found:      map[string]string{"/opt/esp/esptool": "/opt/esp/esptool", "esptool": "/usr/bin/esptool"},
			esptool:    &Esptool{Path: "/opt/esp/esptool"},
		},
		{
			name:       "configured missing",
			configured: "/opt/esp/esptool",
			found:      map[string]string{"esptool": "/usr/bin/esptool"},
		},
		{
			name:    "esptool on path",
			found:   map[string]string{"esptool": "/usr/bin/esptool", "python3": "/usr/bin/python3"},
			esptool: &Esptool{Path: "/usr/bin/esptool"},
		},
		{
			name:    "esptool.py on path",
			found:   map[string]string{"esptool.py": "/usr/local/bin/esptool.py", "python3": "/usr/bin/python3"},
			esptool: &Esptool{Path: "/usr/local/bin/esptool.py"},
		},
		{
			name:    "python3 module",
			found:   map[string]string{"python3": "/usr/bin/python3", "python": "/usr/bin/python"},
			esptool: &Esptool{Path: "/usr/bin/python3", Args: []string{"-m", "esptool"}},
		},
		{
			name:    "python module",
			found:   map[string]string{"python": "/usr/bin/python"},
			esptool: &Esptool{Path: "/usr/bin/python", Args: []string{"-m", "esptool"}},
		},
		{
			name: "nothing",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			withLookPath(t, test.found)
			esptool, err := FindEsptool(test.configured)
			if test.esptool == nil {
				assert.ErrorIs(t, err, ErrEsptoolNotFound)
			} else {
				require.NoError(t, err)
				assert.Equal(t, test.esptool, esptool)
			}
		})
	}
}
