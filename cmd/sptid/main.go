// Copyright (C) 2026 SPT Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"os"

	"github.com/sptlabs/sptid/cmd/sptid/commands"
)

var (
	version   = "v0.1.0"
	buildDate = "unknown"
)

func main() {
	info := commands.Info{
		Date:    buildDate,
		Version: version,
	}
	ctx := commands.SetInfo(context.Background(), info)
	cmd := commands.SptidCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		commands.PrintDiagnostic(cmd.OutOrStdout(), err)
		os.Exit(1)
	}
}
