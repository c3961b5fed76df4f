// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// Fatal exits the process for err. An error carrying its own exit code
// (an ExitCode() int method anywhere in its chain) exits with that code
// silently, since the command already reported the failure. Anything
// else writes "error: err" to stderr and exits with code 1.
func Fatal(err error) {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		os.Exit(coder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
