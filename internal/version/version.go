/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current version of Slidify.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/slidify/internal/version.Version=X.Y.Z
var Version = "0.4.0"

// Commit is the git revision the binary was built from, set via ldflags.
var Commit = "dev"

// String returns the version line printed by the CLI.
func String() string {
	return fmt.Sprintf("slidify %s (%s, %s)", Version, Commit, runtime.Version())
}
