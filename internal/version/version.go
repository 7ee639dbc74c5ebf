/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package version

import (
	"runtime/debug"
)

// overridable via -ldflags "-X .../internal/version.version=v1.2.3"
var version = ""

// GetVersion returns the runtime's version as embedded in the user-agent
// label: the ldflags-provided value when set, otherwise the main module
// version from the build info, otherwise a development placeholder.
func GetVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return "0.0.0-dev"
}
