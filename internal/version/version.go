// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package version // import "newshub.app/internal/version"

const devVersion = "Development Version"

// Variables populated at build time when using LD_FLAGS.
var (
	Commit    = "Unknown (built outside VCS)"
	BuildDate = "Unknown (built outside VCS)"
	Version   = devVersion
)
