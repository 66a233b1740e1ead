// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import "newshub.app/internal/cli"

func main() {
	cli.Execute()
}
