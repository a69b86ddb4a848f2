// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Authzbridge serves path based authorization for web applications.
package main

import (
	"fmt"
	"os"

	"codeberg.org/readeck/authzbridge/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err) // nolint:errcheck
		os.Exit(1)
	}
}
