// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Dmxbridge - USB DMX512/RDM interface core.

package main

import (
	"os"

	"github.com/Thermoquad/dmxbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
