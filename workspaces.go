// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/workspacesio/workspaces/cmd"
	"github.com/workspacesio/workspaces/pkg/env"
)

func main() {
	if !env.IsLocal() {
		err := sentry.Init(sentry.ClientOptions{
			SampleRate:       0.1,
			EnableTracing:    true,
			TracesSampleRate: 0.1,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "sentry.Init: %v", err)
		}
	}
	// Flush buffered events before the program terminates.
	// Set the timeout to the maximum duration the program can afford to wait.
	defer sentry.Flush(2 * time.Second)

	flag.Parse()

	cmd.Execute()
}
