// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "Workspaces - scoped temporary access to shared object storage",
	Long: `Workspaces brokers scoped, temporary access to shared object-storage
locations across independent storage back-ends. Users own workspaces,
share them at READ/READ_WRITE granularity, and request short-lived
storage credentials scoped exactly to what they are authorized to touch.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	viper.SetEnvPrefix("WORKSPACES")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
