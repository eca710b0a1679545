package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Drover - device farm orchestrator",
	Long:  `Drover coordinates a fleet of devices, each cycling one automation account through rate-limited, prioritized actions.`,
	// No RunE - defaults to showing help when no subcommand is provided
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(jobCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
