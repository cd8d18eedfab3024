// Package cli implements the skycast command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "skycast",
	Short: "Skycast - weather tools over MCP",
	Long: `Skycast is an MCP server exposing weather lookup tools backed by the
Open-Meteo API, with privacy-preserving, anonymous usage analytics.

Analytics never includes coordinates, place names, or user input at any
privacy level, never blocks a tool call, and can be disabled entirely in
.skycast.yaml or with SKYCAST_ANALYTICS_ENABLED=false.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("skycast %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
