// Package cli is the thin command surface over the daemon: init a project
// root, start the daemon, stop it, check its status.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var projectDir string

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Coordination daemon for AI coding agents",
	Long: "foreman runs one daemon per project root, exposing a websocket event\n" +
		"channel for dashboards and an MCP tool channel for agents. Tasks move\n" +
		"through a plan-before-code handshake: agents submit plans, humans\n" +
		"approve them, and only then does coding start.",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "project root (defaults to the working directory)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}

// projectRoot resolves the project directory flag, falling back to cwd.
func projectRoot() (string, error) {
	if projectDir != "" {
		return projectDir, nil
	}
	return os.Getwd()
}
