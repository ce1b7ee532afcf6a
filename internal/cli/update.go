package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/foreman/internal/daemon"
	"github.com/HendryAvila/foreman/internal/updater"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update foreman to the latest release",
	RunE:  runUpdate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("foreman v%s\n", daemon.Version)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	result := updater.CheckVersion(daemon.Version)
	if !result.UpdateAvailable {
		fmt.Printf("Already up to date (v%s)\n", daemon.Version)
		return nil
	}

	fmt.Printf("Updating v%s -> v%s ...\n", result.CurrentVersion, result.LatestVersion)
	if err := updater.SelfUpdate(daemon.Version); err != nil {
		return err
	}
	fmt.Println("Updated. Restart any running daemon to pick up the new binary.")
	return nil
}
