package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/foreman/internal/daemon"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}

	pf, err := daemon.ReadPortFile(root)
	if err != nil {
		fmt.Printf("No daemon running for %s\n", root)
		return nil
	}
	if !processAlive(pf.PID) {
		fmt.Printf("Daemon not running (stale port file, pid %d)\n", pf.PID)
		return nil
	}

	fmt.Printf("Daemon running for %s\n", pf.ProjectPath)
	fmt.Printf("  pid:     %d\n", pf.PID)
	fmt.Printf("  address: %s:%d\n", pf.Host, pf.Port)
	fmt.Printf("  started: %s\n", pf.StartedAt)
	fmt.Printf("  ws:      ws://%s:%d/ws\n", pf.Host, pf.Port)
	fmt.Printf("  mcp:     http://%s:%d/mcp\n", pf.Host, pf.Port)
	return nil
}
