package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/foreman/internal/daemon"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}

	pf, err := daemon.ReadPortFile(root)
	if err != nil {
		return fmt.Errorf("no daemon running for %s", root)
	}
	if !processAlive(pf.PID) {
		daemon.RemovePortFile(root)
		return fmt.Errorf("daemon not running (stale pid %d removed)", pf.PID)
	}

	process, err := os.FindProcess(pf.PID)
	if err != nil {
		return err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", pf.PID, err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !processAlive(pf.PID) {
			fmt.Printf("Daemon stopped (pid %d)\n", pf.PID)
			return nil
		}
	}
	return fmt.Errorf("daemon (pid %d) did not stop within 5s", pf.PID)
}
