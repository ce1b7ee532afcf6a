package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/foreman/internal/config"
	"github.com/HendryAvila/foreman/internal/daemon"
)

var startPort int

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon for a project root",
	Long: "Start the daemon in the foreground. Without --port it scans upward\n" +
		"from the configured base port until it finds a free one. The bound\n" +
		"port is written to the project's daemon.json for companion processes.",
	RunE: runStart,
}

func init() {
	startCmd.Flags().IntVar(&startPort, "port", 0, "explicit port (default: scan from the configured base)")
}

func runStart(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}

	if pf, err := daemon.ReadPortFile(root); err == nil && processAlive(pf.PID) {
		return fmt.Errorf("daemon already running for %s (pid %d, port %d)", root, pf.PID, pf.Port)
	}

	cfg, err := config.Load(filepath.Join(root, config.FileName))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	d, err := daemon.New(root, cfg, logger)
	if err != nil {
		return err
	}
	if err := d.Start(startPort); err != nil {
		return err
	}
	fmt.Printf("foreman listening on %s:%d (project %s)\n", cfg.Host, d.Port(), root)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.Shutdown(ctx)
}

// processAlive reports whether pid exists and accepts signals.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
