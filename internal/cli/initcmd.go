package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/foreman/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Initialize a project root",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}

	name := filepath.Base(root)
	if len(args) == 1 {
		name = args[0]
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	project, err := store.Init(root, name, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Initialized project %q at %s\n", project.Name, root)
	fmt.Println("Run 'foreman start' to launch the daemon.")
	return nil
}
