package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HendryAvila/foreman/internal/plan"
)

// PortFileName is the discovery sidecar written next to the project data.
// Companion processes (the CLI's stop/status, UIs) read it to find the
// running daemon.
const PortFileName = "daemon.json"

// PortFile records where the daemon for a project root is listening.
type PortFile struct {
	PID         int    `json:"pid"`
	Port        int    `json:"port"`
	Host        string `json:"host"`
	StartedAt   string `json:"startedAt"`
	ProjectPath string `json:"projectPath"`
}

// WritePortFile publishes the sidecar under the project root.
func WritePortFile(root, host string, port int) error {
	pf := PortFile{
		PID:         os.Getpid(),
		Port:        port,
		Host:        host,
		StartedAt:   plan.Now(),
		ProjectPath: root,
	}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding port file: %w", err)
	}
	return os.WriteFile(filepath.Join(root, PortFileName), data, 0o644)
}

// ReadPortFile loads the sidecar for a project root.
func ReadPortFile(root string) (*PortFile, error) {
	data, err := os.ReadFile(filepath.Join(root, PortFileName))
	if err != nil {
		return nil, fmt.Errorf("reading port file: %w", err)
	}
	var pf PortFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing port file: %w", err)
	}
	return &pf, nil
}

// RemovePortFile deletes the sidecar; a missing file is fine.
func RemovePortFile(root string) error {
	err := os.Remove(filepath.Join(root, PortFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
