package simulate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// saveReport writes the report as indented JSON, creating parent directories.
func saveReport(filename string, report *Report) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(filename, append(raw, '\n'), filePermission); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
