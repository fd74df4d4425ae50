// Package report delivers finished audit reports: JSON files on disk,
// a console summary, and an HTTP API serving the latest report.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/privaudit/privaudit/internal/analysis"
)

// WriteFile writes the report as pretty-printed JSON. Parent directories
// are created as needed.
func WriteFile(path string, report analysis.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
