// Package report renders the result artifact for a finished task.
package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/JakeFAU/email-harvester/internal/scraper"
)

// headerRow is the fixed artifact header.
var headerRow = []string{"Website", "Emails Found"}

// ArtifactName returns the artifact filename for a task.
func ArtifactName(taskID string) string {
	return fmt.Sprintf("scraped_emails_%s.csv", taskID)
}

// Write renders the header plus one row per submitted site, preserving input
// order. The writer handles quoting for email lists containing commas.
func Write(w io.Writer, rows []scraper.ResultRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headerRow); err != nil {
		return fmt.Errorf("write artifact header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write([]string{row.Website, row.Emails}); err != nil {
			return fmt.Errorf("write artifact row for %s: %w", row.Website, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush artifact: %w", err)
	}
	return nil
}
