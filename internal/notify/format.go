package notify

import (
	"fmt"
	"strings"
	"time"

	"ingestor/internal/ingest"
)

const (
	// maxListed bounds the failures spelled out in one report.
	maxListed = 20
	maxErrLen = 200
)

// FormatCycleReport renders a plain-text summary of a cycle's failures.
func FormatCycleReport(res *ingest.Result) string {
	failed := res.Failed()

	var b strings.Builder
	fmt.Fprintf(&b, "Ingestion cycle: %d of %d sources failed\n", len(failed), len(res.Sources))
	fmt.Fprintf(&b, "Items stored: %d in %s\n", res.Total(), res.Duration.Round(time.Second))

	for i, s := range failed {
		if i == maxListed {
			fmt.Fprintf(&b, "\n...and %d more", len(failed)-maxListed)
			break
		}
		fmt.Fprintf(&b, "\n%s (%s): %s", s.Source.Name, s.Source.Type, shorten(s.Err.Error()))
	}
	return b.String()
}

func shorten(s string) string {
	r := []rune(s)
	if len(r) <= maxErrLen {
		return s
	}
	return string(r[:maxErrLen]) + "..."
}
