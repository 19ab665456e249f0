package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Statusf prints a progress message to stderr unless --quiet is set.
// Results go to stdout; everything else goes through Statusf or the logger.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if cc.Flags.Quiet {
		return
	}

	fmt.Fprintf(os.Stderr, format, args...)
}

var sizeUnits = []string{"KB", "MB", "GB", "TB"}

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	const unit = 1024

	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	value := float64(bytes) / unit
	i := 0

	for value >= unit && i < len(sizeUnits)-1 {
		value /= unit
		i++
	}

	return fmt.Sprintf("%.1f %s", value, sizeUnits[i])
}

// formatTime returns a compact local timestamp: "Jan _2 15:04" within the
// current year, "Jan _2  2006" otherwise.
func formatTime(t time.Time) string {
	t = t.Local()

	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// printTable writes left-aligned columns separated by two spaces.
// Every row must have len(headers) cells.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	// The last column is not padded.
	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}
