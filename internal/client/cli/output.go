package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/client/models"
)

func printOutcome(w io.Writer, out models.Outcome) {
	if out.Success {
		fmt.Fprintf(w, "request %s: post %s created in %s\n", out.RequestID, out.PostID, out.Duration.Round(time.Millisecond))
		return
	}

	fmt.Fprintf(w, "request %s: failed: %v\n", out.RequestID, out.Err)
	for _, f := range out.Failures {
		fmt.Fprintf(w, "  %v\n", f)
	}
}

func printTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	line := func(cells []string) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = c + strings.Repeat(" ", widths[i]-len(c))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	line(header)
	for _, row := range rows {
		line(row)
	}
}
