package aggregate

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// RenderSummary prints the run summary followed by the extension frequency
// table. top limits the table to the most common names; 0 prints all.
func RenderSummary(out io.Writer, summary Summary, elapsed time.Duration, top int) {
	fmt.Fprintf(out, "Hosts surveyed:      %s (%d unreachable, %d partial)\n",
		humanize.Comma(int64(summary.Hosts)), summary.Unreachable, summary.PartialErrors)
	fmt.Fprintf(out, "Users:               %s\n", humanize.Comma(int64(summary.Users)))
	fmt.Fprintf(out, "Unique extensions:   %s\n", humanize.Comma(int64(summary.Extensions)))
	fmt.Fprintf(out, "Extension records:   %s\n", humanize.Comma(int64(summary.Records)))
	if elapsed > 0 {
		fmt.Fprintf(out, "Elapsed:             %s\n", elapsed.Round(time.Millisecond))
	}

	if len(summary.Frequencies) == 0 {
		fmt.Fprintln(out, "No extensions found.")
		return
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Extension", "Count"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})

	for i, freq := range summary.Frequencies {
		if top > 0 && i >= top {
			table.SetCaption(true, fmt.Sprintf("%d more not shown",
				len(summary.Frequencies)-top))
			break
		}
		table.Append([]string{freq.Name, strconv.Itoa(freq.Count)})
	}
	table.Render()
}
