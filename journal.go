package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"fleet-browser-inventory/db"
)

var (
	journalCmd = app.Command("journal", "Show the host outcomes of the last survey run.")

	journalPath = journalCmd.Arg("journal", "SQLite journal written by survey --journal.").
			Required().ExistingFile()
)

func printLastRun(out io.Writer, journal *db.DB) error {
	run, err := journal.LastRun()
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Fprintln(out, "No runs journaled.")
		return nil
	}

	fmt.Fprintf(out, "Run %s started %s (%s), browser %s, jobs %d\n",
		run.ID, run.Started.Format(time.RFC3339), humanize.Time(run.Started),
		run.Selector, run.Concurrency)
	if !run.Finished.IsZero() {
		fmt.Fprintf(out, "%d hosts, %d records, written to %s\n",
			run.Hosts, run.Records, run.Output)
	}

	hosts, err := journal.HostResults(run.ID)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Host", "Status", "Records", "Duration", "Error"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, host := range hosts {
		table.Append([]string{
			host.Host,
			string(host.Status),
			strconv.Itoa(host.Records),
			host.Duration.String(),
			host.Error,
		})
	}
	table.Render()
	return nil
}

func doJournal() {
	journal, err := db.NewDB(*journalPath)
	kingpin.FatalIfError(err, "Open journal")
	defer journal.Close()

	err = printLastRun(os.Stdout, journal)
	kingpin.FatalIfError(err, "Journal")
}

func init() {
	commandHandlers = append(commandHandlers, func(command string) bool {
		switch command {
		case journalCmd.FullCommand():
			doJournal()

		default:
			return false
		}
		return true
	})
}
