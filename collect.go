package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"

	"fleet-browser-inventory/internal/browsers"
)

var (
	collectCmd = app.Command("collect",
		"Collect this host's extensions and print them as CSV rows without a header.")

	collectHost = collectCmd.Flag("host",
		"Name reported in the computer column (default: hostname).").String()
	collectBrowser = collectCmd.Flag("browser",
		"Browsers to collect: Firefox, Chrome or All.").Default("All").String()
	collectUsersRoot = collectCmd.Flag("users_root",
		"Override the directory holding user profiles.").String()
	collectFirefoxSentinel = collectCmd.Flag("firefox_parse_sentinel",
		"Emit NAME_RESOLUTION_ERROR rows for unparsable Firefox settings.").Bool()
	collectResolveLocalized = collectCmd.Flag("resolve_localized",
		"Resolve __MSG_ Chrome names from _locales instead of skipping them.").Bool()
)

// writeRows runs the Host Collector over fsys and prints one row per record
func writeRows(out io.Writer, inventory *browsers.BrowserInventory, fsys fs.FS,
	host string, selector browsers.Selector) error {

	records, err := inventory.Collect(fsys, host, selector)
	if err != nil {
		return err
	}

	rows, err := browsers.EncodeRows(records)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(out, row); err != nil {
			return err
		}
	}
	return nil
}

func doCollect() {
	selector, err := browsers.ParseSelector(*collectBrowser)
	kingpin.FatalIfError(err, "Browser")

	layout, err := browsers.LayoutFor("")
	kingpin.FatalIfError(err, "Layout")
	if *collectUsersRoot != "" {
		layout.UsersRoot = *collectUsersRoot
	}

	host := *collectHost
	if host == "" {
		host, err = os.Hostname()
		kingpin.FatalIfError(err, "Hostname")
	}

	inventory := browsers.NewBrowserInventory(browsers.Options{
		Layout:                layout,
		FirefoxParseSentinel:  *collectFirefoxSentinel,
		ResolveLocalizedNames: *collectResolveLocalized,
	}, logrus.StandardLogger())

	err = writeRows(os.Stdout, inventory, os.DirFS(layout.UsersRoot), host, selector)
	kingpin.FatalIfError(err, "Collect")
}

func init() {
	commandHandlers = append(commandHandlers, func(command string) bool {
		switch command {
		case collectCmd.FullCommand():
			doCollect()

		default:
			return false
		}
		return true
	})
}
