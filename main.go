package main

import (
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"
)

type CommandHandler func(command string) bool

var (
	app = kingpin.New("browser-inventory",
		"Survey installed Firefox and Chrome extensions across a fleet of hosts.")

	configPath = app.Flag("config", "YAML configuration file.").Short('c').
			Envar("BROWSER_INVENTORY_CONFIG").String()

	verboseFlag = app.Flag("verbose", "Enable debug logging.").Short('v').
			Default("false").Bool()

	commandHandlers []CommandHandler
)

// initLogging sends logs to stderr so that stdout only carries output
// meant for other programs, such as the rows printed by collect.
func initLogging(verbose bool) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.InfoLevel)
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate)

	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	initLogging(*verboseFlag)

	for _, handler := range commandHandlers {
		if handler(command) {
			break
		}
	}
}
