package main

import (
	"context"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"fleet-browser-inventory/db"
	"fleet-browser-inventory/internal/aggregate"
	"fleet-browser-inventory/internal/browsers"
	"fleet-browser-inventory/internal/config"
	"fleet-browser-inventory/internal/dispatch"
	"fleet-browser-inventory/internal/transport"
)

var (
	surveyCmd = app.Command("survey", "Collect extensions from many hosts and write one inventory.")

	surveyHosts = surveyCmd.Flag("hosts",
		"Hosts to survey, repeatable or comma separated.").Strings()
	surveyHostsFile = surveyCmd.Flag("hosts_file",
		"File with one host per line.").String()
	surveyJobs = surveyCmd.Flag("jobs",
		"Maximum number of hosts collected at the same time (default 10).").Int()
	surveyOutput = surveyCmd.Flag("output",
		"Directory receiving the dated inventory CSV.").String()
	surveyBrowser = surveyCmd.Flag("browser",
		"Browsers to collect: Firefox, Chrome or All.").String()
	surveyTransport = surveyCmd.Flag("transport",
		"How to reach hosts: sftp, ssh or local.").Enum(
		config.TransportSFTP, config.TransportSSH, config.TransportLocal)
	surveyTargetOS = surveyCmd.Flag("target_os",
		"Operating system of the surveyed hosts (windows, darwin, linux).").String()
	surveyUsersRoot = surveyCmd.Flag("users_root",
		"Override the directory holding user profiles on the hosts.").String()
	surveyRemoteCommand = surveyCmd.Flag("remote_command",
		"Path of this tool on the hosts, used by the ssh transport.").String()
	surveyJournal = surveyCmd.Flag("journal",
		"SQLite file recording every run and host outcome.").String()
	surveyMetricsFile = surveyCmd.Flag("metrics_file",
		"Write run metrics in Prometheus text format to this file.").String()
	surveyTop = surveyCmd.Flag("top",
		"Number of extensions shown in the summary, 0 for all.").Int()
	surveyFirefoxSentinel = surveyCmd.Flag("firefox_parse_sentinel",
		"Emit NAME_RESOLUTION_ERROR rows for unparsable Firefox settings.").Bool()
	surveyResolveLocalized = surveyCmd.Flag("resolve_localized",
		"Resolve __MSG_ Chrome names from _locales instead of skipping them.").Bool()

	sshUser       = surveyCmd.Flag("ssh_user", "User to log in as.").String()
	sshKey        = surveyCmd.Flag("ssh_key", "Private key file.").String()
	sshKnownHosts = surveyCmd.Flag("ssh_known_hosts", "known_hosts file used to verify hosts.").String()
	sshPort       = surveyCmd.Flag("ssh_port", "Port used when a host does not name one.").Int()
	sshTimeout    = surveyCmd.Flag("ssh_timeout", "Connect and handshake timeout.").Duration()
)

// loadSurveyConfig reads the config file and applies the flags given on
// the command line over it.
func loadSurveyConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	cfg.Hosts = append(cfg.Hosts, *surveyHosts...)
	setString(&cfg.HostsFile, *surveyHostsFile)
	setString(&cfg.Output, *surveyOutput)
	setString(&cfg.Browser, *surveyBrowser)
	setString(&cfg.Transport, *surveyTransport)
	setString(&cfg.TargetOS, *surveyTargetOS)
	setString(&cfg.UsersRoot, *surveyUsersRoot)
	setString(&cfg.RemoteCommand, *surveyRemoteCommand)
	setString(&cfg.Journal, *surveyJournal)
	setString(&cfg.MetricsFile, *surveyMetricsFile)
	setString(&cfg.SSH.User, *sshUser)
	setString(&cfg.SSH.KeyFile, *sshKey)
	setString(&cfg.SSH.KnownHosts, *sshKnownHosts)

	if *surveyJobs != 0 {
		cfg.Jobs = *surveyJobs
	}
	if *surveyTop != 0 {
		cfg.Top = *surveyTop
	}
	if *sshPort != 0 {
		cfg.SSH.Port = *sshPort
	}
	if *sshTimeout != 0 {
		cfg.SSH.Timeout = *sshTimeout
	}
	cfg.FirefoxParseSentinel = cfg.FirefoxParseSentinel || *surveyFirefoxSentinel
	cfg.ResolveLocalizedNames = cfg.ResolveLocalizedNames || *surveyResolveLocalized

	return cfg, cfg.Validate()
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// buildTransport returns the transport selected by the configuration
func buildTransport(cfg *config.Config, logger logrus.FieldLogger) (transport.Transport, error) {
	layout, err := cfg.Layout()
	if err != nil {
		return nil, err
	}

	inventory := browsers.NewBrowserInventory(browsers.Options{
		Layout:                layout,
		FirefoxParseSentinel:  cfg.FirefoxParseSentinel,
		ResolveLocalizedNames: cfg.ResolveLocalizedNames,
	}, logger)

	if cfg.Transport == config.TransportLocal {
		return transport.NewLocal(inventory, transport.DirFS(layout.UsersRoot)), nil
	}

	dialer, err := transport.NewDialer(cfg.SSH)
	if err != nil {
		return nil, err
	}

	if cfg.Transport == config.TransportSSH {
		args, err := collectArgs(cfg)
		if err != nil {
			return nil, err
		}
		return transport.NewSSHExec(dialer, cfg.RemoteCommand, args...), nil
	}
	return transport.NewSFTP(dialer, inventory, layout.UsersRoot), nil
}

// collectArgs passes the normalizer options and the users root override on
// to a remote collect.
func collectArgs(cfg *config.Config) ([]string, error) {
	var args []string
	if cfg.FirefoxParseSentinel {
		args = append(args, "--firefox_parse_sentinel")
	}
	if cfg.ResolveLocalizedNames {
		args = append(args, "--resolve_localized")
	}
	if cfg.UsersRoot != "" {
		root, err := quoteRemote(cfg.UsersRoot)
		if err != nil {
			return nil, err
		}
		args = append(args, "--users_root", root)
	}
	return args, nil
}

// Characters that expand inside double quotes in sh or cmd.exe. A trailing
// backslash would escape the closing quote.
var unquotableRegex = regexp.MustCompile("[\"$`!%\r\n]|\\\\$")

// quoteRemote double quotes value for the remote shell, which may be sh or
// cmd.exe.
func quoteRemote(value string) (string, error) {
	if unquotableRegex.MatchString(value) {
		return "", errors.Errorf("cannot pass %q to a remote shell", value)
	}
	return `"` + value + `"`, nil
}

// runSurvey dispatches every host, then aggregates and reports. Only an
// unusable configuration stops a run; host failures are part of the
// result.
func runSurvey(ctx context.Context, cfg *config.Config, hosts []string,
	t transport.Transport, out io.Writer, logger *logrus.Entry) (*aggregate.Result, error) {

	start := time.Now()
	runID := uuid.New().String()
	logger = logger.WithField("run", runID)

	if len(hosts) == 0 {
		return nil, errors.New("no hosts specified")
	}

	// Fail before contacting anything if results cannot be stored.
	if err := aggregate.PrepareOutputDir(cfg.Output); err != nil {
		return nil, err
	}

	var journal *db.DB
	if cfg.Journal != "" {
		var err error
		journal, err = db.NewDB(cfg.Journal)
		if err != nil {
			return nil, err
		}
		defer journal.Close()

		err = journal.StartRun(db.Run{
			ID:          runID,
			Started:     start,
			Selector:    string(cfg.Selector()),
			Concurrency: cfg.Jobs,
		})
		if err != nil {
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"hosts":     len(hosts),
		"jobs":      cfg.Jobs,
		"browser":   cfg.Selector(),
		"transport": cfg.Transport,
	}).Info("Starting survey")

	results := dispatch.New(t, dispatch.Options{
		Concurrency: cfg.Jobs,
		Logger:      logger,
	}).Dispatch(ctx, hosts, cfg.Selector())

	result, err := aggregate.NewAggregator(cfg.Output, logger).Aggregate(results)
	if err != nil {
		return nil, err
	}

	if journal != nil {
		if err := journal.RecordHosts(runID, results); err != nil {
			logger.WithError(err).Error("Unable to journal host results")
		}
		err := journal.FinishRun(runID, time.Now(), result.Summary.Hosts,
			result.Summary.Records, result.Path)
		if err != nil {
			logger.WithError(err).Error("Unable to journal run")
		}
	}

	if cfg.MetricsFile != "" {
		err := prometheus.WriteToTextfile(cfg.MetricsFile, prometheus.DefaultGatherer)
		if err != nil {
			logger.WithError(err).Error("Unable to write metrics")
		}
	}

	aggregate.RenderSummary(out, result.Summary, time.Since(start), cfg.Top)
	return result, nil
}

func doSurvey() {
	cfg, err := loadSurveyConfig()
	kingpin.FatalIfError(err, "Load config")

	logger := logrus.NewEntry(logrus.StandardLogger())
	hosts, err := cfg.AllHosts(logger)
	kingpin.FatalIfError(err, "Hosts")
	kingpin.FatalIfError(cfg.CheckHosts(hosts), "Hosts")

	t, err := buildTransport(cfg, logrus.StandardLogger())
	kingpin.FatalIfError(err, "Transport")

	_, err = runSurvey(context.Background(), cfg, hosts, t, os.Stdout, logger)
	kingpin.FatalIfError(err, "Survey")
}

func init() {
	commandHandlers = append(commandHandlers, func(command string) bool {
		switch command {
		case surveyCmd.FullCommand():
			doSurvey()

		default:
			return false
		}
		return true
	})
}
