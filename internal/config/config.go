// Package config loads the survey configuration. Every key can also be
// given on the command line; flags win over the file.
package config

import (
	"bufio"
	"bytes"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"fleet-browser-inventory/internal/browsers"
	"fleet-browser-inventory/internal/dispatch"
	"fleet-browser-inventory/internal/transport"
)

// Transports understood by the survey command
const (
	TransportSFTP  = "sftp"
	TransportSSH   = "ssh"
	TransportLocal = "local"
)

type Config struct {
	Hosts     []string `yaml:"hosts"`
	HostsFile string   `yaml:"hosts_file"`

	// Jobs is the concurrency limit: hosts collected at the same time.
	Jobs int `yaml:"jobs"`

	Output  string `yaml:"output"`
	Browser string `yaml:"browser"`

	Transport     string `yaml:"transport"`
	TargetOS      string `yaml:"target_os"`
	UsersRoot     string `yaml:"users_root"`
	RemoteCommand string `yaml:"remote_command"`

	Journal     string `yaml:"journal"`
	MetricsFile string `yaml:"metrics_file"`
	Top         int    `yaml:"top"`

	FirefoxParseSentinel  bool `yaml:"firefox_parse_sentinel"`
	ResolveLocalizedNames bool `yaml:"resolve_localized_names"`

	SSH transport.SSHConfig `yaml:"ssh"`
}

// Default returns the configuration used when nothing is specified
func Default() *Config {
	return &Config{
		Jobs:      dispatch.DefaultConcurrency,
		Output:    ".",
		Browser:   string(browsers.SelectAll),
		Transport: TransportSFTP,
		TargetOS:  "windows",
		Top:       25,
	}
}

// Load reads a YAML file over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return config, nil
}

// Validate checks settings that would otherwise only fail mid-run
func (c *Config) Validate() error {
	if _, err := browsers.ParseSelector(c.Browser); err != nil {
		return err
	}
	switch c.Transport {
	case TransportSFTP, TransportSSH, TransportLocal:
	default:
		return errors.Errorf("unknown transport %q", c.Transport)
	}
	if _, err := browsers.LayoutFor(c.TargetOS); err != nil {
		return err
	}
	if c.Jobs < 0 {
		return errors.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	if c.Output == "" {
		return errors.New("no output directory specified")
	}
	return nil
}

// Selector returns the parsed browser selector
func (c *Config) Selector() browsers.Selector {
	selector, _ := browsers.ParseSelector(c.Browser)
	return selector
}

// Layout returns the target layout with the users root override applied
func (c *Config) Layout() (browsers.Layout, error) {
	layout, err := browsers.LayoutFor(c.TargetOS)
	if err != nil {
		return layout, err
	}
	if c.UsersRoot != "" {
		layout.UsersRoot = c.UsersRoot
	}
	return layout, nil
}

// AllHosts merges the configured host list with the hosts file
func (c *Config) AllHosts(log logrus.FieldLogger) ([]string, error) {
	hosts := append([]string{}, c.Hosts...)
	if c.HostsFile != "" {
		fileHosts, err := ReadHostsFile(c.HostsFile)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, fileHosts...)
	}
	return NormalizeHosts(hosts, log), nil
}

// CheckHosts rejects host lists the selected transport cannot serve. The
// local transport only reads this machine.
func (c *Config) CheckHosts(hosts []string) error {
	if c.Transport == TransportLocal && len(hosts) > 1 {
		return errors.Errorf("the local transport surveys this machine only, got %d hosts",
			len(hosts))
	}
	return nil
}

// ReadHostsFile reads one host per line. Blank lines and lines starting
// with # are ignored.
func ReadHostsFile(path string) ([]string, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open hosts file")
	}
	defer fd.Close()

	var hosts []string
	scanner := bufio.NewScanner(fd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hosts = append(hosts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read hosts file")
	}
	return hosts, nil
}

// NormalizeHosts splits comma separated entries, trims them and drops
// duplicates, keeping the first occurrence.
func NormalizeHosts(hosts []string, log logrus.FieldLogger) []string {
	seen := make(map[string]bool)
	var result []string
	for _, entry := range hosts {
		for _, host := range strings.Split(entry, ",") {
			host = strings.TrimSpace(host)
			if host == "" {
				continue
			}
			key := strings.ToLower(host)
			if seen[key] {
				if log != nil {
					log.WithField("host", host).Warn("Duplicate host ignored")
				}
				continue
			}
			seen[key] = true
			result = append(result, host)
		}
	}
	return result
}
