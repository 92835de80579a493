package transport

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"fleet-browser-inventory/internal/browsers"
)

var safeHostRegex = regexp.MustCompile(`^[A-Za-z0-9._:\[\]-]+$`)

// SSHExec runs the collect subcommand of this tool on the remote host and
// treats each line of its stdout as a row.
type SSHExec struct {
	dialer  *Dialer
	command string
	args    []string
}

// NewSSHExec creates a transport that runs command on each host. args are
// appended to the collect invocation, e.g. normalizer options.
func NewSSHExec(dialer *Dialer, command string, args ...string) *SSHExec {
	if command == "" {
		command = "browser-inventory"
	}
	return &SSHExec{dialer: dialer, command: command, args: args}
}

func (s *SSHExec) Execute(ctx context.Context, host string, selector browsers.Selector) ([]string, error) {
	if !safeHostRegex.MatchString(host) {
		return nil, errors.Errorf("refusing to pass host %q to a remote shell", host)
	}

	client, err := s.dialer.Dial(ctx, host)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	done := make(chan struct{})
	defer close(done)
	go closeOnCancel(ctx, client, done)

	session, err := client.NewSession()
	if err != nil {
		return nil, Unreachable(host, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	cmd := strings.Join(append([]string{
		s.command, "collect", "--host", host, "--browser", string(selector),
	}, s.args...), " ")

	err = session.Run(cmd)
	rows := splitRows(stdout.String())
	if err != nil {
		return rows, errors.Wrapf(err, "remote collect failed: %s",
			strings.TrimSpace(stderr.String()))
	}
	return rows, nil
}

func splitRows(output string) []string {
	var rows []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			rows = append(rows, line)
		}
	}
	return rows
}
