package transport

import (
	"context"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig holds the connection settings shared by the ssh based transports
type SSHConfig struct {
	User       string        `yaml:"user"`
	Password   string        `yaml:"password"`
	KeyFile    string        `yaml:"key_file"`
	KnownHosts string        `yaml:"known_hosts"`
	Port       int           `yaml:"port"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Dialer opens ssh connections to fleet hosts
type Dialer struct {
	config  *ssh.ClientConfig
	port    int
	timeout time.Duration
}

func NewDialer(cfg SSHConfig) (*Dialer, error) {
	if cfg.User == "" {
		return nil, errors.New("ssh: no user specified")
	}

	config := &ssh.ClientConfig{
		User:            cfg.User,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.Timeout,
	}

	if cfg.KnownHosts != "" {
		callback, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, errors.Wrap(err, "ssh: While loading known hosts")
		}
		config.HostKeyCallback = callback
	}

	if cfg.Password != "" {
		config.Auth = append(config.Auth, ssh.Password(cfg.Password))
	}

	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "ssh: While reading private key")
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "ssh: While parsing private key")
		}
		config.Auth = append(config.Auth, ssh.PublicKeys(signer))
	}

	if len(config.Auth) == 0 {
		return nil, errors.New("ssh: no password or private key specified")
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Dialer{config: config, port: port, timeout: timeout}, nil
}

// Dial connects to host, which may carry its own port. Every failure is
// reported as unreachable.
func (d *Dialer) Dial(ctx context.Context, host string) (*ssh.Client, error) {
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, strconv.Itoa(d.port))
	}

	dialer := &net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, Unreachable(host, err)
	}

	// Bound the handshake as well as the TCP connect.
	_ = conn.SetDeadline(time.Now().Add(d.timeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, d.config)
	if err != nil {
		conn.Close()
		return nil, Unreachable(host, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

// closeOnCancel closes the client when ctx ends before done is closed
func closeOnCancel(ctx context.Context, client *ssh.Client, done <-chan struct{}) {
	select {
	case <-ctx.Done():
		client.Close()
	case <-done:
	}
}
