// Package transport runs the Host Collector against a remote host and
// returns its serialized rows.
package transport

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"fleet-browser-inventory/internal/browsers"
)

// ErrUnreachable marks failures to contact a host at all. Any other error
// returned by a Transport is a collection failure on a reachable host.
var ErrUnreachable = errors.New("host unreachable")

// Transport runs the Host Collector for one host
type Transport interface {
	// Execute returns one CSV row per extension record, without a
	// header. It may return rows together with an error when the host
	// produced partial output.
	Execute(ctx context.Context, host string, selector browsers.Selector) ([]string, error)
}

// TransportFunc adapts a function to the Transport interface
type TransportFunc func(ctx context.Context, host string, selector browsers.Selector) ([]string, error)

func (f TransportFunc) Execute(ctx context.Context, host string, selector browsers.Selector) ([]string, error) {
	return f(ctx, host, selector)
}

type unreachableError struct {
	host string
	err  error
}

func (e *unreachableError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.host, ErrUnreachable, e.err)
}

func (e *unreachableError) Unwrap() error {
	return e.err
}

func (e *unreachableError) Is(target error) bool {
	return target == ErrUnreachable
}

// Unreachable wraps err so that errors.Is(err, ErrUnreachable) holds
func Unreachable(host string, err error) error {
	if err == nil {
		return nil
	}
	return &unreachableError{host: host, err: err}
}
