// Package dispatch fans the Host Collector out across a fleet with a
// bounded number of hosts in flight.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"fleet-browser-inventory/internal/browsers"
	"fleet-browser-inventory/internal/transport"
)

// DefaultConcurrency is used when no concurrency limit is configured
const DefaultConcurrency = 10

// Status is the terminal state of one host
type Status string

const (
	Success      Status = "Success"
	Unreachable  Status = "Unreachable"
	PartialError Status = "PartialError"
)

// HostResult is one host's contribution to a run
type HostResult struct {
	Host     string
	Records  []browsers.Record
	Status   Status
	Err      error
	Duration time.Duration
}

// Reached reports whether the host was contacted, whatever it returned
func (r HostResult) Reached() bool {
	return r.Status != Unreachable
}

type Options struct {
	// Concurrency caps the number of hosts collected at once.
	Concurrency int

	// OnResult, when set, is called once per host as soon as it reaches
	// a terminal state. Calls are serialized.
	OnResult func(HostResult)

	Logger logrus.FieldLogger
}

// Dispatcher runs a Transport against many hosts
type Dispatcher struct {
	transport transport.Transport
	opts      Options
	log       logrus.FieldLogger
}

func New(t transport.Transport, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{transport: t, opts: opts, log: logger}
}

// Dispatch collects every host and blocks until all of them reached a
// terminal state. Results are in completion order, one per submitted host.
// A failing host never stops or delays the others and nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, hosts []string,
	selector browsers.Selector) []HostResult {

	limit := d.opts.Concurrency
	if limit > len(hosts) {
		limit = len(hosts)
	}
	if limit < 1 {
		limit = 1
	}

	var mu sync.Mutex
	results := make([]HostResult, 0, len(hosts))

	pool := pond.NewPool(limit)
	for _, host := range hosts {
		host := host
		pool.Submit(func() {
			result := d.collect(ctx, host, selector)

			mu.Lock()
			defer mu.Unlock()
			results = append(results, result)
			if d.opts.OnResult != nil {
				d.opts.OnResult(result)
			}
		})
	}
	pool.StopAndWait()

	return results
}

func (d *Dispatcher) collect(ctx context.Context, host string,
	selector browsers.Selector) (result HostResult) {

	start := time.Now()
	result.Host = host
	hostsInFlight.Inc()

	defer func() {
		if r := recover(); r != nil {
			result.Records = nil
			result.Status = PartialError
			result.Err = errors.Errorf("panic during collection: %v", r)
		}
		result.Duration = time.Since(start)

		hostsInFlight.Dec()
		collectionLatency.Observe(result.Duration.Seconds())
		hostsCompleted.WithLabelValues(string(result.Status)).Inc()
		recordsCollected.Add(float64(len(result.Records)))

		log := d.log.WithFields(logrus.Fields{
			"host":     host,
			"status":   result.Status,
			"records":  len(result.Records),
			"duration": result.Duration.Round(time.Millisecond),
		})
		if result.Err != nil {
			log.WithError(result.Err).Warn("Host collection failed")
		} else {
			log.Info("Host collected")
		}
	}()

	rows, err := d.transport.Execute(ctx, host, selector)
	if errors.Is(err, transport.ErrUnreachable) {
		result.Status = Unreachable
		result.Err = err
		return result
	}

	records, decodeErr := browsers.DecodeRows(rows)
	result.Records = records

	switch {
	case err != nil:
		result.Status = PartialError
		result.Err = err
	case decodeErr != nil:
		result.Status = PartialError
		result.Err = decodeErr
	default:
		result.Status = Success
	}
	return result
}
