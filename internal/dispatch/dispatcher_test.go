package dispatch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-browser-inventory/internal/browsers"
	"fleet-browser-inventory/internal/transport"
)

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeFleet answers like a fleet where host names decide the outcome
type fakeFleet struct {
	inFlight    int64
	maxInFlight int64

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeFleet) Execute(ctx context.Context, host string,
	selector browsers.Selector) ([]string, error) {

	n := atomic.AddInt64(&f.inFlight, 1)
	defer atomic.AddInt64(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt64(&f.maxInFlight)
		if n <= peak || atomic.CompareAndSwapInt64(&f.maxInFlight, peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[host]++
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	switch host {
	case "down":
		return nil, transport.Unreachable(host, errors.New("connection refused"))
	case "broken":
		return []string{host + ",alice,Chrome,Partial,abc"},
			errors.New("remote collect failed: exit status 1")
	case "garbled":
		return []string{host + ",alice,Chrome,Good,abc", "not,a,row"}, nil
	case "empty":
		return nil, nil
	case "panics":
		panic("boom")
	}
	return []string{
		host + ",alice,Firefox,CustomAddon,---",
		host + ",bob,Chrome,uBlock Origin,cjpalhdlnbpafiamejdnhcphjbkeiagm",
	}, nil
}

func newFleet() *fakeFleet {
	return &fakeFleet{calls: make(map[string]int)}
}

func hostNames(n int) []string {
	hosts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		hosts = append(hosts, fmt.Sprintf("ws%02d", i))
	}
	return hosts
}

func byHost(results []HostResult) map[string]HostResult {
	m := make(map[string]HostResult)
	for _, result := range results {
		m[result.Host] = result
	}
	return m
}

func TestEveryHostTerminatesOnce(t *testing.T) {
	fleet := newFleet()
	hosts := append(hostNames(20), "down", "broken", "garbled", "empty", "panics")

	results := New(fleet, Options{Concurrency: 4, Logger: quietLogger()}).
		Dispatch(context.Background(), hosts, browsers.SelectAll)

	require.Len(t, results, len(hosts))
	seen := byHost(results)
	require.Len(t, seen, len(hosts))
	for _, host := range hosts {
		assert.Equal(t, 1, fleet.calls[host], host)
	}

	assert.Equal(t, Unreachable, seen["down"].Status)
	assert.Empty(t, seen["down"].Records)
	assert.False(t, seen["down"].Reached())

	assert.Equal(t, PartialError, seen["broken"].Status)
	assert.Len(t, seen["broken"].Records, 1)

	assert.Equal(t, PartialError, seen["garbled"].Status)
	assert.Len(t, seen["garbled"].Records, 1)

	assert.Equal(t, Success, seen["empty"].Status)
	assert.Empty(t, seen["empty"].Records)

	assert.Equal(t, PartialError, seen["panics"].Status)
	assert.Error(t, seen["panics"].Err)

	assert.Equal(t, Success, seen["ws00"].Status)
	assert.Len(t, seen["ws00"].Records, 2)
}

func TestConcurrencyLimit(t *testing.T) {
	fleet := newFleet()
	results := New(fleet, Options{Concurrency: 3, Logger: quietLogger()}).
		Dispatch(context.Background(), hostNames(30), browsers.SelectAll)

	assert.Len(t, results, 30)
	assert.LessOrEqual(t, atomic.LoadInt64(&fleet.maxInFlight), int64(3))
}

func TestConcurrencyAboveHostCount(t *testing.T) {
	results := New(newFleet(), Options{Concurrency: 50, Logger: quietLogger()}).
		Dispatch(context.Background(), hostNames(3), browsers.SelectAll)
	assert.Len(t, results, 3)
}

func TestNoHosts(t *testing.T) {
	results := New(newFleet(), Options{Logger: quietLogger()}).
		Dispatch(context.Background(), nil, browsers.SelectAll)
	assert.Empty(t, results)
}

func TestSameContentForAnyConcurrency(t *testing.T) {
	hosts := append(hostNames(25), "down", "broken")

	collect := func(limit int) []string {
		results := New(newFleet(), Options{Concurrency: limit, Logger: quietLogger()}).
			Dispatch(context.Background(), hosts, browsers.SelectAll)

		var rows []string
		for _, result := range results {
			for _, record := range result.Records {
				rows = append(rows, fmt.Sprint(record.Row()))
			}
		}
		sort.Strings(rows)
		return rows
	}

	assert.Equal(t, collect(1), collect(50))
}

func TestOnResultStreamsEveryHost(t *testing.T) {
	var streamed []string
	hosts := append(hostNames(10), "down")

	results := New(newFleet(), Options{
		Concurrency: 5,
		Logger:      quietLogger(),
		OnResult: func(result HostResult) {
			streamed = append(streamed, result.Host)
		},
	}).Dispatch(context.Background(), hosts, browsers.SelectAll)

	require.Len(t, streamed, len(hosts))
	for i, result := range results {
		assert.Equal(t, result.Host, streamed[i])
	}
}

func TestDefaultConcurrency(t *testing.T) {
	d := New(newFleet(), Options{})
	assert.Equal(t, DefaultConcurrency, d.opts.Concurrency)
}

// droppedLink lists one user, then fails every other call as if the sftp
// session had gone away.
type droppedLink struct{}

func (droppedLink) Open(name string) (fs.File, error) {
	if name == "." {
		return fstest.MapFS{"alice/notes.txt": &fstest.MapFile{}}.Open(name)
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: sftp.ErrSSHFxConnectionLost}
}

func TestLostConnectionIsNotSuccess(t *testing.T) {
	inventory := browsers.NewBrowserInventory(browsers.Options{
		Layout: browsers.Layouts["windows"],
	}, quietLogger())
	local := transport.NewLocal(inventory, func(host string) (fs.FS, error) {
		return droppedLink{}, nil
	})

	results := New(local, Options{Logger: quietLogger()}).
		Dispatch(context.Background(), []string{"ws01"}, browsers.SelectAll)
	require.Len(t, results, 1)
	assert.Equal(t, Unreachable, results[0].Status)
	assert.Empty(t, results[0].Records)
	assert.Error(t, results[0].Err)
}
