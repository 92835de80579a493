// Package aggregate merges per-host results into one inventory, persists
// it and computes the run summary.
package aggregate

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"fleet-browser-inventory/internal/browsers"
	"fleet-browser-inventory/internal/dispatch"
)

// Batch is the merged output of one run
type Batch struct {
	Records []browsers.Record
	Results []dispatch.HostResult

	// Framing counts the header and type rows removed during the merge.
	Framing int
}

// Merge concatenates the records of every host in completion order and
// strips framing rows in a single pass over the merged stream.
func Merge(results []dispatch.HostResult) *Batch {
	batch := &Batch{Results: results}
	for _, result := range results {
		for _, record := range result.Records {
			if record.IsFraming() {
				batch.Framing++
				continue
			}
			batch.Records = append(batch.Records, record)
		}
	}
	return batch
}

// Frequency is how often one extension name occurs in a batch
type Frequency struct {
	Name  string
	Count int
}

// Summary holds the statistics printed at the end of a run
type Summary struct {
	Hosts         int
	Unreachable   int
	PartialErrors int
	Users         int
	Extensions    int
	Records       int
	Frequencies   []Frequency
}

// Summarize computes the run statistics. Every host that was reached
// counts, even when it contributed no records. Frequencies are sorted by
// count descending, then by name ascending.
func Summarize(batch *Batch) Summary {
	hosts := make(map[string]bool)
	users := make(map[string]bool)
	counts := make(map[string]int)

	summary := Summary{Records: len(batch.Records)}
	for _, result := range batch.Results {
		switch result.Status {
		case dispatch.Unreachable:
			summary.Unreachable++
			continue
		case dispatch.PartialError:
			summary.PartialErrors++
		}
		hosts[result.Host] = true
	}

	for _, record := range batch.Records {
		hosts[record.Host] = true
		users[record.User] = true
		counts[record.Name]++
	}

	summary.Hosts = len(hosts)
	summary.Users = len(users)
	summary.Extensions = len(counts)

	summary.Frequencies = make([]Frequency, 0, len(counts))
	for name, count := range counts {
		summary.Frequencies = append(summary.Frequencies, Frequency{Name: name, Count: count})
	}
	sort.Slice(summary.Frequencies, func(i, j int) bool {
		a, b := summary.Frequencies[i], summary.Frequencies[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})

	return summary
}

// Aggregator owns the merge, persistence and summary steps of a run
type Aggregator struct {
	outputDir string
	now       func() time.Time
	log       logrus.FieldLogger
}

func NewAggregator(outputDir string, logger logrus.FieldLogger) *Aggregator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Aggregator{outputDir: outputDir, now: time.Now, log: logger}
}

// Result is what one aggregation produced
type Result struct {
	Batch   *Batch
	Summary Summary
	Path    string
}

// Aggregate merges results, appends them to the dated output file and
// summarizes them. It must only be called once every host is terminal.
func (a *Aggregator) Aggregate(results []dispatch.HostResult) (*Result, error) {
	batch := Merge(results)
	if batch.Framing > 0 {
		a.log.WithField("rows", batch.Framing).Debug("Stripped framing rows")
	}

	path := OutputPath(a.outputDir, a.now())
	written, err := Persist(path, batch.Records)
	if err != nil {
		return nil, errors.Wrap(err, "persist inventory")
	}

	a.log.WithFields(logrus.Fields{
		"path":    path,
		"records": written,
	}).Info("Inventory written")

	return &Result{
		Batch:   batch,
		Summary: Summarize(batch),
		Path:    path,
	}, nil
}
