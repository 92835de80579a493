package aggregate

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"fleet-browser-inventory/internal/browsers"
)

// OutputPath names the inventory file for the day of the run
func OutputPath(dir string, date time.Time) string {
	return filepath.Join(dir, "BrowserExtensions_"+date.Format("2006-01-02")+".csv")
}

// PrepareOutputDir creates the output directory. Runs call it before
// dispatching anything so an unusable destination fails fast.
func PrepareOutputDir(dir string) error {
	if dir == "" {
		return errors.New("no output directory specified")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create output directory %s", dir)
	}
	return nil
}

// Persist appends records to the CSV file at path. The header row is only
// written when the file is new or empty, so runs on the same day add to
// the existing file instead of replacing it.
func Persist(path string, records []browsers.Record) (n int, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, err
	}

	fd, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := fd.Close(); err == nil && cerr != nil {
			n, err = 0, cerr
		}
	}()

	info, err := fd.Stat()
	if err != nil {
		return 0, err
	}

	w := csv.NewWriter(fd)
	if info.Size() == 0 {
		if err := w.Write(browsers.Columns); err != nil {
			return 0, err
		}
	}

	for _, record := range records {
		if err := w.Write(record.Row()); err != nil {
			return 0, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}
	return len(records), nil
}
