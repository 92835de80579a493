package browsers

import (
	"bytes"
	"encoding/csv"
	"strings"

	"github.com/pkg/errors"
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// EncodeRows serializes records to one CSV line each, without a header.
// The receiving side restores the column names. Line breaks inside fields
// are flattened so that every row stays on a single line.
func EncodeRows(records []Record) ([]string, error) {
	rows := make([]string, 0, len(records))
	buf := &bytes.Buffer{}
	for _, record := range records {
		buf.Reset()
		fields := record.Row()
		for i := range fields {
			fields[i] = lineBreaks.Replace(fields[i])
		}

		w := csv.NewWriter(buf)
		if err := w.Write(fields); err != nil {
			return nil, errors.Wrap(err, "encode row")
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, errors.Wrap(err, "encode row")
		}
		rows = append(rows, strings.TrimRight(buf.String(), "\r\n"))
	}
	return rows, nil
}

// DecodeRows parses rows produced by EncodeRows. Blank rows are ignored and
// a #TYPE line becomes a framing record for the aggregator to strip. Rows
// that cannot be parsed are skipped; the returned error counts them while
// every good row is still returned.
func DecodeRows(rows []string) ([]Record, error) {
	var (
		records []Record
		bad     int
		first   error
	)

	for _, row := range rows {
		if strings.TrimSpace(row) == "" {
			continue
		}
		if strings.HasPrefix(row, "#TYPE") {
			records = append(records, Record{Host: row})
			continue
		}

		r := csv.NewReader(strings.NewReader(row))
		r.FieldsPerRecord = len(Columns)
		fields, err := r.Read()
		if err != nil {
			bad++
			if first == nil {
				first = errors.Wrapf(err, "decode row %q", row)
			}
			continue
		}

		records = append(records, Record{
			Host:    fields[0],
			User:    fields[1],
			Browser: Browser(fields[2]),
			Name:    fields[3],
			ID:      fields[4],
		})
	}

	if bad > 0 {
		return records, errors.Wrapf(first, "%d malformed rows", bad)
	}
	return records, nil
}
