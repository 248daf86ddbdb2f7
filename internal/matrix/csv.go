package matrix

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// TimeLayout is the timestamp format of every CSV artifact.
const TimeLayout = "2006-01-02 15:04:05"

// WriteCSV writes the matrix as a delimited artifact: a "timestamp"
// column followed by one column per entity. Missing cells are empty.
func WriteCSV(w *Wide, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "matrix: create csv")
	}
	defer f.Close()

	if err := WriteCSVTo(w, f); err != nil {
		return err
	}
	return eris.Wrap(f.Close(), "matrix: close csv")
}

// WriteCSVTo renders the matrix to an arbitrary writer. Floats use the
// shortest exact representation so artifacts round-trip bit-for-bit.
func WriteCSVTo(w *Wide, out io.Writer) error {
	cw := csv.NewWriter(out)

	header := append([]string{"timestamp"}, w.Columns...)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "matrix: write header")
	}

	record := make([]string, len(w.Columns)+1)
	for r, ts := range w.Timestamps {
		record[0] = ts.Format(TimeLayout)
		for c, v := range w.Values[r] {
			if IsMissing(v) {
				record[c+1] = ""
			} else {
				record[c+1] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "matrix: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "matrix: flush csv")
}

// ReadCSV loads a wide matrix artifact written by WriteCSV. Column order
// is preserved as stored.
func ReadCSV(path string) (*Wide, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "matrix: open csv")
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "matrix: read header")
	}
	if len(header) == 0 || header[0] != "timestamp" {
		return nil, eris.Wrapf(ErrIntegrity, "first column must be \"timestamp\", got %q", header)
	}

	w := &Wide{
		Columns: append([]string(nil), header[1:]...),
	}
	w.colIdx = indexColumns(w.Columns)

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "matrix: read row")
		}
		if len(record) != len(header) {
			return nil, eris.Wrapf(ErrIntegrity, "row %d has %d fields, want %d",
				len(w.Timestamps)+1, len(record), len(header))
		}

		ts, err := time.ParseInLocation(TimeLayout, record[0], time.UTC)
		if err != nil {
			return nil, eris.Wrapf(err, "matrix: parse timestamp %q", record[0])
		}

		row := make([]float64, len(w.Columns))
		for c, cell := range record[1:] {
			if cell == "" {
				row[c] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "matrix: parse value %q at %s", cell, record[0])
			}
			row[c] = v
		}

		w.Timestamps = append(w.Timestamps, ts)
		w.Values = append(w.Values, row)
	}

	return w, nil
}
