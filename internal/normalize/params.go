package normalize

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
)

var paramColumns = []string{"entity", "mean", "std", "degenerate"}

// WriteParams persists the parameter table, one row per entity. Floats
// use the shortest exact representation so loading the table and
// re-applying it reproduces the normalized matrix bit-for-bit.
func WriteParams(params []Params, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "params: create file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(paramColumns); err != nil {
		return eris.Wrap(err, "params: write header")
	}

	for _, p := range params {
		record := []string{
			p.Entity,
			strconv.FormatFloat(p.Mean, 'g', -1, 64),
			strconv.FormatFloat(p.Std, 'g', -1, 64),
			strconv.FormatBool(p.Degenerate),
		}
		if err := w.Write(record); err != nil {
			return eris.Wrapf(err, "params: write row for %s", p.Entity)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "params: flush")
	}
	return eris.Wrap(f.Close(), "params: close file")
}

// ReadParams loads a parameter table written by WriteParams.
func ReadParams(path string) ([]Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "params: open file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "params: read header")
	}
	if len(header) != len(paramColumns) {
		return nil, eris.Errorf("params: header has %d columns, want %d", len(header), len(paramColumns))
	}

	var params []Params
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "params: read row")
		}

		mean, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "params: parse mean for %s", record[0])
		}
		std, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "params: parse std for %s", record[0])
		}
		degenerate, err := strconv.ParseBool(record[3])
		if err != nil {
			return nil, eris.Wrapf(err, "params: parse degenerate flag for %s", record[0])
		}

		params = append(params, Params{
			Entity:     record[0],
			Mean:       mean,
			Std:        std,
			Degenerate: degenerate,
		})
	}

	return params, nil
}
