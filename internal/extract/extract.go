// Package extract turns raw per-provider spreadsheet extracts into long
// hourly observations and pivots them into wide per-year matrices.
package extract

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/powerprep/internal/matrix"
)

// Error taxonomy. Schema and key errors are fatal for the input file;
// record errors skip the row and are recorded for audit. Duplicate
// observations are not errors: Pivot resolves them additively and
// reports each collision as a Conflict.
var (
	ErrSchema = eris.New("extract: no recognizable header row")
	ErrRecord = eris.New("extract: malformed record")
	ErrKey    = eris.New("extract: ambiguous entity key")
)

// Schema names the identifying columns of a raw extract. The defaults
// match the XM "Demanda Comercial por Comercializador" exports.
type Schema struct {
	DateColumn     string
	ProviderColumn string
	MarketColumn   string
}

// DefaultSchema returns the column names of the stock extracts.
func DefaultSchema() Schema {
	return Schema{
		DateColumn:     "Fecha",
		ProviderColumn: "Codigo Comercializador",
		MarketColumn:   "Mercado",
	}
}

// Options configures extraction of one file.
type Options struct {
	Schema Schema
	// HeaderLookahead bounds the banner-row scan before giving up with
	// ErrSchema.
	HeaderLookahead int
}

// Observation is one unpivoted hourly reading.
type Observation struct {
	TS  time.Time
	Key string
	MWh float64
}

// Skip records a row or cell dropped during extraction.
type Skip struct {
	Row    int
	Reason string
}

// Result is the outcome of extracting one file.
type Result struct {
	Observations []Observation
	Skips        []Skip
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
}

// FromRows extracts hourly observations from the raw cell grid of one
// spreadsheet. Banner rows before the header are discarded. Rows with an
// unparseable date and cells with a malformed value are skipped and
// recorded; a missing hour cell is an absent reading, never zero.
func FromRows(rows [][]string, opts Options) (*Result, error) {
	if opts.HeaderLookahead <= 0 {
		opts.HeaderLookahead = 10
	}

	hdr, cols, hours, err := findHeader(rows, opts.Schema, opts.HeaderLookahead)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for i := hdr + 1; i < len(rows); i++ {
		row := rows[i]
		if blankRow(row) {
			continue
		}

		date, err := parseDate(cell(row, cols.date))
		if err != nil {
			res.Skips = append(res.Skips, Skip{Row: i + 1, Reason: err.Error()})
			zap.L().Warn("extract: skipping row",
				zap.Int("row", i+1),
				zap.String("reason", err.Error()),
			)
			continue
		}

		key, err := EntityKey(cell(row, cols.provider), cell(row, cols.market))
		if err != nil {
			if eris.Is(err, ErrKey) {
				return nil, err // fatal for the whole file
			}
			res.Skips = append(res.Skips, Skip{Row: i + 1, Reason: err.Error()})
			zap.L().Warn("extract: skipping row",
				zap.Int("row", i+1),
				zap.String("reason", err.Error()),
			)
			continue
		}

		for h := 0; h < 24; h++ {
			col, ok := hours[h]
			if !ok {
				continue
			}
			raw := strings.TrimSpace(cell(row, col))
			if raw == "" {
				continue // absent reading
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				res.Skips = append(res.Skips, Skip{
					Row:    i + 1,
					Reason: "hour " + strconv.Itoa(h) + ": unparseable value " + strconv.Quote(raw),
				})
				continue
			}
			res.Observations = append(res.Observations, Observation{
				TS:  date.Add(time.Duration(h) * time.Hour),
				Key: key,
				MWh: v,
			})
		}
	}

	return res, nil
}

type colRefs struct {
	date, provider, market int
}

// findHeader scans the first lookahead rows for the schema columns and
// maps hour-of-day to cell index. Hour columns may be spelled "0".."23"
// or "hour_0".."hour_23".
func findHeader(rows [][]string, s Schema, lookahead int) (int, colRefs, map[int]int, error) {
	limit := lookahead
	if limit > len(rows) {
		limit = len(rows)
	}

	for i := 0; i < limit; i++ {
		refs := colRefs{date: -1, provider: -1, market: -1}
		hours := map[int]int{}
		for j, c := range rows[i] {
			name := strings.TrimSpace(c)
			switch {
			case strings.EqualFold(name, s.DateColumn):
				refs.date = j
			case strings.EqualFold(name, s.ProviderColumn):
				refs.provider = j
			case strings.EqualFold(name, s.MarketColumn):
				refs.market = j
			default:
				if h, ok := hourColumn(name); ok {
					hours[h] = j
				}
			}
		}
		if refs.date >= 0 && refs.provider >= 0 && refs.market >= 0 && len(hours) > 0 {
			return i, refs, hours, nil
		}
	}

	return 0, colRefs{}, nil, eris.Wrapf(ErrSchema,
		"columns %q, %q, %q and hours 0..23 not found in first %d rows",
		s.DateColumn, s.ProviderColumn, s.MarketColumn, limit)
}

func hourColumn(name string) (int, bool) {
	name = strings.ToLower(name)
	name = strings.TrimPrefix(name, "hour_")
	h, err := strconv.Atoi(name)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, eris.Wrap(ErrRecord, "empty date")
	}
	for _, layout := range dateLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, eris.Wrapf(ErrRecord, "unparseable date %q", raw)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Conflict records duplicate observations for the same hour and entity.
type Conflict struct {
	TS  time.Time
	Key string
}

// Pivot spreads long observations into a wide matrix, one column per
// entity, one row per observed hour. Duplicate (timestamp, key) pairs
// are summed into the cell, matching the additive policy of the upstream
// settlement exports, and each collision is reported for audit.
func Pivot(obs []Observation) (*matrix.Wide, []Conflict) {
	cells := make(map[time.Time]map[string]float64)
	colSet := make(map[string]struct{})
	var conflicts []Conflict

	for _, o := range obs {
		byKey, ok := cells[o.TS]
		if !ok {
			byKey = make(map[string]float64)
			cells[o.TS] = byKey
		}
		if prev, dup := byKey[o.Key]; dup {
			byKey[o.Key] = prev + o.MWh
			conflicts = append(conflicts, Conflict{TS: o.TS, Key: o.Key})
			zap.L().Warn("extract: duplicate observation summed",
				zap.Time("timestamp", o.TS),
				zap.String("entity", o.Key),
			)
		} else {
			byKey[o.Key] = o.MWh
		}
		colSet[o.Key] = struct{}{}
	}

	timestamps := make([]time.Time, 0, len(cells))
	for ts := range cells {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}

	w := matrix.New(timestamps, cols)
	for r, ts := range timestamps {
		for key, v := range cells[ts] {
			c, _ := w.Col(key)
			w.Values[r][c] = v
		}
	}

	return w, conflicts
}
