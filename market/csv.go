package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/backcast/broker"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// LoadCSV reads an OHLCV file for one symbol.
func LoadCSV(path, symbol string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := ReadCSV(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return s, nil
}

// ReadCSV parses rows of the form
//
//	time,open,high,low,close[,volume][,extra...]
//
// The header row is required; names are case-insensitive and "date" or
// "timestamp" may stand in for "time". Extra numeric columns become series
// columns. Empty price cells are read as NaN and caught by Validate.
func ReadCSV(r io.Reader, symbol string) (*Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, broker.Invalid(symbol, "empty csv")
	}
	if err != nil {
		return nil, err
	}

	cols := map[string]int{}
	var extras []string
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		switch name {
		case "date", "timestamp", "datetime":
			name = "time"
		}
		cols[name] = i
		if !reserved[name] && name != "" {
			extras = append(extras, name)
		}
	}
	for _, req := range []string{"time", "open", "high", "low", "close"} {
		if _, ok := cols[req]; !ok {
			return nil, broker.Invalid(symbol, "csv is missing required column %q", req)
		}
	}
	volIdx, hasVol := cols["volume"]

	var bars []Bar
	extraVals := make(map[string][]float64, len(extras))

	row := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row++
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}

		t, err := parseTime(cell(rec, cols["time"]))
		if err != nil {
			return nil, broker.Invalid(symbol, "row %d: %v", row, err)
		}

		b := Bar{Time: t, Volume: math.NaN()}
		if b.Open, err = parseNum(cell(rec, cols["open"])); err != nil {
			return nil, broker.Invalid(symbol, "row %d open: %v", row, err)
		}
		if b.High, err = parseNum(cell(rec, cols["high"])); err != nil {
			return nil, broker.Invalid(symbol, "row %d high: %v", row, err)
		}
		if b.Low, err = parseNum(cell(rec, cols["low"])); err != nil {
			return nil, broker.Invalid(symbol, "row %d low: %v", row, err)
		}
		if b.Close, err = parseNum(cell(rec, cols["close"])); err != nil {
			return nil, broker.Invalid(symbol, "row %d close: %v", row, err)
		}
		if hasVol {
			if b.Volume, err = parseNum(cell(rec, volIdx)); err != nil {
				return nil, broker.Invalid(symbol, "row %d volume: %v", row, err)
			}
		}
		bars = append(bars, b)

		for _, name := range extras {
			v, err := parseNum(cell(rec, cols[name]))
			if err != nil {
				return nil, broker.Invalid(symbol, "row %d %s: %v", row, name, err)
			}
			extraVals[name] = append(extraVals[name], v)
		}
	}

	s, err := NewSeries(symbol, bars)
	if err != nil {
		return nil, err
	}
	for _, name := range extras {
		if err := s.AddColumn(name, extraVals[name]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// WriteCSV writes the OHLCV part of a series in the format ReadCSV expects.
func WriteCSV(w io.Writer, s *Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range s.bars {
		if err := cw.Write([]string{
			b.Time.UTC().Format(time.RFC3339),
			fnum(b.Open), fnum(b.High), fnum(b.Low), fnum(b.Close), fnum(b.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseNum(s string) (float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

func fnum(x float64) string {
	if math.IsNaN(x) {
		return ""
	}
	return strconv.FormatFloat(x, 'f', -1, 64)
}
