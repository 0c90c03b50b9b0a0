package market

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/rustyeddy/backcast/broker"
)

// BarRecord is the on-disk parquet schema for bars. Only OHLCV is stored;
// indicator columns are computed by strategies and never persisted.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// LoadParquet reads bars for symbol. Files holding several symbols are
// filtered; rows are sorted by timestamp before the series is built.
func LoadParquet(path, symbol string) (*Series, error) {
	rows, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	recs := rows[:0]
	for _, r := range rows {
		if r.Symbol == "" || r.Symbol == symbol {
			recs = append(recs, r)
		}
	}
	if len(recs) == 0 {
		return nil, broker.Invalid(symbol, "no rows in %s", path)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp < recs[j].Timestamp })

	bars := make([]Bar, len(recs))
	for i, r := range recs {
		bars[i] = Bar{
			Time:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return NewSeries(symbol, bars)
}

// WriteParquet stores the OHLCV part of s at path.
func WriteParquet(path string, s *Series) error {
	recs := make([]BarRecord, len(s.bars))
	for i, b := range s.bars {
		vol := b.Volume
		if math.IsNaN(vol) {
			vol = 0
		}
		recs[i] = BarRecord{
			Symbol:    s.Symbol,
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    vol,
		}
	}
	if err := parquet.WriteFile(path, recs); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Load picks a loader by format ("csv" or "parquet"). An empty format is
// inferred from the file extension.
func Load(path, symbol, format string) (*Series, error) {
	if format == "" {
		format = "csv"
		if n := len(path); n > 8 && path[n-8:] == ".parquet" {
			format = "parquet"
		}
	}
	switch format {
	case "csv":
		return LoadCSV(path, symbol)
	case "parquet":
		return LoadParquet(path, symbol)
	}
	return nil, broker.Invalid("format", "unknown data format %q", format)
}
