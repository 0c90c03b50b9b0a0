package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

var timeframes = map[string]time.Duration{
	"M1":  time.Minute,
	"M5":  5 * time.Minute,
	"M15": 15 * time.Minute,
	"M30": 30 * time.Minute,
	"H1":  time.Hour,
	"H4":  4 * time.Hour,
	"D1":  day,
	"W1":  week,
	"MN1": 30 * day,
}

// ParseTimeframe maps names like M5, H1 or D1 to a bar spacing.
func ParseTimeframe(tf string) (time.Duration, error) {
	d, ok := timeframes[strings.ToUpper(strings.TrimSpace(tf))]
	if !ok {
		return 0, fmt.Errorf("unsupported timeframe %q (use M1, M5, M15, M30, H1, H4, D1, W1 or MN1)", tf)
	}
	return d, nil
}

// TimeframeName is the inverse of ParseTimeframe for any whole number of
// minutes, hours or days.
func TimeframeName(d time.Duration) (string, error) {
	switch {
	case d <= 0:
		return "", fmt.Errorf("invalid timeframe %s", d)
	case d < time.Hour && d%time.Minute == 0:
		return fmt.Sprintf("M%d", d/time.Minute), nil
	case d < day && d%time.Hour == 0:
		return fmt.Sprintf("H%d", d/time.Hour), nil
	case d == week:
		return "W1", nil
	case d == 30*day:
		return "MN1", nil
	case d%day == 0:
		return fmt.Sprintf("D%d", d/day), nil
	}
	return "", fmt.Errorf("cannot name timeframe %s", d)
}

// Timeframe is the median spacing between bars. Weekend and holiday gaps
// do not move the median of a daily series. A single bar has no spacing.
func (s *Series) Timeframe() (time.Duration, bool) {
	if len(s.bars) < 2 {
		return 0, false
	}
	gaps := make([]time.Duration, len(s.bars)-1)
	for i := 1; i < len(s.bars); i++ {
		gaps[i-1] = s.bars[i].Time.Sub(s.bars[i-1].Time)
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2], true
}

// BarsPerYear annualises a bar spacing on a 252 trading day year. Weekly
// and monthly bars use 52 and 12.
func BarsPerYear(d time.Duration) float64 {
	switch {
	case d <= 0:
		return 0
	case d >= 28*day:
		return 12
	case d >= week:
		return 52
	case d >= day:
		return 252 / float64(d/day)
	}
	return 252 * float64(day) / float64(d)
}
