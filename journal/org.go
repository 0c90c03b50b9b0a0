package journal

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/template"
	"time"
)

var orgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"sub":    func(a, b float64) float64 { return a - b },
	"num": func(x float64) string {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "n/a"
		}
		return fmt.Sprintf("%.2f", x)
	},
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
	"sortedKeys": func(m map[string]float64) []string {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	},
}

var orgTemplate = template.Must(template.New("run").Funcs(orgFuncs).Parse(RunOrgTemplate))

// WriteOrg renders a run as an org-mode section.
func WriteOrg(w io.Writer, r RunRecord) error {
	return orgTemplate.Execute(w, r)
}

const RunOrgTemplate = `* BACKTEST: {{.Strategy}} {{range $i, $s := .Symbols}}{{if $i}},{{end}}{{$s}}{{end}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGY:    {{.Strategy}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:BARS:        {{.Bars}}
:START_EQ:    {{printf "%.2f" .StartEquity}}
:END_EQ:      {{printf "%.2f" .EndEquity}}
:RETURN_PCT:  {{num .ReturnPct}}
:MAX_DD_PCT:  {{num .MaxDDPct}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Strategy Parameters
| Parameter | Value |
|-----------+-------|
{{- $p := .Params}}
{{- range sortedKeys .Params}}
| {{.}} | {{index $p .}} |
{{- end}}

** Performance Summary
- Net P/L:       *{{printf "%.2f" (sub .EndEquity .StartEquity)}}*
- Return:        *{{num .ReturnPct}}%*
- Max Drawdown:  *{{num .MaxDDPct}}%*
- Sharpe:        *{{num .Sharpe}}*
- Win Rate:      *{{num (mul100 .WinRate)}}%*
- Profit Factor: *{{num .ProfitFactor}}*
{{- if .OutOfMoney}}
- Ran out of money before the end of data.
{{- end}}
`
