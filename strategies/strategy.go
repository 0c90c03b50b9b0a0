package strategies

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rustyeddy/backcast/broker"
	"github.com/rustyeddy/backcast/market"
)

// Strategy is the decision procedure a backtest drives. Init runs once
// before the first bar and may append indicator columns to the series;
// Next runs once per symbol per instant with a look-ahead free window.
type Strategy interface {
	Name() string
	Init(data map[string]*market.Series) error
	Next(ctx context.Context, b broker.Broker, w market.Window) error
}

// Params are the numeric knobs of a strategy, as read from config or swept.
type Params map[string]float64

// Get returns the value of key, or def when absent.
func (p Params) Get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int is Get for integer parameters such as periods.
func (p Params) Int(key string, def int) int {
	return int(p.Get(key, float64(def)))
}

// Factory builds a fresh strategy from params. Sweeps call it once per run,
// so strategies never share state across runs.
type Factory func(p Params) (Strategy, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[normalize(name)] = f
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(names(), ", "))
	}
	return f, nil
}

// New looks up name and builds it with p.
func New(name string, p Params) (Strategy, error) {
	f, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return f(p)
}

// Names lists the registered strategies.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return names()
}

func names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func init() {
	Register("noop", func(Params) (Strategy, error) { return Noop{}, nil })
	Register("buy-and-hold", NewBuyAndHold)
	Register("sma-cross", NewSMACross)
	Register("ema-adx", NewEMAADX)
}
