package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backcast/journal"
	"github.com/rustyeddy/backcast/market"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, 10000.0, cfg.Broker.Cash)
	assert.Equal(t, 1.0, cfg.Broker.Margin)
	assert.Equal(t, 252.0, cfg.Stats.BarsPerYear)
	assert.Equal(t, "sma-cross", cfg.Strategy.Name)
	assert.NoError(t, cfg.Validate())

	b := cfg.BrokerOptions()
	assert.Equal(t, 10000.0, b.Cash)
	assert.Equal(t, int64(1), b.Seed)
	assert.Equal(t, 252.0, cfg.StatsOptions().BarsPerYear)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"negative cash", func(c *Config) { c.Broker.Cash = -1 }, "broker: validation: cash"},
		{"margin above one", func(c *Config) { c.Broker.Margin = 2 }, "broker: validation: margin"},
		{"bars per year", func(c *Config) { c.Stats.BarsPerYear = 0 }, "stats.bars_per_year must be positive"},
		{"risk free", func(c *Config) { c.Stats.RiskFreeRate = -1 }, "stats.risk_free_rate"},
		{"missing symbol", func(c *Config) {
			c.Data.Files = []DataFile{{Path: "x.csv"}}
		}, "data.files[0].symbol is required"},
		{"missing path", func(c *Config) {
			c.Data.Files = []DataFile{{Symbol: "X"}}
		}, "data.files[0].path is required"},
		{"bad format", func(c *Config) {
			c.Data.Files = []DataFile{{Symbol: "X", Path: "x", Format: "xlsx"}}
		}, "data.files[0].format"},
		{"duplicate symbol", func(c *Config) {
			c.Data.Files = []DataFile{{Symbol: "X", Path: "a"}, {Symbol: "X", Path: "b"}}
		}, "data.files[1]: duplicate symbol X"},
		{"unknown benchmark", func(c *Config) {
			c.Data.Files = []DataFile{{Symbol: "X", Path: "a"}}
			c.Data.Benchmark = "Y"
		}, "data.benchmark Y"},
		{"no strategy", func(c *Config) { c.Strategy.Name = "" }, "strategy.name is required"},
		{"unknown strategy", func(c *Config) { c.Strategy.Name = "martingale" }, "unknown strategy"},
		{"workers", func(c *Config) { c.Strategy.Workers = -1 }, "strategy.workers"},
		{"journal type", func(c *Config) { c.Journal.Type = "redis" }, "journal.type must be"},
		{"csv dir", func(c *Config) { c.Journal.Type = "csv" }, "journal dir required"},
		{"sqlite path", func(c *Config) { c.Journal.Type = "sqlite" }, "journal db_path required"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.Broker.Commission = 0.002
	cfg.Broker.ExclusiveOrders = true
	cfg.Strategy.Name = "buy-and-hold"
	cfg.Strategy.Params = map[string]float64{"units": 10}
	cfg.Strategy.Grid = map[string][]float64{"units": {5, 10}}
	cfg.Data.Files = []DataFile{{Symbol: "X", Path: "x.csv"}}

	for _, name := range []string{"cfg.yaml", "cfg.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, cfg.SaveToFile(path))

			got, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, got)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("partial yaml keeps defaults", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
broker:
  cash: 5000
  margin: 0.5
strategy:
  name: noop
`), 0644))

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, 5000.0, cfg.Broker.Cash)
		assert.Equal(t, 0.5, cfg.Broker.Margin)
		assert.Equal(t, 252.0, cfg.Stats.BarsPerYear)
		assert.Equal(t, "noop", cfg.Strategy.Name)
		assert.Empty(t, cfg.Strategy.Params)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config file")
	})

	t.Run("garbage", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("broker: [1, 2\n"), 0644))
		_, err := LoadFromFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config")
	})

	t.Run("invalid", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.yaml")
		require.NoError(t, os.WriteFile(path, []byte("broker:\n  cash: 0\n"), 0644))
		_, err := LoadFromFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})
}

func day(i int) time.Time {
	return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func TestLoadDataAndJournal(t *testing.T) {
	dir := t.TempDir()

	s, err := market.NewSeries("X", []market.Bar{
		{Time: day(0), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100},
		{Time: day(1), Open: 10.5, High: 12, Low: 10, Close: 11, Volume: 120},
	})
	require.NoError(t, err)

	csvPath := filepath.Join(dir, "x.csv")
	f, err := os.Create(csvPath)
	require.NoError(t, err)
	require.NoError(t, market.WriteCSV(f, s))
	require.NoError(t, f.Close())

	pqPath := filepath.Join(dir, "y.parquet")
	require.NoError(t, market.WriteParquet(pqPath, s))

	cfg := Default()
	_, err = cfg.LoadData()
	assert.Error(t, err)

	cfg.Data.Files = []DataFile{
		{Symbol: "X", Path: csvPath},
		{Symbol: "Y", Path: pqPath},
	}
	data, err := cfg.LoadData()
	require.NoError(t, err)
	require.Len(t, data, 2)
	assert.Equal(t, 2, data["Y"].Len())
	assert.Equal(t, "Y", data["Y"].Symbol)
	assert.Equal(t, 11.0, data["X"].Last().Close)

	cfg.Data.Files = append(cfg.Data.Files, DataFile{Symbol: "Z", Path: filepath.Join(dir, "missing.csv")})
	_, err = cfg.LoadData()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load Z")

	j, err := cfg.OpenJournal()
	require.NoError(t, err)
	assert.Nil(t, j)

	cfg.Journal = JournalConfig{Type: "sqlite", DBPath: filepath.Join(dir, "runs.db")}
	j, err = cfg.OpenJournal()
	require.NoError(t, err)
	_, ok := j.(*journal.SQLite)
	assert.True(t, ok)
	require.NoError(t, j.Close())

	cfg.Journal = JournalConfig{Type: "csv", Dir: filepath.Join(dir, "journal")}
	j, err = cfg.OpenJournal()
	require.NoError(t, err)
	_, ok = j.(*journal.CSVJournal)
	assert.True(t, ok)
	require.NoError(t, j.Close())
}
