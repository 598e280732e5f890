package config

import (
	"fmt"
	"os"
	"portfolio-backtester/internal/engine"
	"portfolio-backtester/types"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RunFile describes one backtest, or a parameter sweep when Sweep is set.
type RunFile struct {
	Name                 string               `yaml:"name"`
	StrategyType         string               `yaml:"strategy_type"`
	Parameters           map[string]float64   `yaml:"parameters"`
	Universe             []string             `yaml:"universe"`
	InitialCapital       float64              `yaml:"initial_capital"`
	MaxPositionSize      float64              `yaml:"max_position_size"`
	StopLossPercentage   *float64             `yaml:"stop_loss_percentage"`
	TakeProfitPercentage *float64             `yaml:"take_profit_percentage"`
	Start                string               `yaml:"start"` // YYYY-MM-DD
	End                  string               `yaml:"end"`
	Benchmark            string               `yaml:"benchmark"`
	Sweep                map[string][]float64 `yaml:"sweep"`

	start, end time.Time
}

// LoadRunFile reads and validates the run file at path.
func LoadRunFile(path string) (*RunFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	return ParseRunFile(raw)
}

func ParseRunFile(raw []byte) (*RunFile, error) {
	rf := &RunFile{MaxPositionSize: 1}
	if err := yaml.Unmarshal(raw, rf); err != nil {
		return nil, fmt.Errorf("parse run file: %w", err)
	}
	if rf.StrategyType == "" {
		return nil, fmt.Errorf("run file: strategy_type is required")
	}
	if len(rf.Universe) == 0 {
		return nil, fmt.Errorf("run file: universe is required")
	}
	var err error
	if rf.start, err = time.Parse(time.DateOnly, rf.Start); err != nil {
		return nil, fmt.Errorf("run file: start: %w", err)
	}
	if rf.end, err = time.Parse(time.DateOnly, rf.End); err != nil {
		return nil, fmt.Errorf("run file: end: %w", err)
	}
	if rf.end.Before(rf.start) {
		return nil, fmt.Errorf("run file: end %s before start %s", rf.End, rf.Start)
	}
	for name, values := range rf.Sweep {
		if len(values) == 0 {
			return nil, fmt.Errorf("run file: sweep %s has no values", name)
		}
	}
	if rf.Name == "" {
		rf.Name = rf.StrategyType
	}
	return rf, nil
}

func (rf *RunFile) StartDate() time.Time { return rf.start }
func (rf *RunFile) EndDate() time.Time   { return rf.end }

// Symbols is the universe plus the benchmark, without duplicates.
func (rf *RunFile) Symbols() []string {
	out := append([]string(nil), rf.Universe...)
	if rf.Benchmark != "" && !contains(out, rf.Benchmark) {
		out = append(out, rf.Benchmark)
	}
	return out
}

// StrategyConfig converts the file to the engine's run input.
func (rf *RunFile) StrategyConfig() types.StrategyConfig {
	cfg := types.StrategyConfig{
		StrategyType:    types.StrategyType(rf.StrategyType),
		Parameters:      copyParams(rf.Parameters),
		Universe:        rf.Universe,
		InitialCapital:  decimal.NewFromFloat(rf.InitialCapital),
		MaxPositionSize: decimal.NewFromFloat(rf.MaxPositionSize),
	}
	if rf.StopLossPercentage != nil {
		cfg.StopLossPercentage = decimal.NewNullDecimal(decimal.NewFromFloat(*rf.StopLossPercentage))
	}
	if rf.TakeProfitPercentage != nil {
		cfg.TakeProfitPercentage = decimal.NewNullDecimal(decimal.NewFromFloat(*rf.TakeProfitPercentage))
	}
	return cfg
}

// Jobs expands the sweep grid into one job per parameter combination, in a
// stable order. Without a grid it returns the single configured run.
func (rf *RunFile) Jobs() []engine.SweepJob {
	base := rf.StrategyConfig()
	if len(rf.Sweep) == 0 {
		return []engine.SweepJob{{Name: rf.Name, Config: base}}
	}

	names := make([]string, 0, len(rf.Sweep))
	for name := range rf.Sweep {
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []map[string]float64{{}}
	for _, name := range names {
		next := make([]map[string]float64, 0, len(combos)*len(rf.Sweep[name]))
		for _, combo := range combos {
			for _, v := range rf.Sweep[name] {
				c := copyParams(combo)
				c[name] = v
				next = append(next, c)
			}
		}
		combos = next
	}

	jobs := make([]engine.SweepJob, 0, len(combos))
	for _, combo := range combos {
		cfg := base
		cfg.Parameters = copyParams(base.Parameters)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			cfg.Parameters[name] = combo[name]
			parts = append(parts, name+"="+strconv.FormatFloat(combo[name], 'g', -1, 64))
		}
		jobs = append(jobs, engine.SweepJob{Name: rf.Name + "[" + strings.Join(parts, ",") + "]", Config: cfg})
	}
	return jobs
}

func copyParams(p map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
