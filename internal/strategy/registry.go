package strategy

import (
	"sort"
	"sync"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"go.uber.org/zap"
)

// StrategyParameter describes one tunable parameter of a strategy type.
type StrategyParameter struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Type        string  `json:"type"` // "int", "float"
	Default     float64 `json:"default"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
}

// Descriptor documents a strategy type for clients.
type Descriptor struct {
	Type        types.StrategyType  `json:"type"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  []StrategyParameter `json:"parameters"`
}

// StrategyRegistry holds descriptors for the available strategy types.
type StrategyRegistry struct {
	logger      *zap.Logger
	descriptors map[types.StrategyType]Descriptor
	mu          sync.RWMutex
}

var riskParameters = []StrategyParameter{
	{Name: ParamStopLoss, Description: "Exit when price falls this percent below entry (0 disables)", Type: "float", Default: 0, Min: 0, Max: 100},
	{Name: ParamTakeProfit, Description: "Exit when price rises this percent above entry (0 disables)", Type: "float", Default: 0, Min: 0, Max: 1000},
}

// NewStrategyRegistry creates a registry with the built-in strategy types.
func NewStrategyRegistry(logger *zap.Logger) *StrategyRegistry {
	r := &StrategyRegistry{
		logger:      logger,
		descriptors: make(map[types.StrategyType]Descriptor),
	}

	r.Register(Descriptor{
		Type:        types.StrategyRSIOversold,
		Name:        "RSI Oversold",
		Description: "Buys when RSI drops below the buy threshold, sells above the sell threshold",
		Parameters: []StrategyParameter{
			{Name: ParamBuyThreshold, Description: "RSI level that triggers a buy", Type: "float", Default: 30, Min: 0, Max: 100},
			{Name: ParamSellThreshold, Description: "RSI level that triggers a sell", Type: "float", Default: 70, Min: 0, Max: 100},
			{Name: ParamRSIPeriod, Description: "RSI lookback period", Type: "int", Default: 14, Min: 2, Max: 100},
		},
	})
	r.Register(Descriptor{
		Type:        types.StrategyMACDCrossover,
		Name:        "MACD Crossover",
		Description: "Trades MACD line crossings of its signal line",
		Parameters: []StrategyParameter{
			{Name: ParamFastPeriod, Description: "Fast EMA period", Type: "int", Default: 12, Min: 2, Max: 100},
			{Name: ParamSlowPeriod, Description: "Slow EMA period", Type: "int", Default: 26, Min: 2, Max: 200},
			{Name: ParamSignalPeriod, Description: "Signal EMA period", Type: "int", Default: 9, Min: 2, Max: 100},
		},
	})
	r.Register(Descriptor{
		Type:        types.StrategyTrendFollowing,
		Name:        "Trend Following",
		Description: "Buys on SMA20/SMA50 golden cross, sells on death cross",
	})
	r.Register(Descriptor{
		Type:        types.StrategyMeanReversion,
		Name:        "Mean Reversion",
		Description: "Buys at the lower Bollinger band, sells at the upper band",
		Parameters: []StrategyParameter{
			{Name: ParamPeriod, Description: "Bollinger period", Type: "int", Default: 20, Min: 5, Max: 100},
			{Name: ParamStdDev, Description: "Band width in standard deviations", Type: "float", Default: 2, Min: 0.5, Max: 5},
		},
	})
	r.Register(Descriptor{
		Type:        types.StrategyBreakout,
		Name:        "Breakout",
		Description: "Buys breakouts above resistance, sells breakdowns below support",
		Parameters: []StrategyParameter{
			{Name: ParamPeriod, Description: "Lookback for support and resistance", Type: "int", Default: 20, Min: 5, Max: 100},
			{Name: ParamThreshold, Description: "Fraction beyond the level that counts as a breakout", Type: "float", Default: 0.02, Min: 0, Max: 0.5},
		},
	})
	r.Register(Descriptor{
		Type:        types.StrategyGridTrading,
		Name:        "Grid Trading",
		Description: "Buys below and sells above a fixed base price",
		Parameters: []StrategyParameter{
			{Name: ParamBasePrice, Description: "Grid base price (defaults to the first close)", Type: "float", Default: 0, Min: 0, Max: 0},
			{Name: ParamGridSize, Description: "Grid step as a fraction of the base price", Type: "float", Default: 0.02, Min: 0.001, Max: 0.5},
		},
	})
	r.Register(Descriptor{
		Type:        types.StrategyDCA,
		Name:        "Dollar Cost Averaging",
		Description: "Buys on a fixed bar interval regardless of position",
		Parameters: []StrategyParameter{
			{Name: ParamInterval, Description: "Bars between purchases", Type: "int", Default: 7, Min: 1, Max: 365},
		},
	})

	return r
}

// Register adds or replaces a descriptor. Risk parameters are appended.
func (r *StrategyRegistry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d.Parameters = append(append([]StrategyParameter{}, d.Parameters...), riskParameters...)
	r.descriptors[d.Type] = d
	r.logger.Debug("Registered strategy type", zap.String("type", string(d.Type)))
}

// Describe returns the descriptor for a strategy type.
func (r *StrategyRegistry) Describe(t types.StrategyType) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descriptors[t]
	return d, ok
}

// List returns all descriptors, built-in types first in display order.
func (r *StrategyRegistry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rank := make(map[types.StrategyType]int, len(types.StrategyTypes))
	for i, t := range types.StrategyTypes {
		rank[t] = i
	}

	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, iok := rank[out[i].Type]
		rj, jok := rank[out[j].Type]
		if iok != jok {
			return iok
		}
		if iok {
			return ri < rj
		}
		return out[i].Type < out[j].Type
	})
	return out
}
