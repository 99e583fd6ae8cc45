// Package strategy turns strategy definitions into typed configurations
// and generates per-bar trading decisions from precomputed indicators.
package strategy

import (
	"fmt"
	"math"

	"github.com/atlas-desktop/strategy-simulator/internal/indicators"
	"github.com/atlas-desktop/strategy-simulator/pkg/types"
)

// Parameter names accepted in a StrategyDefinition.
const (
	ParamBuyThreshold  = "buyThreshold"
	ParamSellThreshold = "sellThreshold"
	ParamRSIPeriod     = "rsiPeriod"
	ParamFastPeriod    = "fastPeriod"
	ParamSlowPeriod    = "slowPeriod"
	ParamSignalPeriod  = "signalPeriod"
	ParamPeriod        = "period"
	ParamStdDev        = "stdDev"
	ParamThreshold     = "threshold"
	ParamBasePrice     = "basePrice"
	ParamGridSize      = "gridSize"
	ParamInterval      = "interval"
	ParamStopLoss      = "stopLoss"
	ParamTakeProfit    = "takeProfit"
)

// Config is the typed configuration of one strategy variant.
// The set of implementations is closed to this package.
type Config interface {
	Type() types.StrategyType
	isConfig()
}

// RSIConfig configures rsi_oversold.
type RSIConfig struct {
	Period        int
	BuyThreshold  float64
	SellThreshold float64
}

// MACDConfig configures macd_crossover.
type MACDConfig struct {
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// TrendConfig configures trend_following (SMA20 against SMA50).
type TrendConfig struct{}

// MeanReversionConfig configures mean_reversion.
type MeanReversionConfig struct {
	Period int
	StdDev float64
}

// BreakoutConfig configures breakout.
type BreakoutConfig struct {
	Period    int
	Threshold float64
}

// GridConfig configures grid_trading. GridSize is a fraction of BasePrice.
type GridConfig struct {
	BasePrice float64
	GridSize  float64
}

// DCAConfig configures dca.
type DCAConfig struct {
	Interval int
}

// NoopConfig stands in for an unknown strategy type. It never signals.
type NoopConfig struct {
	Requested types.StrategyType
}

func (RSIConfig) Type() types.StrategyType           { return types.StrategyRSIOversold }
func (MACDConfig) Type() types.StrategyType          { return types.StrategyMACDCrossover }
func (TrendConfig) Type() types.StrategyType         { return types.StrategyTrendFollowing }
func (MeanReversionConfig) Type() types.StrategyType { return types.StrategyMeanReversion }
func (BreakoutConfig) Type() types.StrategyType      { return types.StrategyBreakout }
func (GridConfig) Type() types.StrategyType          { return types.StrategyGridTrading }
func (DCAConfig) Type() types.StrategyType           { return types.StrategyDCA }
func (c NoopConfig) Type() types.StrategyType        { return c.Requested }

func (RSIConfig) isConfig()           {}
func (MACDConfig) isConfig()          {}
func (TrendConfig) isConfig()         {}
func (MeanReversionConfig) isConfig() {}
func (BreakoutConfig) isConfig()      {}
func (GridConfig) isConfig()          {}
func (DCAConfig) isConfig()           {}
func (NoopConfig) isConfig()          {}

// RiskConfig holds the exits shared by every strategy, in percent.
// Zero disables the check.
type RiskConfig struct {
	StopLoss   float64
	TakeProfit float64
}

// Strategy is a definition after parameter mapping and validation.
type Strategy struct {
	Definition types.StrategyDefinition
	Config     Config
	Risk       RiskConfig
}

// Load maps the loose parameter bag of def into a typed Config.
// firstClose is the default grid base price. Unknown strategy types load
// as NoopConfig without error.
func Load(def types.StrategyDefinition, firstClose float64) (*Strategy, error) {
	p := params(def.Parameters)

	risk := RiskConfig{
		StopLoss:   p.float(ParamStopLoss, 0),
		TakeProfit: p.float(ParamTakeProfit, 0),
	}
	if risk.TakeProfit < 0 {
		return nil, fmt.Errorf("takeProfit must not be negative: %v", risk.TakeProfit)
	}

	var cfg Config
	switch def.StrategyType {
	case types.StrategyRSIOversold:
		c := RSIConfig{
			Period:        p.int(ParamRSIPeriod, indicators.DefaultRSIPeriod),
			BuyThreshold:  p.float(ParamBuyThreshold, 30),
			SellThreshold: p.float(ParamSellThreshold, 70),
		}
		if c.Period < 1 {
			return nil, fmt.Errorf("rsiPeriod must be at least 1: %d", c.Period)
		}
		if c.BuyThreshold < 0 || c.SellThreshold > 100 {
			return nil, fmt.Errorf("RSI thresholds must lie within 0-100: %v/%v", c.BuyThreshold, c.SellThreshold)
		}
		cfg = c

	case types.StrategyMACDCrossover:
		c := MACDConfig{
			FastPeriod:   p.int(ParamFastPeriod, 12),
			SlowPeriod:   p.int(ParamSlowPeriod, 26),
			SignalPeriod: p.int(ParamSignalPeriod, 9),
		}
		if c.FastPeriod < 1 || c.SlowPeriod < 1 || c.SignalPeriod < 1 {
			return nil, fmt.Errorf("MACD periods must be at least 1: %d/%d/%d", c.FastPeriod, c.SlowPeriod, c.SignalPeriod)
		}
		cfg = c

	case types.StrategyTrendFollowing:
		cfg = TrendConfig{}

	case types.StrategyMeanReversion:
		c := MeanReversionConfig{
			Period: p.int(ParamPeriod, 20),
			StdDev: p.float(ParamStdDev, 2),
		}
		if c.Period < 1 || c.StdDev <= 0 {
			return nil, fmt.Errorf("invalid Bollinger settings: period %d, stdDev %v", c.Period, c.StdDev)
		}
		cfg = c

	case types.StrategyBreakout:
		c := BreakoutConfig{
			Period:    p.int(ParamPeriod, 20),
			Threshold: p.float(ParamThreshold, 0.02),
		}
		if c.Period < 1 || c.Threshold < 0 {
			return nil, fmt.Errorf("invalid breakout settings: period %d, threshold %v", c.Period, c.Threshold)
		}
		cfg = c

	case types.StrategyGridTrading:
		c := GridConfig{
			BasePrice: p.float(ParamBasePrice, firstClose),
			GridSize:  p.float(ParamGridSize, 0.02),
		}
		if c.BasePrice <= 0 || c.GridSize <= 0 {
			return nil, fmt.Errorf("invalid grid settings: base %v, size %v", c.BasePrice, c.GridSize)
		}
		cfg = c

	case types.StrategyDCA:
		c := DCAConfig{Interval: p.int(ParamInterval, 7)}
		if c.Interval < 1 {
			return nil, fmt.Errorf("dca interval must be at least 1: %d", c.Interval)
		}
		cfg = c

	default:
		cfg = NoopConfig{Requested: def.StrategyType}
	}

	return &Strategy{Definition: def, Config: cfg, Risk: risk}, nil
}

// IndicatorOptions returns the indicator periods this strategy needs.
func (s *Strategy) IndicatorOptions() indicators.Options {
	opts := indicators.DefaultOptions()

	switch c := s.Config.(type) {
	case RSIConfig:
		opts.RSIPeriod = c.Period
	case MACDConfig:
		opts.MACDFast = c.FastPeriod
		opts.MACDSlow = c.SlowPeriod
		opts.MACDSignal = c.SignalPeriod
	case MeanReversionConfig:
		opts.BollingerPeriod = c.Period
		opts.BollingerStdDev = c.StdDev
	case BreakoutConfig:
		opts.BreakoutPeriod = c.Period
		opts.BreakoutThreshold = c.Threshold
	}
	return opts
}

type params map[string]float64

func (p params) float(name string, def float64) float64 {
	if v, ok := p[name]; ok && !math.IsNaN(v) {
		return v
	}
	return def
}

func (p params) int(name string, def int) int {
	if v, ok := p[name]; ok && !math.IsNaN(v) {
		return int(v)
	}
	return def
}
