// Package types provides shared type definitions for the strategy simulator.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Timeframe represents candle timeframes
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
)

// Duration returns the length of one candle. Unknown timeframes map to one hour.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	case Timeframe1w:
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// OHLCV represents a single candlestick
type OHLCV struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// StrategyType tags the signal rules a simulation runs with.
type StrategyType string

const (
	StrategyRSIOversold    StrategyType = "rsi_oversold"
	StrategyMACDCrossover  StrategyType = "macd_crossover"
	StrategyTrendFollowing StrategyType = "trend_following"
	StrategyMeanReversion  StrategyType = "mean_reversion"
	StrategyBreakout       StrategyType = "breakout"
	StrategyGridTrading    StrategyType = "grid_trading"
	StrategyDCA            StrategyType = "dca"
)

// StrategyTypes lists every known strategy type in display order.
var StrategyTypes = []StrategyType{
	StrategyRSIOversold,
	StrategyMACDCrossover,
	StrategyTrendFollowing,
	StrategyMeanReversion,
	StrategyBreakout,
	StrategyGridTrading,
	StrategyDCA,
}

// AssetPosition is the holding of a single asset.
// AveragePrice is only meaningful while Amount > 0.
type AssetPosition struct {
	Amount       decimal.Decimal `json:"amount"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
}

// Portfolio maps asset symbol to position
type Portfolio map[string]AssetPosition

// SimulatedTrade is one entry of the append-only trade log.
type SimulatedTrade struct {
	ID           string          `json:"id"`
	Type         OrderSide       `json:"type"`
	Pair         string          `json:"pair"`
	Price        decimal.Decimal `json:"price"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	Total        decimal.Decimal `json:"total"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	ProfitLoss   decimal.Decimal `json:"profitLoss"`
	Reason       string          `json:"reason"`
	BarIndex     int             `json:"barIndex"`
	ExecutedAt   time.Time       `json:"executedAt"`
}

// BalancePoint is a mark-to-market portfolio value at a candle.
type BalancePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Balance   decimal.Decimal `json:"balance"`
}

// PerformanceMetrics represents derived performance statistics
type PerformanceMetrics struct {
	TotalTrades     int             `json:"totalTrades"`
	ClosedTrades    int             `json:"closedTrades"`
	WinRate         decimal.Decimal `json:"winRate"`
	ProfitFactor    decimal.Decimal `json:"profitFactor"`
	AvgWin          decimal.Decimal `json:"avgWin"`
	AvgLoss         decimal.Decimal `json:"avgLoss"`
	LargestWin      decimal.Decimal `json:"largestWin"`
	LargestLoss     decimal.Decimal `json:"largestLoss"`
	Expectancy      decimal.Decimal `json:"expectancy"`
	TotalFees       decimal.Decimal `json:"totalFees"`
	SharpeRatio     decimal.Decimal `json:"sharpeRatio"`
	SortinoRatio    decimal.Decimal `json:"sortinoRatio"`
	MaxDrawdownDate time.Time       `json:"maxDrawdownDate"`
}

// SimulationResult is assembled once at the end of a run.
type SimulationResult struct {
	ID               string              `json:"id"`
	Strategy         StrategyDefinition  `json:"strategy"`
	InitialBalance   decimal.Decimal     `json:"initialBalance"`
	Trades           []SimulatedTrade    `json:"trades"`
	FinalBalance     decimal.Decimal     `json:"finalBalance"`
	TotalProfitLoss  decimal.Decimal     `json:"totalProfitLoss"`
	WinningTrades    int                 `json:"winningTrades"`
	LosingTrades     int                 `json:"losingTrades"`
	MaxDrawdown      decimal.Decimal     `json:"maxDrawdown"`
	ReturnPercentage decimal.Decimal     `json:"returnPercentage"`
	BalanceHistory   []BalancePoint      `json:"balanceHistory"`
	Portfolio        Portfolio           `json:"portfolio"`
	Metrics          *PerformanceMetrics `json:"metrics,omitempty"`
	BarsProcessed    int                 `json:"barsProcessed"`
	StartedAt        time.Time           `json:"startedAt"`
	CompletedAt      time.Time           `json:"completedAt"`
	Duration         time.Duration       `json:"duration"`
}

// SimulationStatus is the lifecycle state of a simulation run
type SimulationStatus string

const (
	StatusIdle            SimulationStatus = "idle"
	StatusQueued          SimulationStatus = "queued"
	StatusFetchingHistory SimulationStatus = "fetching_history"
	StatusReady           SimulationStatus = "ready"
	StatusRunning         SimulationStatus = "running"
	StatusComplete        SimulationStatus = "complete"
	StatusFailed          SimulationStatus = "failed"
	StatusCancelled       SimulationStatus = "cancelled"
)

// SimulationProgress represents the progress of a running simulation
type SimulationProgress struct {
	ID             string           `json:"id"`
	Status         SimulationStatus `json:"status"`
	Progress       float64          `json:"progress"` // 0-100
	BarsProcessed  int              `json:"barsProcessed"`
	TotalBars      int              `json:"totalBars"`
	CurrentDate    time.Time        `json:"currentDate"`
	TradesExecuted int              `json:"tradesExecuted"`
	CurrentBalance decimal.Decimal  `json:"currentBalance"`
	Error          string           `json:"error,omitempty"`
}
