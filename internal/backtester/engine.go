// Package backtester replays historical candles through a strategy and
// a portfolio ledger to produce a simulation result.
package backtester

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlas-desktop/strategy-simulator/internal/indicators"
	"github.com/atlas-desktop/strategy-simulator/internal/strategy"
	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrNoHistoricalData is returned when the provider fails or yields no candles.
	ErrNoHistoricalData = errors.New("No historical data available for simulation")
	// ErrAlreadyRunning is returned when Run is called on a busy engine.
	ErrAlreadyRunning = errors.New("simulation already running")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid simulation request")
)

// HistoricalDataProvider supplies chronologically sorted candles.
type HistoricalDataProvider interface {
	LoadOHLCV(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]*types.OHLCV, error)
}

// EngineOptions tunes an engine. Zero values fall back to the defaults.
type EngineOptions struct {
	Fees             FeeSchedule
	FetchTimeout     time.Duration // applies to the history fetch only; 0 = none
	ProgressInterval int           // bars between progress updates
}

// DefaultEngineOptions returns the standard fee schedule and progress cadence
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		Fees:             DefaultFeeSchedule(),
		ProgressInterval: 100,
	}
}

// Engine runs one simulation at a time.
type Engine struct {
	mu          sync.RWMutex
	logger      *zap.Logger
	provider    HistoricalDataProvider
	opts        EngineOptions
	metricsCalc *MetricsCalculator

	// State
	running       atomic.Bool
	id            string
	status        types.SimulationStatus
	barsProcessed int
	totalBars     int
	currentTime   time.Time
	lastPrice     decimal.Decimal
	portfolio     *Portfolio

	progressChan chan *types.SimulationProgress
}

// NewEngine creates a simulation engine reading history from provider
func NewEngine(logger *zap.Logger, provider HistoricalDataProvider, opts EngineOptions) *Engine {
	defaults := DefaultEngineOptions()
	if opts.Fees.FeeRate.IsZero() && opts.Fees.MinTradeSize.IsZero() {
		opts.Fees = defaults.Fees
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaults.ProgressInterval
	}

	return &Engine{
		logger:       logger,
		provider:     provider,
		opts:         opts,
		metricsCalc:  NewMetricsCalculator(),
		status:       types.StatusIdle,
		progressChan: make(chan *types.SimulationProgress, 100),
	}
}

// Run fetches history for the request and replays it bar by bar.
// Cancelling ctx stops the replay between bars.
func (e *Engine) Run(ctx context.Context, req *types.SimulationRequest) (*types.SimulationResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	startTime := time.Now()
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	def := req.Strategy

	e.mu.Lock()
	e.id = id
	e.barsProcessed, e.totalBars = 0, 0
	e.portfolio = NewPortfolio(def.Pair, req.InitialBalance, e.opts.Fees)
	e.lastPrice = decimal.Zero
	e.mu.Unlock()

	e.setStatus(types.StatusFetchingHistory)
	candles, err := e.fetch(ctx, req)
	if err != nil {
		e.fail(err)
		return nil, err
	}

	firstClose := candles[0].Close.InexactFloat64()
	strat, err := strategy.Load(def, firstClose)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		e.fail(err)
		return nil, err
	}
	set := indicators.Compute(candles, strat.IndicatorOptions())
	gen := strategy.NewGenerator(strat, set)

	e.mu.Lock()
	e.totalBars = len(candles)
	e.mu.Unlock()
	e.setStatus(types.StatusReady)

	e.logger.Info("Starting simulation",
		zap.String("id", id),
		zap.String("pair", def.Pair),
		zap.String("strategy", string(def.StrategyType)),
		zap.Int("bars", len(candles)),
	)

	e.setStatus(types.StatusRunning)

	portfolio := e.portfolio
	history := make([]types.BalancePoint, 0, len(candles))
	peak := req.InitialBalance
	maxDrawdown := decimal.Zero
	hundred := decimal.NewFromInt(100)
	last := len(candles) - 1

	for i, candle := range candles {
		select {
		case <-ctx.Done():
			e.setStatus(types.StatusCancelled)
			e.sendProgress("")
			return nil, ctx.Err()
		default:
		}

		price := candle.Close
		value := portfolio.Value(price)
		history = append(history, types.BalancePoint{Timestamp: candle.Timestamp, Balance: value})

		if value.GreaterThan(peak) {
			peak = value
		}
		if peak.IsPositive() {
			if dd := peak.Sub(value).Div(peak).Mul(hundred); dd.GreaterThan(maxDrawdown) {
				maxDrawdown = dd
			}
		}

		held := portfolio.Position()
		decision := gen.Evaluate(i, set.Close[i], strategy.Position{
			Amount:       held.Amount.InexactFloat64(),
			AveragePrice: held.AveragePrice.InexactFloat64(),
		})

		var traded bool
		switch decision.Action {
		case strategy.ActionBuy:
			_, traded = portfolio.Buy(price, def.RiskPerTrade, candle.Timestamp, i, decision.Reason)
		case strategy.ActionSell:
			_, traded = portfolio.Sell(price, candle.Timestamp, i, decision.Reason)
		}

		// The last point must equal the final balance after a closing trade.
		if traded && i == last {
			history[i].Balance = portfolio.Value(price)
		}

		e.mu.Lock()
		e.barsProcessed = i + 1
		e.currentTime = candle.Timestamp
		e.lastPrice = price
		e.mu.Unlock()

		if (i+1)%e.opts.ProgressInterval == 0 {
			e.sendProgress("")
		}
	}

	trades := portfolio.Trades()
	finalBalance := portfolio.Value(candles[last].Close)
	totalPnL := finalBalance.Sub(req.InitialBalance)

	var winning, losing int
	for _, t := range trades {
		if t.ProfitLoss.IsPositive() {
			winning++
		} else if t.ProfitLoss.IsNegative() {
			losing++
		}
	}

	result := &types.SimulationResult{
		ID:               id,
		Strategy:         def,
		InitialBalance:   req.InitialBalance,
		Trades:           trades,
		FinalBalance:     finalBalance,
		TotalProfitLoss:  totalPnL,
		WinningTrades:    winning,
		LosingTrades:     losing,
		MaxDrawdown:      maxDrawdown,
		ReturnPercentage: totalPnL.Div(req.InitialBalance).Mul(hundred),
		BalanceHistory:   history,
		Portfolio:        portfolio.Snapshot(),
		Metrics:          e.metricsCalc.Calculate(trades, history, def.Timeframe),
		BarsProcessed:    len(candles),
		StartedAt:        startTime,
		CompletedAt:      time.Now(),
	}
	result.Duration = result.CompletedAt.Sub(startTime)

	e.setStatus(types.StatusComplete)
	e.sendProgress("")

	e.logger.Info("Simulation completed",
		zap.String("id", id),
		zap.Duration("duration", result.Duration),
		zap.Int("trades", len(trades)),
		zap.String("finalBalance", finalBalance.StringFixed(2)),
		zap.String("return", result.ReturnPercentage.StringFixed(2)),
	)

	return result, nil
}

// fetch loads candles under the optional fetch timeout
func (e *Engine) fetch(ctx context.Context, req *types.SimulationRequest) ([]*types.OHLCV, error) {
	fetchCtx := ctx
	if e.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, e.opts.FetchTimeout)
		defer cancel()
	}

	def := req.Strategy
	candles, err := e.provider.LoadOHLCV(fetchCtx, def.Pair, def.Timeframe, req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoHistoricalData, err)
	}
	if len(candles) == 0 {
		return nil, ErrNoHistoricalData
	}
	return candles, nil
}

// ValidateRequest checks a request before any history is fetched
func ValidateRequest(req *types.SimulationRequest) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	def := req.Strategy
	if def.Pair == "" {
		return fmt.Errorf("%w: pair is required", ErrInvalidRequest)
	}
	if base, quote := ParsePair(def.Pair); base == quote {
		return fmt.Errorf("%w: pair %q has no base asset", ErrInvalidRequest, def.Pair)
	}
	if !req.InitialBalance.IsPositive() {
		return fmt.Errorf("%w: initial balance must be positive", ErrInvalidRequest)
	}
	if def.RiskPerTrade.IsNegative() || def.RiskPerTrade.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: riskPerTrade must be within 0-100", ErrInvalidRequest)
	}
	return nil
}

// Status returns the lifecycle state of the engine
func (e *Engine) Status() types.SimulationStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Progress returns the current progress
func (e *Engine) Progress() *types.SimulationProgress {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.progressLocked("")
}

// ProgressChan returns the progress channel
func (e *Engine) ProgressChan() <-chan *types.SimulationProgress {
	return e.progressChan
}

func (e *Engine) progressLocked(errMsg string) *types.SimulationProgress {
	p := &types.SimulationProgress{
		ID:            e.id,
		Status:        e.status,
		BarsProcessed: e.barsProcessed,
		TotalBars:     e.totalBars,
		CurrentDate:   e.currentTime,
		Error:         errMsg,
	}
	if e.totalBars > 0 {
		p.Progress = float64(e.barsProcessed) / float64(e.totalBars) * 100
	}
	if e.portfolio != nil {
		p.TradesExecuted = e.portfolio.TradeCount()
		p.CurrentBalance = e.portfolio.Value(e.lastPrice)
	}
	return p
}

func (e *Engine) setStatus(status types.SimulationStatus) {
	e.mu.Lock()
	e.status = status
	e.mu.Unlock()
}

func (e *Engine) fail(err error) {
	e.setStatus(types.StatusFailed)
	e.logger.Error("Simulation failed", zap.String("id", e.id), zap.Error(err))
	e.sendProgress(err.Error())
}

// sendProgress sends a progress update without blocking
func (e *Engine) sendProgress(errMsg string) {
	e.mu.RLock()
	update := e.progressLocked(errMsg)
	e.mu.RUnlock()

	select {
	case e.progressChan <- update:
	default:
		// Channel full, skip update
	}
}
