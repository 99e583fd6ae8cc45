// Package main runs a single simulation from the command line and prints the result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/atlas-desktop/strategy-simulator/internal/backtester"
	"github.com/atlas-desktop/strategy-simulator/internal/config"
	"github.com/atlas-desktop/strategy-simulator/internal/data"
	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/atlas-desktop/strategy-simulator/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	pair := flag.String("pair", "BTCUSDT", "Trading pair")
	strategyType := flag.String("strategy", string(types.StrategyRSIOversold), "Strategy type")
	timeframe := flag.String("timeframe", string(types.Timeframe1h), "Candle timeframe")
	params := flag.String("params", "", "Strategy parameters as key=value pairs, comma separated")
	risk := flag.String("risk", "10", "Risk per trade, percent of the initial balance")
	balance := flag.String("balance", "10000", "Initial quote balance")
	start := flag.String("start", "", "Window start (RFC3339 or YYYY-MM-DD)")
	end := flag.String("end", "", "Window end (RFC3339 or YYYY-MM-DD), default now")
	lookback := flag.String("lookback", "30d", "Window length when -start is empty")
	provider := flag.String("provider", "", "Data provider override (file, sample, binance, clickhouse)")
	dataDir := flag.String("data", "", "Data directory override")
	configPath := flag.String("config", ".", "Config file or directory")
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	summaryOnly := flag.Bool("summary", false, "Print the summary without the JSON result")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	if err := run(logger, options{
		pair:         *pair,
		strategyType: *strategyType,
		timeframe:    *timeframe,
		params:       *params,
		risk:         *risk,
		balance:      *balance,
		start:        *start,
		end:          *end,
		lookback:     *lookback,
		provider:     *provider,
		dataDir:      *dataDir,
		configPath:   *configPath,
		summaryOnly:  *summaryOnly,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	pair, strategyType, timeframe, params string
	risk, balance                         string
	start, end, lookback                  string
	provider, dataDir, configPath         string
	summaryOnly                           bool
}

func run(logger *zap.Logger, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.provider != "" {
		cfg.Data.Provider = opts.provider
	}
	if opts.dataDir != "" {
		cfg.Data.Dir = opts.dataDir
	}

	req, err := buildRequest(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, closeProvider, err := data.NewProvider(ctx, logger, cfg.ProviderConfig())
	if err != nil {
		return err
	}
	defer closeProvider()

	engine := backtester.NewEngine(logger, provider, cfg.EngineOptions())
	result, err := engine.Run(ctx, req)
	if err != nil {
		return err
	}

	if !opts.summaryOnly {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	printSummary(result)
	return nil
}

func buildRequest(opts options) (*types.SimulationRequest, error) {
	parameters, err := parseParams(opts.params)
	if err != nil {
		return nil, err
	}
	risk, err := decimal.NewFromString(opts.risk)
	if err != nil {
		return nil, fmt.Errorf("invalid risk %q: %w", opts.risk, err)
	}
	balance, err := decimal.NewFromString(opts.balance)
	if err != nil {
		return nil, fmt.Errorf("invalid balance %q: %w", opts.balance, err)
	}

	endDate, err := utils.ParseTime(opts.end, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	window, err := utils.ParseLookback(opts.lookback)
	if err != nil {
		return nil, err
	}
	startDate, err := utils.ParseTime(opts.start, endDate.Add(-window))
	if err != nil {
		return nil, err
	}

	return &types.SimulationRequest{
		Strategy: types.StrategyDefinition{
			Pair:         strings.ToUpper(opts.pair),
			StrategyType: types.StrategyType(opts.strategyType),
			Timeframe:    types.Timeframe(opts.timeframe),
			Parameters:   parameters,
			RiskPerTrade: risk,
		},
		InitialBalance: balance,
		StartDate:      startDate,
		EndDate:        endDate,
	}, nil
}

// parseParams reads "rsiPeriod=14,buyThreshold=30"
func parseParams(s string) (map[string]float64, error) {
	params := make(map[string]float64)
	if strings.TrimSpace(s) == "" {
		return params, nil
	}
	for _, kv := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", kv)
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		params[key] = f
	}
	return params, nil
}

func printSummary(r *types.SimulationResult) {
	_, quote := backtester.ParsePair(r.Strategy.Pair)
	w := os.Stderr

	fmt.Fprintf(w, "\n%s %s on %s\n", r.Strategy.StrategyType, r.Strategy.Timeframe, r.Strategy.Pair)
	fmt.Fprintf(w, "  bars:          %d\n", r.BarsProcessed)
	fmt.Fprintf(w, "  trades:        %d (%d won, %d lost)\n", len(r.Trades), r.WinningTrades, r.LosingTrades)
	fmt.Fprintf(w, "  initial:       %s\n", utils.FormatMoney(r.InitialBalance, quote))
	fmt.Fprintf(w, "  final:         %s\n", utils.FormatMoney(r.FinalBalance, quote))
	fmt.Fprintf(w, "  profit/loss:   %s (%s%%)\n", utils.FormatMoney(r.TotalProfitLoss, quote), r.ReturnPercentage.StringFixed(2))
	fmt.Fprintf(w, "  max drawdown:  %s%%\n", r.MaxDrawdown.StringFixed(2))
	if m := r.Metrics; m != nil {
		fmt.Fprintf(w, "  win rate:      %s%%\n", m.WinRate.Mul(decimal.NewFromInt(100)).StringFixed(2))
		fmt.Fprintf(w, "  sharpe:        %s\n", m.SharpeRatio.StringFixed(3))
		fmt.Fprintf(w, "  fees:          %s\n", utils.FormatMoney(m.TotalFees, quote))
	}
	fmt.Fprintf(w, "  elapsed:       %s\n", utils.FormatDuration(r.Duration))
}

func setupLogger(level string) *zap.Logger {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.WarnLevel
	}

	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	zapConfig.Development = false
	zapConfig.DisableStacktrace = true
	zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	zapConfig.OutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
