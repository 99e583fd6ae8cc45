package data

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BinanceConfig configures the public klines provider
type BinanceConfig struct {
	BaseURL           string // empty uses the library default
	APIKey            string
	SecretKey         string
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	RetryBackoff      time.Duration
	PageLimit         int
	RequestTimeout    time.Duration
}

// DefaultBinanceConfig returns limits well under the public API weight budget
func DefaultBinanceConfig() BinanceConfig {
	return BinanceConfig{
		RequestsPerSecond: 10,
		Burst:             20,
		MaxRetries:        3,
		RetryBackoff:      100 * time.Millisecond,
		PageLimit:         1000,
		RequestTimeout:    10 * time.Second,
	}
}

// BinanceProvider loads spot klines from the Binance REST API
type BinanceProvider struct {
	logger      *zap.Logger
	client      *binance.Client
	rateLimiter *rate.Limiter
	config      BinanceConfig
}

// NewBinanceProvider creates a provider with its own rate limiter
func NewBinanceProvider(logger *zap.Logger, config BinanceConfig) *BinanceProvider {
	defaults := DefaultBinanceConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.PageLimit <= 0 || config.PageLimit > 1000 {
		config.PageLimit = defaults.PageLimit
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = defaults.RetryBackoff
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}

	client := binance.NewClient(config.APIKey, config.SecretKey)
	client.HTTPClient = &http.Client{
		Timeout: config.RequestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	return &BinanceProvider{
		logger:      logger,
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		config:      config,
	}
}

// LoadOHLCV pages through klines opening within [start, end]
func (p *BinanceProvider) LoadOHLCV(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]*types.OHLCV, error) {
	symbol = normalizeSymbol(symbol)
	startMs, endMs := start.UnixMilli(), end.UnixMilli()

	var bars []*types.OHLCV
	for cursor := startMs; cursor <= endMs; {
		klines, err := p.getKlines(ctx, symbol, string(timeframe), cursor, endMs)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
		}

		for _, k := range klines {
			bar, err := klineToOHLCV(k)
			if err != nil {
				return nil, err
			}
			bars = append(bars, bar)
		}

		if len(klines) < p.config.PageLimit {
			break
		}
		next := klines[len(klines)-1].OpenTime + 1
		if next <= cursor {
			break
		}
		cursor = next
	}

	p.logger.Debug("Fetched klines",
		zap.String("symbol", symbol),
		zap.String("timeframe", string(timeframe)),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}

// getKlines fetches one page with rate limiting and exponential backoff
func (p *BinanceProvider) getKlines(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]*binance.Kline, error) {
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if err := p.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		klines, err := p.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(startMs).
			EndTime(endMs).
			Limit(p.config.PageLimit).
			Do(ctx)
		if err == nil {
			return klines, nil
		}
		lastErr = err

		if attempt == p.config.MaxRetries {
			break
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * p.config.RetryBackoff
		p.logger.Warn("Kline request failed, retrying",
			zap.String("symbol", symbol),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, lastErr
}

func klineToOHLCV(k *binance.Kline) (*types.OHLCV, error) {
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	values := make([]decimal.Decimal, len(fields))
	for i, f := range fields {
		d, err := decimal.NewFromString(f)
		if err != nil {
			return nil, fmt.Errorf("invalid kline value %q: %w", f, err)
		}
		values[i] = d
	}

	return &types.OHLCV{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}
