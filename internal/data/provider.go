package data

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"go.uber.org/zap"
)

// Provider is a source of historical candles
type Provider interface {
	LoadOHLCV(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]*types.OHLCV, error)
}

// CachingProvider serves ranges the file store already covers and writes
// upstream fetches through to it.
type CachingProvider struct {
	logger   *zap.Logger
	upstream Provider
	store    *Store
}

// NewCachingProvider wraps upstream with a file store cache
func NewCachingProvider(logger *zap.Logger, upstream Provider, store *Store) *CachingProvider {
	return &CachingProvider{logger: logger, upstream: upstream, store: store}
}

// LoadOHLCV implements Provider
func (c *CachingProvider) LoadOHLCV(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]*types.OHLCV, error) {
	if c.store.Covers(symbol, timeframe, start, end) {
		return c.store.LoadOHLCV(ctx, symbol, timeframe, start, end)
	}

	bars, err := c.upstream.LoadOHLCV(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}

	if len(bars) > 0 {
		if err := c.store.SaveOHLCV(symbol, timeframe, bars); err != nil {
			c.logger.Warn("Failed to cache candles", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return bars, nil
}

// Kind names a provider implementation
type Kind string

const (
	KindFile       Kind = "file"
	KindSample     Kind = "sample"
	KindBinance    Kind = "binance"
	KindClickHouse Kind = "clickhouse"
)

// ProviderConfig selects and configures a provider
type ProviderConfig struct {
	Kind       Kind
	DataDir    string
	Binance    BinanceConfig
	ClickHouse ClickHouseConfig
}

// NewProvider builds the configured provider. Binance fetches are cached
// in the file store under DataDir. The returned close func releases
// connections and is never nil.
func NewProvider(ctx context.Context, logger *zap.Logger, cfg ProviderConfig) (Provider, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case KindFile, "":
		store, err := NewStore(logger, cfg.DataDir)
		return store, noop, err

	case KindSample:
		store, err := NewStore(logger, cfg.DataDir, WithSampleFallback())
		return store, noop, err

	case KindBinance:
		store, err := NewStore(logger, cfg.DataDir)
		if err != nil {
			return nil, noop, err
		}
		return NewCachingProvider(logger, NewBinanceProvider(logger, cfg.Binance), store), noop, nil

	case KindClickHouse:
		ch, err := NewClickHouseProvider(ctx, logger, cfg.ClickHouse)
		if err != nil {
			return nil, noop, err
		}
		return ch, ch.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown data provider %q", cfg.Kind)
	}
}
