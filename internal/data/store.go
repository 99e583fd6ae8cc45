// Package data provides historical candle providers for simulations.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store serves candles from JSON files named <PAIR>_<timeframe>.json
type Store struct {
	mu             sync.RWMutex
	logger         *zap.Logger
	dataDir        string
	sampleFallback bool
	cache          map[string][]*types.OHLCV
	metadata       map[string]*SymbolMetadata
}

// SymbolMetadata describes a stored candle series
type SymbolMetadata struct {
	Symbol    string    `json:"symbol"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	BarCount  int       `json:"barCount"`
	Timeframe string    `json:"timeframe"`
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithSampleFallback makes the store synthesize a deterministic series
// when no file exists for a pair.
func WithSampleFallback() StoreOption {
	return func(s *Store) { s.sampleFallback = true }
}

// NewStore creates a file store rooted at dataDir
func NewStore(logger *zap.Logger, dataDir string, opts ...StoreOption) (*Store, error) {
	store := &Store{
		logger:   logger,
		dataDir:  dataDir,
		cache:    make(map[string][]*types.OHLCV),
		metadata: make(map[string]*SymbolMetadata),
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := store.loadMetadata(); err != nil {
		logger.Warn("Failed to load metadata", zap.Error(err))
	}

	return store, nil
}

// LoadOHLCV returns candles with start <= timestamp <= end. A missing file
// yields an empty series unless sample fallback is enabled.
func (s *Store) LoadOHLCV(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]*types.OHLCV, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey(symbol, timeframe)
	if cached, ok := s.cache[key]; ok {
		return filterByTimeRange(cached, start, end), nil
	}

	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read data file: %w", err)
		}
		if !s.sampleFallback {
			s.logger.Debug("No stored candles", zap.String("symbol", symbol), zap.String("timeframe", string(timeframe)))
			return nil, nil
		}
		s.logger.Info("Generating sample data", zap.String("symbol", symbol))
		return SampleSeries(symbol, timeframe, start, end), nil
	}

	var bars []*types.OHLCV
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("failed to parse data: %w", err)
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})

	s.cache[key] = bars
	return filterByTimeRange(bars, start, end), nil
}

// SaveOHLCV merges bars into the stored series, replacing bars with equal timestamps
func (s *Store) SaveOHLCV(symbol string, timeframe types.Timeframe, bars []*types.OHLCV) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey(symbol, timeframe)
	existing, err := s.readLocked(key)
	if err != nil {
		return err
	}
	merged := mergeBars(existing, bars)

	raw, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := os.WriteFile(s.path(key), raw, 0644); err != nil {
		return fmt.Errorf("failed to write data file: %w", err)
	}

	s.cache[key] = merged
	if len(merged) > 0 {
		s.metadata[key] = &SymbolMetadata{
			Symbol:    normalizeSymbol(symbol),
			StartDate: merged[0].Timestamp,
			EndDate:   merged[len(merged)-1].Timestamp,
			BarCount:  len(merged),
			Timeframe: string(timeframe),
		}
	}

	return s.saveMetadata()
}

// Covers reports whether the stored series spans [start, end]
func (s *Store) Covers(symbol string, timeframe types.Timeframe, start, end time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.metadata[seriesKey(symbol, timeframe)]
	if !ok {
		return false
	}
	return !meta.StartDate.After(start) && !meta.EndDate.Add(timeframe.Duration()).Before(end)
}

// GetAvailableSymbols returns the stored series keys
func (s *Store) GetAvailableSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.metadata))
	for k := range s.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetDataRange returns the stored range for a series
func (s *Store) GetDataRange(symbol string, timeframe types.Timeframe) (start, end time.Time, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if meta, ok := s.metadata[seriesKey(symbol, timeframe)]; ok {
		return meta.StartDate, meta.EndDate, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("no data available for symbol %s", symbol)
}

// ClearCache clears the in-memory cache
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string][]*types.OHLCV)
}

// GetCacheSize returns the number of cached series
func (s *Store) GetCacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dataDir, key+".json")
}

func (s *Store) readLocked(key string) ([]*types.OHLCV, error) {
	if cached, ok := s.cache[key]; ok {
		return cached, nil
	}
	raw, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	var bars []*types.OHLCV
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("failed to parse data: %w", err)
	}
	return bars, nil
}

func (s *Store) loadMetadata() error {
	raw, err := os.ReadFile(filepath.Join(s.dataDir, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	metadata := make(map[string]*SymbolMetadata)
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return err
	}
	s.metadata = metadata
	return nil
}

func (s *Store) saveMetadata() error {
	raw, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dataDir, "metadata.json"), raw, 0644)
}

// normalizeSymbol turns "btc/usdt" or "BTC-USDT" into "BTCUSDT"
func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.NewReplacer("/", "", "-", "", "_", "").Replace(symbol))
}

func seriesKey(symbol string, timeframe types.Timeframe) string {
	return normalizeSymbol(symbol) + "_" + string(timeframe)
}

// filterByTimeRange keeps bars with start <= timestamp <= end
func filterByTimeRange(bars []*types.OHLCV, start, end time.Time) []*types.OHLCV {
	filtered := make([]*types.OHLCV, 0, len(bars))
	for _, bar := range bars {
		if !bar.Timestamp.Before(start) && !bar.Timestamp.After(end) {
			filtered = append(filtered, bar)
		}
	}
	return filtered
}

// mergeBars combines two series, letting incoming bars win on equal timestamps
func mergeBars(existing, incoming []*types.OHLCV) []*types.OHLCV {
	byTime := make(map[int64]*types.OHLCV, len(existing)+len(incoming))
	for _, b := range existing {
		byTime[b.Timestamp.UnixMilli()] = b
	}
	for _, b := range incoming {
		byTime[b.Timestamp.UnixMilli()] = b
	}

	merged := make([]*types.OHLCV, 0, len(byTime))
	for _, b := range byTime {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// SampleSeries generates a reproducible random walk for demos and tests.
// The same symbol, timeframe and range always produce the same candles.
func SampleSeries(symbol string, timeframe types.Timeframe, start, end time.Time) []*types.OHLCV {
	symbol = normalizeSymbol(symbol)

	h := fnv.New64a()
	h.Write([]byte(symbol + string(timeframe)))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	price := 100.0
	switch {
	case strings.HasPrefix(symbol, "BTC"):
		price = 40000
	case strings.HasPrefix(symbol, "ETH"):
		price = 2000
	case strings.HasPrefix(symbol, "BNB"):
		price = 300
	}

	interval := timeframe.Duration()
	var bars []*types.OHLCV
	for t := start; !t.After(end); t = t.Add(interval) {
		open := price
		price *= 1 + (rng.Float64()-0.5)*0.02 + 0.002*math.Sin(float64(len(bars))/24)
		closePrice := price

		high := math.Max(open, closePrice) * (1 + rng.Float64()*0.005)
		low := math.Min(open, closePrice) * (1 - rng.Float64()*0.005)

		bars = append(bars, &types.OHLCV{
			Timestamp: t,
			Open:      decimal.NewFromFloat(open).Round(8),
			High:      decimal.NewFromFloat(high).Round(8),
			Low:       decimal.NewFromFloat(low).Round(8),
			Close:     decimal.NewFromFloat(closePrice).Round(8),
			Volume:    decimal.NewFromFloat(rng.Float64() * 1000000).Round(4),
		})
	}
	return bars
}
