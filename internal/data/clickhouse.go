package data

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ClickHouseConfig points at a candles table keyed by (symbol, interval, open_time_ms)
type ClickHouseConfig struct {
	Addr        []string
	Database    string
	Username    string
	Password    string
	Table       string
	DialTimeout time.Duration
}

// rows is the subset of driver.Rows the provider reads
type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type querier interface {
	Query(ctx context.Context, query string, args ...any) (rows, error)
}

type connQuerier struct {
	conn driver.Conn
}

func (q connQuerier) Query(ctx context.Context, query string, args ...any) (rows, error) {
	return q.conn.Query(ctx, query, args...)
}

// ClickHouseProvider reads candles from ClickHouse
type ClickHouseProvider struct {
	logger *zap.Logger
	db     querier
	conn   driver.Conn
	table  string
}

// NewClickHouseProvider opens and pings a ClickHouse connection
func NewClickHouseProvider(ctx context.Context, logger *zap.Logger, config ClickHouseConfig) (*ClickHouseProvider, error) {
	if config.Table == "" {
		config.Table = "candles"
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: config.Addr,
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		DialTimeout: config.DialTimeout,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	logger.Info("Connected to ClickHouse",
		zap.Strings("addr", config.Addr),
		zap.String("database", config.Database),
		zap.String("table", config.Table),
	)

	return &ClickHouseProvider{
		logger: logger,
		db:     connQuerier{conn: conn},
		conn:   conn,
		table:  qualifiedTable(config.Database, config.Table),
	}, nil
}

func qualifiedTable(database, table string) string {
	if database == "" {
		return table
	}
	return database + "." + table
}

// LoadOHLCV selects candles opening within [start, end], oldest first.
// FINAL collapses ReplacingMergeTree versions.
func (p *ClickHouseProvider) LoadOHLCV(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]*types.OHLCV, error) {
	query := fmt.Sprintf(`
		SELECT open_time_ms, open, high, low, close, volume
		FROM %s FINAL
		WHERE symbol = ? AND interval = ? AND open_time_ms >= ? AND open_time_ms <= ?
		ORDER BY open_time_ms`, p.table)

	rs, err := p.db.Query(ctx, query, normalizeSymbol(symbol), string(timeframe), uint64(start.UnixMilli()), uint64(end.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rs.Close()

	var bars []*types.OHLCV
	for rs.Next() {
		var openTime uint64
		var open, high, low, closePrice, volume float64
		if err := rs.Scan(&openTime, &open, &high, &low, &closePrice, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		bars = append(bars, &types.OHLCV{
			Timestamp: time.UnixMilli(int64(openTime)).UTC(),
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(closePrice),
			Volume:    decimal.NewFromFloat(volume),
		})
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("failed to read candles: %w", err)
	}

	return bars, nil
}

// Close releases the connection
func (p *ClickHouseProvider) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
