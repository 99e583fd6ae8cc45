package backtester

import (
	"strings"
	"sync"
	"time"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/atlas-desktop/strategy-simulator/pkg/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// quoteSuffixes is checked in order; the first match wins.
var quoteSuffixes = []string{"USDT", "BUSD", "USDC", "BTC", "ETH", "BNB"}

// DefaultQuoteAsset is assumed when a pair carries no known quote suffix.
const DefaultQuoteAsset = "USDT"

// ParsePair splits a pair such as "BTCUSDT" into base and quote assets.
func ParsePair(pair string) (base, quote string) {
	pair = strings.ToUpper(pair)
	for _, q := range quoteSuffixes {
		if len(pair) > len(q) && strings.HasSuffix(pair, q) {
			return strings.TrimSuffix(pair, q), q
		}
	}
	return pair, DefaultQuoteAsset
}

// FeeSchedule configures trade costs.
type FeeSchedule struct {
	FeeRate      decimal.Decimal // fraction of notional, charged in quote
	MinTradeSize decimal.Decimal // minimum spend in quote
}

// DefaultFeeSchedule charges 10 bps with a 10 unit minimum trade.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		FeeRate:      decimal.NewFromFloat(0.001),
		MinTradeSize: decimal.NewFromInt(10),
	}
}

// Portfolio is the ledger of a single simulation run.
type Portfolio struct {
	mu             sync.RWMutex
	pair           string
	base           string
	quote          string
	initialBalance decimal.Decimal
	fees           FeeSchedule
	assets         map[string]*types.AssetPosition
	trades         []types.SimulatedTrade
}

// NewPortfolio creates a ledger holding initialBalance of the pair's quote asset
func NewPortfolio(pair string, initialBalance decimal.Decimal, fees FeeSchedule) *Portfolio {
	base, quote := ParsePair(pair)
	return &Portfolio{
		pair:           pair,
		base:           base,
		quote:          quote,
		initialBalance: initialBalance,
		fees:           fees,
		assets: map[string]*types.AssetPosition{
			quote: {Amount: initialBalance, AveragePrice: decimal.NewFromInt(1)},
		},
		trades: make([]types.SimulatedTrade, 0),
	}
}

// BaseAsset returns the traded asset symbol
func (p *Portfolio) BaseAsset() string { return p.base }

// QuoteAsset returns the quote asset symbol
func (p *Portfolio) QuoteAsset() string { return p.quote }

// QuoteBalance returns the available quote balance
func (p *Portfolio) QuoteBalance() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position(p.quote).Amount
}

// Position returns the base asset holding
func (p *Portfolio) Position() types.AssetPosition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position(p.base)
}

// Value returns the mark-to-market value at price
func (p *Portfolio) Value(price decimal.Decimal) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value(price)
}

func (p *Portfolio) value(price decimal.Decimal) decimal.Decimal {
	return p.position(p.quote).Amount.Add(p.position(p.base).Amount.Mul(price))
}

// Buy spends riskPerTrade percent of the initial balance on the base asset,
// capped so spend plus fee never exceeds the quote balance. Spends below the
// minimum trade size are skipped and report false.
func (p *Portfolio) Buy(price, riskPerTrade decimal.Decimal, at time.Time, bar int, reason string) (types.SimulatedTrade, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !price.IsPositive() {
		return types.SimulatedTrade{}, false
	}

	quote := p.position(p.quote)
	spend := p.initialBalance.Mul(riskPerTrade).Div(decimal.NewFromInt(100))
	available := quote.Amount.Div(decimal.NewFromInt(1).Add(p.fees.FeeRate)).Truncate(12)
	spend = utils.MinDecimal(spend, available)
	if spend.LessThan(p.fees.MinTradeSize) || !spend.IsPositive() {
		return types.SimulatedTrade{}, false
	}

	fee := spend.Mul(p.fees.FeeRate)
	amount := spend.Div(price)

	held := p.position(p.base)
	newAmount := held.Amount.Add(amount)
	avg := held.Amount.Mul(held.AveragePrice).Add(amount.Mul(price)).Div(newAmount)

	quote.Amount = quote.Amount.Sub(spend.Add(fee))
	p.assets[p.quote] = &quote
	p.assets[p.base] = &types.AssetPosition{Amount: newAmount, AveragePrice: avg}

	return p.record(types.OrderSideBuy, price, amount, fee, spend.Add(fee), quote.Amount, decimal.Zero, reason, bar, at), true
}

// Sell liquidates the whole base position. With nothing held it reports false.
func (p *Portfolio) Sell(price decimal.Decimal, at time.Time, bar int, reason string) (types.SimulatedTrade, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.position(p.base)
	if !held.Amount.IsPositive() {
		return types.SimulatedTrade{}, false
	}

	proceeds := held.Amount.Mul(price)
	fee := proceeds.Mul(p.fees.FeeRate)
	net := proceeds.Sub(fee)
	pnl := net.Sub(held.AveragePrice.Mul(held.Amount))

	quote := p.position(p.quote)
	quote.Amount = quote.Amount.Add(net)
	p.assets[p.quote] = &quote
	p.assets[p.base] = &types.AssetPosition{Amount: decimal.Zero, AveragePrice: decimal.Zero}

	return p.record(types.OrderSideSell, price, held.Amount, fee, net, quote.Amount, pnl, reason, bar, at), true
}

// Trades returns a copy of the trade log
func (p *Portfolio) Trades() []types.SimulatedTrade {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]types.SimulatedTrade, len(p.trades))
	copy(out, p.trades)
	return out
}

// TradeCount returns the number of executed trades
func (p *Portfolio) TradeCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.trades)
}

// Snapshot returns a copy of all asset positions
func (p *Portfolio) Snapshot() types.Portfolio {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(types.Portfolio, len(p.assets))
	for sym, pos := range p.assets {
		out[sym] = *pos
	}
	return out
}

func (p *Portfolio) position(symbol string) types.AssetPosition {
	if pos, ok := p.assets[symbol]; ok {
		return *pos
	}
	return types.AssetPosition{Amount: decimal.Zero, AveragePrice: decimal.Zero}
}

func (p *Portfolio) record(
	side types.OrderSide,
	price, amount, fee, total, balanceAfter, pnl decimal.Decimal,
	reason string,
	bar int,
	at time.Time,
) types.SimulatedTrade {
	trade := types.SimulatedTrade{
		ID:           uuid.New().String(),
		Type:         side,
		Pair:         p.pair,
		Price:        price,
		Amount:       amount,
		Fee:          fee,
		Total:        total,
		BalanceAfter: balanceAfter,
		ProfitLoss:   pnl,
		Reason:       reason,
		BarIndex:     bar,
		ExecutedAt:   at,
	}
	p.trades = append(p.trades, trade)
	return trade
}
