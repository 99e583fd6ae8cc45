package backtester_test

import (
	"testing"
	"time"

	"github.com/atlas-desktop/strategy-simulator/internal/backtester"
	"github.com/shopspring/decimal"
)

func TestParsePair(t *testing.T) {
	cases := []struct {
		pair, base, quote string
	}{
		{"BTCUSDT", "BTC", "USDT"},
		{"ETHBUSD", "ETH", "BUSD"},
		{"SOLUSDC", "SOL", "USDC"},
		{"ETHBTC", "ETH", "BTC"},
		{"BTCETH", "BTC", "ETH"},
		{"ADABNB", "ADA", "BNB"},
		{"bnbusdt", "BNB", "USDT"},
		{"XYZ", "XYZ", "USDT"},
	}

	for _, tc := range cases {
		base, quote := backtester.ParsePair(tc.pair)
		if base != tc.base || quote != tc.quote {
			t.Errorf("ParsePair(%q) = %s/%s, expected %s/%s", tc.pair, base, quote, tc.base, tc.quote)
		}
	}
}

func TestPortfolioInitialState(t *testing.T) {
	p := backtester.NewPortfolio("BTCUSDT", decimal.NewFromInt(10000), backtester.DefaultFeeSchedule())

	snap := p.Snapshot()
	usdt, ok := snap["USDT"]
	if !ok || !usdt.Amount.Equal(decimal.NewFromInt(10000)) || !usdt.AveragePrice.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Unexpected quote position %+v", usdt)
	}
	if !p.Value(decimal.NewFromInt(50000)).Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Value without holdings should equal the balance, got %s", p.Value(decimal.NewFromInt(50000)))
	}
}

func TestPortfolioBuyConservesValue(t *testing.T) {
	p := backtester.NewPortfolio("BTCUSDT", decimal.NewFromInt(10000), backtester.DefaultFeeSchedule())
	before := p.QuoteBalance()

	trade, ok := p.Buy(decimal.NewFromInt(50000), decimal.NewFromInt(10), time.Now(), 50, "test")
	if !ok {
		t.Fatal("Buy was skipped")
	}

	spend := decimal.NewFromInt(1000)
	fee := decimal.NewFromInt(1)
	if !trade.Fee.Equal(fee) {
		t.Errorf("Expected fee 1, got %s", trade.Fee)
	}
	if !before.Sub(p.QuoteBalance()).Equal(spend.Add(fee)) {
		t.Errorf("Quote debit %s does not equal spend plus fee", before.Sub(p.QuoteBalance()))
	}
	if !trade.BalanceAfter.Equal(p.QuoteBalance()) {
		t.Errorf("balanceAfter %s does not match quote balance %s", trade.BalanceAfter, p.QuoteBalance())
	}
	if !p.Position().Amount.Equal(decimal.NewFromFloat(0.02)) {
		t.Errorf("Expected 0.02 BTC, got %s", p.Position().Amount)
	}
}

func TestPortfolioAveragesEntries(t *testing.T) {
	p := backtester.NewPortfolio("ETHUSDT", decimal.NewFromInt(10000), backtester.DefaultFeeSchedule())
	risk := decimal.NewFromInt(10)

	p.Buy(decimal.NewFromInt(100), risk, time.Now(), 0, "first")
	p.Buy(decimal.NewFromInt(200), risk, time.Now(), 1, "second")

	// 10 ETH at 100 and 5 ETH at 200
	pos := p.Position()
	if !pos.Amount.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("Expected 15 ETH, got %s", pos.Amount)
	}
	expected := decimal.NewFromInt(2000).Div(decimal.NewFromInt(15))
	if !pos.AveragePrice.Sub(expected).Abs().LessThan(decimal.NewFromFloat(1e-9)) {
		t.Errorf("Expected average %s, got %s", expected, pos.AveragePrice)
	}
}

func TestPortfolioBuyCapsAtAvailableBalance(t *testing.T) {
	p := backtester.NewPortfolio("BTCUSDT", decimal.NewFromInt(100), backtester.DefaultFeeSchedule())

	trade, ok := p.Buy(decimal.NewFromInt(10), decimal.NewFromInt(100), time.Now(), 0, "all in")
	if !ok {
		t.Fatal("Buy was skipped")
	}
	if p.QuoteBalance().IsNegative() {
		t.Errorf("Quote balance went negative: %s", p.QuoteBalance())
	}
	if trade.Total.GreaterThan(decimal.NewFromInt(100)) {
		t.Errorf("Debited %s from a balance of 100", trade.Total)
	}

	if _, ok := p.Buy(decimal.NewFromInt(10), decimal.NewFromInt(100), time.Now(), 1, "again"); ok {
		t.Error("Second buy should be skipped below the minimum trade size")
	}
}

func TestPortfolioSellLiquidates(t *testing.T) {
	p := backtester.NewPortfolio("BTCUSDT", decimal.NewFromInt(10000), backtester.DefaultFeeSchedule())

	if _, ok := p.Sell(decimal.NewFromInt(100), time.Now(), 0, "nothing held"); ok {
		t.Fatal("Sell without a position should be skipped")
	}

	p.Buy(decimal.NewFromInt(100), decimal.NewFromInt(10), time.Now(), 1, "entry")
	trade, ok := p.Sell(decimal.NewFromInt(110), time.Now(), 2, "exit")
	if !ok {
		t.Fatal("Sell was skipped")
	}

	// 10 units: proceeds 1100, fee 1.1, cost basis 1000
	if !trade.Fee.Equal(decimal.NewFromFloat(1.1)) {
		t.Errorf("Expected fee 1.1, got %s", trade.Fee)
	}
	if !trade.ProfitLoss.Equal(decimal.NewFromFloat(98.9)) {
		t.Errorf("Expected P/L 98.9, got %s", trade.ProfitLoss)
	}
	pos := p.Position()
	if !pos.Amount.IsZero() || !pos.AveragePrice.IsZero() {
		t.Errorf("Position not reset: %+v", pos)
	}
	// 10000 - 1001 + 1098.9
	if !p.QuoteBalance().Equal(decimal.NewFromFloat(10097.9)) {
		t.Errorf("Expected quote balance 10097.9, got %s", p.QuoteBalance())
	}
	if len(p.Trades()) != 2 {
		t.Errorf("Expected 2 logged trades, got %d", len(p.Trades()))
	}
}
