package strategy

import (
	"fmt"
	"math"

	"github.com/atlas-desktop/strategy-simulator/internal/indicators"
)

// WarmupBars is the first bar index at which any strategy may signal.
const WarmupBars = 50

// Action is the per-bar decision of a strategy.
type Action string

const (
	ActionHold Action = "HOLD"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Decision is the outcome of evaluating one bar.
type Decision struct {
	Action Action
	Reason string
}

var hold = Decision{Action: ActionHold}

// Position is the view of the base asset holding the generator needs.
type Position struct {
	Amount       float64
	AveragePrice float64
}

// Open reports whether a base asset position is held.
func (p Position) Open() bool {
	return p.Amount > 0
}

// Generator decides per bar whether to buy, sell or hold.
// It reads only indicator values at or before the evaluated bar.
type Generator struct {
	strategy   *Strategy
	indicators *indicators.IndicatorSet
}

// NewGenerator creates a generator over a precomputed indicator set
func NewGenerator(s *Strategy, set *indicators.IndicatorSet) *Generator {
	return &Generator{strategy: s, indicators: set}
}

// Evaluate returns the decision for bar i at the given price.
func (g *Generator) Evaluate(i int, price float64, pos Position) Decision {
	if i < WarmupBars || i >= g.indicators.Len() {
		return hold
	}

	if d, ok := g.checkExits(price, pos); ok {
		return d
	}

	switch c := g.strategy.Config.(type) {
	case RSIConfig:
		return g.evalRSI(c, i, pos)
	case MACDConfig:
		return g.evalMACD(i, pos)
	case TrendConfig:
		return g.evalTrend(i, pos)
	case MeanReversionConfig:
		return g.evalMeanReversion(i, price, pos)
	case BreakoutConfig:
		return g.evalBreakout(i, price, pos)
	case GridConfig:
		return g.evalGrid(c, price, pos)
	case DCAConfig:
		return g.evalDCA(c, i)
	case NoopConfig:
		return hold
	default:
		panic(fmt.Sprintf("strategy: unhandled config %T", c))
	}
}

// checkExits applies the stop loss and take profit shared by all strategies.
func (g *Generator) checkExits(price float64, pos Position) (Decision, bool) {
	risk := g.strategy.Risk
	if !pos.Open() || pos.AveragePrice <= 0 || (risk.StopLoss == 0 && risk.TakeProfit == 0) {
		return hold, false
	}

	change := (price - pos.AveragePrice) / pos.AveragePrice * 100

	if risk.StopLoss != 0 && change <= -math.Abs(risk.StopLoss) {
		return Decision{ActionSell, fmt.Sprintf("Stop loss hit (%.2f%%)", change)}, true
	}
	if risk.TakeProfit != 0 && change >= risk.TakeProfit {
		return Decision{ActionSell, fmt.Sprintf("Take profit hit (%.2f%%)", change)}, true
	}
	return hold, false
}

func (g *Generator) evalRSI(c RSIConfig, i int, pos Position) Decision {
	rsi := g.indicators.RSI[i]
	if !indicators.IsValid(rsi) {
		return hold
	}

	if !pos.Open() && rsi < c.BuyThreshold {
		return Decision{ActionBuy, fmt.Sprintf("RSI oversold (%.2f < %.0f)", rsi, c.BuyThreshold)}
	}
	if pos.Open() && rsi > c.SellThreshold {
		return Decision{ActionSell, fmt.Sprintf("RSI overbought (%.2f > %.0f)", rsi, c.SellThreshold)}
	}
	return hold
}

func (g *Generator) evalMACD(i int, pos Position) Decision {
	m := g.indicators.MACD
	cur, sig := m.MACD[i], m.Signal[i]
	prev, prevSig := m.MACD[i-1], m.Signal[i-1]
	if !indicators.IsValid(cur, sig, prev, prevSig) {
		return hold
	}

	if !pos.Open() && prev <= prevSig && cur > sig {
		return Decision{ActionBuy, "MACD bullish crossover"}
	}
	if pos.Open() && prev >= prevSig && cur < sig {
		return Decision{ActionSell, "MACD bearish crossover"}
	}
	return hold
}

func (g *Generator) evalTrend(i int, pos Position) Decision {
	fast, slow := g.indicators.SMA20, g.indicators.SMA50
	if !indicators.IsValid(fast[i], slow[i], fast[i-1], slow[i-1]) {
		return hold
	}

	if !pos.Open() && fast[i-1] <= slow[i-1] && fast[i] > slow[i] {
		return Decision{ActionBuy, "Golden cross (SMA20 above SMA50)"}
	}
	if pos.Open() && fast[i-1] >= slow[i-1] && fast[i] < slow[i] {
		return Decision{ActionSell, "Death cross (SMA20 below SMA50)"}
	}
	return hold
}

func (g *Generator) evalMeanReversion(i int, price float64, pos Position) Decision {
	upper, lower := g.indicators.Bollinger.Upper[i], g.indicators.Bollinger.Lower[i]
	if !indicators.IsValid(upper, lower) {
		return hold
	}

	if !pos.Open() && price <= lower {
		return Decision{ActionBuy, fmt.Sprintf("Price at lower Bollinger band (%.2f)", lower)}
	}
	if pos.Open() && price >= upper {
		return Decision{ActionSell, fmt.Sprintf("Price at upper Bollinger band (%.2f)", upper)}
	}
	return hold
}

func (g *Generator) evalBreakout(i int, price float64, pos Position) Decision {
	b := g.indicators.Breakout
	res, sup := b.Resistance[i], b.Support[i]
	if !b.Breakout[i] || !indicators.IsValid(res, sup) {
		return hold
	}

	if !pos.Open() && price > res {
		return Decision{ActionBuy, fmt.Sprintf("Breakout above resistance (%.2f)", res)}
	}
	if pos.Open() && price < sup {
		return Decision{ActionSell, fmt.Sprintf("Breakdown below support (%.2f)", sup)}
	}
	return hold
}

func (g *Generator) evalGrid(c GridConfig, price float64, pos Position) Decision {
	change := (price - c.BasePrice) / c.BasePrice

	if !pos.Open() && change <= -c.GridSize {
		return Decision{ActionBuy, fmt.Sprintf("Grid buy level (%.2f%% below base)", -change*100)}
	}
	if pos.Open() && change >= c.GridSize {
		return Decision{ActionSell, fmt.Sprintf("Grid sell level (%.2f%% above base)", change*100)}
	}
	return hold
}

// evalDCA buys on schedule whatever the position.
func (g *Generator) evalDCA(c DCAConfig, i int) Decision {
	if i%c.Interval == 0 {
		return Decision{ActionBuy, fmt.Sprintf("DCA scheduled buy (every %d bars)", c.Interval)}
	}
	return hold
}
