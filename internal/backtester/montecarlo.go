package backtester

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNoClosedTrades is returned when a result has no realized P/L to resample.
var ErrNoClosedTrades = errors.New("no closed trades to resample")

// MonteCarloConfig tunes the trade-order resampling
type MonteCarloConfig struct {
	Iterations    int     `json:"iterations"`
	RuinThreshold float64 `json:"ruinThreshold"` // fraction of the initial balance lost
	Seed          int64   `json:"seed,omitempty"`
}

// DefaultMonteCarloConfig runs 1000 paths and treats a 50% loss as ruin
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{
		Iterations:    1000,
		RuinThreshold: 0.5,
	}
}

// MonteCarloReport summarizes the distribution of reshuffled equity paths.
// Returns and drawdowns are percentages of the initial balance.
type MonteCarloReport struct {
	SimulationID    string            `json:"simulationId"`
	Iterations      int               `json:"iterations"`
	ClosedTrades    int               `json:"closedTrades"`
	MedianReturn    decimal.Decimal   `json:"medianReturn"`
	P5Return        decimal.Decimal   `json:"p5Return"`
	P95Return       decimal.Decimal   `json:"p95Return"`
	MaxDrawdownP50  decimal.Decimal   `json:"maxDrawdownP50"`
	MaxDrawdownP95  decimal.Decimal   `json:"maxDrawdownP95"`
	ProbabilityRuin decimal.Decimal   `json:"probabilityRuin"`
	Distribution    []decimal.Decimal `json:"distribution,omitempty"`
}

// MonteCarloSimulator reshuffles the realized trade P/L of a finished
// simulation to show how much of the outcome depends on trade order.
type MonteCarloSimulator struct {
	logger *zap.Logger
	config MonteCarloConfig
	rng    *rand.Rand
}

// NewMonteCarloSimulator creates a simulator. A zero seed uses the clock.
func NewMonteCarloSimulator(logger *zap.Logger, config MonteCarloConfig) *MonteCarloSimulator {
	if config.Iterations <= 0 {
		config.Iterations = DefaultMonteCarloConfig().Iterations
	}
	if config.RuinThreshold <= 0 || config.RuinThreshold > 1 {
		config.RuinThreshold = DefaultMonteCarloConfig().RuinThreshold
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MonteCarloSimulator{
		logger: logger,
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Run resamples the SELL trades of result
func (mc *MonteCarloSimulator) Run(result *types.SimulationResult) (*MonteCarloReport, error) {
	initial, _ := result.InitialBalance.Float64()
	if initial <= 0 {
		return nil, ErrInvalidRequest
	}

	// P/L of each closed trade as a fraction of the initial balance
	var returns []float64
	for _, t := range result.Trades {
		if t.Type != types.OrderSideSell {
			continue
		}
		pnl, _ := t.ProfitLoss.Float64()
		returns = append(returns, pnl/initial)
	}
	if len(returns) == 0 {
		return nil, ErrNoClosedTrades
	}

	iterations := mc.config.Iterations
	finals := make([]float64, iterations)
	drawdowns := make([]float64, iterations)
	ruinCount := 0

	for i := 0; i < iterations; i++ {
		shuffled := mc.shuffleReturns(returns)
		total, maxDD, ruined := mc.simulatePath(shuffled)
		finals[i] = total
		drawdowns[i] = maxDD
		if ruined {
			ruinCount++
		}
	}

	sort.Float64s(finals)
	sort.Float64s(drawdowns)

	report := &MonteCarloReport{
		SimulationID:    result.ID,
		Iterations:      iterations,
		ClosedTrades:    len(returns),
		MedianReturn:    pct(percentile(finals, 50)),
		P5Return:        pct(percentile(finals, 5)),
		P95Return:       pct(percentile(finals, 95)),
		MaxDrawdownP50:  pct(percentile(drawdowns, 50)),
		MaxDrawdownP95:  pct(percentile(drawdowns, 95)),
		ProbabilityRuin: decimal.NewFromFloat(float64(ruinCount) / float64(iterations)).Round(4),
	}

	mc.logger.Debug("Monte Carlo analysis complete",
		zap.String("simulation", result.ID),
		zap.Int("iterations", iterations),
		zap.Int("closedTrades", len(returns)),
		zap.String("medianReturn", report.MedianReturn.String()),
		zap.String("probabilityRuin", report.ProbabilityRuin.String()),
	)
	return report, nil
}

func (mc *MonteCarloSimulator) shuffleReturns(returns []float64) []float64 {
	shuffled := make([]float64, len(returns))
	copy(shuffled, returns)
	mc.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}

// simulatePath walks one ordering from an equity of 1.0. A path that loses
// RuinThreshold of the start is stopped there.
func (mc *MonteCarloSimulator) simulatePath(returns []float64) (totalReturn, maxDrawdown float64, ruined bool) {
	equity := 1.0
	peak := equity
	floor := 1 - mc.config.RuinThreshold

	for _, r := range returns {
		equity += r
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
		if equity <= floor {
			return equity - 1, maxDrawdown, true
		}
	}
	return equity - 1, maxDrawdown, false
}

// percentile interpolates linearly between the ranks of a sorted slice
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func pct(fraction float64) decimal.Decimal {
	return decimal.NewFromFloat(fraction * 100).Round(4)
}
