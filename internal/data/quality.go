package data

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Severity grades a candle data issue
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Issue types reported by the validator
const (
	IssueNoData        = "NO_DATA"
	IssueShortHistory  = "SHORT_HISTORY"
	IssueGap           = "GAP_DETECTED"
	IssueZeroPrice     = "ZERO_PRICE"
	IssueNegativePrice = "NEGATIVE_PRICE"
	IssueExtremeMove   = "EXTREME_MOVE"
	IssueGapMove       = "GAP_MOVE"
	IssueZeroVolume    = "ZERO_VOLUME"
	IssueVolumeSpike   = "VOLUME_SPIKE"
	IssueOHLC          = "OHLC_INCONSISTENT"
	IssueDuplicate     = "DUPLICATE_TIMESTAMP"
	IssueOutOfOrder    = "OUT_OF_ORDER"
)

var severityPenalty = map[Severity]float64{
	SeverityCritical: 10,
	SeverityHigh:     5,
	SeverityMedium:   2,
	SeverityLow:      0.5,
}

// DataIssue represents a candle data problem
type DataIssue struct {
	Type      string    `json:"type"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	BarIndex  int       `json:"barIndex"`
}

// QualityReport summarizes a candle series before it is simulated.
// Simulations never reject data based on it.
type QualityReport struct {
	Symbol          string      `json:"symbol"`
	Timeframe       string      `json:"timeframe"`
	TotalBars       int         `json:"totalBars"`
	Issues          []DataIssue `json:"issues"`
	QualityScore    int         `json:"qualityScore"` // 0-100
	IsUsable        bool        `json:"isUsable"`
	StartDate       time.Time   `json:"startDate"`
	EndDate         time.Time   `json:"endDate"`
	Recommendations []string    `json:"recommendations"`
}

// QualityValidator checks candle series for gaps and inconsistent bars
type QualityValidator struct {
	logger *zap.Logger

	MinBars           int     // bars needed before strategies may signal
	MaxIntradayMove   float64 // high/low range as a fraction of low
	MaxGapMove        float64 // open vs previous close as a fraction
	MaxVolumeMultiple float64 // volume over average that counts as a spike
}

// NewQualityValidator creates a validator with crypto market defaults
func NewQualityValidator(logger *zap.Logger) *QualityValidator {
	return &QualityValidator{
		logger:            logger,
		MinBars:           51,
		MaxIntradayMove:   0.30,
		MaxGapMove:        0.20,
		MaxVolumeMultiple: 20,
	}
}

// Validate runs every check over bars
func (v *QualityValidator) Validate(bars []*types.OHLCV, symbol string, timeframe types.Timeframe) *QualityReport {
	report := &QualityReport{
		Symbol:    symbol,
		Timeframe: string(timeframe),
		TotalBars: len(bars),
		Issues:    make([]DataIssue, 0),
	}

	if len(bars) == 0 {
		report.Issues = append(report.Issues, DataIssue{
			Type:     IssueNoData,
			Severity: SeverityCritical,
			Message:  "No candles in range",
		})
		report.Recommendations = []string{"Widen the date range or check the data provider"}
		return report
	}

	if len(bars) < v.MinBars {
		report.Issues = append(report.Issues, DataIssue{
			Type:     IssueShortHistory,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("Only %d bars; strategies need %d before signalling", len(bars), v.MinBars),
		})
	}

	report.Issues = append(report.Issues, v.checkGaps(bars, timeframe)...)
	report.Issues = append(report.Issues, v.checkPrices(bars)...)
	report.Issues = append(report.Issues, v.checkVolume(bars)...)
	report.Issues = append(report.Issues, v.checkOrdering(bars)...)

	report.QualityScore = v.score(len(bars), report.Issues)
	report.IsUsable = report.QualityScore >= 70 && !hasSeverity(report.Issues, SeverityCritical)
	report.StartDate = bars[0].Timestamp
	report.EndDate = bars[len(bars)-1].Timestamp
	report.Recommendations = recommendations(report.Issues, len(bars))

	if !report.IsUsable {
		v.logger.Warn("Candle data failed quality checks",
			zap.String("symbol", symbol),
			zap.Int("score", report.QualityScore),
			zap.Int("issues", len(report.Issues)),
		)
	}

	return report
}

// checkGaps flags spacing wider than three candle intervals
func (v *QualityValidator) checkGaps(bars []*types.OHLCV, timeframe types.Timeframe) []DataIssue {
	var issues []DataIssue
	expected := timeframe.Duration()

	for i := 1; i < len(bars); i++ {
		gap := bars[i].Timestamp.Sub(bars[i-1].Timestamp)
		if gap <= expected*3 {
			continue
		}

		severity := SeverityHigh
		if gap > expected*30 {
			severity = SeverityCritical
		}
		issues = append(issues, DataIssue{
			Type:      IssueGap,
			Severity:  severity,
			Timestamp: bars[i-1].Timestamp,
			Message:   fmt.Sprintf("Data gap of %s (expected %s)", gap, expected),
			BarIndex:  i - 1,
		})
	}
	return issues
}

// checkPrices finds non-positive prices, extreme ranges and broken OHLC
func (v *QualityValidator) checkPrices(bars []*types.OHLCV) []DataIssue {
	var issues []DataIssue
	hundred := decimal.NewFromInt(100)

	for i, bar := range bars {
		prices := []decimal.Decimal{bar.Open, bar.High, bar.Low, bar.Close}

		if lo.ContainsBy(prices, decimal.Decimal.IsNegative) {
			issues = append(issues, DataIssue{Type: IssueNegativePrice, Severity: SeverityCritical, Timestamp: bar.Timestamp, Message: "Negative price", BarIndex: i})
			continue
		}
		if lo.ContainsBy(prices, decimal.Decimal.IsZero) {
			issues = append(issues, DataIssue{Type: IssueZeroPrice, Severity: SeverityCritical, Timestamp: bar.Timestamp, Message: "Zero price", BarIndex: i})
			continue
		}

		if bar.High.LessThan(decimal.Max(bar.Open, bar.Close, bar.Low)) ||
			bar.Low.GreaterThan(decimal.Min(bar.Open, bar.Close, bar.High)) {
			issues = append(issues, DataIssue{
				Type:      IssueOHLC,
				Severity:  SeverityCritical,
				Timestamp: bar.Timestamp,
				Message:   fmt.Sprintf("Inconsistent bar O:%s H:%s L:%s C:%s", bar.Open, bar.High, bar.Low, bar.Close),
				BarIndex:  i,
			})
		}

		rangeMove := bar.High.Sub(bar.Low).Div(bar.Low)
		if rangeMove.InexactFloat64() > v.MaxIntradayMove {
			issues = append(issues, DataIssue{
				Type:      IssueExtremeMove,
				Severity:  SeverityHigh,
				Timestamp: bar.Timestamp,
				Message:   "Extreme bar range: " + rangeMove.Mul(hundred).StringFixed(2) + "%",
				BarIndex:  i,
			})
		}

		if i > 0 && bars[i-1].Close.IsPositive() {
			prev := bars[i-1].Close
			move := bar.Open.Sub(prev).Div(prev).Abs()
			if move.InexactFloat64() > v.MaxGapMove {
				issues = append(issues, DataIssue{
					Type:      IssueGapMove,
					Severity:  SeverityMedium,
					Timestamp: bar.Timestamp,
					Message:   "Large price gap: " + move.Mul(hundred).StringFixed(2) + "%",
					BarIndex:  i,
				})
			}
		}
	}
	return issues
}

// checkVolume flags empty bars and spikes over the mean non-zero volume
func (v *QualityValidator) checkVolume(bars []*types.OHLCV) []DataIssue {
	var issues []DataIssue

	var total float64
	var n int
	for _, bar := range bars {
		if bar.Volume.IsPositive() {
			total += bar.Volume.InexactFloat64()
			n++
		}
	}
	var avg float64
	if n > 0 {
		avg = total / float64(n)
	}

	for i, bar := range bars {
		vol := bar.Volume.InexactFloat64()
		switch {
		case bar.Volume.IsZero():
			issues = append(issues, DataIssue{Type: IssueZeroVolume, Severity: SeverityLow, Timestamp: bar.Timestamp, Message: "Zero volume bar", BarIndex: i})
		case avg > 0 && vol > avg*v.MaxVolumeMultiple:
			issues = append(issues, DataIssue{
				Type:      IssueVolumeSpike,
				Severity:  SeverityLow,
				Timestamp: bar.Timestamp,
				Message:   fmt.Sprintf("Volume spike: %.1fx average", vol/avg),
				BarIndex:  i,
			})
		}
	}
	return issues
}

// checkOrdering finds duplicate and out of order timestamps
func (v *QualityValidator) checkOrdering(bars []*types.OHLCV) []DataIssue {
	var issues []DataIssue
	seen := make(map[int64]int, len(bars))

	for i, bar := range bars {
		ts := bar.Timestamp.UnixNano()
		if first, ok := seen[ts]; ok {
			issues = append(issues, DataIssue{
				Type:      IssueDuplicate,
				Severity:  SeverityHigh,
				Timestamp: bar.Timestamp,
				Message:   fmt.Sprintf("Duplicate timestamp (also at index %d)", first),
				BarIndex:  i,
			})
			continue
		}
		seen[ts] = i

		if i > 0 && bar.Timestamp.Before(bars[i-1].Timestamp) {
			issues = append(issues, DataIssue{Type: IssueOutOfOrder, Severity: SeverityCritical, Timestamp: bar.Timestamp, Message: "Bar is out of chronological order", BarIndex: i})
		}
	}
	return issues
}

// score returns 100 minus severity penalties, normalized per 100 bars
func (v *QualityValidator) score(totalBars int, issues []DataIssue) int {
	var penalty float64
	for _, issue := range issues {
		penalty += severityPenalty[issue.Severity]
	}

	normalized := penalty / math.Max(1, float64(totalBars)/100) * 10
	return int(math.Max(0, 100-math.Min(normalized, 100)))
}

// CleanData sorts bars, drops duplicates and non-positive prices, and widens
// high/low to cover open and close. The input slice is not modified.
func (v *QualityValidator) CleanData(bars []*types.OHLCV) []*types.OHLCV {
	sorted := make([]*types.OHLCV, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	cleaned := make([]*types.OHLCV, 0, len(sorted))
	seen := make(map[int64]bool, len(sorted))

	for _, bar := range sorted {
		ts := bar.Timestamp.UnixNano()
		if seen[ts] {
			continue
		}
		seen[ts] = true

		if lo.ContainsBy([]decimal.Decimal{bar.Open, bar.High, bar.Low, bar.Close}, func(d decimal.Decimal) bool { return !d.IsPositive() }) {
			continue
		}

		cleaned = append(cleaned, &types.OHLCV{
			Timestamp: bar.Timestamp,
			Open:      bar.Open,
			High:      decimal.Max(bar.Open, bar.High, bar.Close),
			Low:       decimal.Min(bar.Open, bar.Low, bar.Close),
			Close:     bar.Close,
			Volume:    bar.Volume,
		})
	}

	v.logger.Debug("Candle data cleaned",
		zap.Int("originalBars", len(bars)),
		zap.Int("cleanedBars", len(cleaned)),
	)
	return cleaned
}

func recommendations(issues []DataIssue, totalBars int) []string {
	counts := make(map[string]int)
	for _, issue := range issues {
		counts[issue.Type]++
	}

	var recs []string
	if counts[IssueShortHistory] > 0 {
		recs = append(recs, "Extend the date range so strategies get past the warm-up period")
	}
	if counts[IssueGap] > 0 {
		recs = append(recs, "Fill data gaps or shorten the range; indicators assume evenly spaced candles")
	}
	if counts[IssueOHLC] > 0 || counts[IssueZeroPrice] > 0 || counts[IssueNegativePrice] > 0 {
		recs = append(recs, "Verify data source integrity; bars with invalid prices were found")
	}
	if counts[IssueDuplicate] > 0 || counts[IssueOutOfOrder] > 0 {
		recs = append(recs, "Sort and deduplicate candles before simulating")
	}
	if counts[IssueZeroVolume] > totalBars/10 {
		recs = append(recs, "Many zero volume bars; consider a more liquid pair or a longer timeframe")
	}
	if len(recs) == 0 {
		recs = append(recs, "Data quality is acceptable for simulation")
	}
	return recs
}

func hasSeverity(issues []DataIssue, s Severity) bool {
	for _, issue := range issues {
		if issue.Severity == s {
			return true
		}
	}
	return false
}
