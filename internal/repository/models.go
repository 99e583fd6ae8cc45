package repository

import (
	"time"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// SimulationRecord is the persisted form of a finished simulation
type SimulationRecord struct {
	ID           string             `gorm:"primaryKey;size:64"`
	Name         string             `gorm:"size:128"`
	Pair         string             `gorm:"size:32;index;not null"`
	StrategyType string             `gorm:"size:32;index;not null"`
	Timeframe    string             `gorm:"size:8;not null"`
	Parameters   map[string]float64 `gorm:"serializer:json"`
	RiskPerTrade decimal.Decimal    `gorm:"type:numeric(10,4);not null"`

	InitialBalance   decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	FinalBalance     decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	TotalProfitLoss  decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	ReturnPercentage decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	MaxDrawdown      decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	WinningTrades    int
	LosingTrades     int
	BarsProcessed    int

	BalanceHistory []types.BalancePoint       `gorm:"serializer:json"`
	Portfolio      types.Portfolio            `gorm:"serializer:json"`
	Metrics        *types.PerformanceMetrics `gorm:"serializer:json"`

	StartedAt   time.Time
	CompletedAt time.Time `gorm:"index"`
	DurationMs  int64

	// Time
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	// Relationships
	Trades []TradeRecord `gorm:"foreignKey:SimulationID;constraint:OnDelete:CASCADE"`
}

// TableName pins the table name
func (SimulationRecord) TableName() string { return "simulations" }

// TradeRecord is one persisted trade log entry
type TradeRecord struct {
	ID           string          `gorm:"primaryKey;size:64"`
	SimulationID string          `gorm:"size:64;index;not null"`
	Seq          int             `gorm:"not null"`
	Type         string          `gorm:"size:4;not null"`
	Pair         string          `gorm:"size:32;not null"`
	Price        decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	Amount       decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	Fee          decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	Total        decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	ProfitLoss   decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	Reason       string          `gorm:"size:255"`
	BarIndex     int
	ExecutedAt   time.Time
}

// TableName pins the table name
func (TradeRecord) TableName() string { return "simulation_trades" }

// FromResult converts a result to its persisted form
func FromResult(result *types.SimulationResult) *SimulationRecord {
	def := result.Strategy
	return &SimulationRecord{
		ID:               result.ID,
		Name:             def.Name,
		Pair:             def.Pair,
		StrategyType:     string(def.StrategyType),
		Timeframe:        string(def.Timeframe),
		Parameters:       def.Parameters,
		RiskPerTrade:     def.RiskPerTrade,
		InitialBalance:   result.InitialBalance,
		FinalBalance:     result.FinalBalance,
		TotalProfitLoss:  result.TotalProfitLoss,
		ReturnPercentage: result.ReturnPercentage,
		MaxDrawdown:      result.MaxDrawdown,
		WinningTrades:    result.WinningTrades,
		LosingTrades:     result.LosingTrades,
		BarsProcessed:    result.BarsProcessed,
		BalanceHistory:   result.BalanceHistory,
		Portfolio:        result.Portfolio,
		Metrics:          result.Metrics,
		StartedAt:        result.StartedAt,
		CompletedAt:      result.CompletedAt,
		DurationMs:       result.Duration.Milliseconds(),
		Trades: lo.Map(result.Trades, func(t types.SimulatedTrade, i int) TradeRecord {
			return TradeRecord{
				ID:           t.ID,
				SimulationID: result.ID,
				Seq:          i,
				Type:         string(t.Type),
				Pair:         t.Pair,
				Price:        t.Price,
				Amount:       t.Amount,
				Fee:          t.Fee,
				Total:        t.Total,
				BalanceAfter: t.BalanceAfter,
				ProfitLoss:   t.ProfitLoss,
				Reason:       t.Reason,
				BarIndex:     t.BarIndex,
				ExecutedAt:   t.ExecutedAt,
			}
		}),
	}
}

// ToResult converts a record back to a result. Trades must be loaded in Seq order.
func (r *SimulationRecord) ToResult() *types.SimulationResult {
	return &types.SimulationResult{
		ID: r.ID,
		Strategy: types.StrategyDefinition{
			Name:         r.Name,
			Pair:         r.Pair,
			StrategyType: types.StrategyType(r.StrategyType),
			Timeframe:    types.Timeframe(r.Timeframe),
			Parameters:   r.Parameters,
			RiskPerTrade: r.RiskPerTrade,
		},
		InitialBalance:   r.InitialBalance,
		Trades:           lo.Map(r.Trades, func(t TradeRecord, _ int) types.SimulatedTrade { return t.toTrade() }),
		FinalBalance:     r.FinalBalance,
		TotalProfitLoss:  r.TotalProfitLoss,
		WinningTrades:    r.WinningTrades,
		LosingTrades:     r.LosingTrades,
		MaxDrawdown:      r.MaxDrawdown,
		ReturnPercentage: r.ReturnPercentage,
		BalanceHistory:   r.BalanceHistory,
		Portfolio:        r.Portfolio,
		Metrics:          r.Metrics,
		BarsProcessed:    r.BarsProcessed,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		Duration:         time.Duration(r.DurationMs) * time.Millisecond,
	}
}

func (t TradeRecord) toTrade() types.SimulatedTrade {
	return types.SimulatedTrade{
		ID:           t.ID,
		Type:         types.OrderSide(t.Type),
		Pair:         t.Pair,
		Price:        t.Price,
		Amount:       t.Amount,
		Fee:          t.Fee,
		Total:        t.Total,
		BalanceAfter: t.BalanceAfter,
		ProfitLoss:   t.ProfitLoss,
		Reason:       t.Reason,
		BarIndex:     t.BarIndex,
		ExecutedAt:   t.ExecutedAt,
	}
}
