// Package types provides configuration types for the strategy simulator.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyDefinition is the caller-owned description of a strategy.
// The simulation only reads it.
type StrategyDefinition struct {
	Name         string             `json:"name,omitempty"`
	Pair         string             `json:"pair"`
	StrategyType StrategyType       `json:"strategyType"`
	Timeframe    Timeframe          `json:"timeframe"`
	Parameters   map[string]float64 `json:"parameters"`
	RiskPerTrade decimal.Decimal    `json:"riskPerTrade"` // percent of initial balance, 0-100
}

// SimulationRequest represents the input of a simulation run
type SimulationRequest struct {
	ID             string             `json:"id"`
	Strategy       StrategyDefinition `json:"strategy"`
	InitialBalance decimal.Decimal    `json:"initialBalance"`
	StartDate      time.Time          `json:"startDate"`
	EndDate        time.Time          `json:"endDate"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	WebSocketPath  string        `json:"websocketPath"`
	ReadTimeout    time.Duration `json:"readTimeout"`
	WriteTimeout   time.Duration `json:"writeTimeout"`
	AllowedOrigins []string      `json:"allowedOrigins"`
	EnableMetrics  bool          `json:"enableMetrics"`
}
