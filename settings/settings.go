// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package settings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"

	"github.com/foliolens/risk-engine/database"
)

// Pair is a warning/critical threshold pair for one metric. Warning must
// be at most as severe as critical; mutation happens through the settings
// UI which is outside this engine, so values are read-only here.
type Pair struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// RiskThresholds holds per-portfolio alerting thresholds. Volatility,
// Drawdown and VaR are in percent (absolute values), Beta and RiskScore
// are unitless.
type RiskThresholds struct {
	PortfolioID          uuid.UUID `json:"portfolio_id"`
	Volatility           Pair      `json:"volatility"`
	Drawdown             Pair      `json:"drawdown"`
	Beta                 Pair      `json:"beta"`
	VaR                  Pair      `json:"var"`
	RiskScore            Pair      `json:"risk_score"`
	MaxPositionWeight    float64   `json:"max_position_weight"`
	MinDiversification   float64   `json:"min_diversification"`
	HighCorrelationLimit int       `json:"high_correlation_limit"`
}

// Default returns the thresholds applied to portfolios without explicit
// settings
func Default(portfolioID uuid.UUID) *RiskThresholds {
	return &RiskThresholds{
		PortfolioID:          portfolioID,
		Volatility:           Pair{Warning: 25, Critical: 40},
		Drawdown:             Pair{Warning: 15, Critical: 30},
		Beta:                 Pair{Warning: 1.3, Critical: 1.8},
		VaR:                  Pair{Warning: 2.5, Critical: 4},
		RiskScore:            Pair{Warning: 60, Critical: 80},
		MaxPositionWeight:    0.25,
		MinDiversification:   30,
		HighCorrelationLimit: 3,
	}
}

// Load reads the threshold settings for a portfolio, falling back to the
// defaults when the portfolio has none
func Load(ctx context.Context, portfolioID uuid.UUID) (*RiskThresholds, error) {
	sql := `SELECT vol_warn, vol_crit, dd_warn, dd_crit, beta_warn, beta_crit, var_warn, var_crit, score_warn, score_crit, max_position_weight, min_diversification, high_correlation_limit FROM risk_threshold_settings WHERE portfolio_id=$1`

	t := Default(portfolioID)
	row := database.Pool().QueryRow(ctx, sql, portfolioID)
	err := row.Scan(
		&t.Volatility.Warning, &t.Volatility.Critical,
		&t.Drawdown.Warning, &t.Drawdown.Critical,
		&t.Beta.Warning, &t.Beta.Critical,
		&t.VaR.Warning, &t.VaR.Critical,
		&t.RiskScore.Warning, &t.RiskScore.Critical,
		&t.MaxPositionWeight, &t.MinDiversification, &t.HighCorrelationLimit,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Default(portfolioID), nil
		}
		log.Error().Err(err).Str("PortfolioID", portfolioID.String()).Msg("could not load threshold settings")
		return nil, err
	}

	return t, nil
}
