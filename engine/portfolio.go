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

package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/foliolens/risk-engine/database"
	"github.com/foliolens/risk-engine/observability/opentelemetry"
	"github.com/foliolens/risk-engine/risk"
)

var ErrNoHoldings = errors.New("portfolio has no holdings")

// Holding is one row of a portfolio's current positions
type Holding struct {
	Ticker      string
	MarketValue float64
}

// loadHoldings reads the portfolio's current positions and derives
// weights from market value
func loadHoldings(ctx context.Context, portfolioID uuid.UUID) ([]*Holding, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "loadHoldings")
	defer span.End()

	rows, err := database.Pool().Query(ctx,
		"SELECT ticker, market_value FROM portfolio_holdings WHERE portfolio_id=$1 AND market_value > 0 ORDER BY ticker",
		portfolioID)
	if err != nil {
		log.Error().Err(err).Str("PortfolioID", portfolioID.String()).Msg("could not load portfolio holdings")
		return nil, err
	}
	defer rows.Close()

	var holdings []*Holding
	for rows.Next() {
		holding := &Holding{}
		if err := rows.Scan(&holding.Ticker, &holding.MarketValue); err != nil {
			log.Error().Err(err).Msg("could not scan holding")
			return nil, err
		}
		holdings = append(holdings, holding)
	}

	if len(holdings) == 0 {
		return nil, ErrNoHoldings
	}
	return holdings, nil
}

// buildPositions turns holdings into metric-bearing positions. Tickers
// whose data cannot be retrieved, or whose history is too short, are
// excluded with a reason rather than failing the whole portfolio; only
// when every ticker fails does the build error out.
func (engine *Engine) buildPositions(ctx context.Context, portfolioID uuid.UUID, windowDays int) ([]*risk.Position, []risk.ExcludedPosition, error) {
	holdings, err := loadHoldings(ctx, portfolioID)
	if err != nil {
		return nil, nil, err
	}

	var totalValue float64
	tickers := make([]string, 0, len(holdings)+1)
	for _, holding := range holdings {
		totalValue += holding.MarketValue
		tickers = append(tickers, holding.Ticker)
	}

	bench := engine.Benchmark()
	benchList := engine.Benchmarks()
	tickers = append(tickers, benchList...)
	begin, end := lookback(windowDays)
	results := engine.data.GetMultipleReturns(ctx, tickers, begin, end)

	benchmarks := benchmarkSeries(results, benchList)

	positions := make([]*risk.Position, 0, len(holdings))
	var excluded []risk.ExcludedPosition
	for _, holding := range holdings {
		result := results[holding.Ticker]
		if !result.Ok() {
			excluded = append(excluded, risk.ExcludedPosition{Ticker: holding.Ticker, Reason: result.Err.Error()})
			continue
		}

		series := result.Series.Tail(windowDays)
		metrics, err := risk.CalculateMetrics(series, benchmarks, bench, engine.data.RiskFreeRate())
		if err != nil {
			excluded = append(excluded, risk.ExcludedPosition{Ticker: holding.Ticker, Reason: err.Error()})
			continue
		}

		positions = append(positions, &risk.Position{
			Ticker:  holding.Ticker,
			Weight:  holding.MarketValue / totalValue,
			Series:  series,
			Metrics: metrics,
		})
	}

	if len(positions) == 0 {
		return nil, nil, risk.ErrAllTickersFail
	}
	return positions, excluded, nil
}
