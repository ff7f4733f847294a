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

package data

import (
	"context"
	"time"

	"github.com/foliolens/risk-engine/database"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/foliolens/risk-engine/observability/opentelemetry"
)

// PvDb serves return series from the eod price table maintained by the
// ingestion side of the application
type PvDb struct{}

// NewPvDb creates a database-backed price provider
func NewPvDb() *PvDb {
	return &PvDb{}
}

// Name implements Provider
func (pvdb *PvDb) Name() string {
	return "pvdb"
}

// GetReturns loads adjusted closes for the ticker over [begin, end] and
// converts them into a daily percent return series. The extra lookback day
// supplies the price the first return is computed against.
func (pvdb *PvDb) GetReturns(ctx context.Context, ticker string, begin, end time.Time) (*ReturnSeries, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "pvdb.GetReturns")
	defer span.End()

	subLog := log.With().Str("Ticker", ticker).Time("Begin", begin).Time("End", end).Logger()

	sql := `SELECT event_date, adj_close FROM eod WHERE ticker=$1 AND event_date BETWEEN $2 AND $3 ORDER BY event_date ASC`
	rows, err := database.Pool().Query(ctx, sql, ticker, begin.AddDate(0, 0, -7), end)
	if err != nil {
		subLog.Warn().Err(err).Msg("eod query failed")
		return nil, err
	}
	defer rows.Close()

	dates := make([]time.Time, 0, 252)
	prices := make([]float64, 0, 252)
	for rows.Next() {
		var dt time.Time
		var close float64
		if err := rows.Scan(&dt, &close); err != nil {
			subLog.Warn().Err(err).Msg("could not scan eod row")
			return nil, err
		}
		dates = append(dates, dt)
		prices = append(prices, close)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(prices) == 0 {
		return nil, ErrNotFound
	}

	series, err := SeriesFromPrices(ticker, dates, prices, PercentReturns)
	if err != nil {
		return nil, err
	}

	// drop the lookback padding
	for series.Len() > 0 && series.Dates[0].Before(begin) {
		series.Dates = series.Dates[1:]
		series.Returns = series.Returns[1:]
	}

	if series.Len() == 0 {
		return nil, ErrNoTradingDays
	}

	return series, nil
}
