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
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/foliolens/risk-engine/observability/opentelemetry"
)

var tiingoAPI = "https://api.tiingo.com"

// Tiingo is an HTTP price provider used as a fallback when the local eod
// table has no coverage for a ticker
type Tiingo struct {
	apikey string
}

type tiingoJSONResponse struct {
	Date     string  `json:"date"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adjClose"`
}

// NewTiingo creates a new Tiingo price provider
func NewTiingo(key string) *Tiingo {
	return &Tiingo{
		apikey: key,
	}
}

// Name implements Provider
func (t *Tiingo) Name() string {
	return "tiingo"
}

// GetReturns downloads daily adjusted closes from the Tiingo EOD API and
// converts them into a percent return series
func (t *Tiingo) GetReturns(ctx context.Context, ticker string, begin, end time.Time) (*ReturnSeries, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "tiingo.GetReturns")
	defer span.End()

	subLog := log.With().Str("Ticker", ticker).Time("Begin", begin).Time("End", end).Logger()

	url := fmt.Sprintf("%s/tiingo/daily/%s/prices?startDate=%s&endDate=%s&resampleFreq=daily&token=%s",
		tiingoAPI, ticker, begin.AddDate(0, 0, -7).Format("2006-01-02"), end.Format("2006-01-02"), t.apikey)
	span.SetAttributes(attribute.String("ticker", ticker))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		subLog.Warn().Err(err).Msg("tiingo request failed")
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, "bad status")
		subLog.Warn().Int("StatusCode", resp.StatusCode).Msg("tiingo returned error status")
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: http status %d", ErrProviderFailure, resp.StatusCode)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	quotes := []tiingoJSONResponse{}
	if err := json.Unmarshal(body, &quotes); err != nil {
		subLog.Warn().Err(err).Msg("could not unmarshal tiingo response")
		return nil, err
	}

	if len(quotes) == 0 {
		return nil, ErrNoTradingDays
	}

	dates := make([]time.Time, 0, len(quotes))
	prices := make([]float64, 0, len(quotes))
	for _, quote := range quotes {
		dt, err := time.Parse(time.RFC3339, quote.Date)
		if err != nil {
			subLog.Warn().Err(err).Str("Date", quote.Date).Msg("could not parse quote date")
			continue
		}
		dates = append(dates, dt.Truncate(24*time.Hour))
		prices = append(prices, quote.AdjClose)
	}

	series, err := SeriesFromPrices(ticker, dates, prices, PercentReturns)
	if err != nil {
		return nil, err
	}

	for series.Len() > 0 && series.Dates[0].Before(begin) {
		series.Dates = series.Dates[1:]
		series.Returns = series.Returns[1:]
	}

	if series.Len() == 0 {
		return nil, ErrNoTradingDays
	}

	return series, nil
}
