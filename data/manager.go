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
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Manager fans requests out to registered price providers. Providers are
// tried in registration order; the first one to return a usable series
// wins. Individual ticker failures never abort a multi-ticker fetch.
type Manager struct {
	providers []Provider
}

// NewManager creates a manager with the given providers in fallback order
func NewManager(providers ...Provider) *Manager {
	return &Manager{
		providers: providers,
	}
}

// RegisterProvider appends a provider to the fallback chain
func (manager *Manager) RegisterProvider(p Provider) {
	manager.providers = append(manager.providers, p)
}

// RiskFreeRate returns the configured annual risk-free rate used as the
// Sharpe/Sortino hurdle. Expressed as a decimal, e.g. .05 for 5%.
func (manager *Manager) RiskFreeRate() float64 {
	return viper.GetFloat64("data.risk_free_rate")
}

// GetReturns fetches a daily return series for one ticker, falling back
// across providers. Returns ErrAllProvidersDown wrapping the last failure
// when every provider fails.
func (manager *Manager) GetReturns(ctx context.Context, ticker string, begin, end time.Time) (*ReturnSeries, error) {
	if len(manager.providers) == 0 {
		return nil, ErrNoProviders
	}
	if !begin.Before(end) {
		return nil, ErrInvalidTimeRange
	}

	ticker = strings.ToUpper(ticker)
	var lastErr error
	for _, provider := range manager.providers {
		series, err := provider.GetReturns(ctx, ticker, begin, end)
		if err != nil {
			log.Warn().Err(err).Str("Provider", provider.Name()).Str("Ticker", ticker).Msg("provider failed; trying next")
			lastErr = providerErr(provider.Name(), ticker, err)
			continue
		}
		if err := series.Valid(); err != nil {
			log.Warn().Err(err).Str("Provider", provider.Name()).Str("Ticker", ticker).Msg("provider returned invalid series")
			lastErr = providerErr(provider.Name(), ticker, err)
			continue
		}
		return series, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrAllProvidersDown, lastErr)
}

// GetMultipleReturns fetches several tickers concurrently. The result map
// always contains one entry per requested ticker; failed tickers carry
// their error so the caller can skip-and-continue.
func (manager *Manager) GetMultipleReturns(ctx context.Context, tickers []string, begin, end time.Time) map[string]*SeriesResult {
	ch := make(chan *SeriesResult)
	for _, ticker := range tickers {
		go func(ticker string) {
			series, err := manager.GetReturns(ctx, ticker, begin, end)
			ch <- &SeriesResult{
				Ticker: ticker,
				Series: series,
				Err:    err,
			}
		}(strings.ToUpper(ticker))
	}

	res := make(map[string]*SeriesResult, len(tickers))
	for range tickers {
		r := <-ch
		res[r.Ticker] = r
	}
	return res
}
