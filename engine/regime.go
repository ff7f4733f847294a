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
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/foliolens/risk-engine/regime"
)

// refitInterval bounds how often the hidden Markov model is re-estimated.
// Classification over the fitted model is cheap; refitting is not.
const refitInterval = 24 * time.Hour

// marketState memoizes the fitted regime detector and its latest
// classification. Market regime is global, not portfolio scoped, so one
// detector serves every request.
type marketState struct {
	mu             sync.Mutex
	detector       *regime.Detector
	classification *regime.Classification
	fittedAt       time.Time
}

// MarketRegime classifies the market regime from the benchmark's return
// history. A zero asOf classifies at the latest observation; the result
// is memoized and the detector refit at most once per refitInterval. A
// non-zero asOf classifies at the last observation on or before that
// date, using the fitted model's posterior at that point; historical
// calls are never memoized. asOf dates older than the fit window leave
// too few observations and error out.
func (engine *Engine) MarketRegime(ctx context.Context, asOf time.Time) (*regime.Classification, error) {
	engine.market.mu.Lock()
	defer engine.market.mu.Unlock()

	current := asOf.IsZero()
	if current && engine.market.classification != nil && time.Since(engine.market.fittedAt) < refitInterval {
		return engine.market.classification, nil
	}

	begin, end := lookback(regime.FitWindowDays)
	series, err := engine.data.GetReturns(ctx, engine.Benchmark(), begin, end)
	if err != nil {
		// a prior fit keeps serving while the data source is down
		if current && engine.market.classification != nil {
			log.Warn().Err(err).Msg("could not refresh benchmark returns; serving previous regime classification")
			return engine.market.classification, nil
		}
		return nil, err
	}

	detector := engine.market.detector
	if detector == nil || time.Since(engine.market.fittedAt) >= refitInterval {
		detector, err = regime.NewDetector(series)
		if err != nil {
			if current && engine.market.classification != nil {
				log.Warn().Err(err).Msg("regime refit failed; serving previous classification")
				return engine.market.classification, nil
			}
			return nil, err
		}
	}

	if !current {
		return detector.Classify(series.Through(asOf))
	}

	classification, err := detector.Classify(series)
	if err != nil {
		return nil, err
	}

	engine.market.detector = detector
	engine.market.classification = classification
	engine.market.fittedAt = time.Now()

	log.Info().Str("State", classification.State.String()).Float64("Confidence", classification.Confidence).Msg("market regime classified")
	return classification, nil
}

// RegimeForecast projects the regime distribution forward via the fitted
// transition matrix
func (engine *Engine) RegimeForecast(ctx context.Context, horizon int) (*regime.Forecast, error) {
	classification, err := engine.MarketRegime(ctx, time.Time{})
	if err != nil {
		return nil, err
	}

	engine.market.mu.Lock()
	detector := engine.market.detector
	engine.market.mu.Unlock()

	return detector.Forecast(classification, horizon)
}
