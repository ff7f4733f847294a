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

package risk

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/foliolens/risk-engine/data"
)

// RollingPoint is beta over one trailing window ending at Date
type RollingPoint struct {
	Date time.Time `json:"date"`
	Beta float64   `json:"beta"`
}

// RollingBetaSeries tracks how a position's market sensitivity drifts
// over time
type RollingBetaSeries struct {
	Ticker     string          `json:"ticker"`
	Benchmark  string          `json:"benchmark"`
	WindowDays int             `json:"window_days"`
	Points     []*RollingPoint `json:"points"`
}

// RollingBeta computes beta over a sliding window of trading days. The
// two series are first aligned on their common dates; each point covers
// the window ending at that date. Windows where the benchmark shows no
// variance are skipped rather than emitted as Inf.
//
// Returns ErrInsufficientData when the aligned history is shorter than
// one full window.
func RollingBeta(asset, bench *data.ReturnSeries, window int) (*RollingBetaSeries, error) {
	if window < MinObservations {
		window = MinObservations
	}

	alignedAsset, alignedBench, err := data.Intersect(asset, bench)
	if err != nil {
		return nil, err
	}
	n := alignedAsset.Len()
	if n < window {
		return nil, ErrInsufficientData
	}

	series := &RollingBetaSeries{
		Ticker:     asset.Ticker,
		Benchmark:  bench.Ticker,
		WindowDays: window,
		Points:     make([]*RollingPoint, 0, n-window+1),
	}

	for end := window; end <= n; end++ {
		a := alignedAsset.Returns[end-window : end]
		b := alignedBench.Returns[end-window : end]
		benchVar := stat.Variance(b, nil)
		if benchVar == 0 || math.IsNaN(benchVar) {
			continue
		}
		beta := stat.Covariance(a, b, nil) / benchVar
		series.Points = append(series.Points, &RollingPoint{
			Date: alignedAsset.Dates[end-1],
			Beta: beta,
		})
	}

	if len(series.Points) == 0 {
		return nil, ErrInsufficientData
	}

	return series, nil
}
