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

package forecast

import (
	"gonum.org/v1/gonum/stat"

	"github.com/foliolens/risk-engine/data"
)

// ewmaLambda is the RiskMetrics decay factor for daily data
const ewmaLambda = 0.94

// fitEWMA builds the exponentially-weighted-moving-average variance
// estimate used when the GARCH fit is rejected. Expressed in GARCH terms
// it is the degenerate ω=0, α=1-λ, β=λ model; the forecast recursion
// then holds the last conditional variance flat, which is the correct
// integrated-variance behavior for an estimator with unit persistence.
func fitEWMA(series *data.ReturnSeries, warning string) *GarchModel {
	rets := demean(series.Returns)

	variance := stat.Variance(rets, nil)
	for ii := 1; ii < len(rets); ii++ {
		variance = ewmaLambda*variance + (1.0-ewmaLambda)*rets[ii-1]*rets[ii-1]
	}

	return &GarchModel{
		Ticker: series.Ticker,
		Params: GarchParams{
			Omega: 0,
			Alpha: 1.0 - ewmaLambda,
			Beta:  ewmaLambda,
		},
		LastVariance: variance,
		Observations: len(rets),
		Fallback:     true,
		Warning:      warning,
	}
}
