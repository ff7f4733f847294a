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

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/foliolens/risk-engine/correlation"
	"github.com/foliolens/risk-engine/data"
)

// score normalization caps; realized values at or beyond the cap pin the
// subscale at 100
const (
	volatilityCap = 60.0 // annualized %
	drawdownCap   = 50.0 // %
	betaCap       = 2.5
	varCap        = 10.0 // daily %
)

// score component weights
const (
	volatilityWeight = 0.4
	drawdownWeight   = 0.3
	betaWeight       = 0.2
	varWeight        = 0.1
)

// Position pairs a portfolio holding with its return series and computed
// metrics. Weight is the position's share of portfolio market value.
type Position struct {
	Ticker  string
	Weight  float64
	Series  *data.ReturnSeries
	Metrics *PositionMetrics
}

// ExcludedPosition records a holding left out of the aggregate along with
// the reason (provider failure, insufficient data). Partial portfolio
// results are still produced; exclusions are surfaced, not swallowed.
type ExcludedPosition struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// ScoreComponents are the 0-100 subscales feeding the composite risk
// score
type ScoreComponents struct {
	Volatility float64 `json:"volatility"`
	Drawdown   float64 `json:"drawdown"`
	Beta       float64 `json:"beta"`
	VaR        float64 `json:"var"`
}

// PortfolioMetrics is the portfolio-level risk aggregate. The blended
// return fields are nil when the included positions' histories do not
// overlap long enough to support them; a zero would read as "no risk".
type PortfolioMetrics struct {
	WindowDays           int                 `json:"window_days"`
	Volatility           float64             `json:"volatility"`
	AnnualizedReturn     *float64            `json:"annualized_return"`
	MaxDrawdown          *float64            `json:"max_drawdown"`
	Beta                 *float64            `json:"beta"`
	VaR95                *float64            `json:"var_95"`
	CVaR95               *float64            `json:"cvar_95"`
	RiskScore            float64             `json:"risk_score"`
	Components           ScoreComponents     `json:"components"`
	Diversification      float64             `json:"diversification_score"`
	HighCorrelationPairs int                 `json:"high_correlation_pairs"`
	Excluded             []ExcludedPosition  `json:"excluded"`
	Positions            []*PositionMetrics  `json:"positions"`
}

// Aggregate combines position-level metrics into portfolio risk. Weights
// are renormalized over the included positions so excluded tickers do not
// silently drag the aggregate toward zero. Portfolio volatility uses the
// full covariance form wᵗΣw with Σ rebuilt from the correlation matrix
// and the individual volatilities; a naive weighted sum of volatilities
// would ignore diversification entirely.
func Aggregate(positions []*Position, corr *correlation.Matrix, benchmark string, excluded []ExcludedPosition) (*PortfolioMetrics, error) {
	if len(positions) == 0 {
		return nil, ErrNoPositions
	}

	var weightSum float64
	for _, p := range positions {
		if p.Weight <= 0 {
			return nil, ErrBadWeights
		}
		weightSum += p.Weight
	}

	n := len(positions)
	weights := make([]float64, n)
	vols := make([]float64, n)
	for ii, p := range positions {
		weights[ii] = p.Weight / weightSum
		if p.Metrics.Volatility != nil {
			vols[ii] = *p.Metrics.Volatility / 100.0
		}
	}

	// Σ_ij = ρ_ij σ_i σ_j; pairs with no valid correlation estimate are
	// treated as uncorrelated
	sigma := mat.NewSymDense(n, nil)
	for ii := 0; ii < n; ii++ {
		for jj := ii; jj < n; jj++ {
			rho := 1.0
			if ii != jj {
				rho = corr.Get(positions[ii].Ticker, positions[jj].Ticker)
				if math.IsNaN(rho) {
					rho = 0
				}
			}
			sigma.SetSym(ii, jj, rho*vols[ii]*vols[jj])
		}
	}

	w := mat.NewVecDense(n, weights)
	var tmp mat.VecDense
	tmp.MulVec(sigma, w)
	portVariance := mat.Dot(w, &tmp)
	portVol := math.Sqrt(math.Max(0, portVariance)) * 100

	portBeta := portfolioBeta(positions, weights, benchmark)

	// drawdown and tail statistics come from the blended daily return
	// series over the dates all included positions share; histories that
	// overlap on too few days leave these nil
	portRets := blendedReturns(positions, weights)

	var annRet, maxDD, var95, cvar95 *float64
	if len(portRets) >= MinObservations {
		annRet = ptr(annualizedReturn(portRets) * 100)
		maxDD = ptr(maxDrawdown(portRets) * 100)
		mean := stat.Mean(portRets, nil)
		sd := stat.StdDev(portRets, nil)
		v := mean + z95*sd
		var95 = ptr(v * 100)
		cvar95 = ptr(cvar(portRets, v) * 100)
	}

	avgCorr := corr.AveragePairwise()
	diversification := correlation.DiversificationScore(weights, avgCorr)

	components := ScoreComponents{
		Volatility: subscale(portVol, volatilityCap),
	}
	if maxDD != nil {
		components.Drawdown = subscale(math.Abs(*maxDD), drawdownCap)
	}
	if var95 != nil {
		components.VaR = subscale(math.Abs(*var95), varCap)
	}
	if portBeta != nil {
		components.Beta = subscale(math.Abs(*portBeta), betaCap)
	}

	score := volatilityWeight*components.Volatility +
		drawdownWeight*components.Drawdown +
		betaWeight*components.Beta +
		varWeight*components.VaR

	posMetrics := make([]*PositionMetrics, n)
	for ii, p := range positions {
		posMetrics[ii] = p.Metrics
	}

	return &PortfolioMetrics{
		Volatility:           portVol,
		AnnualizedReturn:     annRet,
		MaxDrawdown:          maxDD,
		Beta:                 portBeta,
		VaR95:                var95,
		CVaR95:               cvar95,
		RiskScore:            score,
		Components:           components,
		Diversification:      diversification,
		HighCorrelationPairs: corr.HighCorrelationPairs(),
		Excluded:             excluded,
		Positions:            posMetrics,
	}, nil
}

// portfolioBeta is the weight-averaged position beta against the named
// benchmark; nil when no position has a usable beta
func portfolioBeta(positions []*Position, weights []float64, benchmark string) *float64 {
	var beta, coverage float64
	var any bool
	for ii, p := range positions {
		if b, ok := p.Metrics.Beta[benchmark]; ok && b != nil {
			beta += weights[ii] * *b
			coverage += weights[ii]
			any = true
		}
	}
	if !any || coverage == 0 {
		return nil
	}
	// scale up for positions without a beta estimate
	beta /= coverage
	return &beta
}

// blendedReturns builds the portfolio daily return series over the
// intersection of all position dates
func blendedReturns(positions []*Position, weights []float64) []float64 {
	series := make([]*data.ReturnSeries, len(positions))
	for ii, p := range positions {
		series[ii] = p.Series
	}
	aligned, err := data.IntersectAll(series)
	if err != nil {
		return nil
	}

	out := make([]float64, aligned[0].Len())
	for ii := range out {
		var r float64
		for jj := range aligned {
			r += weights[jj] * aligned[jj].Returns[ii]
		}
		out[ii] = r
	}
	return out
}

// subscale maps a value linearly onto 0-100, pinning at the cap
func subscale(v, limit float64) float64 {
	if v <= 0 {
		return 0
	}
	if v >= limit {
		return 100
	}
	return v / limit * 100
}
