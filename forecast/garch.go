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
	"errors"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/foliolens/risk-engine/data"
)

const (
	// MinObservations below which no variance model is fit
	MinObservations = 20

	// MaxHorizon bounds multi-step forecasts to 90 trading days
	MaxHorizon = 90

	// FitWindowDays is the trailing window used when fitting variance
	// models; two years balances parameter stability against regime
	// staleness
	FitWindowDays = 504

	tradingDays = 252

	// persistence at or above this is treated as non-stationary even
	// though the reparameterized optimizer cannot reach 1 exactly
	stationarityLimit = 0.9999
)

var (
	ErrInsufficientData = errors.New("insufficient data: fewer than minimum required observations")
	ErrBadHorizon       = errors.New("forecast horizon must be between 1 and 90 days")
	ErrNonStationary    = errors.New("garch persistence >= 1; model rejected")
)

// GarchParams are the fitted GARCH(1,1) coefficients:
//
//	σ²_t = ω + α·ε²_{t-1} + β·σ²_{t-1}
type GarchParams struct {
	Omega float64 `json:"omega"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// Persistence is α+β; the variance process is stationary only when it is
// below 1
func (p GarchParams) Persistence() float64 {
	return p.Alpha + p.Beta
}

// LongRunVariance is the unconditional daily variance ω/(1-α-β) the
// forecast path converges to
func (p GarchParams) LongRunVariance() float64 {
	return p.Omega / (1.0 - p.Alpha - p.Beta)
}

// GarchModel is a fitted daily variance process. When the quasi-maximum-
// likelihood fit fails to converge or is non-stationary, Fallback is true
// and the parameters describe the EWMA estimator used instead.
type GarchModel struct {
	Ticker        string      `json:"ticker"`
	Params        GarchParams `json:"params"`
	LogLikelihood float64     `json:"log_likelihood"`
	LastVariance  float64     `json:"last_variance"`
	Observations  int         `json:"observations"`
	Fallback      bool        `json:"fallback"`
	Warning       string      `json:"warning,omitempty"`
}

// ForecastPoint is one step of the volatility path. Volatility and the
// confidence bounds are annualized percent.
type ForecastPoint struct {
	DayOffset  int     `json:"day_offset"`
	Volatility float64 `json:"predicted_volatility"`
	Lower80    float64 `json:"lower_80"`
	Upper80    float64 `json:"upper_80"`
	Lower95    float64 `json:"lower_95"`
	Upper95    float64 `json:"upper_95"`
}

// VolatilityForecast is a multi-step volatility projection with
// confidence bands. The fitted parameters ride along so callers can audit
// persistence.
type VolatilityForecast struct {
	Ticker  string           `json:"ticker"`
	Horizon int              `json:"horizon_days"`
	Model   *GarchModel      `json:"model"`
	Points  []*ForecastPoint `json:"points"`
}

// FitGarch estimates GARCH(1,1) parameters by quasi-maximum-likelihood
// over a daily return series. The optimizer works in a transformed
// parameter space that enforces ω>0, α≥0, β≥0 and α+β<1 by construction;
// fits that push persistence to the stationarity boundary, and fits that
// fail to converge, fall back to an EWMA variance estimate with a warning
// recorded on the model.
func FitGarch(series *data.ReturnSeries) (*GarchModel, error) {
	if series == nil || series.Len() < MinObservations {
		return nil, ErrInsufficientData
	}

	rets := demean(series.Returns)
	sampleVar := stat.Variance(rets, nil)
	if sampleVar <= 0 {
		return nil, ErrInsufficientData
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			p := paramsFromTheta(theta, sampleVar)
			return garchNegLogLikelihood(rets, p, sampleVar)
		},
	}

	// start near the stylized daily-equity solution: persistence .95
	// split 5/90 between shock and decay
	x0 := []float64{math.Log(0.05 * sampleVar), logit(0.95), logit(0.05 / 0.95)}

	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil || result == nil {
		log.Warn().Err(err).Str("Ticker", series.Ticker).Msg("garch fit did not converge; falling back to ewma")
		return fitEWMA(series, "garch optimization did not converge"), nil
	}

	params := paramsFromTheta(result.X, sampleVar)
	if params.Persistence() >= stationarityLimit {
		log.Warn().Str("Ticker", series.Ticker).Float64("Persistence", params.Persistence()).Msg("garch fit non-stationary; falling back to ewma")
		return fitEWMA(series, ErrNonStationary.Error()), nil
	}

	model := &GarchModel{
		Ticker:        series.Ticker,
		Params:        params,
		LogLikelihood: -result.F,
		LastVariance:  lastConditionalVariance(rets, params, sampleVar),
		Observations:  len(rets),
	}

	return model, nil
}

// Forecast iterates the fitted recursion forward. For h > 1 the squared
// shock is replaced by its expectation (the forecast variance itself) so
// the path follows
//
//	σ²_{T+h} = ω + (α+β)·σ²_{T+h-1}
//
// which converges monotonically to the long-run variance. Confidence
// bands come from the forecast variance-of-variance accumulated from
// future shocks under normal innovations (Var[ε²]=2σ⁴).
func (model *GarchModel) Forecast(horizon int) (*VolatilityForecast, error) {
	if horizon < 1 || horizon > MaxHorizon {
		return nil, ErrBadHorizon
	}

	alpha := model.Params.Alpha
	persistence := model.Params.Persistence()

	points := make([]*ForecastPoint, horizon)
	variance := model.LastVariance
	var vov float64 // variance of the variance forecast
	for h := 1; h <= horizon; h++ {
		variance = model.Params.Omega + persistence*variance
		if h > 1 {
			// newly revealed shock at each intermediate step feeds the
			// forecast uncertainty, discounted by persistence
			vov = persistence*persistence*vov + 2*alpha*alpha*variance*variance
		}
		sd := math.Sqrt(vov)

		points[h-1] = &ForecastPoint{
			DayOffset:  h,
			Volatility: annualizedVolPct(variance),
			Lower80:    annualizedVolPct(variance - 1.2816*sd),
			Upper80:    annualizedVolPct(variance + 1.2816*sd),
			Lower95:    annualizedVolPct(variance - 1.96*sd),
			Upper95:    annualizedVolPct(variance + 1.96*sd),
		}
	}

	return &VolatilityForecast{
		Ticker:  model.Ticker,
		Horizon: horizon,
		Model:   model,
		Points:  points,
	}, nil
}

// garchNegLogLikelihood is the quasi-ML objective (Gaussian innovations),
// dropping additive constants
func garchNegLogLikelihood(rets []float64, p GarchParams, initialVar float64) float64 {
	variance := initialVar
	var nll float64
	for ii := range rets {
		if ii > 0 {
			variance = p.Omega + p.Alpha*rets[ii-1]*rets[ii-1] + p.Beta*variance
		}
		if variance <= 0 || math.IsNaN(variance) {
			return math.Inf(1)
		}
		nll += 0.5 * (math.Log(variance) + rets[ii]*rets[ii]/variance)
	}
	return nll
}

// lastConditionalVariance runs the recursion over the sample to obtain
// σ²_T, the launch point for forecasting
func lastConditionalVariance(rets []float64, p GarchParams, initialVar float64) float64 {
	variance := initialVar
	for ii := 1; ii < len(rets); ii++ {
		variance = p.Omega + p.Alpha*rets[ii-1]*rets[ii-1] + p.Beta*variance
	}
	return variance
}

// paramsFromTheta maps the unconstrained optimizer space onto valid
// GARCH parameters: ω=exp(θ0) > 0, persistence=σ(θ1) < 1 split between
// α and β by σ(θ2)
func paramsFromTheta(theta []float64, sampleVar float64) GarchParams {
	omega := math.Exp(theta[0])
	if math.IsInf(omega, 1) {
		omega = sampleVar
	}
	persistence := sigmoid(theta[1])
	share := sigmoid(theta[2])
	return GarchParams{
		Omega: omega,
		Alpha: persistence * share,
		Beta:  persistence * (1.0 - share),
	}
}

func annualizedVolPct(dailyVariance float64) float64 {
	if dailyVariance < 0 {
		dailyVariance = 0
	}
	return math.Sqrt(dailyVariance*tradingDays) * 100
}

func demean(rets []float64) []float64 {
	mean := stat.Mean(rets, nil)
	out := make([]float64, len(rets))
	for ii, r := range rets {
		out[ii] = r - mean
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func logit(p float64) float64 {
	return math.Log(p / (1.0 - p))
}
