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
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/foliolens/risk-engine/data"
)

const (
	// MinObservations is the floor below which statistics are considered
	// meaningless and metrics come back nil
	MinObservations = 20

	// TradingDays is the annualization factor for daily returns
	TradingDays = 252
)

// z-scores for the left tail of the standard normal
const (
	z95 = -1.6448536269514722
	z99 = -2.3263478740408408
)

// Decomposition splits total variance into the part explained by the
// benchmark and the remainder. Variances are annualized.
type Decomposition struct {
	Systematic    float64 `json:"systematic"`
	Idiosyncratic float64 `json:"idiosyncratic"`
	RSquared      float64 `json:"r_squared"`
}

// PositionMetrics holds per-position risk statistics over a single
// window. All percentage metrics are expressed in percent (volatility
// 25.0 means 25% annualized). Pointer fields are nil when the statistic
// could not be computed; nil is distinct from zero.
type PositionMetrics struct {
	Ticker           string              `json:"ticker"`
	WindowDays       int                 `json:"window_days"`
	Observations     int                 `json:"observations"`
	Volatility       *float64            `json:"volatility"`
	AnnualizedReturn *float64            `json:"annualized_return"`
	MaxDrawdown      *float64            `json:"max_drawdown"`
	Beta             map[string]*float64 `json:"beta"`
	Sharpe           *float64            `json:"sharpe"`
	Sortino          *float64            `json:"sortino"`
	VaR95            *float64            `json:"var_95"`
	VaR99            *float64            `json:"var_99"`
	CVaR95           *float64            `json:"cvar_95"`
	CVaR99           *float64            `json:"cvar_99"`
	Decomposition    *Decomposition      `json:"risk_decomposition"`
}

// CalculateMetrics computes the full set of position risk statistics from
// a daily return series. Benchmarks are intersected pairwise with the
// asset so each beta uses the dates both series observed; the risk
// decomposition is regressed against primaryBenchmark. riskFreeRate is an
// annual decimal rate used as the Sharpe/Sortino hurdle and the Sortino
// minimum acceptable return.
//
// Returns ErrInsufficientData when the series holds fewer than
// MinObservations returns.
func CalculateMetrics(series *data.ReturnSeries, benchmarks map[string]*data.ReturnSeries, primaryBenchmark string, riskFreeRate float64) (*PositionMetrics, error) {
	if series == nil || series.Len() < MinObservations {
		return nil, ErrInsufficientData
	}

	rets := series.Returns
	metrics := &PositionMetrics{
		Ticker:       series.Ticker,
		Observations: len(rets),
		Beta:         make(map[string]*float64, len(benchmarks)),
	}

	vol := stat.StdDev(rets, nil) * math.Sqrt(TradingDays)
	metrics.Volatility = ptr(vol * 100)

	annRet := annualizedReturn(rets)
	metrics.AnnualizedReturn = ptr(annRet * 100)

	metrics.MaxDrawdown = ptr(maxDrawdown(rets) * 100)

	if vol > 0 {
		metrics.Sharpe = ptr((annRet - riskFreeRate) / vol)
	}

	dd := downsideDeviation(rets, riskFreeRate/TradingDays)
	if dd > 0 {
		metrics.Sortino = ptr((annRet - riskFreeRate) / dd)
	}

	mean := stat.Mean(rets, nil)
	sigma := stat.StdDev(rets, nil)
	var95 := mean + z95*sigma
	var99 := mean + z99*sigma
	metrics.VaR95 = ptr(var95 * 100)
	metrics.VaR99 = ptr(var99 * 100)
	metrics.CVaR95 = ptr(cvar(rets, var95) * 100)
	metrics.CVaR99 = ptr(cvar(rets, var99) * 100)

	for name, bench := range benchmarks {
		metrics.Beta[name] = nil
		if bench == nil {
			continue
		}
		a, b, err := data.Intersect(series, bench)
		if err != nil || a.Len() < MinObservations {
			continue
		}
		beta := stat.Covariance(a.Returns, b.Returns, nil) / stat.Variance(b.Returns, nil)
		metrics.Beta[name] = ptr(beta)

		if name == primaryBenchmark {
			metrics.Decomposition = decompose(a.Returns, b.Returns, beta)
		}
	}

	return metrics, nil
}

// annualizedReturn compounds daily returns to an annual rate
func annualizedReturn(rets []float64) float64 {
	growth := 1.0
	for _, r := range rets {
		growth *= 1.0 + r
	}
	if growth <= 0 {
		return -1.0
	}
	return math.Pow(growth, TradingDays/float64(len(rets))) - 1.0
}

// maxDrawdown walks a wealth index built from the returns and reports the
// deepest fall from a running peak; always <= 0
func maxDrawdown(rets []float64) float64 {
	value := 1.0
	peak := 1.0
	worst := 0.0
	for _, r := range rets {
		value *= 1.0 + r
		peak = math.Max(peak, value)
		dd := value/peak - 1.0
		if dd < worst {
			worst = dd
		}
	}
	return worst
}

// downsideDeviation is the annualized RMS of returns below the daily
// minimum acceptable return; only sub-MAR returns contribute
func downsideDeviation(rets []float64, mar float64) float64 {
	var sum float64
	for _, r := range rets {
		if r < mar {
			d := r - mar
			sum += d * d
		}
	}
	return math.Sqrt(sum/float64(len(rets))) * math.Sqrt(TradingDays)
}

// cvar averages the realized returns at or below the VaR cutoff; by
// construction at least as extreme as the cutoff itself. When no return
// breaches the cutoff the worst observed return is used.
func cvar(rets []float64, cutoff float64) float64 {
	var sum float64
	var cnt int
	for _, r := range rets {
		if r <= cutoff {
			sum += r
			cnt++
		}
	}
	if cnt == 0 {
		sorted := make([]float64, len(rets))
		copy(sorted, rets)
		sort.Float64s(sorted)
		return math.Min(sorted[0], cutoff)
	}
	return sum / float64(cnt)
}

// decompose splits asset variance into systematic and idiosyncratic
// parts using the beta regression against the benchmark
func decompose(asset, bench []float64, beta float64) *Decomposition {
	varAsset := stat.Variance(asset, nil)
	varBench := stat.Variance(bench, nil)

	systematic := beta * beta * varBench
	idiosyncratic := varAsset - systematic
	if idiosyncratic < 0 {
		// estimation noise; variance cannot be negative
		idiosyncratic = 0
	}

	rho := stat.Correlation(asset, bench, nil)

	return &Decomposition{
		Systematic:    systematic * TradingDays * 100 * 100,
		Idiosyncratic: idiosyncratic * TradingDays * 100 * 100,
		RSquared:      rho * rho,
	}
}

func ptr(v float64) *float64 {
	return &v
}
