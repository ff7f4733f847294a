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

package risk_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/foliolens/risk-engine/correlation"
	"github.com/foliolens/risk-engine/data"
	"github.com/foliolens/risk-engine/risk"
)

// datedSeries is seededSeries with a caller-chosen start date
func datedSeries(ticker string, start time.Time, n int, scale float64) *data.ReturnSeries {
	rets := make([]float64, n)
	for ii := range rets {
		rets[ii] = scale * math.Sin(float64(ii)*0.7)
	}
	return &data.ReturnSeries{
		Ticker:  ticker,
		Dates:   tradingDates(start, n),
		Returns: rets,
	}
}

// buildPosition computes metrics for a series and wraps it as a weighted
// position
func buildPosition(series *data.ReturnSeries, weight float64, bench *data.ReturnSeries) *risk.Position {
	benchmarks := map[string]*data.ReturnSeries{}
	if bench != nil {
		benchmarks["SPY"] = bench
	}
	metrics, err := risk.CalculateMetrics(series, benchmarks, "SPY", 0)
	Expect(err).To(BeNil())
	return &risk.Position{
		Ticker:  series.Ticker,
		Weight:  weight,
		Series:  series,
		Metrics: metrics,
	}
}

var _ = Describe("Portfolio aggregation", func() {
	Describe("When aggregating perfectly correlated positions", func() {
		It("matches the weighted average volatility", func() {
			a := seededSeries("AAA", 252, 0.01)
			b := seededSeries("BBB", 252, 0.02)
			positions := []*risk.Position{
				buildPosition(a, 0.5, nil),
				buildPosition(b, 0.5, nil),
			}
			corr := correlation.NewMatrix([]*data.ReturnSeries{a, b})

			metrics, err := risk.Aggregate(positions, corr, "SPY", nil)
			Expect(err).To(BeNil())

			// both series are scalar multiples of the same path so rho=1
			// and portfolio vol is exactly the weighted average
			expected := 0.5**positions[0].Metrics.Volatility + 0.5**positions[1].Metrics.Volatility
			Expect(metrics.Volatility).To(BeNumerically("~", expected, 1e-6))
		})

		It("scores zero diversification for a fully correlated pair", func() {
			a := seededSeries("AAA", 252, 0.01)
			b := seededSeries("BBB", 252, 0.02)
			positions := []*risk.Position{
				buildPosition(a, 0.5, nil),
				buildPosition(b, 0.5, nil),
			}
			corr := correlation.NewMatrix([]*data.ReturnSeries{a, b})

			metrics, err := risk.Aggregate(positions, corr, "SPY", nil)
			Expect(err).To(BeNil())
			Expect(metrics.Diversification).To(BeNumerically("~", 0.0, 1e-9))
		})
	})

	Describe("When a single position makes up the portfolio", func() {
		It("scores zero diversification", func() {
			a := seededSeries("ONLY", 252, 0.01)
			positions := []*risk.Position{buildPosition(a, 1.0, nil)}
			corr := correlation.NewMatrix([]*data.ReturnSeries{a})

			metrics, err := risk.Aggregate(positions, corr, "SPY", nil)
			Expect(err).To(BeNil())
			Expect(metrics.Diversification).To(BeNumerically("~", 0.0, 1e-9))
			Expect(metrics.Volatility).To(BeNumerically("~", *positions[0].Metrics.Volatility, 1e-9))
		})
	})

	Describe("When weights are not normalized", func() {
		It("renormalizes instead of inflating the aggregate", func() {
			a := seededSeries("AAA", 252, 0.01)
			b := seededSeries("BBB", 252, 0.01)
			corr := correlation.NewMatrix([]*data.ReturnSeries{a, b})

			doubled, err := risk.Aggregate([]*risk.Position{
				buildPosition(a, 2.0, nil),
				buildPosition(b, 2.0, nil),
			}, corr, "SPY", nil)
			Expect(err).To(BeNil())

			normalized, err := risk.Aggregate([]*risk.Position{
				buildPosition(a, 0.5, nil),
				buildPosition(b, 0.5, nil),
			}, corr, "SPY", nil)
			Expect(err).To(BeNil())

			Expect(doubled.Volatility).To(BeNumerically("~", normalized.Volatility, 1e-9))
		})

		It("rejects non-positive weights", func() {
			a := seededSeries("AAA", 252, 0.01)
			corr := correlation.NewMatrix([]*data.ReturnSeries{a})
			_, err := risk.Aggregate([]*risk.Position{buildPosition(a, -0.5, nil)}, corr, "SPY", nil)
			Expect(err).To(MatchError(risk.ErrBadWeights))
		})

		It("rejects an empty portfolio", func() {
			_, err := risk.Aggregate(nil, nil, "SPY", nil)
			Expect(err).To(MatchError(risk.ErrNoPositions))
		})
	})

	Describe("When computing the composite risk score", func() {
		It("stays within 0-100 and weights the subscales 0.4/0.3/0.2/0.1", func() {
			a := seededSeries("AAA", 252, 0.01)
			bench := seededSeries("SPY", 252, 0.01)
			positions := []*risk.Position{buildPosition(a, 1.0, bench)}
			corr := correlation.NewMatrix([]*data.ReturnSeries{a})

			metrics, err := risk.Aggregate(positions, corr, "SPY", nil)
			Expect(err).To(BeNil())
			Expect(metrics.RiskScore).To(BeNumerically(">=", 0))
			Expect(metrics.RiskScore).To(BeNumerically("<=", 100))

			expected := 0.4*metrics.Components.Volatility +
				0.3*metrics.Components.Drawdown +
				0.2*metrics.Components.Beta +
				0.1*metrics.Components.VaR
			Expect(metrics.RiskScore).To(BeNumerically("~", expected, 1e-9))
		})

		It("carries the portfolio beta from the positions", func() {
			a := seededSeries("LEVERED", 252, 0.02)
			bench := seededSeries("SPY", 252, 0.01)
			positions := []*risk.Position{buildPosition(a, 1.0, bench)}
			corr := correlation.NewMatrix([]*data.ReturnSeries{a})

			metrics, err := risk.Aggregate(positions, corr, "SPY", nil)
			Expect(err).To(BeNil())
			Expect(metrics.Beta).ToNot(BeNil())
			Expect(*metrics.Beta).To(BeNumerically("~", 2.0, 1e-9))
		})

		It("leaves beta nil when no benchmark data exists", func() {
			a := seededSeries("AAA", 252, 0.01)
			positions := []*risk.Position{buildPosition(a, 1.0, nil)}
			corr := correlation.NewMatrix([]*data.ReturnSeries{a})

			metrics, err := risk.Aggregate(positions, corr, "SPY", nil)
			Expect(err).To(BeNil())
			Expect(metrics.Beta).To(BeNil())
			Expect(metrics.Components.Beta).To(Equal(0.0))
		})
	})

	Describe("When positions were excluded upstream", func() {
		It("surfaces the exclusions on the aggregate", func() {
			a := seededSeries("AAA", 252, 0.01)
			positions := []*risk.Position{buildPosition(a, 1.0, nil)}
			corr := correlation.NewMatrix([]*data.ReturnSeries{a})
			excluded := []risk.ExcludedPosition{{Ticker: "NEWIPO", Reason: "insufficient data"}}

			metrics, err := risk.Aggregate(positions, corr, "SPY", excluded)
			Expect(err).To(BeNil())
			Expect(metrics.Excluded).To(HaveLen(1))
			Expect(metrics.Excluded[0].Ticker).To(Equal("NEWIPO"))
		})
	})

	Describe("When tail metrics are derived from the blended series", func() {
		It("keeps CVaR at least as extreme as VaR", func() {
			a := seededSeries("AAA", 252, 0.01)
			b := seededSeries("BBB", 252, 0.015)
			positions := []*risk.Position{
				buildPosition(a, 0.6, nil),
				buildPosition(b, 0.4, nil),
			}
			corr := correlation.NewMatrix([]*data.ReturnSeries{a, b})

			metrics, err := risk.Aggregate(positions, corr, "SPY", nil)
			Expect(err).To(BeNil())
			Expect(metrics.VaR95).ToNot(BeNil())
			Expect(metrics.CVaR95).ToNot(BeNil())
			Expect(metrics.MaxDrawdown).ToNot(BeNil())
			Expect(*metrics.CVaR95).To(BeNumerically("<=", *metrics.VaR95))
			Expect(math.Abs(*metrics.MaxDrawdown)).To(BeNumerically(">", 0))
		})

		It("leaves the blended metrics nil when position histories do not overlap", func() {
			// each position alone has a clearly negative VaR but the
			// histories share no dates, so no blended series exists
			a := datedSeries("OLD", time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), 30, 0.025)
			b := datedSeries("NEW", time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), 30, 0.025)
			positions := []*risk.Position{
				buildPosition(a, 0.5, nil),
				buildPosition(b, 0.5, nil),
			}
			corr := correlation.NewMatrix([]*data.ReturnSeries{a, b})

			metrics, err := risk.Aggregate(positions, corr, "SPY", nil)
			Expect(err).To(BeNil())
			Expect(*positions[0].Metrics.VaR95).To(BeNumerically("<", 0))

			Expect(metrics.AnnualizedReturn).To(BeNil())
			Expect(metrics.MaxDrawdown).To(BeNil())
			Expect(metrics.VaR95).To(BeNil())
			Expect(metrics.CVaR95).To(BeNil())
			Expect(metrics.Components.Drawdown).To(Equal(0.0))
			Expect(metrics.Components.VaR).To(Equal(0.0))

			// the covariance-based pieces still compute
			Expect(metrics.Volatility).To(BeNumerically(">", 0))
		})
	})
})
