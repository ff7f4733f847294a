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

	"github.com/foliolens/risk-engine/data"
	"github.com/foliolens/risk-engine/risk"
)

func tradingDates(start time.Time, n int) []time.Time {
	dates := make([]time.Time, 0, n)
	curr := start
	for len(dates) < n {
		if curr.Weekday() != time.Saturday && curr.Weekday() != time.Sunday {
			dates = append(dates, curr)
		}
		curr = curr.AddDate(0, 0, 1)
	}
	return dates
}

// seededSeries produces a deterministic but varied return series
func seededSeries(ticker string, n int, scale float64) *data.ReturnSeries {
	start := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
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

var _ = Describe("Position metrics", func() {
	Describe("When the series is too short", func() {
		It("returns ErrInsufficientData for 5 observations", func() {
			series := seededSeries("NEWIPO", 5, 0.01)
			_, err := risk.CalculateMetrics(series, nil, "SPY", 0)
			Expect(err).To(MatchError(risk.ErrInsufficientData))
		})

		It("returns ErrInsufficientData for a nil series", func() {
			_, err := risk.CalculateMetrics(nil, nil, "SPY", 0)
			Expect(err).To(MatchError(risk.ErrInsufficientData))
		})
	})

	Describe("When computing metrics on a full window", func() {
		var metrics *risk.PositionMetrics

		BeforeEach(func() {
			var err error
			metrics, err = risk.CalculateMetrics(seededSeries("VFINX", 252, 0.01), nil, "SPY", 0.02)
			Expect(err).To(BeNil())
		})

		It("records the observation count", func() {
			Expect(metrics.Observations).To(Equal(252))
		})

		It("computes a positive annualized volatility", func() {
			Expect(metrics.Volatility).ToNot(BeNil())
			Expect(*metrics.Volatility).To(BeNumerically(">", 0))
		})

		It("reports max drawdown as a non-positive percent", func() {
			Expect(metrics.MaxDrawdown).ToNot(BeNil())
			Expect(*metrics.MaxDrawdown).To(BeNumerically("<=", 0))
		})

		It("orders the tail metrics: CVaR99 <= CVaR95 <= VaR95", func() {
			Expect(*metrics.CVaR99).To(BeNumerically("<=", *metrics.CVaR95))
			Expect(*metrics.CVaR95).To(BeNumerically("<=", *metrics.VaR95))
		})

		It("puts VaR99 below VaR95", func() {
			Expect(*metrics.VaR99).To(BeNumerically("<", *metrics.VaR95))
		})
	})

	Describe("When a constant series is supplied", func() {
		It("leaves Sharpe nil rather than dividing by zero", func() {
			start := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
			series := &data.ReturnSeries{
				Ticker:  "CASH",
				Dates:   tradingDates(start, 30),
				Returns: make([]float64, 30),
			}
			metrics, err := risk.CalculateMetrics(series, nil, "SPY", 0)
			Expect(err).To(BeNil())
			Expect(metrics.Sharpe).To(BeNil())
			Expect(metrics.Sortino).To(BeNil())
			Expect(*metrics.Volatility).To(Equal(0.0))
		})
	})

	Describe("When benchmarks are supplied", func() {
		It("computes beta 1 against itself", func() {
			asset := seededSeries("VFINX", 252, 0.01)
			bench := seededSeries("SPY", 252, 0.01)
			metrics, err := risk.CalculateMetrics(asset, map[string]*data.ReturnSeries{"SPY": bench}, "SPY", 0)
			Expect(err).To(BeNil())
			Expect(metrics.Beta["SPY"]).ToNot(BeNil())
			Expect(*metrics.Beta["SPY"]).To(BeNumerically("~", 1.0, 1e-9))
		})

		It("scales beta with the asset's amplitude", func() {
			asset := seededSeries("LEVERED", 252, 0.02)
			bench := seededSeries("SPY", 252, 0.01)
			metrics, err := risk.CalculateMetrics(asset, map[string]*data.ReturnSeries{"SPY": bench}, "SPY", 0)
			Expect(err).To(BeNil())
			Expect(*metrics.Beta["SPY"]).To(BeNumerically("~", 2.0, 1e-9))
		})

		It("attributes all variance to the benchmark for a perfect tracker", func() {
			asset := seededSeries("TRACKER", 252, 0.01)
			bench := seededSeries("SPY", 252, 0.01)
			metrics, err := risk.CalculateMetrics(asset, map[string]*data.ReturnSeries{"SPY": bench}, "SPY", 0)
			Expect(err).To(BeNil())
			Expect(metrics.Decomposition).ToNot(BeNil())
			Expect(metrics.Decomposition.RSquared).To(BeNumerically("~", 1.0, 1e-9))
			Expect(metrics.Decomposition.Idiosyncratic).To(BeNumerically("~", 0.0, 1e-6))
		})

		It("records a nil beta when the histories do not overlap", func() {
			asset := seededSeries("VFINX", 252, 0.01)
			bench := &data.ReturnSeries{
				Ticker:  "SPY",
				Dates:   tradingDates(time.Date(2010, 1, 4, 0, 0, 0, 0, time.UTC), 252),
				Returns: make([]float64, 252),
			}
			metrics, err := risk.CalculateMetrics(asset, map[string]*data.ReturnSeries{"SPY": bench}, "SPY", 0)
			Expect(err).To(BeNil())
			Expect(metrics.Beta).To(HaveKey("SPY"))
			Expect(metrics.Beta["SPY"]).To(BeNil())
		})
	})

	Describe("When a steady losing streak occurs", func() {
		It("measures the drawdown of the losing stretch", func() {
			start := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
			rets := make([]float64, 40)
			for ii := 10; ii < 20; ii++ {
				rets[ii] = -0.01
			}
			series := &data.ReturnSeries{Ticker: "DOWN", Dates: tradingDates(start, 40), Returns: rets}

			metrics, err := risk.CalculateMetrics(series, nil, "SPY", 0)
			Expect(err).To(BeNil())
			expected := (math.Pow(0.99, 10) - 1.0) * 100
			Expect(*metrics.MaxDrawdown).To(BeNumerically("~", expected, 1e-9))
		})
	})
})
