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

package data_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/foliolens/risk-engine/data"
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

var _ = Describe("ReturnSeries", func() {
	var start time.Time

	BeforeEach(func() {
		start = time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	})

	Describe("When building a series from prices", func() {
		Context("with a clean price history", func() {
			It("computes percent returns between consecutive days", func() {
				dates := tradingDates(start, 4)
				prices := []float64{100, 102, 102, 104.04}

				series, err := data.SeriesFromPrices("VFINX", dates, prices, data.PercentReturns)
				Expect(err).To(BeNil())
				Expect(series.Len()).To(Equal(3))
				Expect(series.Returns[0]).To(BeNumerically("~", 0.02, 1e-9))
				Expect(series.Returns[1]).To(BeNumerically("~", 0.0, 1e-9))
				Expect(series.Returns[2]).To(BeNumerically("~", 0.02, 1e-9))
				Expect(series.Dates[0]).To(Equal(dates[1]))
			})

			It("computes log returns when requested", func() {
				dates := tradingDates(start, 2)
				prices := []float64{100, 105}

				series, err := data.SeriesFromPrices("VFINX", dates, prices, data.LogReturns)
				Expect(err).To(BeNil())
				Expect(series.Len()).To(Equal(1))
				Expect(series.Returns[0]).To(BeNumerically("~", math.Log(1.05), 1e-9))
			})
		})

		Context("with bad observations", func() {
			It("skips NaN and non-positive prices", func() {
				dates := tradingDates(start, 5)
				prices := []float64{100, math.NaN(), -5, 0, 110}

				series, err := data.SeriesFromPrices("VFINX", dates, prices, data.PercentReturns)
				Expect(err).To(BeNil())
				Expect(series.Len()).To(Equal(1))
				Expect(series.Returns[0]).To(BeNumerically("~", 0.10, 1e-9))
			})

			It("rejects mismatched input lengths", func() {
				dates := tradingDates(start, 3)
				_, err := data.SeriesFromPrices("VFINX", dates, []float64{100, 101}, data.PercentReturns)
				Expect(err).To(MatchError(data.ErrLengthMismatch))
			})
		})
	})

	Describe("When validating a series", func() {
		It("rejects out-of-order dates", func() {
			series := &data.ReturnSeries{
				Ticker:  "VFINX",
				Dates:   []time.Time{start.AddDate(0, 0, 1), start},
				Returns: []float64{0.01, 0.02},
			}
			Expect(series.Valid()).To(MatchError(data.ErrUnorderedDates))
		})

		It("rejects duplicate dates", func() {
			series := &data.ReturnSeries{
				Ticker:  "VFINX",
				Dates:   []time.Time{start, start},
				Returns: []float64{0.01, 0.02},
			}
			Expect(series.Valid()).To(MatchError(data.ErrUnorderedDates))
		})

		It("accepts a well-formed series", func() {
			series := &data.ReturnSeries{
				Ticker:  "VFINX",
				Dates:   tradingDates(start, 3),
				Returns: []float64{0.01, -0.02, 0.03},
			}
			Expect(series.Valid()).To(BeNil())
		})
	})

	Describe("When taking the tail of a series", func() {
		It("keeps the most recent observations", func() {
			series := &data.ReturnSeries{
				Ticker:  "VFINX",
				Dates:   tradingDates(start, 5),
				Returns: []float64{1, 2, 3, 4, 5},
			}
			tail := series.Tail(2)
			Expect(tail.Len()).To(Equal(2))
			Expect(tail.Returns).To(Equal([]float64{4, 5}))
		})

		It("returns the whole series when n exceeds its length", func() {
			series := &data.ReturnSeries{
				Ticker:  "VFINX",
				Dates:   tradingDates(start, 3),
				Returns: []float64{1, 2, 3},
			}
			Expect(series.Tail(10).Len()).To(Equal(3))
		})
	})

	Describe("When intersecting series", func() {
		Context("with partially overlapping dates", func() {
			It("keeps only the common trading days", func() {
				dates := tradingDates(start, 5)
				a := &data.ReturnSeries{Ticker: "A", Dates: dates[:4], Returns: []float64{1, 2, 3, 4}}
				b := &data.ReturnSeries{Ticker: "B", Dates: dates[1:], Returns: []float64{20, 30, 40, 50}}

				alignedA, alignedB, err := data.Intersect(a, b)
				Expect(err).To(BeNil())
				Expect(alignedA.Len()).To(Equal(3))
				Expect(alignedA.Returns).To(Equal([]float64{2, 3, 4}))
				Expect(alignedB.Returns).To(Equal([]float64{20, 30, 40}))
			})
		})

		Context("with disjoint dates", func() {
			It("returns ErrNoOverlap", func() {
				a := &data.ReturnSeries{Ticker: "A", Dates: tradingDates(start, 2), Returns: []float64{1, 2}}
				b := &data.ReturnSeries{Ticker: "B", Dates: tradingDates(start.AddDate(1, 0, 0), 2), Returns: []float64{3, 4}}

				_, _, err := data.Intersect(a, b)
				Expect(err).To(MatchError(data.ErrNoOverlap))
			})
		})

		Context("across more than two series", func() {
			It("aligns on the globally common dates", func() {
				dates := tradingDates(start, 6)
				a := &data.ReturnSeries{Ticker: "A", Dates: dates[:5], Returns: []float64{1, 2, 3, 4, 5}}
				b := &data.ReturnSeries{Ticker: "B", Dates: dates[1:], Returns: []float64{2, 3, 4, 5, 6}}
				c := &data.ReturnSeries{Ticker: "C", Dates: dates[2:5], Returns: []float64{3, 4, 5}}

				aligned, err := data.IntersectAll([]*data.ReturnSeries{a, b, c})
				Expect(err).To(BeNil())
				Expect(aligned).To(HaveLen(3))
				for _, s := range aligned {
					Expect(s.Len()).To(Equal(3))
					Expect(s.Dates[0]).To(Equal(dates[2]))
				}
				Expect(aligned[0].Returns).To(Equal([]float64{3, 4, 5}))
			})
		})
	})
})
