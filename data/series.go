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
	"math"
	"time"
)

// ReturnKind selects how a price series is converted into returns
type ReturnKind int

const (
	PercentReturns ReturnKind = iota
	LogReturns
)

// ReturnSeries is an ordered set of daily returns for a single ticker.
// Dates and Returns are parallel slices; dates are strictly increasing
// with no duplicates. A ReturnSeries is built per calculation request
// and is never persisted.
type ReturnSeries struct {
	Ticker  string
	Dates   []time.Time
	Returns []float64
}

// Len returns the number of return observations in the series
func (series *ReturnSeries) Len() int {
	return len(series.Returns)
}

// Valid checks the series invariants: parallel slices and strictly
// increasing dates
func (series *ReturnSeries) Valid() error {
	if len(series.Dates) != len(series.Returns) {
		return ErrLengthMismatch
	}
	for ii := 1; ii < len(series.Dates); ii++ {
		if !series.Dates[ii].After(series.Dates[ii-1]) {
			return ErrUnorderedDates
		}
	}
	return nil
}

// Tail returns a copy of the series truncated to at most n of the most
// recent observations
func (series *ReturnSeries) Tail(n int) *ReturnSeries {
	if n >= series.Len() {
		return series
	}
	startIdx := series.Len() - n
	return &ReturnSeries{
		Ticker:  series.Ticker,
		Dates:   series.Dates[startIdx:],
		Returns: series.Returns[startIdx:],
	}
}

// Through returns a copy of the series truncated to the observations
// dated at or before asOf
func (series *ReturnSeries) Through(asOf time.Time) *ReturnSeries {
	n := series.Len()
	for n > 0 && series.Dates[n-1].After(asOf) {
		n--
	}
	if n == series.Len() {
		return series
	}
	return &ReturnSeries{
		Ticker:  series.Ticker,
		Dates:   series.Dates[:n],
		Returns: series.Returns[:n],
	}
}

// SeriesFromPrices converts a daily closing price series into a return
// series. Prices that are NaN, non-positive, or that land on a date equal
// to or before the previous accepted date are skipped; returns are
// computed between consecutive accepted prices.
func SeriesFromPrices(ticker string, dates []time.Time, prices []float64, kind ReturnKind) (*ReturnSeries, error) {
	if len(dates) != len(prices) {
		return nil, ErrLengthMismatch
	}

	series := &ReturnSeries{
		Ticker:  ticker,
		Dates:   make([]time.Time, 0, len(dates)),
		Returns: make([]float64, 0, len(dates)),
	}

	var lastDate time.Time
	lastPrice := math.NaN()
	for ii := range dates {
		p := prices[ii]
		if math.IsNaN(p) || p <= 0 {
			continue
		}
		if !lastDate.IsZero() && !dates[ii].After(lastDate) {
			continue
		}
		if !math.IsNaN(lastPrice) {
			var r float64
			switch kind {
			case LogReturns:
				r = math.Log(p / lastPrice)
			default:
				r = p/lastPrice - 1.0
			}
			series.Dates = append(series.Dates, dates[ii])
			series.Returns = append(series.Returns, r)
		}
		lastDate = dates[ii]
		lastPrice = p
	}

	return series, nil
}

// Intersect aligns two return series on their common trading days. Missing
// trading days are handled by intersection: a date contributes only if both
// series observed it. Returns ErrNoOverlap when the intersection is empty.
func Intersect(a, b *ReturnSeries) (*ReturnSeries, *ReturnSeries, error) {
	known := make(map[int64]int, len(a.Dates))
	for ii, dt := range a.Dates {
		known[dt.Unix()] = ii
	}

	alignedA := &ReturnSeries{Ticker: a.Ticker}
	alignedB := &ReturnSeries{Ticker: b.Ticker}
	for jj, dt := range b.Dates {
		if ii, ok := known[dt.Unix()]; ok {
			alignedA.Dates = append(alignedA.Dates, a.Dates[ii])
			alignedA.Returns = append(alignedA.Returns, a.Returns[ii])
			alignedB.Dates = append(alignedB.Dates, b.Dates[jj])
			alignedB.Returns = append(alignedB.Returns, b.Returns[jj])
		}
	}

	if alignedA.Len() == 0 {
		return nil, nil, ErrNoOverlap
	}

	return alignedA, alignedB, nil
}

// IntersectAll aligns every series on the dates common to all of them.
// The result preserves the input order. Returns ErrNoOverlap when no date
// is shared by every series.
func IntersectAll(series []*ReturnSeries) ([]*ReturnSeries, error) {
	if len(series) == 0 {
		return nil, ErrNoOverlap
	}

	counts := make(map[int64]int)
	for _, s := range series {
		for _, dt := range s.Dates {
			counts[dt.Unix()]++
		}
	}

	aligned := make([]*ReturnSeries, len(series))
	for ii, s := range series {
		out := &ReturnSeries{Ticker: s.Ticker}
		for jj, dt := range s.Dates {
			if counts[dt.Unix()] == len(series) {
				out.Dates = append(out.Dates, dt)
				out.Returns = append(out.Returns, s.Returns[jj])
			}
		}
		aligned[ii] = out
	}

	if aligned[0].Len() == 0 {
		return nil, ErrNoOverlap
	}

	return aligned, nil
}
