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

package correlation

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/foliolens/risk-engine/data"
)

const (
	// MinOverlap is the minimum number of shared trading days required
	// before a pairwise correlation is considered meaningful
	MinOverlap = 20

	// HighCorrelationThreshold marks a pair as offering little
	// diversification benefit
	HighCorrelationThreshold = 0.7
)

var (
	ErrTooFewTickers = errors.New("fewer than 2 tickers with overlapping dates")
)

// Matrix is a symmetric pairwise Pearson correlation matrix. Entries are
// NaN where the two series share fewer than MinOverlap trading days; the
// diagonal is exactly 1. Excluded lists tickers that had too little data
// to participate in clustering; they still appear in the matrix with NaN
// rows.
type Matrix struct {
	Tickers  []string    `json:"tickers"`
	Values   [][]float64 `json:"values"`
	Excluded []string    `json:"excluded"`
}

// NewMatrix computes pairwise correlations over pairwise-intersected
// return series. Each pair is aligned on its own common dates so a ticker
// with a short history degrades only its own correlations.
func NewMatrix(series []*data.ReturnSeries) *Matrix {
	n := len(series)
	m := &Matrix{
		Tickers: make([]string, n),
		Values:  make([][]float64, n),
	}

	for ii, s := range series {
		m.Tickers[ii] = s.Ticker
		m.Values[ii] = make([]float64, n)
		for jj := range m.Values[ii] {
			m.Values[ii][jj] = math.NaN()
		}
		m.Values[ii][ii] = 1.0
	}

	for ii := 0; ii < n; ii++ {
		for jj := ii + 1; jj < n; jj++ {
			a, b, err := data.Intersect(series[ii], series[jj])
			if err != nil || a.Len() < MinOverlap {
				continue
			}
			rho := stat.Correlation(a.Returns, b.Returns, nil)
			// estimation noise can push the coefficient epsilon past 1
			rho = math.Max(-1, math.Min(1, rho))
			m.Values[ii][jj] = rho
			m.Values[jj][ii] = rho
		}
	}

	for ii, s := range series {
		if s.Len() < MinOverlap {
			m.Excluded = append(m.Excluded, m.Tickers[ii])
		}
	}

	return m
}

// Get returns the correlation between two tickers; NaN when either ticker
// is unknown or the pair had insufficient overlap
func (m *Matrix) Get(a, b string) float64 {
	ai, bi := -1, -1
	for ii, t := range m.Tickers {
		if t == a {
			ai = ii
		}
		if t == b {
			bi = ii
		}
	}
	if ai == -1 || bi == -1 {
		return math.NaN()
	}
	return m.Values[ai][bi]
}

// AveragePairwise returns the mean of the absolute off-diagonal
// correlations, ignoring NaN entries. Returns NaN when no valid pair
// exists.
func (m *Matrix) AveragePairwise() float64 {
	var sum float64
	var cnt int
	for ii := range m.Values {
		for jj := ii + 1; jj < len(m.Values); jj++ {
			if !math.IsNaN(m.Values[ii][jj]) {
				sum += math.Abs(m.Values[ii][jj])
				cnt++
			}
		}
	}
	if cnt == 0 {
		return math.NaN()
	}
	return sum / float64(cnt)
}

// HighCorrelationPairs counts ticker pairs whose absolute correlation
// exceeds HighCorrelationThreshold; a standalone concentration warning
// independent of the composite diversification score
func (m *Matrix) HighCorrelationPairs() int {
	var cnt int
	for ii := range m.Values {
		for jj := ii + 1; jj < len(m.Values); jj++ {
			if !math.IsNaN(m.Values[ii][jj]) && math.Abs(m.Values[ii][jj]) > HighCorrelationThreshold {
				cnt++
			}
		}
	}
	return cnt
}

// clusterable returns the indexes of tickers eligible for clustering
func (m *Matrix) clusterable() []int {
	excluded := make(map[string]bool, len(m.Excluded))
	for _, t := range m.Excluded {
		excluded[t] = true
	}
	idx := make([]int, 0, len(m.Tickers))
	for ii, t := range m.Tickers {
		if !excluded[t] {
			idx = append(idx, ii)
		}
	}
	return idx
}
