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
	"math"
	"sort"
)

const (
	minClusters = 2
	maxClusters = 5
)

// AssetCluster groups tickers whose returns move together. Clusters
// partition the clusterable ticker set: every ticker belongs to exactly
// one cluster.
type AssetCluster struct {
	ID              int      `json:"id"`
	Tickers         []string `json:"tickers"`
	MeanCorrelation float64  `json:"mean_correlation"`
}

// Clusters performs average-linkage hierarchical clustering using
// 1-|correlation| as the distance between tickers. The cluster count is
// chosen by the largest gap in merge distances, bounded to [2, 5].
// Returns ErrTooFewTickers when fewer than two tickers are clusterable.
func (m *Matrix) Clusters() ([]*AssetCluster, error) {
	idx := m.clusterable()
	if len(idx) < 2 {
		return nil, ErrTooFewTickers
	}

	// first pass records the merge heights so the elbow can pick k
	heights := m.linkageHeights(idx)
	k := elbowClusterCount(heights, len(idx))

	members := m.agglomerate(idx, k)

	clusters := make([]*AssetCluster, 0, len(members))
	for _, grp := range members {
		tickers := make([]string, 0, len(grp))
		for _, ii := range grp {
			tickers = append(tickers, m.Tickers[ii])
		}
		sort.Strings(tickers)
		clusters = append(clusters, &AssetCluster{
			Tickers:         tickers,
			MeanCorrelation: m.meanIntraCluster(grp),
		})
	}

	// stable ids: order clusters by their first ticker
	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].Tickers[0] < clusters[j].Tickers[0]
	})
	for ii, c := range clusters {
		c.ID = ii + 1
	}

	return clusters, nil
}

// distance between two tickers for clustering purposes. Pairs with no
// valid correlation are treated as maximally distant.
func (m *Matrix) distance(a, b int) float64 {
	rho := m.Values[a][b]
	if math.IsNaN(rho) {
		return 1.0
	}
	return 1.0 - math.Abs(rho)
}

// averageLinkage computes the mean pairwise distance between two groups
func (m *Matrix) averageLinkage(a, b []int) float64 {
	var sum float64
	for _, ii := range a {
		for _, jj := range b {
			sum += m.distance(ii, jj)
		}
	}
	return sum / float64(len(a)*len(b))
}

// agglomerate merges singleton clusters until k remain
func (m *Matrix) agglomerate(idx []int, k int) [][]int {
	groups := make([][]int, len(idx))
	for ii, v := range idx {
		groups[ii] = []int{v}
	}

	for len(groups) > k {
		bestA, bestB := 0, 1
		best := math.Inf(1)
		for aa := 0; aa < len(groups); aa++ {
			for bb := aa + 1; bb < len(groups); bb++ {
				if d := m.averageLinkage(groups[aa], groups[bb]); d < best {
					best = d
					bestA, bestB = aa, bb
				}
			}
		}
		groups[bestA] = append(groups[bestA], groups[bestB]...)
		groups = append(groups[:bestB], groups[bestB+1:]...)
	}

	return groups
}

// linkageHeights runs the full agglomeration and records the distance at
// which each merge happened
func (m *Matrix) linkageHeights(idx []int) []float64 {
	groups := make([][]int, len(idx))
	for ii, v := range idx {
		groups[ii] = []int{v}
	}

	heights := make([]float64, 0, len(idx)-1)
	for len(groups) > 1 {
		bestA, bestB := 0, 1
		best := math.Inf(1)
		for aa := 0; aa < len(groups); aa++ {
			for bb := aa + 1; bb < len(groups); bb++ {
				if d := m.averageLinkage(groups[aa], groups[bb]); d < best {
					best = d
					bestA, bestB = aa, bb
				}
			}
		}
		heights = append(heights, best)
		groups[bestA] = append(groups[bestA], groups[bestB]...)
		groups = append(groups[:bestB], groups[bestB+1:]...)
	}

	return heights
}

// elbowClusterCount picks the cluster count with the largest jump in merge
// distance, clipped to [minClusters, min(maxClusters, n)]
func elbowClusterCount(heights []float64, n int) int {
	hi := maxClusters
	if n < hi {
		hi = n
	}
	if n <= minClusters {
		return minClusters
	}

	bestK := minClusters
	bestGap := -1.0
	// a merge at index m leaves n-m-1 clusters; the gap before that merge
	// measures how unnatural the merge would be
	for mm := 1; mm < len(heights); mm++ {
		k := n - mm
		if k < minClusters || k > hi {
			continue
		}
		gap := heights[mm] - heights[mm-1]
		if gap > bestGap {
			bestGap = gap
			bestK = k
		}
	}

	return bestK
}

// meanIntraCluster averages the valid pairwise correlations inside one
// cluster; 1.0 for singletons
func (m *Matrix) meanIntraCluster(grp []int) float64 {
	if len(grp) < 2 {
		return 1.0
	}
	var sum float64
	var cnt int
	for aa := 0; aa < len(grp); aa++ {
		for bb := aa + 1; bb < len(grp); bb++ {
			rho := m.Values[grp[aa]][grp[bb]]
			if !math.IsNaN(rho) {
				sum += rho
				cnt++
			}
		}
	}
	if cnt == 0 {
		return math.NaN()
	}
	return sum / float64(cnt)
}
