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

import "math"

// EffectivePositions is the concentration-adjusted count of equivalent
// equal-weight positions, 1/Σw². A portfolio of n equal weights scores n;
// any concentration lowers it.
func EffectivePositions(weights []float64) float64 {
	var sumSq float64
	for _, w := range weights {
		sumSq += w * w
	}
	if sumSq == 0 {
		return 0
	}
	return 1.0 / sumSq
}

// DiversificationScore combines the effective position count with the
// average pairwise correlation into a 0-100 score:
//
//	score = 100 · (1 - 1/N_eff) · (1 - ρ̄)
//
// where ρ̄ is the mean absolute pairwise correlation. Holding position
// count fixed, the score falls monotonically as ρ̄ rises. A single
// position, or a basket of perfectly correlated positions, scores zero:
// neither provides any diversification benefit.
func DiversificationScore(weights []float64, avgCorrelation float64) float64 {
	nEff := EffectivePositions(weights)
	if nEff <= 1 {
		return 0
	}

	rho := avgCorrelation
	if math.IsNaN(rho) {
		// single asset or no valid pairs: nothing to diversify against
		rho = 1.0
	}
	rho = math.Max(0, math.Min(1, rho))

	return 100.0 * (1.0 - 1.0/nEff) * (1.0 - rho)
}
