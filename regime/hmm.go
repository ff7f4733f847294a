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

package regime

import (
	"math"
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

const (
	// MinObservations needed before a 4-state model is estimable
	MinObservations = 60

	// FitWindowDays is the trailing window of benchmark returns used to
	// estimate the model; long enough to span multiple regimes
	FitWindowDays = 756

	maxIterations = 100
	tolerance     = 1e-6

	// varianceFloor keeps a state from collapsing onto a single point
	varianceFloor = 1e-10
)

// HMM is a 4-state Gaussian hidden Markov model over daily returns.
// After fitting, state indexes carry their semantic meaning: the State
// constants index directly into Means, Variances and Transition.
type HMM struct {
	Means         [NumStates]float64             `json:"means"`
	Variances     [NumStates]float64             `json:"variances"`
	Transition    [NumStates][NumStates]float64  `json:"transition"`
	Initial       Probabilities                  `json:"initial"`
	LogLikelihood float64                        `json:"log_likelihood"`
	Iterations    int                            `json:"iterations"`
}

// FitHMM estimates the model by Baum-Welch iterative re-estimation over
// a rolling historical window of benchmark returns. Emission parameters
// are seeded from return quantiles, the transition matrix from a sticky
// prior. Fitting is a pure function of the input slice: fixed inputs
// yield a fixed model, which keeps unit tests deterministic.
//
// Convergence failure is not fatal: the model at the final iteration is
// returned along with ErrNotConverged so callers can decide whether a
// best-effort classification is acceptable.
func FitHMM(rets []float64) (*HMM, error) {
	if len(rets) < MinObservations {
		return nil, ErrInsufficientData
	}

	model := seedModel(rets)

	prevLL := math.Inf(-1)
	var converged bool
	for iter := 0; iter < maxIterations; iter++ {
		ll := model.reestimate(rets)
		model.LogLikelihood = ll
		model.Iterations = iter + 1

		if iter > 0 && math.Abs(ll-prevLL) < tolerance*math.Abs(prevLL) {
			converged = true
			break
		}
		prevLL = ll
	}

	model.relabel()

	if !converged {
		log.Warn().Int("Iterations", model.Iterations).Msg("hmm re-estimation hit the iteration cap")
		return model, ErrNotConverged
	}

	return model, nil
}

// Classify returns the posterior regime distribution at the final
// observation; the regime with the highest posterior is the current one
func (model *HMM) Classify(rets []float64) (State, Probabilities) {
	alpha, _, _ := model.forward(rets)
	last := alpha[len(alpha)-1]
	last.Normalize()
	return last.ArgMax(), last
}

// seedModel initializes emissions from return quantiles and uses a
// sticky transition prior; regimes are persistent, so most mass starts on
// the diagonal
func seedModel(rets []float64) *HMM {
	sorted := make([]float64, len(rets))
	copy(sorted, rets)
	sort.Float64s(sorted)

	model := &HMM{}
	n := len(sorted)
	for ss := 0; ss < NumStates; ss++ {
		lo := ss * n / NumStates
		hi := (ss + 1) * n / NumStates
		bucket := sorted[lo:hi]
		model.Means[ss] = stat.Mean(bucket, nil)
		v := stat.Variance(bucket, nil)
		if v < varianceFloor || math.IsNaN(v) {
			v = varianceFloor
		}
		model.Variances[ss] = v
	}

	for ii := 0; ii < NumStates; ii++ {
		model.Initial[ii] = 1.0 / NumStates
		for jj := 0; jj < NumStates; jj++ {
			if ii == jj {
				model.Transition[ii][jj] = 0.85
			} else {
				model.Transition[ii][jj] = 0.05
			}
		}
	}

	return model
}

// forward runs the scaled forward recursion; returns per-step scaled
// alphas, the scale factors and the log-likelihood
func (model *HMM) forward(rets []float64) ([]Probabilities, []float64, float64) {
	T := len(rets)
	alpha := make([]Probabilities, T)
	scale := make([]float64, T)

	for ss := 0; ss < NumStates; ss++ {
		alpha[0][ss] = model.Initial[ss] * normalPDF(rets[0], model.Means[ss], model.Variances[ss])
		scale[0] += alpha[0][ss]
	}
	rescale(&alpha[0], &scale[0])

	for tt := 1; tt < T; tt++ {
		for jj := 0; jj < NumStates; jj++ {
			var sum float64
			for ii := 0; ii < NumStates; ii++ {
				sum += alpha[tt-1][ii] * model.Transition[ii][jj]
			}
			alpha[tt][jj] = sum * normalPDF(rets[tt], model.Means[jj], model.Variances[jj])
			scale[tt] += alpha[tt][jj]
		}
		rescale(&alpha[tt], &scale[tt])
	}

	var ll float64
	for _, c := range scale {
		ll += math.Log(c)
	}
	return alpha, scale, ll
}

// backward runs the scaled backward recursion using the forward scale
// factors
func (model *HMM) backward(rets []float64, scale []float64) []Probabilities {
	T := len(rets)
	beta := make([]Probabilities, T)
	for ss := 0; ss < NumStates; ss++ {
		beta[T-1][ss] = 1.0 / scale[T-1]
	}

	for tt := T - 2; tt >= 0; tt-- {
		for ii := 0; ii < NumStates; ii++ {
			var sum float64
			for jj := 0; jj < NumStates; jj++ {
				sum += model.Transition[ii][jj] * normalPDF(rets[tt+1], model.Means[jj], model.Variances[jj]) * beta[tt+1][jj]
			}
			beta[tt][ii] = sum / scale[tt]
		}
	}

	return beta
}

// reestimate performs one Baum-Welch expectation/maximization sweep and
// returns the log-likelihood under the pre-update parameters
func (model *HMM) reestimate(rets []float64) float64 {
	T := len(rets)
	alpha, scale, ll := model.forward(rets)
	beta := model.backward(rets, scale)

	// state occupation probabilities
	gamma := make([]Probabilities, T)
	for tt := 0; tt < T; tt++ {
		for ss := 0; ss < NumStates; ss++ {
			gamma[tt][ss] = alpha[tt][ss] * beta[tt][ss] * scale[tt]
		}
		gamma[tt].Normalize()
	}

	// expected transitions
	var xiSum [NumStates][NumStates]float64
	for tt := 0; tt < T-1; tt++ {
		var total float64
		var xi [NumStates][NumStates]float64
		for ii := 0; ii < NumStates; ii++ {
			for jj := 0; jj < NumStates; jj++ {
				xi[ii][jj] = alpha[tt][ii] * model.Transition[ii][jj] *
					normalPDF(rets[tt+1], model.Means[jj], model.Variances[jj]) * beta[tt+1][jj]
				total += xi[ii][jj]
			}
		}
		if total <= 0 {
			continue
		}
		for ii := 0; ii < NumStates; ii++ {
			for jj := 0; jj < NumStates; jj++ {
				xiSum[ii][jj] += xi[ii][jj] / total
			}
		}
	}

	// M-step
	model.Initial = gamma[0]

	for ii := 0; ii < NumStates; ii++ {
		var occupancy float64
		for tt := 0; tt < T-1; tt++ {
			occupancy += gamma[tt][ii]
		}
		if occupancy > 0 {
			for jj := 0; jj < NumStates; jj++ {
				model.Transition[ii][jj] = xiSum[ii][jj] / occupancy
			}
		}
	}

	for ss := 0; ss < NumStates; ss++ {
		var weight, mean float64
		for tt := 0; tt < T; tt++ {
			weight += gamma[tt][ss]
			mean += gamma[tt][ss] * rets[tt]
		}
		if weight <= 0 {
			continue
		}
		mean /= weight

		var variance float64
		for tt := 0; tt < T; tt++ {
			d := rets[tt] - mean
			variance += gamma[tt][ss] * d * d
		}
		variance /= weight
		if variance < varianceFloor {
			variance = varianceFloor
		}

		model.Means[ss] = mean
		model.Variances[ss] = variance
	}

	return ll
}

// relabel permutes states into semantic order: the highest-variance
// state is HighVolatility; of the remainder the highest mean is Bull and
// the lowest is Bear
func (model *HMM) relabel() {
	hv := 0
	for ss := 1; ss < NumStates; ss++ {
		if model.Variances[ss] > model.Variances[hv] {
			hv = ss
		}
	}

	rest := make([]int, 0, 3)
	for ss := 0; ss < NumStates; ss++ {
		if ss != hv {
			rest = append(rest, ss)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		return model.Means[rest[i]] > model.Means[rest[j]]
	})

	// perm[newState] = old index
	var perm [NumStates]int
	perm[Bull] = rest[0]
	perm[Normal] = rest[1]
	perm[Bear] = rest[2]
	perm[HighVolatility] = hv

	var means, variances [NumStates]float64
	var transition [NumStates][NumStates]float64
	var initial Probabilities
	for ii := 0; ii < NumStates; ii++ {
		means[ii] = model.Means[perm[ii]]
		variances[ii] = model.Variances[perm[ii]]
		initial[ii] = model.Initial[perm[ii]]
		for jj := 0; jj < NumStates; jj++ {
			transition[ii][jj] = model.Transition[perm[ii]][perm[jj]]
		}
	}

	model.Means = means
	model.Variances = variances
	model.Transition = transition
	model.Initial = initial
}

func rescale(p *Probabilities, scale *float64) {
	if *scale <= 0 || math.IsNaN(*scale) {
		*scale = math.SmallestNonzeroFloat64
	}
	for ii := range p {
		p[ii] /= *scale
	}
}

func normalPDF(x, mean, variance float64) float64 {
	d := x - mean
	return math.Exp(-d*d/(2*variance)) / math.Sqrt(2*math.Pi*variance)
}
