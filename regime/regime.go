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

// Package regime classifies and forecasts the prevailing market regime
// from daily benchmark returns. A 4-state Gaussian hidden Markov model
// provides the probabilistic view; a rule-based volatility/return
// classifier provides a sanity check; the ensemble blends the two.
package regime

import (
	"errors"
	"time"
)

// State is a market regime. The four states are distinguished by the
// mean and variance of the returns they emit.
type State int

const (
	Bull State = iota
	Bear
	Normal
	HighVolatility
)

// NumStates is the size of the hidden state space
const NumStates = 4

var (
	ErrInsufficientData = errors.New("insufficient data: fewer than minimum required observations")
	ErrBadHorizon       = errors.New("forecast horizon must be between 1 and 90 days")
	ErrNotConverged     = errors.New("baum-welch re-estimation did not converge")
)

func (s State) String() string {
	switch s {
	case Bull:
		return "bull"
	case Bear:
		return "bear"
	case Normal:
		return "normal"
	case HighVolatility:
		return "high_volatility"
	}
	return "unknown"
}

// ThresholdMultiplier scales portfolio risk thresholds for the regime.
// Calm markets tighten thresholds, stressed markets loosen them so that
// alerting tracks the environment instead of firing constantly in a
// drawdown.
func (s State) ThresholdMultiplier() float64 {
	switch s {
	case Bull:
		return 0.8
	case Bear:
		return 1.3
	case Normal:
		return 1.0
	case HighVolatility:
		return 1.5
	}
	return 1.0
}

// Probabilities is a distribution over the four regimes; entries are
// non-negative and sum to 1
type Probabilities [NumStates]float64

// Normalize rescales the distribution to sum to exactly 1
func (p *Probabilities) Normalize() {
	var sum float64
	for _, v := range p {
		sum += v
	}
	if sum <= 0 {
		for ii := range p {
			p[ii] = 1.0 / NumStates
		}
		return
	}
	for ii := range p {
		p[ii] /= sum
	}
}

// ArgMax returns the most probable state
func (p Probabilities) ArgMax() State {
	best := 0
	for ii := 1; ii < NumStates; ii++ {
		if p[ii] > p[best] {
			best = ii
		}
	}
	return State(best)
}

// Classification is the blended regime call for a single date
type Classification struct {
	AsOf          time.Time     `json:"as_of"`
	State         State         `json:"state"`
	Probabilities Probabilities `json:"probabilities"`
	Confidence    float64       `json:"confidence"`
	HMMState      State         `json:"hmm_state"`
	RuleState     State         `json:"rule_state"`
	Agreement     bool          `json:"agreement"`
}

// Forecast projects the regime distribution forward
type Forecast struct {
	HorizonDays           int           `json:"horizon_days"`
	PredictedState        State         `json:"predicted_state"`
	Probabilities         Probabilities `json:"probabilities"`
	TransitionProbability float64       `json:"transition_probability"`
	Confidence            float64       `json:"confidence"`
}
