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

	"gonum.org/v1/gonum/stat"

	"github.com/foliolens/risk-engine/data"
)

// rule classifier tuning; computed over the trailing ruleWindow days
const (
	ruleWindow        = 21   // one trading month
	highVolAnnualized = 0.25 // 25% annualized vol
	bullReturn        = 0.03 // +3% over the window
	bearReturn        = -0.03
)

// Detector owns a fitted HMM plus the rule-based classifier and blends
// the two into a single regime call
type Detector struct {
	Model *HMM
}

// NewDetector fits the HMM to the benchmark return series. A model that
// hit the iteration cap is still usable for classification; only a
// series too short to fit at all is an error.
func NewDetector(series *data.ReturnSeries) (*Detector, error) {
	model, err := FitHMM(series.Returns)
	if model == nil {
		return nil, err
	}
	return &Detector{Model: model}, nil
}

// Classify blends the HMM posterior with the rule-based classifier.
// When the two agree the reported confidence is the higher of the two;
// when they disagree the HMM state wins but confidence drops to the
// lower of the two, flagging the call as less trustworthy.
func (detector *Detector) Classify(series *data.ReturnSeries) (*Classification, error) {
	if series.Len() < MinObservations {
		return nil, ErrInsufficientData
	}

	hmmState, probs := detector.Model.Classify(series.Returns)
	hmmConfidence := probs[hmmState]

	ruleState, ruleConfidence := ruleClassify(series.Returns)

	c := &Classification{
		AsOf:          series.Dates[series.Len()-1],
		State:         hmmState,
		Probabilities: probs,
		HMMState:      hmmState,
		RuleState:     ruleState,
		Agreement:     hmmState == ruleState,
	}

	if c.Agreement {
		c.Confidence = math.Max(hmmConfidence, ruleConfidence)
	} else {
		c.Confidence = math.Min(hmmConfidence, ruleConfidence)
	}

	return c, nil
}

// ruleClassify applies fixed volatility and return thresholds over the
// trailing window. Confidence grows with the margin by which the winning
// signal clears its threshold, bounded to [0.5, 0.95].
func ruleClassify(rets []float64) (State, float64) {
	window := rets
	if len(window) > ruleWindow {
		window = window[len(window)-ruleWindow:]
	}

	vol := stat.StdDev(window, nil) * math.Sqrt(252)

	cum := 1.0
	for _, r := range window {
		cum *= 1.0 + r
	}
	cum -= 1.0

	var state State
	var margin float64
	switch {
	case vol >= highVolAnnualized:
		state = HighVolatility
		margin = vol/highVolAnnualized - 1.0
	case cum >= bullReturn:
		state = Bull
		margin = cum/bullReturn - 1.0
	case cum <= bearReturn:
		state = Bear
		margin = cum/bearReturn - 1.0
	default:
		state = Normal
		// distance from both return triggers, scaled to [0,1]
		margin = 1.0 - math.Abs(cum)/bullReturn
	}

	confidence := 0.5 + 0.45*math.Min(1.0, math.Max(0.0, margin))
	return state, confidence
}
