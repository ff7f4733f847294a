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
	"gonum.org/v1/gonum/mat"
)

const maxForecastHorizon = 90

// Forecast projects the current regime distribution h steps forward by
// raising the transition matrix to the h-th power. TransitionProbability
// is the chance of having left the current most-likely state by the
// target day.
func (detector *Detector) Forecast(current *Classification, horizon int) (*Forecast, error) {
	if horizon < 1 || horizon > maxForecastHorizon {
		return nil, ErrBadHorizon
	}

	trans := mat.NewDense(NumStates, NumStates, nil)
	for ii := 0; ii < NumStates; ii++ {
		for jj := 0; jj < NumStates; jj++ {
			trans.Set(ii, jj, detector.Model.Transition[ii][jj])
		}
	}

	power := mat.NewDense(NumStates, NumStates, nil)
	var powMat mat.Dense
	powMat.CloneFrom(trans)
	for step := 1; step < horizon; step++ {
		power.Mul(&powMat, trans)
		powMat.CloneFrom(power)
	}

	start := mat.NewDense(1, NumStates, nil)
	for ss := 0; ss < NumStates; ss++ {
		start.Set(0, ss, current.Probabilities[ss])
	}

	var projected mat.Dense
	projected.Mul(start, &powMat)

	var probs Probabilities
	for ss := 0; ss < NumStates; ss++ {
		probs[ss] = projected.At(0, ss)
	}
	probs.Normalize()

	stay := powMat.At(int(current.State), int(current.State))

	return &Forecast{
		HorizonDays:           horizon,
		PredictedState:        probs.ArgMax(),
		Probabilities:         probs,
		TransitionProbability: 1.0 - stay,
		Confidence:            probs[probs.ArgMax()] * current.Confidence,
	}, nil
}
