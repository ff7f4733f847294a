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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/foliolens/risk-engine/risk"
)

var _ = Describe("Rolling beta", func() {
	Describe("When the asset is a scaled copy of the benchmark", func() {
		It("reports a constant beta equal to the scale", func() {
			asset := seededSeries("LEVERED", 200, 0.02)
			bench := seededSeries("SPY", 200, 0.01)

			series, err := risk.RollingBeta(asset, bench, 63)
			Expect(err).To(BeNil())
			Expect(series.WindowDays).To(Equal(63))
			Expect(series.Points).To(HaveLen(200 - 63 + 1))
			for _, point := range series.Points {
				Expect(point.Beta).To(BeNumerically("~", 2.0, 1e-9))
			}
		})

		It("stamps each point with the window's last date", func() {
			asset := seededSeries("LEVERED", 100, 0.02)
			bench := seededSeries("SPY", 100, 0.01)

			series, err := risk.RollingBeta(asset, bench, 63)
			Expect(err).To(BeNil())
			Expect(series.Points[0].Date).To(Equal(asset.Dates[62]))
			last := series.Points[len(series.Points)-1]
			Expect(last.Date).To(Equal(asset.Dates[99]))
		})
	})

	Describe("When the history is shorter than one window", func() {
		It("returns ErrInsufficientData", func() {
			asset := seededSeries("NEWIPO", 30, 0.01)
			bench := seededSeries("SPY", 30, 0.01)

			_, err := risk.RollingBeta(asset, bench, 63)
			Expect(err).To(MatchError(risk.ErrInsufficientData))
		})
	})

	Describe("When the window is below the statistical floor", func() {
		It("widens the window to the minimum observation count", func() {
			asset := seededSeries("AAA", 100, 0.01)
			bench := seededSeries("SPY", 100, 0.01)

			series, err := risk.RollingBeta(asset, bench, 5)
			Expect(err).To(BeNil())
			Expect(series.WindowDays).To(Equal(risk.MinObservations))
		})
	})
})
