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
	"github.com/google/uuid"

	"github.com/foliolens/risk-engine/risk"
	"github.com/foliolens/risk-engine/settings"
)

func fp(v float64) *float64 {
	return &v
}

func violationFor(violations []risk.Violation, metric string) *risk.Violation {
	for ii := range violations {
		if violations[ii].Metric == metric {
			return &violations[ii]
		}
	}
	return nil
}

var _ = Describe("Threshold evaluation", func() {
	var thresholds *settings.RiskThresholds

	BeforeEach(func() {
		thresholds = settings.Default(uuid.New())
	})

	Describe("When metrics are within bounds", func() {
		It("reports no violations", func() {
			metrics := &risk.PortfolioMetrics{Volatility: 12, MaxDrawdown: fp(-5), VaR95: fp(-1), RiskScore: 30}
			Expect(risk.EvaluateThresholds(metrics, thresholds, 1.0)).To(BeEmpty())
		})
	})

	Describe("When a metric crosses the warning band", func() {
		It("emits a warning for elevated volatility", func() {
			metrics := &risk.PortfolioMetrics{Volatility: 28}
			violations := risk.EvaluateThresholds(metrics, thresholds, 1.0)

			v := violationFor(violations, "volatility")
			Expect(v).ToNot(BeNil())
			Expect(v.Severity).To(Equal(risk.SeverityWarning))
			Expect(v.Threshold).To(Equal(25.0))
		})

		It("treats a value exactly at the threshold as a violation", func() {
			metrics := &risk.PortfolioMetrics{Volatility: 25}
			violations := risk.EvaluateThresholds(metrics, thresholds, 1.0)
			Expect(violationFor(violations, "volatility")).ToNot(BeNil())
		})

		It("compares drawdown and VaR by magnitude", func() {
			metrics := &risk.PortfolioMetrics{MaxDrawdown: fp(-20), VaR95: fp(-3)}
			violations := risk.EvaluateThresholds(metrics, thresholds, 1.0)
			Expect(violationFor(violations, "max_drawdown")).ToNot(BeNil())
			Expect(violationFor(violations, "var_95")).ToNot(BeNil())
		})
	})

	Describe("When a metric crosses the critical band", func() {
		It("emits a single critical violation, not a warning too", func() {
			metrics := &risk.PortfolioMetrics{Volatility: 45}
			violations := risk.EvaluateThresholds(metrics, thresholds, 1.0)

			Expect(violations).To(HaveLen(1))
			Expect(violations[0].Severity).To(Equal(risk.SeverityCritical))
			Expect(violations[0].Threshold).To(Equal(40.0))
		})
	})

	Describe("When a regime multiplier applies", func() {
		It("raises the bar in a high volatility regime", func() {
			metrics := &risk.PortfolioMetrics{Volatility: 28}

			// 28 > 25 unadjusted, but 28 < 25*1.5 in a high vol regime
			violations := risk.EvaluateThresholds(metrics, thresholds, 1.5)
			Expect(violationFor(violations, "volatility")).To(BeNil())
		})

		It("lowers the bar in a bull regime", func() {
			metrics := &risk.PortfolioMetrics{Volatility: 22}

			// 22 < 25 unadjusted, but 22 >= 25*0.8 in a bull regime
			violations := risk.EvaluateThresholds(metrics, thresholds, 0.8)
			v := violationFor(violations, "volatility")
			Expect(v).ToNot(BeNil())
			Expect(v.Threshold).To(BeNumerically("~", 20.0, 1e-9))
		})
	})

	Describe("When a metric is unavailable", func() {
		It("skips checks for nil metrics instead of treating them as zero", func() {
			metrics := &risk.PortfolioMetrics{}
			violations := risk.EvaluateThresholds(metrics, thresholds, 1.0)
			Expect(violationFor(violations, "beta")).To(BeNil())
			Expect(violationFor(violations, "max_drawdown")).To(BeNil())
			Expect(violationFor(violations, "var_95")).To(BeNil())
		})
	})

	Describe("When no settings exist", func() {
		It("returns no violations", func() {
			metrics := &risk.PortfolioMetrics{Volatility: 99}
			Expect(risk.EvaluateThresholds(metrics, nil, 1.0)).To(BeNil())
		})
	})
})
