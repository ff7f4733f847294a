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

package risk

import (
	"math"

	"github.com/foliolens/risk-engine/settings"
)

// Severity of a threshold violation
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Violation reports one metric that breached its (regime-adjusted)
// threshold. No metric is recomputed here; this is policy evaluation over
// already-computed values.
type Violation struct {
	Metric    string   `json:"metric"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
	Severity  Severity `json:"severity"`
}

// EvaluateThresholds compares portfolio metrics against the configured
// warning/critical pairs after scaling each threshold by the regime
// multiplier. A value exactly equal to a threshold counts as a violation
// at that severity (inclusive boundary). At most one violation per metric
// is emitted, at the highest severity reached.
func EvaluateThresholds(metrics *PortfolioMetrics, thresholds *settings.RiskThresholds, regimeMultiplier float64) []Violation {
	if thresholds == nil {
		return nil
	}
	if regimeMultiplier <= 0 {
		regimeMultiplier = 1.0
	}

	violations := make([]Violation, 0, 5)

	check := func(metric string, value float64, pair settings.Pair) {
		warn := pair.Warning * regimeMultiplier
		crit := pair.Critical * regimeMultiplier
		switch {
		case value >= crit:
			violations = append(violations, Violation{Metric: metric, Value: value, Threshold: crit, Severity: SeverityCritical})
		case value >= warn:
			violations = append(violations, Violation{Metric: metric, Value: value, Threshold: warn, Severity: SeverityWarning})
		}
	}

	check("volatility", metrics.Volatility, thresholds.Volatility)
	if metrics.MaxDrawdown != nil {
		check("max_drawdown", math.Abs(*metrics.MaxDrawdown), thresholds.Drawdown)
	}
	if metrics.Beta != nil {
		check("beta", math.Abs(*metrics.Beta), thresholds.Beta)
	}
	if metrics.VaR95 != nil {
		check("var_95", math.Abs(*metrics.VaR95), thresholds.VaR)
	}
	check("risk_score", metrics.RiskScore, thresholds.RiskScore)

	return violations
}
