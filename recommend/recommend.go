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

// Package recommend produces ranked, rule-based rebalancing suggestions
// from portfolio risk aggregates. Rules fire on concentration, weak
// diversification, correlation crowding and elevated realized risk; each
// suggestion carries the projected effect of its weight changes, computed
// with the same formulas the aggregator uses, without touching real
// state.
package recommend

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/foliolens/risk-engine/correlation"
	"github.com/foliolens/risk-engine/risk"
	"github.com/foliolens/risk-engine/settings"
)

// WeightChange proposes moving one position from its current weight to a
// suggested weight
type WeightChange struct {
	Ticker    string  `json:"ticker"`
	Current   float64 `json:"current"`
	Suggested float64 `json:"suggested"`
}

// Impact projects portfolio statistics under the suggested weights
type Impact struct {
	RiskScore       float64 `json:"risk_score"`
	Volatility      float64 `json:"volatility"`
	Diversification float64 `json:"diversification_score"`
}

// Recommendation is one triggered rule with its rationale, proposed
// weight adjustments and projected impact
type Recommendation struct {
	Rule      string         `json:"rule"`
	Severity  risk.Severity  `json:"severity"`
	Rationale string         `json:"rationale"`
	Changes   []WeightChange `json:"changes"`
	Projected *Impact        `json:"projected_impact,omitempty"`
}

// Analyze scans the aggregate for rule triggers and returns
// recommendations ranked by severity, then by projected risk-score
// improvement
func Analyze(metrics *risk.PortfolioMetrics, positions []*risk.Position, corr *correlation.Matrix, thresholds *settings.RiskThresholds, benchmark string) []*Recommendation {
	recs := make([]*Recommendation, 0, 4)

	if r := concentrationRule(metrics, positions, corr, thresholds, benchmark); r != nil {
		recs = append(recs, r)
	}
	if r := diversificationRule(metrics, positions, corr, thresholds, benchmark); r != nil {
		recs = append(recs, r)
	}
	if r := correlationCrowdingRule(metrics, positions, corr, thresholds, benchmark); r != nil {
		recs = append(recs, r)
	}
	if r := elevatedRiskRule(metrics, positions, corr, thresholds, benchmark); r != nil {
		recs = append(recs, r)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		si, sj := severityRank(recs[i].Severity), severityRank(recs[j].Severity)
		if si != sj {
			return si > sj
		}
		return improvement(metrics, recs[i]) > improvement(metrics, recs[j])
	})

	return recs
}

// concentrationRule fires when any single position exceeds the weight
// cap; the excess is trimmed to the cap and redistributed among the
// remaining positions in proportion to their weights
func concentrationRule(metrics *risk.PortfolioMetrics, positions []*risk.Position, corr *correlation.Matrix, thresholds *settings.RiskThresholds, benchmark string) *Recommendation {
	weightCap := thresholds.MaxPositionWeight
	if weightCap <= 0 || weightCap >= 1 {
		return nil
	}

	over := make([]*risk.Position, 0, 1)
	for _, p := range positions {
		if p.Weight > weightCap {
			over = append(over, p)
		}
	}
	if len(over) == 0 {
		return nil
	}

	proposed := trimToCap(positions, weightCap)
	severity := risk.SeverityWarning
	worst := over[0]
	for _, p := range over {
		if p.Weight > worst.Weight {
			worst = p
		}
	}
	if worst.Weight > weightCap*1.5 {
		severity = risk.SeverityCritical
	}

	return &Recommendation{
		Rule:     "concentration",
		Severity: severity,
		Rationale: fmt.Sprintf("%s is %.1f%% of the portfolio, above the %.0f%% position cap; trimming it reduces single-name risk",
			worst.Ticker, worst.Weight*100, weightCap*100),
		Changes:   diffWeights(positions, proposed),
		Projected: project(positions, proposed, corr, benchmark),
	}
}

// diversificationRule fires when the composite diversification score is
// below the configured floor; the suggestion moves weights halfway toward
// equal weight
func diversificationRule(metrics *risk.PortfolioMetrics, positions []*risk.Position, corr *correlation.Matrix, thresholds *settings.RiskThresholds, benchmark string) *Recommendation {
	if metrics.Diversification >= thresholds.MinDiversification || len(positions) < 2 {
		return nil
	}

	equal := 1.0 / float64(len(positions))
	proposed := make([]float64, len(positions))
	for ii, p := range positions {
		proposed[ii] = (p.Weight + equal) / 2.0
	}
	normalize(proposed)

	return &Recommendation{
		Rule:     "low_diversification",
		Severity: risk.SeverityWarning,
		Rationale: fmt.Sprintf("diversification score %.0f is below the %.0f floor; evening out position sizes raises the effective position count",
			metrics.Diversification, thresholds.MinDiversification),
		Changes:   diffWeights(positions, proposed),
		Projected: project(positions, proposed, corr, benchmark),
	}
}

// correlationCrowdingRule fires when too many pairs move in lockstep;
// the higher-weight member of the most correlated pair is trimmed
func correlationCrowdingRule(metrics *risk.PortfolioMetrics, positions []*risk.Position, corr *correlation.Matrix, thresholds *settings.RiskThresholds, benchmark string) *Recommendation {
	if metrics.HighCorrelationPairs <= thresholds.HighCorrelationLimit {
		return nil
	}

	// locate the most correlated pair among held tickers
	bestA, bestB := -1, -1
	bestRho := 0.0
	for ii := range positions {
		for jj := ii + 1; jj < len(positions); jj++ {
			rho := corr.Get(positions[ii].Ticker, positions[jj].Ticker)
			if !math.IsNaN(rho) && math.Abs(rho) > math.Abs(bestRho) {
				bestRho = rho
				bestA, bestB = ii, jj
			}
		}
	}
	if bestA == -1 {
		return nil
	}

	heavy := bestA
	if positions[bestB].Weight > positions[bestA].Weight {
		heavy = bestB
	}

	proposed := make([]float64, len(positions))
	for ii, p := range positions {
		proposed[ii] = p.Weight
	}
	trimmed := proposed[heavy] * 0.2
	proposed[heavy] -= trimmed
	for ii := range proposed {
		if ii != heavy {
			proposed[ii] += trimmed * positions[ii].Weight / (1.0 - positions[heavy].Weight)
		}
	}
	normalize(proposed)

	return &Recommendation{
		Rule:     "correlation_crowding",
		Severity: risk.SeverityWarning,
		Rationale: fmt.Sprintf("%d position pairs have |correlation| above %.1f (limit %d); %s and %s at %.2f are the most crowded",
			metrics.HighCorrelationPairs, correlation.HighCorrelationThreshold, thresholds.HighCorrelationLimit,
			positions[bestA].Ticker, positions[bestB].Ticker, bestRho),
		Changes:   diffWeights(positions, proposed),
		Projected: project(positions, proposed, corr, benchmark),
	}
}

// elevatedRiskRule fires when realized volatility or drawdown breaches
// its warning threshold; weight shifts from the most volatile position
// toward the least volatile
func elevatedRiskRule(metrics *risk.PortfolioMetrics, positions []*risk.Position, corr *correlation.Matrix, thresholds *settings.RiskThresholds, benchmark string) *Recommendation {
	volHigh := metrics.Volatility >= thresholds.Volatility.Warning
	ddHigh := metrics.MaxDrawdown != nil && math.Abs(*metrics.MaxDrawdown) >= thresholds.Drawdown.Warning
	if !volHigh && !ddHigh {
		return nil
	}

	hi, lo := -1, -1
	for ii, p := range positions {
		if p.Metrics.Volatility == nil {
			continue
		}
		if hi == -1 || *p.Metrics.Volatility > *positions[hi].Metrics.Volatility {
			hi = ii
		}
		if lo == -1 || *p.Metrics.Volatility < *positions[lo].Metrics.Volatility {
			lo = ii
		}
	}
	if hi == -1 || hi == lo {
		return nil
	}

	proposed := make([]float64, len(positions))
	for ii, p := range positions {
		proposed[ii] = p.Weight
	}
	shift := proposed[hi] * 0.25
	proposed[hi] -= shift
	proposed[lo] += shift

	reason := "realized volatility"
	if ddHigh && !volHigh {
		reason = "drawdown"
	} else if ddHigh && volHigh {
		reason = "volatility and drawdown"
	}

	return &Recommendation{
		Rule:     "elevated_risk",
		Severity: risk.SeverityWarning,
		Rationale: fmt.Sprintf("portfolio %s is above the warning threshold; shifting weight from %s to %s lowers the aggregate",
			reason, positions[hi].Ticker, positions[lo].Ticker),
		Changes:   diffWeights(positions, proposed),
		Projected: project(positions, proposed, corr, benchmark),
	}
}

// project recomputes the aggregate under proposed weights. Real holdings
// are never mutated; the positions are copied with the new weights.
func project(positions []*risk.Position, proposed []float64, corr *correlation.Matrix, benchmark string) *Impact {
	copied := make([]*risk.Position, len(positions))
	for ii, p := range positions {
		copied[ii] = &risk.Position{
			Ticker:  p.Ticker,
			Weight:  proposed[ii],
			Series:  p.Series,
			Metrics: p.Metrics,
		}
	}

	projected, err := risk.Aggregate(copied, corr, benchmark, nil)
	if err != nil {
		log.Warn().Err(err).Msg("could not project recommendation impact")
		return nil
	}

	return &Impact{
		RiskScore:       projected.RiskScore,
		Volatility:      projected.Volatility,
		Diversification: projected.Diversification,
	}
}

// trimToCap caps over-weight positions and redistributes the excess to
// the remainder in proportion to their current weights
func trimToCap(positions []*risk.Position, weightCap float64) []float64 {
	proposed := make([]float64, len(positions))
	var excess, underTotal float64
	for ii, p := range positions {
		if p.Weight > weightCap {
			proposed[ii] = weightCap
			excess += p.Weight - weightCap
		} else {
			proposed[ii] = p.Weight
			underTotal += p.Weight
		}
	}

	if underTotal > 0 {
		for ii, p := range positions {
			if p.Weight <= weightCap {
				proposed[ii] += excess * p.Weight / underTotal
			}
		}
	}
	normalize(proposed)
	return proposed
}

func diffWeights(positions []*risk.Position, proposed []float64) []WeightChange {
	changes := make([]WeightChange, 0, len(positions))
	for ii, p := range positions {
		if math.Abs(proposed[ii]-p.Weight) > 1e-9 {
			changes = append(changes, WeightChange{
				Ticker:    p.Ticker,
				Current:   p.Weight,
				Suggested: proposed[ii],
			})
		}
	}
	return changes
}

func normalize(w []float64) {
	var sum float64
	for _, v := range w {
		sum += v
	}
	if sum == 0 {
		return
	}
	for ii := range w {
		w[ii] /= sum
	}
}

func severityRank(s risk.Severity) int {
	if s == risk.SeverityCritical {
		return 2
	}
	return 1
}

func improvement(current *risk.PortfolioMetrics, rec *Recommendation) float64 {
	if rec.Projected == nil {
		return 0
	}
	return current.RiskScore - rec.Projected.RiskScore
}
