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

// Package engine ties the analytics packages together behind a single
// facade. Handlers and the background scheduler only talk to the Engine;
// it owns cache keys, data retrieval, and the order in which the pieces
// compose (metrics before aggregation, regime before threshold checks).
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/foliolens/risk-engine/correlation"
	"github.com/foliolens/risk-engine/data"
	"github.com/foliolens/risk-engine/forecast"
	"github.com/foliolens/risk-engine/rcache"
	"github.com/foliolens/risk-engine/recommend"
	"github.com/foliolens/risk-engine/regime"
	"github.com/foliolens/risk-engine/risk"
	"github.com/foliolens/risk-engine/settings"
)

// DefaultWindowDays is the trailing trading-day window used when a
// request does not specify one
const DefaultWindowDays = 252

// Engine is the facade over the analytics packages
type Engine struct {
	data  *data.Manager
	cache *rcache.Cache

	market marketState
}

func New(dataManager *data.Manager, cache *rcache.Cache) *Engine {
	return &Engine{
		data:  dataManager,
		cache: cache,
	}
}

// Benchmark returns the configured primary market benchmark ticker
func (engine *Engine) Benchmark() string {
	if bench := viper.GetString("risk.benchmark"); bench != "" {
		return bench
	}
	return "SPY"
}

// Benchmarks returns every benchmark beta is computed against. The
// primary benchmark is always a member so the risk decomposition has a
// regression target.
func (engine *Engine) Benchmarks() []string {
	list := viper.GetStringSlice("risk.benchmarks")
	if len(list) == 0 {
		list = []string{"SPY", "QQQ", "IWM"}
	}
	primary := engine.Benchmark()
	for _, bench := range list {
		if bench == primary {
			return list
		}
	}
	return append([]string{primary}, list...)
}

// PortfolioRisk bundles the aggregate metrics with the regime-adjusted
// threshold evaluation
type PortfolioRisk struct {
	PortfolioID      uuid.UUID               `json:"portfolio_id"`
	Metrics          *risk.PortfolioMetrics  `json:"metrics"`
	Regime           *regime.Classification  `json:"regime"`
	RegimeMultiplier float64                 `json:"regime_multiplier"`
	Violations       []risk.Violation        `json:"violations"`
	CalculatedAt     time.Time               `json:"calculated_at"`
}

// CorrelationAnalysis is the correlation matrix plus its derived views
type CorrelationAnalysis struct {
	PortfolioID        uuid.UUID                    `json:"portfolio_id"`
	WindowDays         int                          `json:"window_days"`
	Matrix             *correlation.Matrix          `json:"matrix"`
	Clusters           []*correlation.AssetCluster  `json:"clusters,omitempty"`
	AverageCorrelation float64                      `json:"average_correlation"`
	EffectivePositions float64                      `json:"effective_positions"`
	Diversification    float64                      `json:"diversification_score"`
}

// PositionRisk computes (or serves cached) risk metrics for one holding.
// benchmark selects the primary benchmark for the risk decomposition;
// beta is reported against every configured benchmark regardless. An
// empty benchmark falls back to the configured primary.
func (engine *Engine) PositionRisk(ctx context.Context, portfolioID uuid.UUID, ticker string, windowDays int, benchmark string, force bool) (*risk.PositionMetrics, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if benchmark == "" {
		benchmark = engine.Benchmark()
	}
	key := rcache.Key{
		PortfolioID: portfolioID,
		Ticker:      ticker,
		Family:      rcache.FamilyPositionRisk,
		WindowDays:  windowDays,
		Benchmark:   benchmark,
	}

	var metrics risk.PositionMetrics
	err := engine.cache.GetOrCompute(ctx, key, force, func(ctx context.Context) (interface{}, error) {
		return engine.computePositionRisk(ctx, ticker, windowDays, benchmark)
	}, &metrics)
	if err != nil {
		return nil, err
	}
	return &metrics, nil
}

func (engine *Engine) computePositionRisk(ctx context.Context, ticker string, windowDays int, primary string) (*risk.PositionMetrics, error) {
	begin, end := lookback(windowDays)
	benchList := engine.Benchmarks()
	if !contains(benchList, primary) {
		benchList = append([]string{primary}, benchList...)
	}

	results := engine.data.GetMultipleReturns(ctx, append([]string{ticker}, benchList...), begin, end)
	assetResult := results[ticker]
	if !assetResult.Ok() {
		return nil, assetResult.Err
	}

	benchmarks := benchmarkSeries(results, benchList)
	return risk.CalculateMetrics(assetResult.Series.Tail(windowDays), benchmarks, primary, engine.data.RiskFreeRate())
}

// benchmarkSeries collects the benchmark fetches that succeeded; a
// missing benchmark drops its beta, never the whole computation
func benchmarkSeries(results map[string]*data.SeriesResult, benchList []string) map[string]*data.ReturnSeries {
	benchmarks := make(map[string]*data.ReturnSeries, len(benchList))
	for _, bench := range benchList {
		if result := results[bench]; result.Ok() {
			benchmarks[bench] = result.Series
		} else {
			log.Warn().Err(result.Err).Str("Benchmark", bench).Msg("benchmark unavailable; beta omitted")
		}
	}
	return benchmarks
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// PortfolioRiskFor computes the full portfolio risk picture: per-position
// metrics, the correlation-aware aggregate, the current market regime,
// and threshold violations evaluated with the regime multiplier applied.
func (engine *Engine) PortfolioRiskFor(ctx context.Context, portfolioID uuid.UUID, force bool) (*PortfolioRisk, error) {
	key := rcache.Key{
		PortfolioID: portfolioID,
		Family:      rcache.FamilyPortfolioRisk,
		WindowDays:  DefaultWindowDays,
		Benchmark:   engine.Benchmark(),
	}

	var result PortfolioRisk
	err := engine.cache.GetOrCompute(ctx, key, force, func(ctx context.Context) (interface{}, error) {
		return engine.computePortfolioRisk(ctx, portfolioID)
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (engine *Engine) computePortfolioRisk(ctx context.Context, portfolioID uuid.UUID) (*PortfolioRisk, error) {
	positions, excluded, err := engine.buildPositions(ctx, portfolioID, DefaultWindowDays)
	if err != nil {
		return nil, err
	}

	corr := engine.matrixFor(positions)
	metrics, err := risk.Aggregate(positions, corr, engine.Benchmark(), excluded)
	if err != nil {
		return nil, err
	}

	classification, err := engine.MarketRegime(ctx, time.Time{})
	multiplier := 1.0
	if err != nil {
		// regime is an adjustment, not a prerequisite; evaluate
		// thresholds unadjusted when the market classifier is down
		log.Warn().Err(err).Msg("regime classification unavailable; thresholds evaluated without multiplier")
		classification = nil
	} else {
		multiplier = classification.State.ThresholdMultiplier()
	}

	thresholds, err := settings.Load(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	return &PortfolioRisk{
		PortfolioID:      portfolioID,
		Metrics:          metrics,
		Regime:           classification,
		RegimeMultiplier: multiplier,
		Violations:       risk.EvaluateThresholds(metrics, thresholds, multiplier),
		CalculatedAt:     time.Now(),
	}, nil
}

// VolatilityForecast fits (or serves a cached) GARCH model for the ticker
// and projects volatility over the horizon
func (engine *Engine) VolatilityForecast(ctx context.Context, ticker string, horizon int, force bool) (*forecast.VolatilityForecast, error) {
	key := rcache.Key{
		Ticker:     ticker,
		Family:     rcache.FamilyVolForecast,
		WindowDays: horizon,
	}

	var result forecast.VolatilityForecast
	err := engine.cache.GetOrCompute(ctx, key, force, func(ctx context.Context) (interface{}, error) {
		begin, end := lookback(forecast.FitWindowDays)
		series, err := engine.data.GetReturns(ctx, ticker, begin, end)
		if err != nil {
			return nil, err
		}
		model, err := forecast.FitGarch(series)
		if err != nil {
			return nil, err
		}
		return model.Forecast(horizon)
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CorrelationFor computes (or serves cached) the pairwise correlation
// matrix with clusters and diversification measures for the portfolio
// over the requested trailing window
func (engine *Engine) CorrelationFor(ctx context.Context, portfolioID uuid.UUID, windowDays int, force bool) (*CorrelationAnalysis, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	key := rcache.Key{
		PortfolioID: portfolioID,
		Family:      rcache.FamilyCorrelation,
		WindowDays:  windowDays,
	}

	var result CorrelationAnalysis
	err := engine.cache.GetOrCompute(ctx, key, force, func(ctx context.Context) (interface{}, error) {
		return engine.computeCorrelation(ctx, portfolioID, windowDays)
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (engine *Engine) computeCorrelation(ctx context.Context, portfolioID uuid.UUID, windowDays int) (*CorrelationAnalysis, error) {
	positions, _, err := engine.buildPositions(ctx, portfolioID, windowDays)
	if err != nil {
		return nil, err
	}

	corr := engine.matrixFor(positions)
	weights := make([]float64, len(positions))
	for idx, position := range positions {
		weights[idx] = position.Weight
	}

	analysis := &CorrelationAnalysis{
		PortfolioID:        portfolioID,
		WindowDays:         windowDays,
		Matrix:             corr,
		AverageCorrelation: corr.AveragePairwise(),
		EffectivePositions: correlation.EffectivePositions(weights),
	}
	analysis.Diversification = correlation.DiversificationScore(weights, analysis.AverageCorrelation)

	clusters, err := corr.Clusters()
	if err != nil {
		log.Info().Err(err).Str("PortfolioID", portfolioID.String()).Msg("not enough assets to cluster")
	} else {
		analysis.Clusters = clusters
	}

	return analysis, nil
}

// RollingBetaFor computes (or serves cached) the rolling beta series for
// one holding against the configured benchmark
func (engine *Engine) RollingBetaFor(ctx context.Context, portfolioID uuid.UUID, ticker string, window int, force bool) (*risk.RollingBetaSeries, error) {
	if window <= 0 {
		window = 63
	}
	key := rcache.Key{
		PortfolioID: portfolioID,
		Ticker:      ticker,
		Family:      rcache.FamilyRollingBeta,
		WindowDays:  window,
		Benchmark:   engine.Benchmark(),
	}

	var result risk.RollingBetaSeries
	err := engine.cache.GetOrCompute(ctx, key, force, func(ctx context.Context) (interface{}, error) {
		return engine.computeRollingBeta(ctx, ticker, window)
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (engine *Engine) computeRollingBeta(ctx context.Context, ticker string, window int) (*risk.RollingBetaSeries, error) {
	begin, end := lookback(DefaultWindowDays + window)
	bench := engine.Benchmark()
	results := engine.data.GetMultipleReturns(ctx, []string{ticker, bench}, begin, end)
	if !results[ticker].Ok() {
		return nil, results[ticker].Err
	}
	if !results[bench].Ok() {
		return nil, results[bench].Err
	}
	return risk.RollingBeta(results[ticker].Series, results[bench].Series, window)
}

// Recommendations evaluates the optimization rules against the current
// aggregate. Cached without a TTL; only a holdings change invalidates it.
func (engine *Engine) Recommendations(ctx context.Context, portfolioID uuid.UUID, force bool) ([]*recommend.Recommendation, error) {
	key := rcache.Key{
		PortfolioID: portfolioID,
		Family:      rcache.FamilyOptimization,
		WindowDays:  DefaultWindowDays,
		Benchmark:   engine.Benchmark(),
	}

	var result []*recommend.Recommendation
	err := engine.cache.GetOrCompute(ctx, key, force, func(ctx context.Context) (interface{}, error) {
		positions, excluded, err := engine.buildPositions(ctx, portfolioID, DefaultWindowDays)
		if err != nil {
			return nil, err
		}
		corr := engine.matrixFor(positions)
		metrics, err := risk.Aggregate(positions, corr, engine.Benchmark(), excluded)
		if err != nil {
			return nil, err
		}
		thresholds, err := settings.Load(ctx, portfolioID)
		if err != nil {
			return nil, err
		}
		return recommend.Analyze(metrics, positions, corr, thresholds, engine.Benchmark()), nil
	}, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Invalidate marks all of a portfolio's cached results stale
func (engine *Engine) Invalidate(portfolioID uuid.UUID) {
	n := engine.cache.Invalidate(portfolioID)
	log.Info().Str("PortfolioID", portfolioID.String()).Int("Entries", n).Msg("invalidated cached results")
}

// RecomputeStale refreshes stale cache entries in the background. Wired
// to the job scheduler.
func (engine *Engine) RecomputeStale(ctx context.Context) {
	n := engine.cache.RecomputeStale(ctx, engine.computeFor)
	if n > 0 {
		log.Info().Int("Entries", n).Msg("scheduled stale cache entries for recompute")
	}
}

// computeFor maps a cache key back to its compute function so background
// recomputes rebuild exactly what the original request built
func (engine *Engine) computeFor(key rcache.Key) rcache.ComputeFunc {
	switch key.Family {
	case rcache.FamilyPositionRisk:
		return func(ctx context.Context) (interface{}, error) {
			return engine.computePositionRisk(ctx, key.Ticker, key.WindowDays, key.Benchmark)
		}
	case rcache.FamilyPortfolioRisk:
		return func(ctx context.Context) (interface{}, error) {
			return engine.computePortfolioRisk(ctx, key.PortfolioID)
		}
	case rcache.FamilyCorrelation:
		return func(ctx context.Context) (interface{}, error) {
			return engine.computeCorrelation(ctx, key.PortfolioID, key.WindowDays)
		}
	case rcache.FamilyRollingBeta:
		return func(ctx context.Context) (interface{}, error) {
			return engine.computeRollingBeta(ctx, key.Ticker, key.WindowDays)
		}
	case rcache.FamilyOptimization:
		// recommendations only change on holdings changes; the request
		// path recomputes them on demand
		return nil
	default:
		// volatility forecasts are fit on demand per ticker and horizon
		return nil
	}
}

// matrixFor builds the correlation matrix over the positions' aligned
// return series
func (engine *Engine) matrixFor(positions []*risk.Position) *correlation.Matrix {
	series := make([]*data.ReturnSeries, len(positions))
	for idx, position := range positions {
		series[idx] = position.Series
	}
	return correlation.NewMatrix(series)
}

// lookback converts a trading-day window into a calendar date range,
// padded so weekends, holidays and recent listing gaps still leave enough
// observations
func lookback(windowDays int) (time.Time, time.Time) {
	end := time.Now()
	calendarDays := windowDays*7/5 + 30
	return end.AddDate(0, 0, -calendarDays), end
}
