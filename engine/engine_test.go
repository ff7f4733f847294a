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

package engine_test

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"

	"github.com/foliolens/risk-engine/data"
	"github.com/foliolens/risk-engine/database"
	"github.com/foliolens/risk-engine/engine"
	"github.com/foliolens/risk-engine/pgxmockhelper"
	"github.com/foliolens/risk-engine/rcache"
	"github.com/foliolens/risk-engine/regime"
)

// waveProvider serves a deterministic sine-wave return series for any
// ticker. The phase derives from the ticker so distinct tickers are
// correlated but not perfectly.
type waveProvider struct{}

func (provider *waveProvider) Name() string {
	return "wave"
}

func (provider *waveProvider) GetReturns(_ context.Context, ticker string, begin, end time.Time) (*data.ReturnSeries, error) {
	var phase float64
	for _, ch := range ticker {
		phase += float64(ch)
	}

	series := &data.ReturnSeries{Ticker: ticker}
	for curr := begin; !curr.After(end); curr = curr.AddDate(0, 0, 1) {
		if curr.Weekday() == time.Saturday || curr.Weekday() == time.Sunday {
			continue
		}
		day := time.Date(curr.Year(), curr.Month(), curr.Day(), 0, 0, 0, 0, time.UTC)
		series.Dates = append(series.Dates, day)
		series.Returns = append(series.Returns, 0.01*math.Sin(0.7*float64(len(series.Returns))+phase))
	}
	return series, nil
}

var _ = Describe("Engine", func() {
	var (
		ctx        context.Context
		cache      *rcache.Cache
		riskEngine *engine.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		cache, err = rcache.New(1, nil)
		Expect(err).To(BeNil())
		riskEngine = engine.New(data.NewManager(&waveProvider{}), cache)
	})

	AfterEach(func() {
		cache.Close()
	})

	Describe("When computing position risk", func() {
		It("reports beta against every configured benchmark", func() {
			metrics, err := riskEngine.PositionRisk(ctx, uuid.New(), "AAPL", 252, "", false)
			Expect(err).To(BeNil())

			Expect(metrics.Beta).To(HaveKey("SPY"))
			Expect(metrics.Beta).To(HaveKey("QQQ"))
			Expect(metrics.Beta).To(HaveKey("IWM"))
			Expect(metrics.Beta["QQQ"]).ToNot(BeNil())
		})

		It("keys the cache by the requested primary benchmark", func() {
			portfolioID := uuid.New()
			_, err := riskEngine.PositionRisk(ctx, portfolioID, "AAPL", 252, "QQQ", false)
			Expect(err).To(BeNil())

			entry, err := cache.Entry(rcache.Key{
				PortfolioID: portfolioID,
				Ticker:      "AAPL",
				Family:      rcache.FamilyPositionRisk,
				WindowDays:  252,
				Benchmark:   "QQQ",
			})
			Expect(err).To(BeNil())
			Expect(entry.Status).To(Equal(rcache.StatusFresh))
		})
	})

	Describe("When computing correlations", func() {
		var db pgxmock.PgxConnIface

		BeforeEach(func() {
			var err error
			db, err = pgxmock.NewConn()
			Expect(err).To(BeNil())
			database.SetPool(db)
		})

		It("honors the requested trailing window", func() {
			pgxmockhelper.MockHoldingsQuery(db, "testdata/holdings.csv")

			analysis, err := riskEngine.CorrelationFor(ctx, uuid.New(), 63, false)
			Expect(err).To(BeNil())
			Expect(analysis.WindowDays).To(Equal(63))
		})

		It("caches each window separately", func() {
			portfolioID := uuid.New()
			pgxmockhelper.MockHoldingsQuery(db, "testdata/holdings.csv")
			pgxmockhelper.MockHoldingsQuery(db, "testdata/holdings.csv")

			_, err := riskEngine.CorrelationFor(ctx, portfolioID, 63, false)
			Expect(err).To(BeNil())
			_, err = riskEngine.CorrelationFor(ctx, portfolioID, 126, false)
			Expect(err).To(BeNil())

			for _, window := range []int{63, 126} {
				entry, err := cache.Entry(rcache.Key{
					PortfolioID: portfolioID,
					Family:      rcache.FamilyCorrelation,
					WindowDays:  window,
				})
				Expect(err).To(BeNil())
				Expect(entry.Status).To(Equal(rcache.StatusFresh))
			}
		})
	})

	Describe("When the scheduler sweeps stale entries", func() {
		It("recomputes an invalidated rolling beta in the background", func() {
			portfolioID := uuid.New()
			_, err := riskEngine.RollingBetaFor(ctx, portfolioID, "AAPL", 63, false)
			Expect(err).To(BeNil())

			riskEngine.Invalidate(portfolioID)
			riskEngine.RecomputeStale(ctx)

			key := rcache.Key{
				PortfolioID: portfolioID,
				Ticker:      "AAPL",
				Family:      rcache.FamilyRollingBeta,
				WindowDays:  63,
				Benchmark:   "SPY",
			}
			Eventually(func() rcache.Status {
				entry, err := cache.Entry(key)
				if err != nil {
					return rcache.StatusError
				}
				return entry.Status
			}).Should(Equal(rcache.StatusFresh))
		})
	})

	Describe("When classifying the market regime", func() {
		It("classifies at a historical as-of date", func() {
			asOf := time.Now().AddDate(0, 0, -150)

			historical, err := riskEngine.MarketRegime(ctx, asOf)
			Expect(err).To(BeNil())
			Expect(historical.AsOf.After(asOf)).To(BeFalse())

			current, err := riskEngine.MarketRegime(ctx, time.Time{})
			Expect(err).To(BeNil())
			Expect(current.AsOf.After(historical.AsOf)).To(BeTrue())
		})

		It("rejects an as-of date older than the fit window", func() {
			_, err := riskEngine.MarketRegime(ctx, time.Now().AddDate(-20, 0, 0))
			Expect(err).To(MatchError(regime.ErrInsufficientData))
		})
	})
})
