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

package data_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/foliolens/risk-engine/data"
)

type stubProvider struct {
	name   string
	series map[string]*data.ReturnSeries
	err    error
	calls  int
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) GetReturns(_ context.Context, ticker string, _, _ time.Time) (*data.ReturnSeries, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if series, ok := p.series[ticker]; ok {
		return series, nil
	}
	return nil, data.ErrNotFound
}

func stubSeries(ticker string, n int) *data.ReturnSeries {
	start := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	rets := make([]float64, n)
	for ii := range rets {
		rets[ii] = 0.001 * float64(ii%5)
	}
	return &data.ReturnSeries{
		Ticker:  ticker,
		Dates:   tradingDates(start, n),
		Returns: rets,
	}
}

var _ = Describe("Manager", func() {
	var (
		ctx        context.Context
		begin, end time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		begin = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
		end = time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC)
	})

	Describe("When fetching returns for one ticker", func() {
		Context("with a healthy primary provider", func() {
			It("does not consult the fallback", func() {
				primary := &stubProvider{name: "primary", series: map[string]*data.ReturnSeries{"VFINX": stubSeries("VFINX", 10)}}
				fallback := &stubProvider{name: "fallback"}
				manager := data.NewManager(primary, fallback)

				series, err := manager.GetReturns(ctx, "vfinx", begin, end)
				Expect(err).To(BeNil())
				Expect(series.Ticker).To(Equal("VFINX"))
				Expect(fallback.calls).To(Equal(0))
			})
		})

		Context("with a failing primary provider", func() {
			It("falls back to the next provider", func() {
				primary := &stubProvider{name: "primary", err: errors.New("connection refused")}
				fallback := &stubProvider{name: "fallback", series: map[string]*data.ReturnSeries{"VFINX": stubSeries("VFINX", 10)}}
				manager := data.NewManager(primary, fallback)

				series, err := manager.GetReturns(ctx, "VFINX", begin, end)
				Expect(err).To(BeNil())
				Expect(series.Len()).To(Equal(10))
				Expect(primary.calls).To(Equal(1))
			})

			It("reports every provider down, carrying the last failure", func() {
				primary := &stubProvider{name: "primary", err: errors.New("connection refused")}
				fallback := &stubProvider{name: "fallback"}
				manager := data.NewManager(primary, fallback)

				_, err := manager.GetReturns(ctx, "VFINX", begin, end)
				Expect(err).ToNot(BeNil())
				Expect(errors.Is(err, data.ErrAllProvidersDown)).To(BeTrue())
				Expect(err.Error()).To(ContainSubstring("connection refused"))
			})
		})

		Context("with bad arguments", func() {
			It("rejects an inverted time range", func() {
				manager := data.NewManager(&stubProvider{name: "primary"})
				_, err := manager.GetReturns(ctx, "VFINX", end, begin)
				Expect(err).To(MatchError(data.ErrInvalidTimeRange))
			})

			It("rejects a manager with no providers", func() {
				manager := data.NewManager()
				_, err := manager.GetReturns(ctx, "VFINX", begin, end)
				Expect(err).To(MatchError(data.ErrNoProviders))
			})
		})
	})

	Describe("When fetching multiple tickers", func() {
		It("returns one result per ticker with per-ticker errors", func() {
			provider := &stubProvider{name: "primary", series: map[string]*data.ReturnSeries{
				"VFINX": stubSeries("VFINX", 10),
				"PRIDX": stubSeries("PRIDX", 10),
			}}
			manager := data.NewManager(provider)

			results := manager.GetMultipleReturns(ctx, []string{"VFINX", "PRIDX", "BOGUS"}, begin, end)
			Expect(results).To(HaveLen(3))
			Expect(results["VFINX"].Ok()).To(BeTrue())
			Expect(results["PRIDX"].Ok()).To(BeTrue())
			Expect(results["BOGUS"].Ok()).To(BeFalse())
			Expect(errors.Is(results["BOGUS"].Err, data.ErrAllProvidersDown)).To(BeTrue())
		})
	})
})
