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

package data

import (
	"context"
	"fmt"
	"time"
)

// Provider retrieves daily return series for a ticker. Implementations
// may be backed by a database or a remote quote API; either way a failed
// request is reported per ticker so portfolio level callers can isolate
// the failure.
type Provider interface {
	Name() string
	GetReturns(ctx context.Context, ticker string, begin, end time.Time) (*ReturnSeries, error)
}

// SeriesResult carries the outcome of a single ticker fetch. Aggregation
// steps skip failed tickers and continue rather than aborting the whole
// portfolio computation.
type SeriesResult struct {
	Ticker string
	Series *ReturnSeries
	Err    error
}

// Ok reports whether the fetch succeeded
func (res *SeriesResult) Ok() bool {
	return res.Err == nil
}

func providerErr(name, ticker string, err error) error {
	return fmt.Errorf("%w: provider %s ticker %s: %s", ErrProviderFailure, name, ticker, err)
}
