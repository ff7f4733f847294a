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

package rcache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Family identifies a metric family; each family carries its own TTL
type Family string

const (
	FamilyPortfolioRisk Family = "portfolio_risk"
	FamilyPositionRisk  Family = "position_risk"
	FamilyCorrelation   Family = "correlation"
	FamilyRollingBeta   Family = "rolling_beta"
	FamilyVolForecast   Family = "vol_forecast"
	FamilyOptimization  Family = "optimization"
)

// TTL defaults per metric family. Risk aggregates move with every price
// bar so they expire quickly; correlations and rolling betas drift
// slowly; optimization output only changes when holdings change, so it
// has no time-based expiry at all and is dropped solely by invalidation
// events.
const (
	TTLRisk        = 4 * time.Hour
	TTLCorrelation = 24 * time.Hour
	TTLRollingBeta = 24 * time.Hour
	TTLVolForecast = 4 * time.Hour
)

// TTL returns the expiry duration for the family; 0 means no time-based
// expiry
func (f Family) TTL() time.Duration {
	switch f {
	case FamilyPortfolioRisk, FamilyPositionRisk, FamilyVolForecast:
		return TTLRisk
	case FamilyCorrelation:
		return TTLCorrelation
	case FamilyRollingBeta:
		return TTLRollingBeta
	case FamilyOptimization:
		return 0
	}
	return TTLRisk
}

// Status is the lifecycle state of a cache entry
type Status string

const (
	StatusFresh       Status = "fresh"
	StatusStale       Status = "stale"
	StatusCalculating Status = "calculating"
	StatusError       Status = "error"
)

// Key identifies one cached computation. Portfolio-scoped families set
// PortfolioID; position-scoped families (position risk, volatility
// forecasts) leave it as uuid.Nil and set Ticker instead.
type Key struct {
	PortfolioID uuid.UUID
	Ticker      string
	Family      Family
	WindowDays  int
	Benchmark   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%d:%s", k.Family, k.PortfolioID, k.Ticker, k.WindowDays, k.Benchmark)
}

// Entry is the cached record for one key. Payload holds the serialized
// result of the last successful computation; it survives an error status
// so stale data can still be served when a recompute fails.
type Entry struct {
	Key          Key       `json:"key"`
	Status       Status    `json:"status"`
	CalculatedAt time.Time `json:"calculated_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Payload      []byte    `json:"payload"`
	LastError    string    `json:"last_error,omitempty"`
}

// Expired reports whether the entry is past its TTL; entries in
// families with no TTL never expire
func (entry *Entry) Expired(now time.Time) bool {
	if entry.ExpiresAt.IsZero() {
		return false
	}
	return now.After(entry.ExpiresAt)
}

// Servable reports whether the payload may be returned to a caller:
// fresh within TTL, or stale/error with a retained payload (serve-stale
// fallback)
func (entry *Entry) Servable(now time.Time) bool {
	if entry.Status == StatusFresh && !entry.Expired(now) {
		return true
	}
	return len(entry.Payload) > 0
}
