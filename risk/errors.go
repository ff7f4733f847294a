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

import "errors"

var (
	// ErrInsufficientData is returned when a window holds fewer than
	// MinObservations returns. Metrics are nil in that case, never zero:
	// callers must not conflate "no data" with "no risk".
	ErrInsufficientData = errors.New("insufficient data: fewer than minimum required observations")

	ErrNoPositions    = errors.New("portfolio has no usable positions")
	ErrBadWeights     = errors.New("position weights must be positive and sum to 1")
	ErrAllTickersFail = errors.New("no ticker data available for portfolio")
)
