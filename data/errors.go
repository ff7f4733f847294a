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

import "errors"

var (
	ErrNotFound         = errors.New("security not found")
	ErrInvalidTimeRange = errors.New("begin must be before end")
	ErrNoTradingDays    = errors.New("no trading days in requested range")
	ErrUnorderedDates   = errors.New("dates must be strictly increasing")
	ErrLengthMismatch   = errors.New("dates and values must have the same length")
	ErrNoOverlap        = errors.New("series have no overlapping dates")
	ErrAllProvidersDown = errors.New("no price provider could satisfy the request")
	ErrProviderFailure  = errors.New("price provider request failed")
	ErrNoProviders      = errors.New("no price providers registered")
)
