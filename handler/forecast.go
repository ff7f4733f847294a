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

package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/foliolens/risk-engine/forecast"
	"github.com/foliolens/risk-engine/regime"
)

// GetVolatilityForecast returns a GARCH volatility projection for the
// ticker. ?horizon sets the number of trading days (default 30, max 90).
func GetVolatilityForecast(c *fiber.Ctx) error {
	horizon := c.QueryInt("horizon", 30)
	result, err := riskEngine.VolatilityForecast(c.Context(), c.Params("ticker"), horizon, refreshQuery(c))
	if err != nil {
		if errors.Is(err, forecast.ErrBadHorizon) || errors.Is(err, forecast.ErrInsufficientData) {
			return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
		}
		return riskError(c, err)
	}
	return c.JSON(result)
}

// GetMarketRegime returns the market regime classification. ?as_of=
// (YYYY-MM-DD) classifies at a historical date instead of the latest
// observation.
func GetMarketRegime(c *fiber.Ctx) error {
	var asOf time.Time
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "as_of must be formatted YYYY-MM-DD")
		}
		asOf = parsed
	}

	result, err := riskEngine.MarketRegime(c.Context(), asOf)
	if err != nil {
		if errors.Is(err, regime.ErrInsufficientData) {
			return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
		}
		return riskError(c, err)
	}
	return c.JSON(result)
}

// GetRegimeForecast projects the regime distribution forward ?horizon
// trading days (default 10)
func GetRegimeForecast(c *fiber.Ctx) error {
	horizon := c.QueryInt("horizon", 10)
	result, err := riskEngine.RegimeForecast(c.Context(), horizon)
	if err != nil {
		if errors.Is(err, regime.ErrBadHorizon) {
			return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
		}
		return riskError(c, err)
	}
	return c.JSON(result)
}
