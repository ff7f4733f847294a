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

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/foliolens/risk-engine/data"
	"github.com/foliolens/risk-engine/engine"
	"github.com/foliolens/risk-engine/risk"
)

// GetPortfolioRisk returns the portfolio risk aggregate with regime
// context and threshold violations. ?refresh=true bypasses the cache.
func GetPortfolioRisk(c *fiber.Ctx) error {
	id, err := portfolioID(c)
	if err != nil {
		return err
	}

	result, err := riskEngine.PortfolioRiskFor(c.Context(), id, refreshQuery(c))
	if err != nil {
		return riskError(c, err)
	}
	return c.JSON(result)
}

// GetPositionRisk returns risk metrics for a single holding.
// ?benchmark= selects the primary benchmark for the risk decomposition.
func GetPositionRisk(c *fiber.Ctx) error {
	id, err := portfolioID(c)
	if err != nil {
		return err
	}

	window := c.QueryInt("window", engine.DefaultWindowDays)
	result, err := riskEngine.PositionRisk(c.Context(), id, c.Params("ticker"), window, c.Query("benchmark"), refreshQuery(c))
	if err != nil {
		return riskError(c, err)
	}
	return c.JSON(result)
}

// GetCorrelations returns the pairwise correlation matrix, asset
// clusters and diversification measures for a portfolio. ?window sets
// the trailing trading-day window.
func GetCorrelations(c *fiber.Ctx) error {
	id, err := portfolioID(c)
	if err != nil {
		return err
	}

	window := c.QueryInt("window", engine.DefaultWindowDays)
	result, err := riskEngine.CorrelationFor(c.Context(), id, window, refreshQuery(c))
	if err != nil {
		return riskError(c, err)
	}
	return c.JSON(result)
}

// GetRollingBeta returns a holding's beta over a trailing window through
// time
func GetRollingBeta(c *fiber.Ctx) error {
	id, err := portfolioID(c)
	if err != nil {
		return err
	}

	window := c.QueryInt("window", 63)
	result, err := riskEngine.RollingBetaFor(c.Context(), id, c.Params("ticker"), window, refreshQuery(c))
	if err != nil {
		return riskError(c, err)
	}
	return c.JSON(result)
}

// GetRecommendations returns rule-based optimization suggestions ranked
// by severity
func GetRecommendations(c *fiber.Ctx) error {
	id, err := portfolioID(c)
	if err != nil {
		return err
	}

	result, err := riskEngine.Recommendations(c.Context(), id, refreshQuery(c))
	if err != nil {
		return riskError(c, err)
	}
	return c.JSON(result)
}

// riskError maps analytics errors to HTTP status codes
func riskError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, engine.ErrNoHoldings), errors.Is(err, data.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, risk.ErrInsufficientData), errors.Is(err, risk.ErrAllTickersFail):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, data.ErrAllProvidersDown):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		log.Error().Stack().Err(err).Str("Path", c.Path()).Msg("request failed")
		return fiber.ErrInternalServerError
	}
}
