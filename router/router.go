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

package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/foliolens/risk-engine/handler"
)

// SetupRoutes setup router api
func SetupRoutes(app *fiber.App) {
	api := app.Group("/v1")
	api.Get("/", handler.Ping)

	// Portfolio risk
	portfolio := api.Group("/portfolio")
	portfolio.Get("/:id/risk", handler.GetPortfolioRisk)
	portfolio.Get("/:id/correlations", handler.GetCorrelations)
	portfolio.Get("/:id/recommendations", handler.GetRecommendations)
	portfolio.Get("/:id/positions/:ticker/risk", handler.GetPositionRisk)
	portfolio.Get("/:id/positions/:ticker/beta", handler.GetRollingBeta)

	// Market-wide analytics
	api.Get("/forecast/volatility/:ticker", handler.GetVolatilityForecast)
	regime := api.Group("/regime")
	regime.Get("/", handler.GetMarketRegime)
	regime.Get("/forecast", handler.GetRegimeForecast)
}
