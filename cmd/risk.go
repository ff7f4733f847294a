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

package cmd

import (
	"context"
	"os"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/foliolens/risk-engine/common"
	"github.com/foliolens/risk-engine/database"
	"github.com/foliolens/risk-engine/engine"
	"github.com/foliolens/risk-engine/rcache"
)

func init() {
	rootCmd.AddCommand(riskCmd)
}

var riskCmd = &cobra.Command{
	Use:   "risk [portfolio-id]",
	Args:  cobra.ExactArgs(1),
	Short: "Compute portfolio risk once and print it as JSON",
	Long:  `Compute the full risk aggregate for a portfolio and print it to stdout. Useful for debugging and ad-hoc analysis without running the API server.`,
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		ctx := context.Background()

		portfolioID, err := uuid.Parse(args[0])
		if err != nil {
			log.Fatal().Err(err).Str("Arg", args[0]).Msg("portfolio id must be a UUID")
		}

		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		cache, err := rcache.New(1, nil)
		if err != nil {
			log.Fatal().Err(err).Msg("could not initialize cache")
		}
		defer cache.Close()

		riskEngine := engine.New(newDataManager(), cache)
		result, err := riskEngine.PortfolioRiskFor(ctx, portfolioID, true)
		if err != nil {
			log.Fatal().Err(err).Msg("could not compute portfolio risk")
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			log.Fatal().Err(err).Msg("could not encode result")
		}
	},
}
