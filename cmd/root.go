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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foliolens/risk-engine/common"
)

func init() {
	// Database
	viper.BindEnv("database.url", "DATABASE_URL")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database-url"))

	// Redis
	viper.BindEnv("redis.url", "REDIS_URL")
	rootCmd.PersistentFlags().String("redis-url", "", "Redis connection string (optional payload cache)")
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis-url"))

	// NATS
	viper.BindEnv("nats.server", "NATS_SERVER")
	rootCmd.PersistentFlags().String("nats-server", "", "NATS server url for holdings change events")
	viper.BindPFlag("nats.server", rootCmd.PersistentFlags().Lookup("nats-server"))

	// Market data
	viper.BindEnv("tiingo.key", "TIINGO_KEY")
	rootCmd.PersistentFlags().String("tiingo-key", "", "Tiingo API key (fallback price source)")
	viper.BindPFlag("tiingo.key", rootCmd.PersistentFlags().Lookup("tiingo-key"))

	rootCmd.PersistentFlags().String("benchmark", "SPY", "Benchmark ticker for beta and regime detection")
	viper.BindPFlag("risk.benchmark", rootCmd.PersistentFlags().Lookup("benchmark"))

	// Logging configuration
	viper.BindEnv("log.level", "RISK_LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-level", "warning", "Logging level")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.BindEnv("log.report_caller", "RISK_LOG_REPORT_CALLER")
	rootCmd.PersistentFlags().Bool("log-report-caller", false, "Log function name that called log statement")
	viper.BindPFlag("log.report_caller", rootCmd.PersistentFlags().Lookup("log-report-caller"))

	viper.BindEnv("log.output", "RISK_LOG_OUTPUT")
	rootCmd.PersistentFlags().String("log-output", "stdout", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	viper.BindPFlag("log.output", rootCmd.PersistentFlags().Lookup("log-output"))

	rootCmd.PersistentFlags().Bool("log-pretty", false, "Print logs in human readable format")
	viper.BindPFlag("log.pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

var rootCmd = &cobra.Command{
	Use:     "risk-engine",
	Version: common.Version,
	Short:   "FolioLens risk analytics engine",
	Long:    `Portfolio risk analytics: position and portfolio risk metrics, GARCH volatility forecasts, market regime detection, correlation analysis and rule-based optimization recommendations.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
