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
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foliolens/risk-engine/common"
	"github.com/foliolens/risk-engine/data"
	"github.com/foliolens/risk-engine/database"
	"github.com/foliolens/risk-engine/engine"
	"github.com/foliolens/risk-engine/handler"
	"github.com/foliolens/risk-engine/messenger"
	"github.com/foliolens/risk-engine/middleware"
	"github.com/foliolens/risk-engine/observability/opentelemetry"
	"github.com/foliolens/risk-engine/rcache"
	"github.com/foliolens/risk-engine/router"
)

func init() {
	viper.BindEnv("server.port", "PORT")
	serveCmd.Flags().IntP("port", "p", 3000, "Port to run application server on")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))

	serveCmd.Flags().Int("workers", 4, "Background recompute worker count")
	viper.BindPFlag("cache.workers", serveCmd.Flags().Lookup("workers"))

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the risk-engine API server",
	Long:  `Run HTTP server that exposes the portfolio risk analytics API`,
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		ctx := context.Background()

		shutdownTracing, err := opentelemetry.Setup()
		if err != nil {
			log.Warn().Err(err).Msg("could not initialize tracing")
		}

		if err := database.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}

		// optional redis payload tier; the cache runs in-process without it
		var rdb *redis.Client
		if redisURL := viper.GetString("redis.url"); redisURL != "" {
			opts, err := redis.ParseURL(redisURL)
			if err != nil {
				log.Fatal().Err(err).Msg("invalid redis url")
			}
			rdb = redis.NewClient(opts)
		}

		cache, err := rcache.New(viper.GetInt("cache.workers"), rdb)
		if err != nil {
			log.Fatal().Err(err).Msg("could not initialize cache")
		}
		defer cache.Close()

		riskEngine := engine.New(newDataManager(), cache)
		handler.SetEngine(riskEngine)

		// holdings change events invalidate cached results
		if viper.GetString("nats.server") != "" {
			if err := messenger.Initialize(); err != nil {
				log.Fatal().Err(err).Msg("could not connect to NATS")
			}
			defer messenger.Shutdown()
			if err := messenger.SubscribeHoldingsChanged(ctx, riskEngine.Invalidate); err != nil {
				log.Fatal().Err(err).Msg("could not subscribe to holdings events")
			}
		}

		app := fiber.New()
		app.Use(recover.New())
		app.Use(middleware.NewLogger())
		app.Use(cors.New(cors.Config{
			AllowHeaders: "*",
			AllowMethods: "GET,HEAD",
		}))
		router.SetupRoutes(app)

		// refresh stale cache entries in the background
		scheduler := gocron.NewScheduler(common.GetTimezone())
		scheduler.Every(5).Minutes().Do(func() {
			riskEngine.RecomputeStale(ctx)
		})
		scheduler.StartAsync()

		// shutdown cleanly on interrupt
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-quit
			log.Info().Str("Signal", sig.String()).Msg("shutting down")
			scheduler.Stop()
			if err := app.Shutdown(); err != nil {
				log.Error().Err(err).Msg("server shutdown failed")
			}
		}()

		if err := app.Listen(":" + viper.GetString("server.port")); err != nil {
			log.Fatal().Err(err).Msg("server exited with error")
		}

		if shutdownTracing != nil {
			if err := shutdownTracing(ctx); err != nil {
				log.Warn().Err(err).Msg("tracing shutdown failed")
			}
		}
	},
}

// newDataManager builds the provider chain: database first, Tiingo as
// the network fallback when a key is configured
func newDataManager() *data.Manager {
	manager := data.NewManager(data.NewPvDb())
	if key := viper.GetString("tiingo.key"); key != "" {
		manager.RegisterProvider(data.NewTiingo(key))
	}
	return manager
}
