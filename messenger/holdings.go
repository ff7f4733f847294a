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

package messenger

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/foliolens/risk-engine/database"
)

// HoldingsChanged is published by the trading system whenever a
// portfolio's positions change (trade fill, deposit, rebalance)
type HoldingsChanged struct {
	AccountID   string `json:"account_id"`
	PortfolioID string `json:"portfolio_id,omitempty"`
	ChangedAt   string `json:"changed_at"`
}

// SubscribeHoldingsChanged invalidates cached risk results whenever
// holdings change. Messages carry either the portfolio id directly or an
// account id that maps to one or more portfolios in the database.
func SubscribeHoldingsChanged(ctx context.Context, invalidate func(portfolioID uuid.UUID)) error {
	subject := viper.GetString("nats.holdings_subject")
	if subject == "" {
		subject = "holdings.changed"
	}

	sub, err := natsConnection.Subscribe(subject, func(msg *nats.Msg) {
		var event HoldingsChanged
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Error().Err(err).Str("Subject", subject).Msg("could not decode holdings changed event")
			return
		}

		for _, portfolioID := range portfoliosForEvent(ctx, &event) {
			log.Info().Str("PortfolioID", portfolioID.String()).Str("AccountID", event.AccountID).Msg("holdings changed; invalidating cached risk results")
			invalidate(portfolioID)
		}
	})
	if err != nil {
		log.Error().Err(err).Str("Subject", subject).Msg("could not subscribe to holdings events")
		return err
	}

	subscriptions = append(subscriptions, sub)
	log.Info().Str("Subject", subject).Msg("subscribed to holdings events")
	return nil
}

func portfoliosForEvent(ctx context.Context, event *HoldingsChanged) []uuid.UUID {
	if event.PortfolioID != "" {
		portfolioID, err := uuid.Parse(event.PortfolioID)
		if err != nil {
			log.Error().Err(err).Str("PortfolioID", event.PortfolioID).Msg("holdings event carries malformed portfolio id")
			return nil
		}
		return []uuid.UUID{portfolioID}
	}

	rows, err := database.Pool().Query(ctx, "SELECT id FROM portfolios WHERE account_id=$1", event.AccountID)
	if err != nil {
		log.Error().Err(err).Str("AccountID", event.AccountID).Msg("could not look up portfolios for account")
		return nil
	}
	defer rows.Close()

	var portfolioIDs []uuid.UUID
	for rows.Next() {
		var portfolioID uuid.UUID
		if err := rows.Scan(&portfolioID); err != nil {
			log.Error().Err(err).Msg("could not scan portfolio id")
			continue
		}
		portfolioIDs = append(portfolioIDs, portfolioID)
	}
	return portfolioIDs
}
