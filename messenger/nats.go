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
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var natsConnection *nats.Conn
var subscriptions []*nats.Subscription

// Connect to the nats server
func Initialize() error {
	var err error
	url := viper.GetString("nats.server")
	opts := []nats.Option{}
	if credentialsFile := viper.GetString("nats.credentials"); credentialsFile != "" {
		opts = append(opts, nats.UserCredentials(credentialsFile))
	}
	log.Info().Str("NATSServer", url).Msg("connecting to NATS server")
	if natsConnection, err = nats.Connect(url, opts...); err != nil {
		log.Error().Err(err).Msg("could not connect to NATS server")
		return err
	}

	return nil
}

// Shutdown drains subscriptions and closes the NATS connection
func Shutdown() {
	for _, sub := range subscriptions {
		if err := sub.Drain(); err != nil {
			log.Warn().Err(err).Msg("could not drain NATS subscription")
		}
	}
	if natsConnection != nil {
		natsConnection.Close()
	}
}
