// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package watcher

import (
	"github.com/luxfi/log"
	"go.uber.org/zap"
)

// ChannelConfig enables one alert channel.
type ChannelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerURL   string `yaml:"server_url"`
	ChannelID   string `yaml:"channel_id"`
	Credentials string `yaml:"credentials"`
}

// Channels configures alert fanout.
type Channels struct {
	Mattermost ChannelConfig `yaml:"mattermost"`
	Telegram   ChannelConfig `yaml:"telegram"`
}

// SetupNotifiers builds the notifiers for every enabled channel.
func SetupNotifiers(logger log.Logger, cfg Channels) []Notifier {
	var notifiers []Notifier
	if cfg.Mattermost.Enabled {
		logger.Info("mattermost alerting enabled", zap.String("channel", cfg.Mattermost.ChannelID))
		notifiers = append(notifiers, NewMattermostNotifier(
			cfg.Mattermost.ServerURL,
			cfg.Mattermost.ChannelID,
			cfg.Mattermost.Credentials,
		))
	} else {
		logger.Info("mattermost alerting disabled")
	}
	if cfg.Telegram.Enabled {
		logger.Info("telegram alerting enabled", zap.String("chat", cfg.Telegram.ChannelID))
		notifiers = append(notifiers, NewTelegramNotifier(
			cfg.Telegram.Credentials,
			cfg.Telegram.ChannelID,
		))
	} else {
		logger.Info("telegram alerting disabled")
	}
	return notifiers
}
