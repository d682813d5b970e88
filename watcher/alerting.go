// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Notifier delivers alerts to one external channel.
type Notifier interface {
	Name() string
	Alert(ctx context.Context, message string) error
	Ping(ctx context.Context) error
}

const alertTimeout = 10 * time.Second

// MattermostNotifier posts alerts to a Mattermost channel.
type MattermostNotifier struct {
	ServerURL   string
	ChannelID   string
	Credentials string

	AlertsSent uint64

	client *http.Client
}

var _ Notifier = (*MattermostNotifier)(nil)

// NewMattermostNotifier builds the notifier with its own HTTP client.
func NewMattermostNotifier(serverURL, channelID, credentials string) *MattermostNotifier {
	return &MattermostNotifier{
		ServerURL:   serverURL,
		ChannelID:   channelID,
		Credentials: credentials,
		client:      &http.Client{Timeout: alertTimeout},
	}
}

func (m *MattermostNotifier) Name() string { return "mattermost" }

func (m *MattermostNotifier) Alert(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{
		"channel_id": m.ChannelID,
		"message":    message,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.ServerURL+"/api/v4/posts", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.Credentials)

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mattermost alert failed with status %d", resp.StatusCode)
	}
	m.AlertsSent++
	return nil
}

func (m *MattermostNotifier) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.ServerURL+"/api/v4/system/ping", nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mattermost ping failed with status %d", resp.StatusCode)
	}
	return nil
}

// TelegramNotifier sends alerts through a Telegram bot.
type TelegramNotifier struct {
	BotToken string
	ChatID   string

	AlertsSent uint64

	client *http.Client
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier builds the notifier with its own HTTP client.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		client:   &http.Client{Timeout: alertTimeout},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Alert(ctx context.Context, message string) error {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.BotToken)
	form := url.Values{}
	form.Set("chat_id", t.ChatID)
	form.Set("text", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram alert failed with status %d", resp.StatusCode)
	}
	t.AlertsSent++
	return nil
}

func (t *TelegramNotifier) Ping(ctx context.Context) error {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/getMe", t.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telegram ping failed with status %d", resp.StatusCode)
	}
	return nil
}
