package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"hunt-server/internal/domain"
	"hunt-server/pkg/api"
	"hunt-server/pkg/logger"

	"github.com/sirupsen/logrus"
)

// Client отправляет события чат-боту POST-запросом с JSON телом
// {"event": "...", "data": {...}}.
type Client struct {
	url  string
	http *http.Client
	log  *logrus.Entry
}

// New создает клиента с раздельными таймаутами на соединение и весь запрос
func New(url string, connectTimeout, requestTimeout time.Duration) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		MaxIdleConns:    4,
		IdleConnTimeout: 30 * time.Second,
	}
	return &Client{
		url: url,
		http: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		},
		log: logger.For("webhook"),
	}
}

// Notify отправляет событие. Ошибка оборачивает domain.ErrNotification,
// вызывающая сторона только логирует ее.
func (c *Client) Notify(ctx context.Context, event string, data map[string]string) error {
	if data == nil {
		data = map[string]string{}
	}
	body, err := json.Marshal(api.WebhookEvent{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", domain.ErrNotification, event, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", domain.ErrNotification, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.WithField("event", event).Info("Sending webhook event")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send %s to %s: %w", domain.ErrNotification, event, c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s rejected with status %d", domain.ErrNotification, event, resp.StatusCode)
	}
	c.log.WithField("event", event).Debug("Webhook event delivered")
	return nil
}

// Close закрывает простаивающие соединения
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
