// Package notify отправляет пользовательские уведомления через внешний шлюз доставки.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Notifier доставляет сообщение пользователю. Доставка негарантированная:
// вызывающая сторона не должна откатывать бизнес-операцию из-за ошибки доставки.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Gateway — HTTP-клиент шлюза доставки уведомлений.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGateway создаёт клиент шлюза по указанному адресу.
func NewGateway(baseURL string, logger *zap.Logger) *Gateway {
	return &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

type message struct {
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
}

// Notify отправляет сообщение с экспоненциальными повторами.
func (g *Gateway) Notify(ctx context.Context, userID int64, text string) error {
	if g.baseURL == "" {
		g.logger.Debug("шлюз уведомлений не настроен, сообщение пропущено",
			zap.Int64("user_id", userID))
		return nil
	}

	body, err := json.Marshal(message{UserID: userID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/messages", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("gateway status: %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("gateway status: %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		g.logger.Warn("уведомление не доставлено",
			zap.Int64("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

// Noop — заглушка для тестов и окружений без шлюза.
type Noop struct{}

func (Noop) Notify(context.Context, int64, string) error { return nil }
