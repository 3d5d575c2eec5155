// Package payment предоставляет клиент платёжного провайдера.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/Nikita777nike/RazMedBot/internal/model"
)

// Invoice — выставленный счёт на оплату заказа.
type Invoice struct {
	// Payload — уникальный идентификатор счёта; провайдер возвращает его
	// в подтверждении оплаты, по нему находится заказ.
	Payload string
	// URL — ссылка на страницу оплаты.
	URL string
	// PaymentRef — идентификатор платежа на стороне провайдера.
	PaymentRef string
	// Confirmed — счёт уже оплачен и вебхука от провайдера не будет.
	// Выставляется только в тестовом режиме.
	Confirmed bool
}

// Client инкапсулирует HTTP-взаимодействие с платёжным провайдером.
type Client struct {
	baseURL    string
	token      string
	testMode   bool
	httpClient *http.Client
}

// NewClient создаёт клиент провайдера. В тестовом режиме счета выставляются
// локально, без обращения к провайдеру.
func NewClient(baseURL, token string, testMode bool) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = 10 * time.Second

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		testMode:   testMode,
		httpClient: rc.StandardClient(),
	}
}

type createRequest struct {
	Amount      amount `json:"amount"`
	Description string `json:"description"`
	Capture     bool   `json:"capture"`
	Metadata    struct {
		Payload string `json:"payload"`
	} `json:"metadata"`
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type createResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation struct {
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
}

// CreateInvoice выставляет счёт на указанную сумму в рублях.
func (c *Client) CreateInvoice(ctx context.Context, orderDescription string, priceRub int64) (*Invoice, error) {
	payload := uuid.NewString()

	if c.testMode {
		return &Invoice{
			Payload:    payload,
			URL:        fmt.Sprintf("%s/test/pay/%s", c.baseURL, payload),
			PaymentRef: "test-" + payload,
			Confirmed:  true,
		}, nil
	}

	reqBody := createRequest{
		Amount: amount{
			Value:    strconv.FormatInt(priceRub, 10) + ".00",
			Currency: "RUB",
		},
		Description: orderDescription,
		Capture:     true,
	}
	reqBody.Metadata.Payload = payload

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal invoice request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	// Повторы retryablehttp не должны создавать дублирующие платежи.
	req.Header.Set("Idempotence-Key", payload)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.ExternalError{Op: "create invoice", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &model.ExternalError{
			Op:  "create invoice",
			Err: fmt.Errorf("unexpected status: %d", resp.StatusCode),
		}
	}

	var result createResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &model.ExternalError{Op: "create invoice", Err: fmt.Errorf("decode response: %w", err)}
	}

	return &Invoice{
		Payload:    payload,
		URL:        result.Confirmation.ConfirmationURL,
		PaymentRef: result.ID,
	}, nil
}
