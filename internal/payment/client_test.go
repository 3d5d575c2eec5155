package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Nikita777nike/RazMedBot/internal/model"
)

func TestCreateInvoiceTestMode(t *testing.T) {
	c := NewClient("http://provider.local", "token", true)

	inv, err := c.CreateInvoice(context.Background(), "Биохимия крови", 290)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if inv.Payload == "" {
		t.Error("пустой payload счёта")
	}
	if !strings.HasPrefix(inv.PaymentRef, "test-") {
		t.Errorf("PaymentRef = %q, ожидался тестовый префикс", inv.PaymentRef)
	}
	if !strings.Contains(inv.URL, inv.Payload) {
		t.Errorf("URL %q не содержит payload", inv.URL)
	}
	if !inv.Confirmed {
		t.Error("тестовый счёт должен быть подтверждён сразу")
	}
}

func TestCreateInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/payments" {
			t.Errorf("неожиданный путь: %s", r.URL.Path)
		}
		if r.Header.Get("Idempotence-Key") == "" {
			t.Error("отсутствует Idempotence-Key")
		}

		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Amount.Value != "196.00" || req.Amount.Currency != "RUB" {
			t.Errorf("сумма = %s %s, ожидалось 196.00 RUB", req.Amount.Value, req.Amount.Currency)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(createResponse{
			ID:     "pay-123",
			Status: "pending",
			Confirmation: struct {
				ConfirmationURL string `json:"confirmation_url"`
			}{ConfirmationURL: "https://pay.example/confirm"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token", false)

	inv, err := c.CreateInvoice(context.Background(), "Биохимия крови", 196)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if inv.PaymentRef != "pay-123" {
		t.Errorf("PaymentRef = %q, ожидался pay-123", inv.PaymentRef)
	}
	if inv.URL != "https://pay.example/confirm" {
		t.Errorf("URL = %q", inv.URL)
	}
}

func TestCreateInvoiceProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token", false)

	_, err := c.CreateInvoice(context.Background(), "УЗИ", 290)
	var extErr *model.ExternalError
	if !errors.As(err, &extErr) {
		t.Fatalf("ожидалась ExternalError, получено: %v", err)
	}
}
