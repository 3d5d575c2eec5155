package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/Nikita777nike/RazMedBot/internal/middleware"
	"github.com/Nikita777nike/RazMedBot/internal/model"
	"github.com/Nikita777nike/RazMedBot/internal/pricing"
	"github.com/Nikita777nike/RazMedBot/internal/repository"
	"github.com/Nikita777nike/RazMedBot/internal/service"
	"github.com/Nikita777nike/RazMedBot/internal/session"
)

// stubService возвращает заготовленные ответы и ошибки.
type stubService struct {
	err     error
	order   *model.Order
	quote   *pricing.Quote
	created *service.CreatedOrder
	orders  []model.Order
}

func (s *stubService) Start(context.Context, int64, string, int64) error { return s.err }
func (s *stubService) AcceptAgreement(context.Context, int64) error      { return s.err }

func (s *stubService) GetReferralInfo(context.Context, int64) (*service.ReferralInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.ReferralInfo{Link: "https://t.me/RazMedBot?start=ref_1"}, nil
}

func (s *stubService) StartIntake(context.Context, int64) (*session.Intake, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &session.Intake{Step: session.StepService}, nil
}

func (s *stubService) ChooseService(context.Context, int64, string) (*pricing.Quote, error) {
	return s.quote, s.err
}

func (s *stubService) ApplyPromo(context.Context, int64, string) (*pricing.Quote, error) {
	return s.quote, s.err
}

func (s *stubService) SkipPromo(int64) error { return s.err }

func (s *stubService) ConfirmIntake(context.Context, int64) (*service.CreatedOrder, error) {
	return s.created, s.err
}

func (s *stubService) CancelIntake(int64) {}

func (s *stubService) SubmitDemographics(context.Context, int64, int, string) error { return s.err }

func (s *stubService) AddDocument(context.Context, int64, model.Document) (int, error) {
	return 1, s.err
}

func (s *stubService) SubmitQuestion(context.Context, int64, string) (*model.Order, error) {
	return s.order, s.err
}

func (s *stubService) ConfirmPayment(context.Context, string, string, int64) (*model.Order, error) {
	return s.order, s.err
}

func (s *stubService) ListUserOrders(context.Context, int64, int) ([]model.Order, error) {
	return s.orders, s.err
}

func (s *stubService) GetUserOrder(context.Context, int64, int64) (*model.Order, error) {
	return s.order, s.err
}

func (s *stubService) SubmitClarification(context.Context, int64, int64, string, *model.Document) (int64, error) {
	return 1, s.err
}

func (s *stubService) ListClarifications(context.Context, int64, int64) ([]model.Clarification, error) {
	return nil, s.err
}

func (s *stubService) Resubmit(context.Context, int64, int64) (*model.Order, error) {
	return s.order, s.err
}

func (s *stubService) RateOrder(context.Context, int64, int64, int) error { return s.err }

func (s *stubService) ListOrders(context.Context, repository.OrderFilter) ([]model.Order, error) {
	return s.orders, s.err
}

func (s *stubService) OperatorRespond(context.Context, int64, int64, string) (*model.Order, error) {
	return s.order, s.err
}

func (s *stubService) OperatorCancel(context.Context, int64, int64) (*model.Order, error) {
	return s.order, s.err
}

func (s *stubService) OperatorRequestNewDocs(context.Context, int64, int64, string) (*model.Order, error) {
	return s.order, s.err
}

func (s *stubService) OperatorSetPrice(context.Context, int64, int64, int64) (*model.Order, error) {
	return s.order, s.err
}

func (s *stubService) OperatorReply(context.Context, int64, int64, string) (int64, error) {
	return 1, s.err
}

func (s *stubService) OperatorListClarifications(context.Context, int64) ([]model.Clarification, error) {
	return nil, s.err
}

func (s *stubService) CreatePromo(context.Context, string, model.DiscountKind, float64, int, string) error {
	return s.err
}

func (s *stubService) DeactivatePromo(context.Context, string) error { return s.err }

func (s *stubService) ListPromos(context.Context) ([]model.PromoCode, error) { return nil, s.err }

func (s *stubService) GetStats(context.Context) (repository.Stats, error) {
	return repository.Stats{OrdersByStatus: map[string]int{}}, s.err
}

func (s *stubService) TopReferrers(context.Context, int) ([]repository.TopReferrer, error) {
	return nil, s.err
}

func newTestRouter(s Service) (http.Handler, *middleware.AuthMiddleware) {
	auth := middleware.NewAuthMiddleware("secret", "op-key")
	h := NewHandler(s, zap.NewNop(), auth)
	return h.SetupRouter(), auth
}

func signedRequest(auth *middleware.AuthMiddleware, method, target string, body []byte) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	r.Header.Set("X-User-ID", "42")
	r.Header.Set("X-Signature", auth.Sign(42))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "валидация", err: model.NewValidationError("bad"), want: http.StatusBadRequest},
		{name: "не найдено", err: model.ErrOrderNotFound, want: http.StatusNotFound},
		{name: "недопустимый переход", err: &model.StateError{Op: "rate", Status: model.OrderStatusPending}, want: http.StatusConflict},
		{name: "проигранная гонка", err: &model.ConcurrencyError{Reason: "referral"}, want: http.StatusConflict},
		{name: "промокод исчерпан", err: model.ErrPromoExhausted, want: http.StatusConflict},
		{name: "промокод уже применён", err: model.ErrPromoAlreadyUsed, want: http.StatusConflict},
		{name: "окно уточнений закрыто", err: model.ErrClarificationWindowClosed, want: http.StatusBadRequest},
		{name: "внешний сбой", err: &model.ExternalError{Op: "invoice", Err: model.ErrOrderNotFound}, want: http.StatusBadGateway},
		{name: "неизвестный статус", err: model.ErrUnknownStatus, want: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, auth := newTestRouter(&stubService{err: tt.err})

			body, _ := json.Marshal(map[string]int{"rating": 5})
			r := signedRequest(auth, http.MethodPost, "/api/orders/1/rating", body)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Fatalf("статус = %d, ожидался %d", w.Code, tt.want)
			}
		})
	}
}

func TestUnauthorizedWithoutSignature(t *testing.T) {
	router, _ := newTestRouter(&stubService{})

	r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("статус = %d, ожидался 401", w.Code)
	}
}

func TestOperatorForbiddenWithoutKey(t *testing.T) {
	router, _ := newTestRouter(&stubService{})

	r := httptest.NewRequest(http.MethodGet, "/api/operator/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("статус = %d, ожидался 403", w.Code)
	}
}

func TestOperatorStatsWithKey(t *testing.T) {
	router, _ := newTestRouter(&stubService{})

	r := httptest.NewRequest(http.MethodGet, "/api/operator/stats", nil)
	r.Header.Set("X-Operator-Key", "op-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", w.Code)
	}
}

func TestOperatorSetPriceRoute(t *testing.T) {
	stub := &stubService{order: &model.Order{ID: 5, Status: model.OrderStatusCreated, OriginalPrice: 290, Price: 150}}
	router, _ := newTestRouter(stub)

	body, _ := json.Marshal(map[string]int64{"price": 150})
	r := httptest.NewRequest(http.MethodPost, "/api/operator/orders/5/price", bytes.NewReader(body))
	r.Header.Set("X-Operator-Key", "op-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", w.Code)
	}
	var resp struct {
		Price int64 `json:"price"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("декодирование ответа: %v", err)
	}
	if resp.Price != 150 {
		t.Errorf("цена в ответе = %d, ожидалось 150", resp.Price)
	}
}

func TestIntakePromoCreatesOrder(t *testing.T) {
	stub := &stubService{
		created: &service.CreatedOrder{
			OrderID:    7,
			Quote:      pricing.Quote{OriginalPrice: 290, FinalPrice: 196, Discount: 94, Type: model.DiscountTypeBoth},
			InvoiceURL: "https://pay.test/7",
		},
	}
	router, auth := newTestRouter(stub)

	body, _ := json.Marshal(map[string]string{"code": "SUMMER"})
	r := signedRequest(auth, http.MethodPost, "/api/intake/promo", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("статус = %d, ожидался 201", w.Code)
	}

	var resp struct {
		OrderID    int64         `json:"order_id"`
		InvoiceURL string        `json:"invoice_url"`
		Quote      quoteResponse `json:"quote"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OrderID != 7 || resp.Quote.FinalPrice != 196 {
		t.Fatalf("ответ: %+v", resp)
	}
}

func TestListOrdersNoContent(t *testing.T) {
	router, auth := newTestRouter(&stubService{})

	r := signedRequest(auth, http.MethodGet, "/api/orders", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("статус = %d, ожидался 204", w.Code)
	}
}

func TestConfirmPaymentWebhook(t *testing.T) {
	stub := &stubService{
		order: &model.Order{ID: 3, Status: model.OrderStatusPending, Price: 290, OriginalPrice: 290},
	}
	router, _ := newTestRouter(stub)

	body, _ := json.Marshal(map[string]any{
		"payload": "abc", "provider_ref": "pay-1", "amount": 290,
	})
	r := httptest.NewRequest(http.MethodPost, "/api/payments/confirm", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", w.Code)
	}

	var resp orderResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "pending" {
		t.Fatalf("статус заказа = %s", resp.Status)
	}
}

func TestReferralQRFormat(t *testing.T) {
	router, auth := newTestRouter(&stubService{})

	r := signedRequest(auth, http.MethodGet, "/api/user/referral?format=qr", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("Content-Type = %q, ожидался image/png", ct)
	}
	if w.Body.Len() == 0 {
		t.Fatal("пустое тело PNG")
	}
}
