// Package handler содержит HTTP-обработчики API сервиса расшифровки медицинских документов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/Nikita777nike/RazMedBot/internal/middleware"
	"github.com/Nikita777nike/RazMedBot/internal/model"
	"github.com/Nikita777nike/RazMedBot/internal/pricing"
	"github.com/Nikita777nike/RazMedBot/internal/repository"
	"github.com/Nikita777nike/RazMedBot/internal/service"
	"github.com/Nikita777nike/RazMedBot/internal/session"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Start(ctx context.Context, userID int64, username string, referrerID int64) error
	AcceptAgreement(ctx context.Context, userID int64) error
	GetReferralInfo(ctx context.Context, userID int64) (*service.ReferralInfo, error)

	StartIntake(ctx context.Context, userID int64) (*session.Intake, error)
	ChooseService(ctx context.Context, userID int64, serviceCode string) (*pricing.Quote, error)
	ApplyPromo(ctx context.Context, userID int64, code string) (*pricing.Quote, error)
	SkipPromo(userID int64) error
	ConfirmIntake(ctx context.Context, userID int64) (*service.CreatedOrder, error)
	CancelIntake(userID int64)
	SubmitDemographics(ctx context.Context, userID int64, age int, sex string) error
	AddDocument(ctx context.Context, userID int64, doc model.Document) (int, error)
	SubmitQuestion(ctx context.Context, userID int64, question string) (*model.Order, error)

	ConfirmPayment(ctx context.Context, payload, paymentRef string, amountRub int64) (*model.Order, error)

	ListUserOrders(ctx context.Context, userID int64, limit int) ([]model.Order, error)
	GetUserOrder(ctx context.Context, userID, orderID int64) (*model.Order, error)
	SubmitClarification(ctx context.Context, userID, orderID int64, text string, doc *model.Document) (int64, error)
	ListClarifications(ctx context.Context, userID, orderID int64) ([]model.Clarification, error)
	Resubmit(ctx context.Context, userID, orderID int64) (*model.Order, error)
	RateOrder(ctx context.Context, userID, orderID int64, rating int) error

	ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error)
	OperatorRespond(ctx context.Context, adminID, orderID int64, answer string) (*model.Order, error)
	OperatorCancel(ctx context.Context, adminID, orderID int64) (*model.Order, error)
	OperatorRequestNewDocs(ctx context.Context, adminID, orderID int64, reason string) (*model.Order, error)
	OperatorSetPrice(ctx context.Context, adminID, orderID int64, price int64) (*model.Order, error)
	OperatorReply(ctx context.Context, adminID, clarificationID int64, text string) (int64, error)
	OperatorListClarifications(ctx context.Context, orderID int64) ([]model.Clarification, error)
	CreatePromo(ctx context.Context, code string, kind model.DiscountKind, value float64, usesLeft int, description string) error
	DeactivatePromo(ctx context.Context, code string) error
	ListPromos(ctx context.Context) ([]model.PromoCode, error)
	GetStats(ctx context.Context) (repository.Stats, error)
	TopReferrers(ctx context.Context, limit int) ([]repository.TopReferrer, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// respondError отображает доменную ошибку на HTTP-статус.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var stateErr *model.StateError
	var concurrencyErr *model.ConcurrencyError
	var extErr *model.ExternalError

	switch {
	case errors.Is(err, model.ErrUnknownStatus):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case model.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrPromoExhausted), errors.Is(err, model.ErrPromoAlreadyUsed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &stateErr), errors.As(err, &concurrencyErr):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &extErr):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case model.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("internal error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func userID(r *http.Request) (int64, bool) {
	return middleware.GetUserIDFromContext(r.Context())
}

func orderIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError("bad order id")
	}
	return id, nil
}

type orderResponse struct {
	ID              int64            `json:"id"`
	ServiceCode     string           `json:"service_code"`
	Status          string           `json:"status"`
	OriginalPrice   int64            `json:"original_price"`
	Price           int64            `json:"price"`
	Discount        int64            `json:"discount"`
	DiscountType    string           `json:"discount_type"`
	PromoCode       string           `json:"promo_code,omitempty"`
	Question        string           `json:"question,omitempty"`
	Documents       []model.Document `json:"documents,omitempty"`
	Rating          *int             `json:"rating,omitempty"`
	CanClarifyUntil *time.Time       `json:"can_clarify_until,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

func toOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		ServiceCode:     o.ServiceCode,
		Status:          string(o.Status),
		OriginalPrice:   o.OriginalPrice,
		Price:           o.Price,
		Discount:        o.Discount,
		DiscountType:    string(o.DiscountType),
		PromoCode:       o.PromoCode,
		Question:        o.Question,
		Documents:       o.Documents,
		Rating:          o.Rating,
		CanClarifyUntil: o.CanClarifyUntil,
		CreatedAt:       o.CreatedAt,
	}
}

// Start регистрирует пользователя и фиксирует реферальный переход.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req struct {
		Username   string `json:"username"`
		ReferrerID int64  `json:"referrer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.Start(r.Context(), uid, req.Username, req.ReferrerID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Agreement фиксирует согласие пользователя с условиями сервиса.
func (h *Handler) Agreement(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.AcceptAgreement(r.Context(), uid); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Referral возвращает реферальную ссылку и сводку. При ?format=qr — PNG с QR-кодом.
func (h *Handler) Referral(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	info, err := h.service.GetReferralInfo(r.Context(), uid)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "qr" {
		png, err := qrcode.Encode(info.Link, qrcode.Medium, 256)
		if err != nil {
			h.respondError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"link":        info.Link,
		"invited":     info.Invited,
		"completed":   info.Completed,
		"total_bonus": info.TotalBonus,
	})
}

type quoteResponse struct {
	OriginalPrice int64  `json:"original_price"`
	FinalPrice    int64  `json:"final_price"`
	Discount      int64  `json:"discount"`
	DiscountType  string `json:"discount_type"`
}

func toQuoteResponse(q *pricing.Quote) quoteResponse {
	return quoteResponse{
		OriginalPrice: q.OriginalPrice,
		FinalPrice:    q.FinalPrice,
		Discount:      q.Discount,
		DiscountType:  string(q.Type),
	}
}

// IntakeService начинает анкету и фиксирует выбранную услугу.
func (h *Handler) IntakeService(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req struct {
		Service string `json:"service"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if _, err := h.service.StartIntake(r.Context(), uid); err != nil {
		h.respondError(w, err)
		return
	}

	q, err := h.service.ChooseService(r.Context(), uid, req.Service)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

// IntakePromo применяет промокод (или пропускает шаг) и создаёт заказ со счётом.
func (h *Handler) IntakePromo(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Code != "" {
		if _, err := h.service.ApplyPromo(r.Context(), uid, req.Code); err != nil {
			h.respondError(w, err)
			return
		}
	} else {
		if err := h.service.SkipPromo(uid); err != nil {
			h.respondError(w, err)
			return
		}
	}

	created, err := h.service.ConfirmIntake(r.Context(), uid)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"order_id":    created.OrderID,
		"invoice_url": created.InvoiceURL,
		"quote":       toQuoteResponse(&created.Quote),
	})
}

// IntakeDemographics сохраняет возраст и пол пациента.
func (h *Handler) IntakeDemographics(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req struct {
		Age int    `json:"age"`
		Sex string `json:"sex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SubmitDemographics(r.Context(), uid, req.Age, req.Sex); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// IntakeDocuments добавляет документы в анкету.
func (h *Handler) IntakeDocuments(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req struct {
		Documents []model.Document `json:"documents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Documents) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var count int
	for _, doc := range req.Documents {
		n, err := h.service.AddDocument(r.Context(), uid, doc)
		if err != nil {
			h.respondError(w, err)
			return
		}
		count = n
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"documents": count})
}

// IntakeQuestion завершает анкету вопросом и переводит заказ в работу.
func (h *Handler) IntakeQuestion(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.SubmitQuestion(r.Context(), uid, req.Text)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// IntakeCancel обрывает анкету на любом шаге.
func (h *Handler) IntakeCancel(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	h.service.CancelIntake(uid)
	w.WriteHeader(http.StatusOK)
}

// ConfirmPayment обрабатывает вебхук платёжного провайдера.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload     string `json:"payload"`
		ProviderRef string `json:"provider_ref"`
		Amount      int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Payload == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.ConfirmPayment(r.Context(), req.Payload, req.ProviderRef, req.Amount)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// ListOrders возвращает заказы текущего пользователя.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	orders, err := h.service.ListUserOrders(r.Context(), uid, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// GetOrder возвращает заказ текущего пользователя.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, err := orderIDParam(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	o, err := h.service.GetUserOrder(r.Context(), uid, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// SubmitClarification принимает уточняющий вопрос по завершённому заказу.
func (h *Handler) SubmitClarification(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, err := orderIDParam(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req struct {
		Text     string          `json:"text"`
		Document *model.Document `json:"document"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	clarID, err := h.service.SubmitClarification(r.Context(), uid, id, req.Text, req.Document)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": clarID})
}

// ListClarifications возвращает ветку уточнений заказа пользователя.
func (h *Handler) ListClarifications(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, err := orderIDParam(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	clars, err := h.service.ListClarifications(r.Context(), uid, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, clars)
}

// Resubmit возвращает заказ в работу после загрузки новых документов.
func (h *Handler) Resubmit(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, err := orderIDParam(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	o, err := h.service.Resubmit(r.Context(), uid, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// RateOrder сохраняет оценку завершённого заказа.
func (h *Handler) RateOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, err := orderIDParam(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req struct {
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.RateOrder(r.Context(), uid, id, req.Rating); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
