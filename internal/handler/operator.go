package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Nikita777nike/RazMedBot/internal/model"
	"github.com/Nikita777nike/RazMedBot/internal/repository"
	"github.com/Nikita777nike/RazMedBot/internal/validation"
)

// Операторские запросы идентифицируются ключом панели, а не пользователем;
// для леджера в качестве admin_id передаётся идентификатор из заголовка.
func adminID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get("X-Admin-ID"), 10, 64)
	if err != nil || id <= 0 {
		return 1
	}
	return id
}

// OperatorListOrders возвращает заказы по фильтру статусов.
func (h *Handler) OperatorListOrders(w http.ResponseWriter, r *http.Request) {
	f := repository.OrderFilter{}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := model.ParseOrderStatus(raw)
		if err != nil {
			h.respondError(w, err)
			return
		}
		f.Statuses = []model.OrderStatus{status}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.respondError(w, model.NewValidationError("bad limit"))
			return
		}
		f.Limit = limit
	}

	orders, err := h.service.ListOrders(r.Context(), f)
	if err != nil {
		h.respondError(w, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// OperatorRespond завершает заказ ответом специалиста.
func (h *Handler) OperatorRespond(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.OperatorRespond(r.Context(), adminID(r), id, req.Answer)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// OperatorCancel отменяет нетерминальный заказ.
func (h *Handler) OperatorCancel(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	o, err := h.service.OperatorCancel(r.Context(), adminID(r), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// OperatorRedocs запрашивает у пользователя новые документы.
// OperatorSetPrice меняет цену неоплаченного заказа.
func (h *Handler) OperatorSetPrice(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req struct {
		Price int64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.OperatorSetPrice(r.Context(), adminID(r), id, req.Price)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) OperatorRedocs(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.OperatorRequestNewDocs(r.Context(), adminID(r), id, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// OperatorListClarifications возвращает ветку уточнений заказа.
func (h *Handler) OperatorListClarifications(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	clars, err := h.service.OperatorListClarifications(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, clars)
}

// OperatorReply отвечает на уточняющий вопрос пользователя.
func (h *Handler) OperatorReply(w http.ResponseWriter, r *http.Request) {
	clarID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || clarID <= 0 {
		h.respondError(w, model.NewValidationError("bad clarification id"))
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.OperatorReply(r.Context(), adminID(r), clarID, req.Text)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type promoRequest struct {
	Code        string  `json:"code"`
	Kind        string  `json:"kind"`
	Value       float64 `json:"value"`
	UsesLeft    int     `json:"uses_left"`
	Description string  `json:"description"`
}

// OperatorCreatePromo добавляет промокод.
func (h *Handler) OperatorCreatePromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.CreatePromo(r.Context(), req.Code, model.DiscountKind(req.Kind),
		req.Value, req.UsesLeft, req.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// OperatorDeletePromo деактивирует промокод.
func (h *Handler) OperatorDeletePromo(w http.ResponseWriter, r *http.Request) {
	code := validation.NormalizePromoCode(chi.URLParam(r, "code"))
	if code == "" {
		h.respondError(w, model.NewValidationError("empty promo code"))
		return
	}

	if err := h.service.DeactivatePromo(r.Context(), code); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// OperatorListPromos возвращает все промокоды.
func (h *Handler) OperatorListPromos(w http.ResponseWriter, r *http.Request) {
	promos, err := h.service.ListPromos(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, promos)
}

// OperatorStats возвращает сводку по заказам, промокодам и рефералам.
func (h *Handler) OperatorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	top, err := h.service.TopReferrers(r.Context(), 10)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"orders_by_status": stats.OrdersByStatus,
		"revenue":          stats.Revenue,
		"promo_uses":       stats.PromoUses,
		"promo_total":      stats.PromoTotal,
		"referrals_total":  stats.ReferralsTotal,
		"referrals_used":   stats.ReferralsUsed,
		"bonus_total":      stats.BonusTotal,
		"top_referrers":    top,
	})
}
