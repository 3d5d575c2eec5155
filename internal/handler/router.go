package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	custommiddleware "github.com/Nikita777nike/RazMedBot/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "X-User-ID", "X-Signature", "X-Operator-Key", "X-Admin-ID"},
	}))
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	// Вебхук провайдера: аутентифицируется суммой и payload, не подписью шлюза.
	r.Post("/api/payments/confirm", h.ConfirmPayment)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/api/user", func(r chi.Router) {
			r.Post("/start", h.Start)
			r.Post("/agreement", h.Agreement)
			r.Get("/referral", h.Referral)
		})

		r.Route("/api/intake", func(r chi.Router) {
			r.Post("/service", h.IntakeService)
			r.Post("/promo", h.IntakePromo)
			r.Post("/demographics", h.IntakeDemographics)
			r.Post("/documents", h.IntakeDocuments)
			r.Post("/question", h.IntakeQuestion)
			r.Post("/cancel", h.IntakeCancel)
		})

		r.Route("/api/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Get("/{id}", h.GetOrder)
			r.Post("/{id}/clarifications", h.SubmitClarification)
			r.Get("/{id}/clarifications", h.ListClarifications)
			r.Post("/{id}/resubmit", h.Resubmit)
			r.Post("/{id}/rating", h.RateOrder)
		})
	})

	r.Route("/api/operator", func(r chi.Router) {
		r.Use(h.authMiddleware.OperatorMiddleware)

		r.Get("/orders", h.OperatorListOrders)
		r.Post("/orders/{id}/respond", h.OperatorRespond)
		r.Post("/orders/{id}/cancel", h.OperatorCancel)
		r.Post("/orders/{id}/redocs", h.OperatorRedocs)
		r.Post("/orders/{id}/price", h.OperatorSetPrice)
		r.Get("/orders/{id}/clarifications", h.OperatorListClarifications)
		r.Post("/clarifications/{id}/reply", h.OperatorReply)

		r.Get("/promos", h.OperatorListPromos)
		r.Post("/promos", h.OperatorCreatePromo)
		r.Delete("/promos/{code}", h.OperatorDeletePromo)

		r.Get("/stats", h.OperatorStats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
