package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nikita777nike/RazMedBot/internal/catalog"
	"github.com/Nikita777nike/RazMedBot/internal/model"
	"github.com/Nikita777nike/RazMedBot/internal/pricing"
	"github.com/Nikita777nike/RazMedBot/internal/repository"
	"github.com/Nikita777nike/RazMedBot/internal/session"
	"github.com/Nikita777nike/RazMedBot/internal/validation"
)

// StartIntake открывает анкету оформления заказа. Требует принятого согласия.
func (s *Service) StartIntake(ctx context.Context, userID int64) (*session.Intake, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.AgreementAccepted {
		return nil, model.ErrAgreementRequired
	}
	return s.sessions.Start(userID), nil
}

// GetIntake возвращает текущую анкету пользователя.
func (s *Service) GetIntake(userID int64) (*session.Intake, error) {
	in, ok := s.sessions.Get(userID)
	if !ok {
		return nil, model.NewValidationError("no active intake")
	}
	return in, nil
}

// CancelIntake обрывает анкету на любом шаге.
func (s *Service) CancelIntake(userID int64) {
	s.sessions.Cancel(userID)
}

// ChooseService фиксирует выбранную услугу и возвращает предварительную котировку.
func (s *Service) ChooseService(ctx context.Context, userID int64, serviceCode string) (*pricing.Quote, error) {
	svc, err := catalog.Lookup(serviceCode)
	if err != nil {
		return nil, err
	}

	if !s.sessions.Update(userID, func(in *session.Intake) {
		in.ServiceCode = svc.Code
		in.Step = session.StepPromo
	}) {
		return nil, model.NewValidationError("no active intake")
	}

	return s.quote(ctx, userID, svc, "")
}

// ApplyPromo проверяет промокод и возвращает котировку с его учётом.
// Сам промокод списывается только при создании заказа.
func (s *Service) ApplyPromo(ctx context.Context, userID int64, code string) (*pricing.Quote, error) {
	code = validation.NormalizePromoCode(code)
	if !validation.IsValidPromoCode(code) {
		return nil, model.NewValidationError("bad promo code format")
	}

	in, ok := s.sessions.Get(userID)
	if !ok || in.ServiceCode == "" {
		return nil, model.NewValidationError("no active intake")
	}
	svc, err := catalog.Lookup(in.ServiceCode)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.CheckPromo(ctx, code, userID); err != nil {
		return nil, err
	}

	q, err := s.quote(ctx, userID, svc, code)
	if err != nil {
		return nil, err
	}

	s.sessions.Update(userID, func(in *session.Intake) {
		in.PromoCode = code
	})
	return q, nil
}

// SkipPromo пропускает шаг промокода.
func (s *Service) SkipPromo(userID int64) error {
	if !s.sessions.Update(userID, func(in *session.Intake) {
		in.PromoCode = ""
	}) {
		return model.NewValidationError("no active intake")
	}
	return nil
}

// quote собирает котировку: ожидающая реферальная скидка плюс промокод.
func (s *Service) quote(ctx context.Context, userID int64, svc catalog.Service, promoCode string) (*pricing.Quote, error) {
	var offer *pricing.ReferralOffer
	referrerID, err := s.repo.PendingReferral(ctx, userID)
	if err != nil {
		return nil, err
	}
	if referrerID != 0 {
		offer = &pricing.ReferralOffer{
			ReferrerID: referrerID,
			Percent:    s.opts.ReferredDiscountPercent,
		}
	}

	var promo *model.PromoCode
	if promoCode != "" {
		promo, err = s.repo.CheckPromo(ctx, promoCode, userID)
		if err != nil {
			return nil, err
		}
	}

	q, err := pricing.Calculate(svc.Price, offer, promo)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// CreatedOrder — результат оформления: заказ и счёт на оплату.
type CreatedOrder struct {
	OrderID    int64
	Quote      pricing.Quote
	InvoiceURL string
}

// ConfirmIntake создаёт заказ по анкете и выставляет счёт. Котировка
// пересчитывается на момент создания: скидки могли устареть с шага анкеты.
func (s *Service) ConfirmIntake(ctx context.Context, userID int64) (*CreatedOrder, error) {
	in, ok := s.sessions.Get(userID)
	if !ok || in.ServiceCode == "" {
		return nil, model.NewValidationError("no active intake")
	}
	svc, err := catalog.Lookup(in.ServiceCode)
	if err != nil {
		return nil, err
	}

	q, err := s.quote(ctx, userID, svc, in.PromoCode)
	if err != nil {
		return nil, err
	}

	inv, err := s.payments.CreateInvoice(ctx, svc.Name, q.FinalPrice)
	if err != nil {
		return nil, err
	}

	orderID, err := s.repo.CreateOrder(ctx, repository.CreateOrderParams{
		Order: model.Order{
			UserID:            userID,
			ServiceCode:       svc.Code,
			Status:            model.OrderStatusCreated,
			OriginalPrice:     q.OriginalPrice,
			Price:             q.FinalPrice,
			Discount:          q.Discount,
			DiscountType:      q.Type,
			PromoCode:         q.PromoCode,
			ReferrerID:        q.ReferrerID,
			InvoicePayload:    inv.Payload,
			NeedsDemographics: svc.NeedsDemographics,
		},
		PromoAmount:     q.PromoAmount,
		ConsumeReferral: q.ReferrerID != 0,
	})
	if err != nil {
		return nil, err
	}

	s.sessions.Update(userID, func(in *session.Intake) {
		in.OrderID = orderID
		in.Step = session.StepPayment
	})

	// Тестовый счёт оплачен сразу, вебхука не будет.
	if inv.Confirmed {
		if _, err := s.ConfirmPayment(ctx, inv.Payload, inv.PaymentRef, q.FinalPrice); err != nil {
			return nil, err
		}
	}

	return &CreatedOrder{OrderID: orderID, Quote: *q, InvoiceURL: inv.URL}, nil
}

// ConfirmPayment обрабатывает подтверждение оплаты от провайдера.
// Сумма сверяется с ценой заказа, повторное подтверждение не является ошибкой.
func (s *Service) ConfirmPayment(ctx context.Context, payload, paymentRef string, amountRub int64) (*model.Order, error) {
	o, err := s.repo.GetOrderByPayload(ctx, payload)
	if err != nil {
		return nil, err
	}
	if amountRub != o.Price {
		return nil, model.NewValidationError("payment amount %d does not match order price %d", amountRub, o.Price)
	}

	if err := s.repo.MarkPaid(ctx, o.ID, paymentRef); err != nil {
		var stateErr *model.StateError
		var concurrencyErr *model.ConcurrencyError
		switch {
		case errors.As(err, &concurrencyErr):
			// Параллельное подтверждение того же счёта уже перевело заказ.
			return s.repo.GetOrder(ctx, o.ID)
		case errors.As(err, &stateErr) && stateErr.Status != model.OrderStatusCancelled:
			// Дубликат вебхука: заказ уже оплачен ранее.
			return s.repo.GetOrder(ctx, o.ID)
		default:
			return nil, err
		}
	}

	s.sessions.Update(o.UserID, func(in *session.Intake) {
		if in.OrderID != o.ID {
			return
		}
		if o.NeedsDemographics {
			in.Step = session.StepDemographics
		} else {
			in.Step = session.StepDocuments
		}
	})

	s.notifyUser(ctx, o.UserID, fmt.Sprintf("Оплата заказа №%d получена. Загрузите документы.", o.ID))
	return s.repo.GetOrder(ctx, o.ID)
}

// SubmitDemographics сохраняет возраст и пол пациента в анкете.
func (s *Service) SubmitDemographics(ctx context.Context, userID int64, age int, sex string) error {
	if !validation.IsValidAge(age) {
		return model.NewValidationError("age out of range: %d", age)
	}
	if sex != "m" && sex != "f" {
		return model.NewValidationError("sex must be m or f")
	}

	if !s.sessions.Update(userID, func(in *session.Intake) {
		a := age
		in.Age = &a
		in.Sex = sex
		in.Step = session.StepDocuments
	}) {
		return model.NewValidationError("no active intake")
	}
	return nil
}

// AddDocument добавляет документ в анкету.
func (s *Service) AddDocument(ctx context.Context, userID int64, doc model.Document) (int, error) {
	if doc.FileID == "" {
		return 0, model.NewValidationError("empty document file id")
	}

	var count int
	var full bool
	if !s.sessions.Update(userID, func(in *session.Intake) {
		if len(in.Documents) >= session.MaxDocuments {
			full = true
			count = len(in.Documents)
			return
		}
		in.Documents = append(in.Documents, doc)
		in.Step = session.StepQuestion
		count = len(in.Documents)
	}) {
		return 0, model.NewValidationError("no active intake")
	}
	if full {
		return count, model.NewValidationError("document limit reached: %d", session.MaxDocuments)
	}
	return count, nil
}

// SubmitQuestion завершает анкету: сохраняет вопрос и переводит заказ в работу.
func (s *Service) SubmitQuestion(ctx context.Context, userID int64, question string) (*model.Order, error) {
	if !validation.IsValidQuestion(question) {
		return nil, model.NewValidationError("question too short, need at least %d characters", validation.MinQuestionLen)
	}

	in, ok := s.sessions.Get(userID)
	if !ok || in.OrderID == 0 {
		return nil, model.NewValidationError("no active intake")
	}
	if len(in.Documents) == 0 {
		return nil, model.NewValidationError("at least one document required")
	}

	o, err := s.repo.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if o.NeedsDemographics && in.Age == nil {
		return nil, model.NewValidationError("demographics required for this service")
	}

	if err := s.repo.UpdateDetails(ctx, in.OrderID, in.Age, in.Sex, question, in.Documents); err != nil {
		return nil, err
	}

	s.sessions.Cancel(userID)
	s.notifyUser(ctx, userID, fmt.Sprintf("Заказ №%d принят в работу.", in.OrderID))
	return s.repo.GetOrder(ctx, in.OrderID)
}
