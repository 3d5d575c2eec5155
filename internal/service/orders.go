package service

import (
	"context"
	"fmt"

	"github.com/Nikita777nike/RazMedBot/internal/catalog"
	"github.com/Nikita777nike/RazMedBot/internal/model"
	"github.com/Nikita777nike/RazMedBot/internal/repository"
	"github.com/Nikita777nike/RazMedBot/internal/validation"
)

// GetUserOrder возвращает заказ пользователя с проверкой владения.
func (s *Service) GetUserOrder(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		// Чужие заказы неотличимы от несуществующих.
		return nil, model.ErrOrderNotFound
	}
	return o, nil
}

// ListUserOrders возвращает заказы пользователя, новые первыми.
func (s *Service) ListUserOrders(ctx context.Context, userID int64, limit int) ([]model.Order, error) {
	return s.repo.ListOrders(ctx, repository.OrderFilter{UserID: userID, Limit: limit})
}

// ListOrders возвращает заказы по фильтру для операторской панели.
func (s *Service) ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error) {
	return s.repo.ListOrders(ctx, f)
}

// RateOrder сохраняет оценку завершённого заказа.
func (s *Service) RateOrder(ctx context.Context, userID, orderID int64, rating int) error {
	if !validation.IsValidRating(rating) {
		return model.NewValidationError("rating must be 1..5, got %d", rating)
	}
	if _, err := s.GetUserOrder(ctx, userID, orderID); err != nil {
		return err
	}
	return s.repo.SaveRating(ctx, orderID, userID, rating)
}

// SubmitClarification принимает уточняющий вопрос пользователя по завершённому
// заказу. Окно уточнений проверяется по сохранённой метке, а не по таймеру.
func (s *Service) SubmitClarification(ctx context.Context, userID, orderID int64, text string, doc *model.Document) (int64, error) {
	o, err := s.GetUserOrder(ctx, userID, orderID)
	if err != nil {
		return 0, err
	}

	switch o.Status {
	case model.OrderStatusCompleted:
		if o.CanClarifyUntil == nil || s.clock.Now().After(*o.CanClarifyUntil) {
			return 0, model.ErrClarificationWindowClosed
		}
	case model.OrderStatusNeedsNewDocs:
		// Документы и комментарии в ответ на запрос оператора принимаются без окна.
	default:
		return 0, &model.StateError{Op: "clarify", Status: o.Status}
	}

	if doc == nil && !validation.IsValidQuestion(text) {
		return 0, model.NewValidationError("clarification text too short")
	}

	id, err := s.repo.AddClarification(ctx, model.Clarification{
		OrderID:    orderID,
		AuthorID:   userID,
		Text:       text,
		Document:   doc,
		IsFromUser: true,
		SentAt:     s.clock.Now(),
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListClarifications возвращает ветку уточнений заказа пользователя.
func (s *Service) ListClarifications(ctx context.Context, userID, orderID int64) ([]model.Clarification, error) {
	if _, err := s.GetUserOrder(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListClarifications(ctx, orderID)
}

// Resubmit возвращает заказ в работу после загрузки новых документов.
func (s *Service) Resubmit(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	if _, err := s.GetUserOrder(ctx, userID, orderID); err != nil {
		return nil, err
	}
	if err := s.repo.ResubmitOrder(ctx, orderID, userID); err != nil {
		return nil, err
	}
	s.notifyUser(ctx, userID, fmt.Sprintf("Заказ №%d возвращён в работу, новые документы приняты.", orderID))
	return s.repo.GetOrder(ctx, orderID)
}

// --- Операторские операции ---

// OperatorRespond завершает заказ ответом специалиста. Бонус пригласившему
// начисляется в той же транзакции, окно уточнений открывается от момента ответа.
func (s *Service) OperatorRespond(ctx context.Context, adminID, orderID int64, answer string) (*model.Order, error) {
	if answer == "" {
		return nil, model.NewValidationError("empty answer")
	}

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var bonus float64
	if o.ReferrerID != 0 {
		bonus = float64(o.Price) * s.opts.ReferrerBonusPercent / 100
	}

	now := s.clock.Now()
	until := now.Add(s.opts.ClarificationWindow)
	if err := s.repo.CompleteOrder(ctx, orderID, adminID, answer, now, until, bonus); err != nil {
		return nil, err
	}

	s.notifyUser(ctx, o.UserID,
		fmt.Sprintf("Готов ответ по заказу №%d. Уточняющие вопросы принимаются до %s.",
			orderID, until.Format("02.01.2006 15:04")))
	return s.repo.GetOrder(ctx, orderID)
}

// OperatorCancel отменяет нетерминальный заказ.
func (s *Service) OperatorCancel(ctx context.Context, adminID, orderID int64) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CancelOrder(ctx, orderID, adminID); err != nil {
		return nil, err
	}
	s.notifyUser(ctx, o.UserID, fmt.Sprintf("Заказ №%d отменён.", orderID))
	return s.repo.GetOrder(ctx, orderID)
}

// OperatorSetPrice меняет цену неоплаченного заказа, например при индивидуальной
// скидке. Выставляется новый счёт: старый платёж перестал бы сходиться по сумме.
func (s *Service) OperatorSetPrice(ctx context.Context, adminID, orderID int64, price int64) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if price <= 0 || price > o.OriginalPrice {
		return nil, model.NewValidationError("price must be in 1..%d, got %d", o.OriginalPrice, price)
	}
	// Счёт выставляется до записи цены, поэтому статус проверяется заранее;
	// окончательный вердикт остаётся за CAS-переходом в репозитории.
	if o.Status != model.OrderStatusCreated {
		return nil, &model.StateError{Op: "operatorSetPrice", Status: o.Status}
	}

	svc, err := catalog.Lookup(o.ServiceCode)
	if err != nil {
		return nil, err
	}
	inv, err := s.payments.CreateInvoice(ctx, svc.Name, price)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetPrice(ctx, orderID, price, inv.Payload); err != nil {
		return nil, err
	}

	s.notifyUser(ctx, o.UserID,
		fmt.Sprintf("Цена заказа №%d изменена: %d ₽. Ссылка на оплату: %s", orderID, price, inv.URL))
	if inv.Confirmed {
		if _, err := s.ConfirmPayment(ctx, inv.Payload, inv.PaymentRef, price); err != nil {
			return nil, err
		}
	}
	return s.repo.GetOrder(ctx, orderID)
}

// OperatorRequestNewDocs запрашивает у пользователя новые документы.
func (s *Service) OperatorRequestNewDocs(ctx context.Context, adminID, orderID int64, reason string) (*model.Order, error) {
	if reason == "" {
		return nil, model.NewValidationError("empty reason")
	}

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkNeedsNewDocs(ctx, orderID, adminID, reason, s.clock.Now()); err != nil {
		return nil, err
	}
	s.notifyUser(ctx, o.UserID,
		fmt.Sprintf("По заказу №%d нужны новые документы: %s", orderID, reason))
	return s.repo.GetOrder(ctx, orderID)
}

// OperatorReply отвечает на уточняющий вопрос пользователя.
func (s *Service) OperatorReply(ctx context.Context, adminID, clarificationID int64, text string) (int64, error) {
	if text == "" {
		return 0, model.NewValidationError("empty reply")
	}

	c, err := s.repo.GetClarification(ctx, clarificationID)
	if err != nil {
		return 0, err
	}
	if !c.IsFromUser {
		return 0, model.NewValidationError("can reply only to user messages")
	}

	o, err := s.repo.GetOrder(ctx, c.OrderID)
	if err != nil {
		return 0, err
	}

	id, err := s.repo.AddClarification(ctx, model.Clarification{
		OrderID:    c.OrderID,
		AuthorID:   adminID,
		Text:       text,
		IsFromUser: false,
		RepliedTo:  clarificationID,
		SentAt:     s.clock.Now(),
	})
	if err != nil {
		return 0, err
	}

	s.notifyUser(ctx, o.UserID, fmt.Sprintf("Ответ специалиста по заказу №%d: %s", c.OrderID, text))
	return id, nil
}

// OperatorListClarifications возвращает ветку уточнений заказа без проверки владения.
func (s *Service) OperatorListClarifications(ctx context.Context, orderID int64) ([]model.Clarification, error) {
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListClarifications(ctx, orderID)
}

// CreatePromo добавляет промокод.
func (s *Service) CreatePromo(ctx context.Context, code string, kind model.DiscountKind, value float64, usesLeft int, description string) error {
	code = validation.NormalizePromoCode(code)
	if !validation.IsValidPromoCode(code) {
		return model.NewValidationError("bad promo code format")
	}
	if err := validation.ValidatePromoParams(kind, value, usesLeft); err != nil {
		return err
	}
	return s.repo.CreatePromo(ctx, model.PromoCode{
		Code:        code,
		Kind:        kind,
		Value:       value,
		UsesLeft:    usesLeft,
		Active:      true,
		Description: description,
	})
}

// DeactivatePromo отключает промокод.
func (s *Service) DeactivatePromo(ctx context.Context, code string) error {
	return s.repo.DeactivatePromo(ctx, validation.NormalizePromoCode(code))
}

// ListPromos возвращает все промокоды.
func (s *Service) ListPromos(ctx context.Context) ([]model.PromoCode, error) {
	return s.repo.ListPromos(ctx)
}

// GetStats возвращает сводку для операторской панели.
func (s *Service) GetStats(ctx context.Context) (repository.Stats, error) {
	return s.repo.GetStats(ctx)
}

// TopReferrers возвращает самых активных пригласивших.
func (s *Service) TopReferrers(ctx context.Context, limit int) ([]repository.TopReferrer, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.repo.TopReferrers(ctx, limit)
}
