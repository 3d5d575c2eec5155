// Package service реализует бизнес-логику сервиса расшифровки медицинских документов.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Nikita777nike/RazMedBot/internal/clock"
	"github.com/Nikita777nike/RazMedBot/internal/model"
	"github.com/Nikita777nike/RazMedBot/internal/notify"
	"github.com/Nikita777nike/RazMedBot/internal/payment"
	"github.com/Nikita777nike/RazMedBot/internal/repository"
	"github.com/Nikita777nike/RazMedBot/internal/session"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	EnsureUser(ctx context.Context, id int64, username string) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	AcceptAgreement(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, p repository.CreateOrderParams) (int64, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	GetOrderByPayload(ctx context.Context, payload string) (*model.Order, error)
	ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error)
	MarkPaid(ctx context.Context, id int64, paymentRef string) error
	SetPrice(ctx context.Context, id int64, price int64, invoicePayload string) error
	UpdateDetails(ctx context.Context, id int64, age *int, sex, question string, documents []model.Document) error
	CompleteOrder(ctx context.Context, id, adminID int64, answer string, answeredAt, canClarifyUntil time.Time, referrerBonus float64) error
	CancelOrder(ctx context.Context, id, adminID int64) error
	MarkNeedsNewDocs(ctx context.Context, id, adminID int64, reason string, requestedAt time.Time) error
	ResubmitOrder(ctx context.Context, id, userID int64) error
	SaveRating(ctx context.Context, id, userID int64, rating int) error

	CreatePromo(ctx context.Context, p model.PromoCode) error
	DeactivatePromo(ctx context.Context, code string) error
	GetPromo(ctx context.Context, code string) (*model.PromoCode, error)
	ListPromos(ctx context.Context) ([]model.PromoCode, error)
	CheckPromo(ctx context.Context, code string, userID int64) (*model.PromoCode, error)

	CreateReferral(ctx context.Context, referrerID, referredID int64) error
	PendingReferral(ctx context.Context, referredID int64) (int64, error)
	GetReferralStats(ctx context.Context, referrerID int64) (repository.ReferralStats, error)
	ListReferrals(ctx context.Context, referrerID int64) ([]model.Referral, error)

	AddClarification(ctx context.Context, c model.Clarification) (int64, error)
	GetClarification(ctx context.Context, id int64) (*model.Clarification, error)
	ListClarifications(ctx context.Context, orderID int64) ([]model.Clarification, error)

	GetStats(ctx context.Context) (repository.Stats, error)
	TopReferrers(ctx context.Context, limit int) ([]repository.TopReferrer, error)
}

// Payments описывает контракт платёжного провайдера.
type Payments interface {
	CreateInvoice(ctx context.Context, orderDescription string, priceRub int64) (*payment.Invoice, error)
}

// Options — параметры скидочной и дисциплинарной политики сервиса.
type Options struct {
	// ReferredDiscountPercent — скидка приглашённому на первый заказ.
	ReferredDiscountPercent float64
	// ReferrerBonusPercent — бонус пригласившему от итоговой цены завершённого заказа.
	ReferrerBonusPercent float64
	// ClarificationWindow — окно уточняющих вопросов после ответа.
	ClarificationWindow time.Duration
	// BotLink — базовая ссылка для реферальных приглашений.
	BotLink string
}

// Время жизни брошенной анкеты.
const intakeTTL = time.Hour

// Service содержит бизнес-логику сервиса расшифровки.
type Service struct {
	repo     Repository
	payments Payments
	notifier notify.Notifier
	sessions *session.Manager
	clock    clock.Clock
	logger   *zap.Logger
	opts     Options
}

// NewService создаёт сервис с указанными зависимостями.
func NewService(repo Repository, payments Payments, notifier notify.Notifier, clk clock.Clock, logger *zap.Logger, opts Options) *Service {
	return &Service{
		repo:     repo,
		payments: payments,
		notifier: notifier,
		sessions: session.NewManager(intakeTTL),
		clock:    clk,
		logger:   logger,
		opts:     opts,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Start регистрирует пользователя при первом обращении. Если пользователь
// пришёл по реферальной ссылке, фиксируется реферальная связка.
func (s *Service) Start(ctx context.Context, userID int64, username string, referrerID int64) error {
	if err := s.repo.EnsureUser(ctx, userID, username); err != nil {
		return err
	}
	if referrerID != 0 {
		if err := s.repo.CreateReferral(ctx, referrerID, userID); err != nil {
			return err
		}
	}
	return nil
}

// AcceptAgreement фиксирует согласие пользователя с условиями сервиса.
func (s *Service) AcceptAgreement(ctx context.Context, userID int64) error {
	return s.repo.AcceptAgreement(ctx, userID)
}

// GetUser возвращает пользователя.
func (s *Service) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUser(ctx, userID)
}

// ReferralLink возвращает персональную ссылку-приглашение пользователя.
func (s *Service) ReferralLink(userID int64) string {
	return fmt.Sprintf("%s?start=ref_%d", s.opts.BotLink, userID)
}

// ReferralInfo — сводка реферальной программы для пользователя.
type ReferralInfo struct {
	Link       string
	Invited    int
	Completed  int
	TotalBonus float64
}

// GetReferralInfo возвращает ссылку и счётчики приглашений пользователя.
func (s *Service) GetReferralInfo(ctx context.Context, userID int64) (*ReferralInfo, error) {
	stats, err := s.repo.GetReferralStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ReferralInfo{
		Link:       s.ReferralLink(userID),
		Invited:    stats.Invited,
		Completed:  stats.Completed,
		TotalBonus: stats.TotalBonus,
	}, nil
}

// StartSessionSweeper периодически удаляет брошенные анкеты до отмены контекста.
func (s *Service) StartSessionSweeper(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Sweep(); n > 0 {
				s.logger.Info("брошенные анкеты удалены", zap.Int("count", n))
			}
		}
	}
}

// notifyUser отправляет уведомление, не прерывая бизнес-операцию при сбое доставки.
func (s *Service) notifyUser(ctx context.Context, userID int64, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, text); err != nil {
		s.logger.Warn("уведомление не отправлено",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}
