// Package model содержит доменные сущности сервиса расшифровки медицинских документов.
package model

import (
	"fmt"
	"time"
)

// OrderStatus описывает статус жизненного цикла заказа.
type OrderStatus string

const (
	// OrderStatusCreated — заказ создан, оплата не подтверждена.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusPending — оплата подтверждена, ожидаются детали заказа.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — детали получены, заказ в работе у специалиста.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusCompleted — ответ отправлен, заказ завершён (терминальный).
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён (терминальный).
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusAwaitingClarification — по заказу идёт уточнение; на переходы не влияет.
	OrderStatusAwaitingClarification OrderStatus = "awaiting_clarification"
	// OrderStatusNeedsNewDocs — оператор запросил повторную загрузку документов.
	OrderStatusNeedsNewDocs OrderStatus = "needs_new_docs"
)

// ParseOrderStatus проверяет, что значение принадлежит каноническому набору статусов.
// Нераспознанные значения (в том числе из устаревшей схемы) отклоняются,
// а не отображаются на похожие по смыслу.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusCreated, OrderStatusPending, OrderStatusProcessing,
		OrderStatusCompleted, OrderStatusCancelled,
		OrderStatusAwaitingClarification, OrderStatusNeedsNewDocs:
		return st, nil
	default:
		return "", fmt.Errorf("%w: order status %q", ErrUnknownStatus, s)
	}
}

// Terminal сообщает, является ли статус терминальным.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// DiscountType описывает источник скидки, применённой к заказу.
type DiscountType string

const (
	DiscountTypeNone     DiscountType = "none"
	DiscountTypeReferral DiscountType = "referral"
	DiscountTypePromo    DiscountType = "promo"
	DiscountTypeBoth     DiscountType = "both"
)

// DiscountKind описывает вид скидки промокода.
type DiscountKind string

const (
	DiscountKindPercent DiscountKind = "percent"
	DiscountKindFixed   DiscountKind = "fixed"
)

// UnlimitedUses — сентинел неограниченного числа применений промокода.
const UnlimitedUses = -1

// Order описывает заказ на расшифровку медицинских документов.
// Цены хранятся в целых рублях.
type Order struct {
	ID             int64
	UserID         int64
	ServiceCode    string
	Status         OrderStatus
	OriginalPrice  int64
	Price          int64
	Discount       int64
	DiscountType   DiscountType
	PromoCode      string
	ReferrerID     int64 // 0, если реферальная скидка не применялась
	InvoicePayload string
	PaymentRef     string

	NeedsDemographics bool
	Age               *int
	Sex               string
	Question          string
	Documents         []Document

	Rating              *int
	ClarificationCount  int
	LastClarificationAt *time.Time
	CanClarifyUntil     *time.Time

	AdminID    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	AnsweredAt *time.Time
}

// Document — ссылка на загруженный пользователем документ.
type Document struct {
	FileID string `json:"file_id"`
	Type   string `json:"type"`
}

// PromoCode описывает промокод на скидку.
type PromoCode struct {
	Code        string
	Kind        DiscountKind
	Value       float64
	UsesLeft    int // UnlimitedUses — без ограничения
	Active      bool
	Description string
	CreatedAt   time.Time
}

// PromoUsage — запись о применении промокода к заказу.
type PromoUsage struct {
	Code    string
	UserID  int64
	OrderID int64
	Amount  float64
	UsedAt  time.Time
}

// ReferralStatus описывает состояние реферальной записи.
type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusCompleted ReferralStatus = "completed"
)

// Referral описывает пару пригласивший/приглашённый и одноразовую скидку.
type Referral struct {
	ReferrerID int64
	ReferredID int64
	Status     ReferralStatus
	OrderID    int64 // заказ, к которому применена скидка; 0, пока скидка не применена
	Bonus      float64
	CreatedAt  time.Time
}

// Clarification — сообщение в ветке уточнений по заказу.
type Clarification struct {
	ID             int64
	OrderID        int64
	AuthorID       int64
	Text           string
	Document       *Document
	IsFromUser     bool
	IsAdminRequest bool
	RepliedTo      int64 // 0, если сообщение не является ответом
	SentAt         time.Time
}

// User описывает пользователя сервиса.
type User struct {
	ID                int64
	Username          string
	AgreementAccepted bool
	CreatedAt         time.Time
}
