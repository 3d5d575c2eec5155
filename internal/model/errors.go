package model

import (
	"errors"
	"fmt"
)

// Сентинелы вердиктов леджеров и частых отказов.
var (
	// ErrUnknownStatus возвращается при чтении статуса вне канонического набора.
	ErrUnknownStatus = errors.New("unknown status value")
	// ErrPromoNotFound возвращается, если промокод не существует.
	ErrPromoNotFound = errors.New("promo code not found")
	// ErrPromoInactive возвращается для деактивированного промокода.
	ErrPromoInactive = errors.New("promo code inactive")
	// ErrPromoExhausted возвращается, когда применения промокода исчерпаны.
	ErrPromoExhausted = errors.New("promo code exhausted")
	// ErrPromoAlreadyUsed возвращается при повторном применении кода тем же пользователем.
	ErrPromoAlreadyUsed = errors.New("promo code already used by user")
	// ErrOrderNotFound возвращается, если заказ не существует.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUserNotFound возвращается, если пользователь не существует.
	ErrUserNotFound = errors.New("user not found")
	// ErrClarificationNotFound возвращается, если уточнение не существует.
	ErrClarificationNotFound = errors.New("clarification not found")
	// ErrNoNewDocuments возвращается при попытке повторной отправки без новых документов.
	ErrNoNewDocuments = errors.New("no new documents received")
	// ErrClarificationWindowClosed возвращается после истечения окна уточнений.
	ErrClarificationWindowClosed = errors.New("clarification window closed")
	// ErrAgreementRequired возвращается при создании заказа без принятого соглашения.
	ErrAgreementRequired = errors.New("user agreement not accepted")
)

// ValidationError описывает некорректные входные данные; состояние не изменяется.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NewValidationError создаёт ошибку валидации с указанной причиной.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// StateError описывает недопустимый переход статуса заказа.
type StateError struct {
	Op     string
	Status OrderStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("operation %q is not allowed in status %q", e.Op, e.Status)
}

// ConcurrencyError описывает проигрыш конкурентной гонки за леджер или статус.
// Проигравшая операция прерывается без частичных изменений.
type ConcurrencyError struct {
	Reason string
}

func (e *ConcurrencyError) Error() string {
	return "concurrent update lost: " + e.Reason
}

// ExternalError описывает недоступность внешнего коллаборатора после ретраев.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("external %s: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// IsValidation сообщает, относится ли ошибка к классу ошибок валидации.
func IsValidation(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrPromoInactive) ||
		errors.Is(err, ErrPromoAlreadyUsed) ||
		errors.Is(err, ErrNoNewDocuments) ||
		errors.Is(err, ErrClarificationWindowClosed) ||
		errors.Is(err, ErrAgreementRequired) ||
		errors.Is(err, ErrUnknownStatus)
}

// IsNotFound сообщает, относится ли ошибка к классу «не найдено».
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrPromoNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrClarificationNotFound)
}
