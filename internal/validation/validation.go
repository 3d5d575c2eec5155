// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"

	"github.com/Nikita777nike/RazMedBot/internal/model"
)

// MinQuestionLen — минимальная длина вопроса пользователя в рунах.
const MinQuestionLen = 10

// IsValidQuestion проверяет, что текст вопроса содержателен.
func IsValidQuestion(text string) bool {
	return len([]rune(strings.TrimSpace(text))) >= MinQuestionLen
}

// NormalizePromoCode приводит промокод к каноническому виду.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidPromoCode проверяет формат промокода: 2–32 символа, латиница и цифры.
func IsValidPromoCode(code string) bool {
	if len(code) < 2 || len(code) > 32 {
		return false
	}
	for _, ch := range code {
		if (ch < 'A' || ch > 'Z') && (ch < '0' || ch > '9') {
			return false
		}
	}
	return true
}

// ValidatePromoParams проверяет параметры создаваемого промокода.
func ValidatePromoParams(kind model.DiscountKind, value float64, usesLeft int) error {
	switch kind {
	case model.DiscountKindPercent:
		if value <= 0 || value > 100 {
			return model.NewValidationError("percent value must be in (0,100], got %v", value)
		}
	case model.DiscountKindFixed:
		if value <= 0 {
			return model.NewValidationError("fixed value must be positive, got %v", value)
		}
	default:
		return model.NewValidationError("unknown discount kind %q", kind)
	}
	if usesLeft < model.UnlimitedUses {
		return model.NewValidationError("uses_left must be non-negative or -1, got %d", usesLeft)
	}
	return nil
}

// IsValidRating проверяет оценку заказа.
func IsValidRating(rating int) bool {
	return rating >= 1 && rating <= 5
}

// IsValidAge проверяет возраст пациента.
func IsValidAge(age int) bool {
	return age >= 0 && age <= 120
}
