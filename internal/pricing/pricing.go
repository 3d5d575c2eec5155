// Package pricing реализует расчёт итоговой цены заказа со скидками.
package pricing

import (
	"math"

	"github.com/Nikita777nike/RazMedBot/internal/model"
)

// Порядок применения скидок фиксирован: сначала реферальная скидка от базовой
// цены, затем промокод от промежуточной цены. Изменение порядка меняет итог
// и допустимо только как явное изменение этой политики.
const (
	StepReferral = 1
	StepPromo    = 2
)

// ReferralOffer описывает доступную пользователю реферальную скидку.
type ReferralOffer struct {
	ReferrerID int64
	Percent    float64
}

// Quote — результат расчёта цены. Реферальная и промо-части записаны отдельно,
// чтобы леджеры фиксировали точные суммы до округления.
type Quote struct {
	OriginalPrice  int64
	FinalPrice     int64
	Discount       int64
	Type           model.DiscountType
	ReferralAmount float64
	PromoAmount    float64
	PromoCode      string
	ReferrerID     int64
}

// Calculate вычисляет итоговую цену. Функция чистая: списание промокода и
// расход реферальной скидки фиксируются отдельно, атомарно с созданием заказа.
func Calculate(basePrice int64, referral *ReferralOffer, promo *model.PromoCode) (Quote, error) {
	if basePrice <= 0 {
		return Quote{}, model.NewValidationError("base price must be positive, got %d", basePrice)
	}

	q := Quote{
		OriginalPrice: basePrice,
		Type:          model.DiscountTypeNone,
	}
	interim := float64(basePrice)

	if referral != nil {
		if referral.Percent <= 0 || referral.Percent > 100 {
			return Quote{}, model.NewValidationError("referral percent must be in (0,100], got %v", referral.Percent)
		}
		q.ReferralAmount = float64(basePrice) * referral.Percent / 100
		q.ReferrerID = referral.ReferrerID
		q.Type = model.DiscountTypeReferral
		interim -= q.ReferralAmount
	}

	if promo != nil {
		switch promo.Kind {
		case model.DiscountKindPercent:
			if promo.Value <= 0 || promo.Value > 100 {
				return Quote{}, model.NewValidationError("promo percent must be in (0,100], got %v", promo.Value)
			}
			q.PromoAmount = interim * promo.Value / 100
		case model.DiscountKindFixed:
			if promo.Value <= 0 {
				return Quote{}, model.NewValidationError("promo fixed value must be positive, got %v", promo.Value)
			}
			q.PromoAmount = math.Min(promo.Value, interim)
		default:
			return Quote{}, model.NewValidationError("unknown promo kind %q", promo.Kind)
		}
		q.PromoCode = promo.Code
		interim -= q.PromoAmount
		if q.Type == model.DiscountTypeReferral {
			q.Type = model.DiscountTypeBoth
		} else {
			q.Type = model.DiscountTypePromo
		}
	}

	q.FinalPrice = roundHalfUp(interim)
	if q.FinalPrice < 0 {
		q.FinalPrice = 0
	}
	q.Discount = basePrice - q.FinalPrice

	return q, nil
}

// roundHalfUp округляет до целого рубля по правилу half-up.
func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
