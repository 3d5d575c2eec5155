package validation

import (
	"testing"

	"github.com/Nikita777nike/RazMedBot/internal/model"
)

func TestIsValidQuestion(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", false},
		{"коротко", false},
		{"   расшифруйте   ", true},
		{"Помогите расшифровать анализ крови", true},
		{"  \t\n  ", false},
	}
	for _, tt := range tests {
		if got := IsValidQuestion(tt.text); got != tt.want {
			t.Fatalf("IsValidQuestion(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestNormalizePromoCode(t *testing.T) {
	if got := NormalizePromoCode("  summer25 "); got != "SUMMER25" {
		t.Fatalf("NormalizePromoCode = %q", got)
	}
}

func TestIsValidPromoCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"SUMMER25", true},
		{"A1", true},
		{"x", false},
		{"лето", false},
		{"ЛЕТО", false},
		{"WITH SPACE", false},
	}
	for _, tt := range tests {
		if got := IsValidPromoCode(tt.code); got != tt.want {
			t.Fatalf("IsValidPromoCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestValidatePromoParams(t *testing.T) {
	if err := ValidatePromoParams(model.DiscountKindPercent, 25, 100); err != nil {
		t.Fatalf("valid percent promo rejected: %v", err)
	}
	if err := ValidatePromoParams(model.DiscountKindFixed, 500, model.UnlimitedUses); err != nil {
		t.Fatalf("valid fixed promo rejected: %v", err)
	}

	for _, tt := range []struct {
		kind  model.DiscountKind
		value float64
		uses  int
	}{
		{model.DiscountKindPercent, 0, 1},
		{model.DiscountKindPercent, 101, 1},
		{model.DiscountKindFixed, 0, 1},
		{model.DiscountKindFixed, -10, 1},
		{"weird", 10, 1},
		{model.DiscountKindPercent, 10, -2},
	} {
		if err := ValidatePromoParams(tt.kind, tt.value, tt.uses); err == nil {
			t.Fatalf("ValidatePromoParams(%q, %v, %d): expected error", tt.kind, tt.value, tt.uses)
		}
	}
}

func TestIsValidRating(t *testing.T) {
	for r, want := range map[int]bool{0: false, 1: true, 5: true, 6: false} {
		if got := IsValidRating(r); got != want {
			t.Fatalf("IsValidRating(%d) = %v, want %v", r, got, want)
		}
	}
}
