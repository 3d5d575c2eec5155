package catalog

import (
	"errors"
	"testing"

	"github.com/Nikita777nike/RazMedBot/internal/model"
)

func TestLookupKnownService(t *testing.T) {
	s, err := Lookup("biochem")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if s.Price != 290 || !s.NeedsDemographics {
		t.Fatalf("unexpected service: %+v", s)
	}
}

func TestLookupUnknownService(t *testing.T) {
	_, err := Lookup("nope")
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestListPricesArePositive(t *testing.T) {
	all := List()
	if len(all) == 0 {
		t.Fatalf("catalog is empty")
	}
	for _, s := range all {
		if s.Price <= 0 {
			t.Fatalf("service %s has non-positive price %d", s.Code, s.Price)
		}
		if s.Code == "" || s.Name == "" {
			t.Fatalf("service with empty code or name: %+v", s)
		}
	}
}
