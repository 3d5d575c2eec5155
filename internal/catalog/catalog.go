// Package catalog содержит справочник услуг расшифровки и их базовые цены.
package catalog

import "github.com/Nikita777nike/RazMedBot/internal/model"

// Service описывает одну услугу расшифровки.
type Service struct {
	Code  string
	Name  string
	Price int64 // базовая цена в рублях
	// NeedsDemographics — требуется ли возраст и пол пациента для интерпретации.
	NeedsDemographics bool
}

// Порядок соответствует меню выбора услуги.
var services = []Service{
	{Code: "blood", Name: "Анализы крови и мочи", Price: 190, NeedsDemographics: true},
	{Code: "biochem", Name: "Биохимия и гормоны", Price: 290, NeedsDemographics: true},
	{Code: "coag", Name: "Коагулограмма", Price: 240, NeedsDemographics: true},
	{Code: "uzi", Name: "УЗИ", Price: 290, NeedsDemographics: false},
	{Code: "mrt", Name: "МРТ / КТ / рентген", Price: 390, NeedsDemographics: false},
	{Code: "ekg", Name: "ЭКГ / Холтер", Price: 290, NeedsDemographics: false},
	{Code: "docs", Name: "Врачебные заключения и выписки", Price: 190, NeedsDemographics: false},
}

var byCode = func() map[string]Service {
	m := make(map[string]Service, len(services))
	for _, s := range services {
		m[s.Code] = s
	}
	return m
}()

// List возвращает все услуги в порядке отображения.
func List() []Service {
	out := make([]Service, len(services))
	copy(out, services)
	return out
}

// Lookup возвращает услугу по коду.
func Lookup(code string) (Service, error) {
	s, ok := byCode[code]
	if !ok {
		return Service{}, model.NewValidationError("unknown service %q", code)
	}
	return s, nil
}
