// Package clock позволяет подменять источник времени в бизнес-логике.
package clock

import "time"

// Clock возвращает текущее время. Проверки временных окон сравнивают
// сохранённые метки с Now, а не ведут обратный отсчёт в памяти.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem возвращает часы на основе time.Now.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type fixedClock struct {
	now time.Time
}

// NewFixed возвращает часы, всегда показывающие один и тот же момент (для тестов).
func NewFixed(t time.Time) Clock {
	return fixedClock{now: t.UTC()}
}

func (f fixedClock) Now() time.Time {
	return f.now
}
