// Package session хранит незавершённые анкеты оформления заказа в памяти.
// Анкета живёт от выбора услуги до отправки деталей и не переживает рестарт:
// всё, что должно пережить рестарт, лежит в заказе.
package session

import (
	"sync"
	"time"

	"github.com/Nikita777nike/RazMedBot/internal/model"
)

// Step — шаг анкеты оформления заказа.
type Step string

const (
	StepService      Step = "service"
	StepPromo        Step = "promo"
	StepPayment      Step = "payment"
	StepDemographics Step = "demographics"
	StepDocuments    Step = "documents"
	StepQuestion     Step = "question"
	StepDone         Step = "done"
)

// MaxDocuments — предел числа документов в одной анкете.
const MaxDocuments = 10

// Intake — накопленное состояние анкеты одного пользователя.
type Intake struct {
	UserID      int64
	Step        Step
	ServiceCode string
	PromoCode   string
	OrderID     int64
	Age         *int
	Sex         string
	Documents   []model.Document
	Question    string
	StartedAt   time.Time
	UpdatedAt   time.Time
}

// Manager управляет анкетами пользователей. Безопасен для конкурентного доступа.
type Manager struct {
	mu      sync.RWMutex
	intakes map[int64]*Intake
	ttl     time.Duration
	now     func() time.Time
}

// NewManager создаёт менеджер анкет с заданным временем жизни брошенной анкеты.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		intakes: make(map[int64]*Intake),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Start открывает новую анкету, затирая прежнюю, если она была.
func (m *Manager) Start(userID int64) *Intake {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	in := &Intake{
		UserID:    userID,
		Step:      StepService,
		StartedAt: now,
		UpdatedAt: now,
	}
	m.intakes[userID] = in
	return copyIntake(in)
}

// Get возвращает копию текущей анкеты пользователя.
// Просроченная анкета считается отсутствующей.
func (m *Manager) Get(userID int64) (*Intake, bool) {
	m.mu.RLock()
	in, ok := m.intakes[userID]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if m.ttl > 0 && m.now().Sub(in.UpdatedAt) > m.ttl {
		m.Cancel(userID)
		return nil, false
	}
	return copyIntake(in), true
}

// Update применяет fn к анкете пользователя под блокировкой.
// Возвращает false, если анкеты нет или она просрочена.
func (m *Manager) Update(userID int64, fn func(*Intake)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.intakes[userID]
	if !ok {
		return false
	}
	if m.ttl > 0 && m.now().Sub(in.UpdatedAt) > m.ttl {
		delete(m.intakes, userID)
		return false
	}
	fn(in)
	in.UpdatedAt = m.now()
	return true
}

// Cancel удаляет анкету пользователя. Отмена отсутствующей анкеты не ошибка.
func (m *Manager) Cancel(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.intakes, userID)
}

// Sweep удаляет просроченные анкеты и возвращает их число.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	n := 0
	for id, in := range m.intakes {
		if in.UpdatedAt.Before(cutoff) {
			delete(m.intakes, id)
			n++
		}
	}
	return n
}

func copyIntake(in *Intake) *Intake {
	out := *in
	out.Documents = make([]model.Document, len(in.Documents))
	copy(out.Documents, in.Documents)
	return &out
}
