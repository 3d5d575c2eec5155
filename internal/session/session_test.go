package session

import (
	"sync"
	"testing"
	"time"

	"github.com/Nikita777nike/RazMedBot/internal/model"
)

func TestManagerStartAndGet(t *testing.T) {
	m := NewManager(time.Hour)

	if _, ok := m.Get(1); ok {
		t.Fatal("ожидалось отсутствие анкеты до Start")
	}

	in := m.Start(1)
	if in.Step != StepService {
		t.Errorf("начальный шаг = %s, ожидался %s", in.Step, StepService)
	}

	got, ok := m.Get(1)
	if !ok {
		t.Fatal("анкета не найдена после Start")
	}
	if got.UserID != 1 {
		t.Errorf("UserID = %d, ожидался 1", got.UserID)
	}
}

func TestManagerUpdate(t *testing.T) {
	m := NewManager(time.Hour)
	m.Start(7)

	ok := m.Update(7, func(in *Intake) {
		in.ServiceCode = "biochem"
		in.Step = StepPromo
	})
	if !ok {
		t.Fatal("Update вернул false для существующей анкеты")
	}

	got, _ := m.Get(7)
	if got.ServiceCode != "biochem" || got.Step != StepPromo {
		t.Errorf("анкета не обновилась: %+v", got)
	}

	if m.Update(8, func(*Intake) {}) {
		t.Error("Update вернул true для отсутствующей анкеты")
	}
}

func TestManagerGetReturnsCopy(t *testing.T) {
	m := NewManager(time.Hour)
	m.Start(1)
	m.Update(1, func(in *Intake) {
		in.Documents = append(in.Documents, model.Document{FileID: "f1", Type: "photo"})
	})

	got, _ := m.Get(1)
	got.Documents[0].FileID = "mutated"
	got.ServiceCode = "mutated"

	fresh, _ := m.Get(1)
	if fresh.Documents[0].FileID != "f1" || fresh.ServiceCode != "" {
		t.Error("Get вернул не копию: внешняя мутация видна в менеджере")
	}
}

func TestManagerCancel(t *testing.T) {
	m := NewManager(time.Hour)
	m.Start(1)
	m.Cancel(1)
	if _, ok := m.Get(1); ok {
		t.Error("анкета найдена после Cancel")
	}
	// отмена отсутствующей анкеты не должна паниковать
	m.Cancel(99)
}

func TestManagerStartResets(t *testing.T) {
	m := NewManager(time.Hour)
	m.Start(1)
	m.Update(1, func(in *Intake) { in.ServiceCode = "uzi" })

	m.Start(1)
	got, _ := m.Get(1)
	if got.ServiceCode != "" || got.Step != StepService {
		t.Errorf("повторный Start не сбросил анкету: %+v", got)
	}
}

func TestManagerTTL(t *testing.T) {
	m := NewManager(time.Minute)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	m.Start(1)
	current = current.Add(2 * time.Minute)

	if _, ok := m.Get(1); ok {
		t.Error("просроченная анкета видна через Get")
	}
	if m.Update(1, func(*Intake) {}) {
		t.Error("Update вернул true для просроченной анкеты")
	}
}

func TestManagerSweep(t *testing.T) {
	m := NewManager(time.Minute)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	m.Start(1)
	m.Start(2)
	current = current.Add(30 * time.Second)
	m.Start(3)
	current = current.Add(45 * time.Second)

	if n := m.Sweep(); n != 2 {
		t.Errorf("Sweep удалил %d анкет, ожидалось 2", n)
	}
	if _, ok := m.Get(3); !ok {
		t.Error("свежая анкета удалена Sweep")
	}
}

func TestManagerConcurrentAccess(t *testing.T) {
	m := NewManager(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			m.Start(id)
			m.Update(id, func(in *Intake) { in.Step = StepDocuments })
			m.Get(id)
			m.Cancel(id)
		}(int64(i % 10))
	}
	wg.Wait()
}
