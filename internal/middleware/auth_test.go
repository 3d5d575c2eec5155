package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func TestAuthMiddleware_ValidSignature(t *testing.T) {
	m := NewAuthMiddleware("test-secret", "op-key")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetUserIDFromContext(r.Context())
		if !ok {
			t.Fatal("идентификатор пользователя отсутствует в контексте")
		}
		if id != 42 {
			t.Fatalf("id из контекста = %d, ожидался 42", id)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	r.Header.Set("X-User-ID", "42")
	r.Header.Set("X-Signature", m.Sign(42))

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatal("следующий обработчик не был вызван")
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret", "op-key")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("следующий обработчик не должен вызываться")
	})

	tests := []struct {
		name      string
		userID    string
		signature string
	}{
		{name: "без заголовков"},
		{name: "без подписи", userID: "42"},
		{name: "чужая подпись", userID: "42", signature: NewAuthMiddleware("other-secret", "").Sign(42)},
		{name: "подпись другого id", userID: "42", signature: m.Sign(7)},
		{name: "нечисловой id", userID: "abc", signature: m.sign("abc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			if tt.userID != "" {
				r.Header.Set("X-User-ID", tt.userID)
			}
			if tt.signature != "" {
				r.Header.Set("X-Signature", tt.signature)
			}

			w := httptest.NewRecorder()
			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("статус = %d, ожидался 401", w.Code)
			}
		})
	}
}

func TestOperatorMiddleware(t *testing.T) {
	m := NewAuthMiddleware("test-secret", "op-key")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name string
		key  string
		want int
	}{
		{name: "верный ключ", key: "op-key", want: http.StatusOK},
		{name: "неверный ключ", key: "wrong", want: http.StatusForbidden},
		{name: "без ключа", key: "", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/operator/orders/1/respond", nil)
			if tt.key != "" {
				r.Header.Set("X-Operator-Key", tt.key)
			}

			w := httptest.NewRecorder()
			m.OperatorMiddleware(next).ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Fatalf("статус = %d, ожидался %d", w.Code, tt.want)
			}
		})
	}
}

func TestOperatorMiddleware_EmptyConfiguredKey(t *testing.T) {
	// Пустой операторский ключ в конфигурации закрывает панель целиком.
	m := NewAuthMiddleware("test-secret", "")

	r := httptest.NewRequest(http.MethodGet, "/api/operator/stats", nil)
	r.Header.Set("X-Operator-Key", "")

	w := httptest.NewRecorder()
	m.OperatorMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("следующий обработчик не должен вызываться")
	})).ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("статус = %d, ожидался 403", w.Code)
	}
}

func TestSignDeterministic(t *testing.T) {
	m := NewAuthMiddleware("test-secret", "")
	if m.Sign(1) != m.sign(strconv.FormatInt(1, 10)) {
		t.Fatal("Sign и sign расходятся")
	}
}
