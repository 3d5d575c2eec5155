// Package middleware содержит HTTP middleware сервиса расшифровки медицинских документов.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
)

type contextKey string

const userIDKey contextKey = "userID"

const (
	userIDHeader    = "X-User-ID"
	signatureHeader = "X-Signature"
	operatorHeader  = "X-Operator-Key"
)

// AuthMiddleware проверяет подлинность запросов, приходящих от шлюза мессенджера.
// Шлюз подписывает идентификатор пользователя HMAC-SHA256 с общим секретом.
type AuthMiddleware struct {
	secretKey   []byte
	operatorKey []byte
}

// NewAuthMiddleware создаёт middleware с указанными секретом шлюза и операторским ключом.
func NewAuthMiddleware(secret, operatorKey string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey:   key,
		operatorKey: []byte(operatorKey),
	}
}

// Middleware проверяет подпись идентификатора пользователя и кладёт его в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := r.Header.Get(userIDHeader)
		signature := r.Header.Get(signatureHeader)
		if idStr == "" || signature == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		if !hmac.Equal([]byte(signature), []byte(a.sign(idStr))) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		userID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || userID <= 0 {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OperatorMiddleware пускает только запросы с верным операторским ключом.
func (a *AuthMiddleware) OperatorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(operatorHeader)
		if len(a.operatorKey) == 0 || !hmac.Equal([]byte(key), a.operatorKey) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Sign возвращает подпись идентификатора пользователя. Используется шлюзом и тестами.
func (a *AuthMiddleware) Sign(userID int64) string {
	return a.sign(strconv.FormatInt(userID, 10))
}

func (a *AuthMiddleware) sign(idStr string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(idStr))
	return hex.EncodeToString(mac.Sum(nil))
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
