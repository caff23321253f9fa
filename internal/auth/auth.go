package auth

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	cookieName = "auth_token"
	tokenTTL   = 365 * 24 * time.Hour // 1 год
)

type Auth struct {
	secret []byte
}

func New(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// Подписать токен с userID в subject
func (a *Auth) sign(userID string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Разобрать и проверить токен, вернуть userID
func (a *Auth) parse(tokenString string) (string, bool) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// Выдать куки с новым userID
func (a *Auth) issueCookie(w http.ResponseWriter) string {
	userID := uuid.NewString()
	tokenString, err := a.sign(userID)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(tokenTTL),
		SameSite: http.SameSiteLaxMode,
	})
	return userID
}

// Проверим наличие и корректность куки auth
func (a *Auth) GetOrSetUserID(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return a.issueCookie(w)
	}

	userID, ok := a.parse(cookie.Value)
	if !ok {
		return a.issueCookie(w)
	}
	return userID
}

// проверить, авторизован ли пользователь
func (a *Auth) ValidateUserID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return a.parse(cookie.Value)
}

// Имитация валидной куки для тестов
func (a *Auth) SignCookieValue(userID string) string {
	tokenString, _ := a.sign(userID)
	return tokenString
}
