package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrWeakSecret секрет короче 32 байт или не в base64
	ErrWeakSecret = errors.New("секрет JWT должен быть base64 и не короче 32 байт")
	// ErrInvalidToken подпись, срок или формат токена неверны
	ErrInvalidToken = errors.New("недействительный токен")
)

// Claims представляет JWT claims
type Claims struct {
	PlayerID uint64 `json:"player_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// TokenService подписывает и проверяет HMAC токены общим секретом.
// Токены выпускает внешний сервис аккаунтов с тем же секретом.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenService создает сервис из секрета в base64
func NewTokenService(secret string) (*TokenService, error) {
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil || len(decoded) < 32 {
		return nil, ErrWeakSecret
	}
	return &TokenService{secret: decoded, issuer: "mmo-level", ttl: 24 * time.Hour}, nil
}

// GenerateSecureSecret генерирует новый секрет в base64
func GenerateSecureSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

// Generate выпускает токен игрока
func (s *TokenService) Generate(playerID uint64, username string, isAdmin bool) (string, error) {
	now := time.Now()
	claims := &Claims{
		PlayerID: playerID,
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate проверяет подпись и срок токена
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
