// Package auth はBearerトークンの検証と発行を提供する。
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/hitoshi/fleetman/internal/model"
)

// ErrInvalidToken はトークンが検証に失敗したことを示す。
// 形式不正・署名不一致・期限切れのいずれでも同一のエラーを返し、
// 失敗理由を呼び出し元に区別させない。
var ErrInvalidToken = errors.New("invalid token")

// Claims はアクセストークンに埋め込むクレーム。
// subにユーザーID、levelに認可レベルを持つ。
type Claims struct {
	Level string `json:"level"`
	jwt.RegisteredClaims
}

// TokenServiceConfig はトークンサービスの設定を保持する。
type TokenServiceConfig struct {
	Secret   string        // HMAC署名鍵
	Issuer   string        // issクレームの値
	TokenTTL time.Duration // 発行するトークンの有効期間
}

// TokenService はHMAC署名付きJWTの検証と発行を行う。
// 文字列の形状（長さ等）による受理は一切行わず、署名と有効期限を
// 暗号学的に検証する。
type TokenService struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	return &TokenService{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		tokenTTL: cfg.TokenTTL,
	}
}

// Verify はトークン文字列を検証し、認証済みIdentityを返す。
// 署名方式（HS256）・署名・有効期限・subクレームの存在を確認する。
// いずれかの検証に失敗した場合は部分的なIdentityを返さず、
// ErrInvalidTokenのみを返す。
func (s *TokenService) Verify(tokenString string) (*model.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		// 署名方式の確認。alg=noneや非対称方式へのすり替えを拒否する
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	level, err := model.ParseLevel(claims.Level)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &model.Identity{
		UserID: claims.Subject,
		Level:  level,
	}, nil
}

// Issue は指定ユーザー・レベルのアクセストークンを発行する。
// 開発用トークン発行エンドポイントおよびテストで使用する。
func (s *TokenService) Issue(userID string, level model.Level) (string, error) {
	now := time.Now()
	claims := &Claims{
		Level: level.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ExtractBearer はAuthorizationヘッダー値からBearerトークンを取り出す。
// "Bearer <token>" 形式のみを受け付ける。
func ExtractBearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
