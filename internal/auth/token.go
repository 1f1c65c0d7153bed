package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/africashands/platform/internal/model"
)

// ErrInvalidToken はトークンが検証できない場合のエラー。
var ErrInvalidToken = errors.New("invalid token")

const tokenIssuer = "africashands"

// Claims はロールトークンのクレーム。SubjectはユーザーID、IDは発行元のセッションID。
type Claims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer はHS256で署名したロールトークンを発行・検証する。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueToken はセッションに紐付いた、ユーザーとロールを含むトークンを発行する。
// 有効期限はセッションの有効期間を超えない。
func (t *TokenIssuer) IssueToken(sessionID, userID, email string, role model.Role) (string, time.Time, error) {
	if sessionID == "" {
		return "", time.Time{}, fmt.Errorf("session ID is required")
	}
	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := &Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken はトークンを検証してクレームを返す。
func (t *TokenIssuer) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyToken はトークンを検証し、含まれるユーザーとロール、発行元のセッションIDを返す。
// 不明なロールは一般ユーザーとして扱う。
func (t *TokenIssuer) VerifyToken(tokenString string) (model.Actor, string, error) {
	claims, err := t.ParseToken(tokenString)
	if err != nil {
		return model.Actor{}, "", err
	}
	role := claims.Role
	if !role.Valid() {
		role = model.RoleUser
	}
	return model.Actor{UserID: claims.Subject, Role: role}, claims.ID, nil
}
