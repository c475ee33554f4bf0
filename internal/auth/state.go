package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/queso/internal/token"
)

const (
	// stateAudience はstateトークンをセッショントークンと区別するための aud。
	stateAudience = "oauth-state"

	// DefaultStateTTL はOAuth stateの既定有効期間。
	DefaultStateTTL = 10 * time.Minute
)

// stateClaims はOAuth stateのペイロード。
// PKCE verifierをサーバー側に保存せずにコールバックまで運ぶ。
type stateClaims struct {
	jwt.RegisteredClaims
	Verifier string `json:"pkce_verifier"`
}

// StateCodec はOAuth stateパラメータの署名・検証を行う。
// セッショントークンと同じ署名鍵を使うが、aud で用途を分離する。
type StateCodec struct {
	keys *token.Keys
	ttl  time.Duration
	now  func() time.Time
}

// NewStateCodec はStateCodecを生成する。ttl が0以下の場合は既定値を使う。
func NewStateCodec(keys *token.Keys, ttl time.Duration) *StateCodec {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateCodec{keys: keys, ttl: ttl, now: time.Now}
}

// Encode はPKCE verifierを含む署名済みstateを生成する。
// nonceにより同一verifierでも毎回異なる値になる。
func (c *StateCodec) Encode(verifier string) (string, error) {
	now := c.now()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Verifier: verifier,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.keys.SigningKey())
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

// Decode はstateを検証し、PKCE verifierを返す。
// 失敗時は ErrInvalidState をラップしたエラーを返す。
func (c *StateCodec) Decode(state string) (string, error) {
	if state == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidState)
	}

	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims,
		func(*jwt.Token) (any, error) { return c.keys.SigningKey(), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	if !validVerifier(claims.Verifier) {
		return "", fmt.Errorf("%w: invalid pkce verifier", ErrInvalidState)
	}
	return claims.Verifier, nil
}

// validVerifier はRFC 7636のcode_verifier制約（43〜128文字の unreserved 文字）を検査する。
func validVerifier(v string) bool {
	if len(v) < 43 || len(v) > 128 {
		return false
	}
	for _, r := range v {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-', r == '.', r == '_', r == '~':
		default:
			return false
		}
	}
	return true
}
