// Package token はセッショントークン（HS256署名JWT）の発行と検証を提供する。
//
// トークンのペイロードは {sub, user_id, iat, nbf, exp} で構成される。
// 署名鍵はプロセス起動時に一度だけ読み込み、Keys として各コンポーネントに渡す。
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ValidityWindow はセッショントークンの有効期間。発行時刻から固定で24時間。
const ValidityWindow = 24 * time.Hour

// Keys はHS256の署名鍵を保持する。
// 起動時に一度生成し、以降は読み取り専用で共有する。
type Keys struct {
	secret []byte
}

// NewKeys は署名鍵を生成する。空の秘密鍵は起動時エラーとする。
func NewKeys(secret string) (*Keys, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret is empty")
	}
	return &Keys{secret: []byte(secret)}, nil
}

// SigningKey はHMAC署名に用いる鍵を返す。
func (k *Keys) SigningKey() []byte {
	return k.secret
}

// Claims は検証済みセッショントークンの内容を表す。
type Claims struct {
	UserID    int64
	IssuedAt  time.Time
	NotBefore time.Time
	ExpiresAt time.Time
}

// sessionClaims はJWTペイロードのワイヤ表現。
type sessionClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
}

// Codec はセッショントークンの発行と検証を行う。
type Codec struct {
	keys *Keys
	now  func() time.Time
}

// Option はCodecの設定を変更する。
type Option func(*Codec)

// WithClock は現在時刻の取得関数を差し替える（テスト用）。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec は新しいCodecを生成する。
func NewCodec(keys *Keys, opts ...Option) *Codec {
	c := &Codec{
		keys: keys,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL はトークンの有効期間を返す。
func (c *Codec) TTL() time.Duration {
	return ValidityWindow
}

// Issue はユーザーIDに対するセッショントークンを発行する。
// iat と nbf は現在時刻、exp は現在時刻 + ValidityWindow となる。
func (c *Codec) Issue(userID int64) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("token: invalid user id %d", userID)
	}

	now := c.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ValidityWindow)),
		},
		UserID: userID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.keys.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期間を検証し、Claimsを返す。
// 署名を先に検証し、その後に時刻を検証する。
// 失敗時は *Error を返す（errors.Is で ErrMalformed 等と比較できる）。
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	var sc sessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &sc, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}

	claims, err := sc.validate()
	if err != nil {
		return nil, err
	}

	now := c.now()
	if now.After(claims.ExpiresAt) {
		return nil, &Error{Kind: KindExpired}
	}
	if now.Before(claims.NotBefore) {
		return nil, &Error{Kind: KindNotYetValid}
	}
	return claims, nil
}

func (c *Codec) keyFunc(*jwt.Token) (any, error) {
	return c.keys.secret, nil
}

// validate はペイロードの構造を検証する。
// OAuth state 等の別用途トークン（aud付き）はセッションとして受け付けない。
func (sc *sessionClaims) validate() (*Claims, error) {
	if sc.ExpiresAt == nil || sc.IssuedAt == nil || sc.NotBefore == nil {
		return nil, &Error{Kind: KindMalformed, Err: errors.New("missing time claims")}
	}
	if sc.UserID <= 0 {
		return nil, &Error{Kind: KindMalformed, Err: errors.New("missing user_id")}
	}
	if sc.Subject != strconv.FormatInt(sc.UserID, 10) {
		return nil, &Error{Kind: KindMalformed, Err: errors.New("subject does not match user_id")}
	}
	if len(sc.Audience) > 0 {
		return nil, &Error{Kind: KindMalformed, Err: errors.New("unexpected audience")}
	}

	return &Claims{
		UserID:    sc.UserID,
		IssuedAt:  sc.IssuedAt.Time,
		NotBefore: sc.NotBefore.Time,
		ExpiresAt: sc.ExpiresAt.Time,
	}, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &Error{Kind: KindInvalidSignature, Err: err}
	default:
		return &Error{Kind: KindMalformed, Err: err}
	}
}
