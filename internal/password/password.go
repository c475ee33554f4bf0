// Package password はパスワードのハッシュ化と照合を提供する。
//
// ハッシュはargon2idを用い、PHC文字列形式
// ($argon2id$v=19$m=...,t=...,p=...$salt$hash) で保存する。
// 保存値にパラメータを含むため、既定値を変更しても既存ハッシュは検証できる。
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrHashing はハッシュ化処理または保存済みハッシュの解析に失敗したことを示す。
var ErrHashing = errors.New("password hashing failed")

// Params はargon2idのコストパラメータを表す。
type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams はOWASP推奨の最小構成 (m=19MiB, t=2, p=1)。
var DefaultParams = Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// 保存済みハッシュから読み取るパラメータの許容範囲。
// 破損した値で巨大なメモリ確保や長時間の計算を起こさないようにする。
const (
	maxMemory     = 1 << 20 // KiB (1GiB)
	maxIterations = 16
	minSaltLength = 8
	maxSaltLength = 64
	minKeyLength  = 16
	maxKeyLength  = 64
)

// Hasher はパラメータを保持したハッシュ化器。
type Hasher struct {
	params Params
}

// NewHasher は指定パラメータのHasherを生成する。
func NewHasher(params Params) *Hasher {
	return &Hasher{params: params}
}

var defaultHasher = NewHasher(DefaultParams)

// Hash は既定パラメータで平文パスワードをハッシュ化する。
func Hash(plaintext string) (string, error) {
	return defaultHasher.Hash(plaintext)
}

// Verify は平文パスワードが保存済みハッシュと一致するかを返す。
func Verify(plaintext, record string) (bool, error) {
	return defaultHasher.Verify(plaintext, record)
}

// Hash は新しいランダムソルトで平文パスワードをハッシュ化する。
// 同じ平文でも呼び出しごとに異なる文字列を返す。
func (h *Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: generate salt: %v", ErrHashing, err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify は平文パスワードが保存済みハッシュと一致するかを返す。
// 空のハッシュ（OAuth専用ユーザー）は常に不一致で、エラーにはならない。
// 解析できないハッシュはErrHashingを返す。
func (h *Hasher) Verify(plaintext, record string) (bool, error) {
	if record == "" {
		return false, nil
	}

	params, salt, expected, err := decode(record)
	if err != nil {
		return false, err
	}

	actual := argon2.IDKey([]byte(plaintext), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}

func decode(record string) (Params, []byte, []byte, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash
	parts := strings.Split(record, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Params{}, nil, nil, fmt.Errorf("%w: unexpected record format", ErrHashing)
	}
	if parts[1] != "argon2id" {
		return Params{}, nil, nil, fmt.Errorf("%w: unsupported algorithm %q", ErrHashing, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: parse version: %v", ErrHashing, err)
	}
	if version != argon2.Version {
		return Params{}, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrHashing, version)
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: parse params: %v", ErrHashing, err)
	}
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return Params{}, nil, nil, fmt.Errorf("%w: invalid params", ErrHashing)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: decode salt: %v", ErrHashing, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Params{}, nil, nil, fmt.Errorf("%w: decode hash", ErrHashing)
	}
	if p.Memory > maxMemory || p.Iterations > maxIterations ||
		len(salt) < minSaltLength || len(salt) > maxSaltLength ||
		len(key) < minKeyLength || len(key) > maxKeyLength {
		return Params{}, nil, nil, fmt.Errorf("%w: params out of range", ErrHashing)
	}

	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
