package user

import (
	"fmt"
	"strings"
	"unicode"
)

// UsernamePolicy はOAuthユーザーのユーザー名導出方針を表す。
type UsernamePolicy string

const (
	// PolicyEmailLocalPart はメールアドレスの@より前を使う。
	PolicyEmailLocalPart UsernamePolicy = "email_local_part"
	// PolicyDisplayName は表示名を使い、使えない場合はメールアドレスにフォールバックする。
	PolicyDisplayName UsernamePolicy = "display_name"
)

// ParseUsernamePolicy は設定値を UsernamePolicy に変換する。
func ParseUsernamePolicy(s string) (UsernamePolicy, error) {
	switch UsernamePolicy(s) {
	case PolicyEmailLocalPart, PolicyDisplayName:
		return UsernamePolicy(s), nil
	default:
		return "", fmt.Errorf("unknown username policy: %q", s)
	}
}

// deriveUsername は外部プロフィールからユーザー名の候補を導出する。
// 結果は validateUsername を満たす。
func deriveUsername(policy UsernamePolicy, email, displayName string) string {
	var base string
	if policy == PolicyDisplayName {
		base = slugify(displayName)
	}
	if len(base) < usernameMinLength {
		local, _, _ := strings.Cut(email, "@")
		base = slugify(local)
	}
	if len(base) < usernameMinLength {
		base = "user" + base
	}
	return truncate(base, usernameMaxLength)
}

// slugify は許可文字以外を除去し、空白を '_' に置き換える。
func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '_' || r == '.' || r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte('_')
		}
	}
	return truncate(b.String(), usernameMaxLength)
}

// withSuffix は重複回避用の連番付きユーザー名を返す。
func withSuffix(base string, n int) string {
	suffix := fmt.Sprintf("_%d", n)
	return truncate(base, usernameMaxLength-len(suffix)) + suffix
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
