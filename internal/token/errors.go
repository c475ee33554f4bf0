package token

// Kind はトークン検証失敗の種別を表す。
type Kind int

const (
	KindMalformed Kind = iota + 1
	KindInvalidSignature
	KindExpired
	KindNotYetValid
)

// String はメトリクスのラベルやログに用いる種別名を返す。
func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindInvalidSignature:
		return "invalid_signature"
	case KindExpired:
		return "expired"
	case KindNotYetValid:
		return "not_yet_valid"
	default:
		return "unknown"
	}
}

// Error はトークン検証エラー。
type Error struct {
	Kind Kind
	Err  error
}

// 比較用の種別エラー。errors.Is(err, ErrExpired) のように使う。
var (
	ErrMalformed        = &Error{Kind: KindMalformed}
	ErrInvalidSignature = &Error{Kind: KindInvalidSignature}
	ErrExpired          = &Error{Kind: KindExpired}
	ErrNotYetValid      = &Error{Kind: KindNotYetValid}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return "token " + e.Kind.String() + ": " + e.Err.Error()
	}
	return "token " + e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is は種別が一致すれば同一エラーとみなす。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
