package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials は識別子またはパスワードが一致しないことを示す。
	// ユーザー不在とパスワード誤りを区別しない。
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound はトークンが指すユーザーが存在しないことを示す。
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidState はOAuth stateの改ざん・期限切れ・形式不正を示す。
	ErrInvalidState = errors.New("invalid oauth state")
)

// OAuthStage はOAuthフローのどの段階で失敗したかを表す。
type OAuthStage string

const (
	StageState    OAuthStage = "state"
	StageExchange OAuthStage = "exchange"
	StageProfile  OAuthStage = "profile"
)

// OAuthError はOAuthフローの失敗を段階付きで表す。
type OAuthError struct {
	Stage OAuthStage
	Err   error
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("oauth %s failed: %v", e.Stage, e.Err)
}

func (e *OAuthError) Unwrap() error {
	return e.Err
}

func oauthErr(stage OAuthStage, err error) *OAuthError {
	return &OAuthError{Stage: stage, Err: err}
}
