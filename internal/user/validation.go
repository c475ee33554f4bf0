package user

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 32

	// DefaultPasswordMinLength はパスワードの既定最小文字数。
	DefaultPasswordMinLength = 8
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// ValidationError は入力検証エラーを表す。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// CreateInput はユーザー登録の入力を表す。
type CreateInput struct {
	Username string
	Email    string
	Password string
}

// normalize は前後の空白を除去した入力を返す。パスワードはそのまま扱う。
func (in CreateInput) normalize() CreateInput {
	return CreateInput{
		Username: strings.TrimSpace(in.Username),
		Email:    strings.TrimSpace(in.Email),
		Password: in.Password,
	}
}

func validateCreateInput(in CreateInput, passwordMinLength int) error {
	if err := validateUsername(in.Username); err != nil {
		return err
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if len([]rune(in.Password)) < passwordMinLength {
		return &ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", passwordMinLength)}
	}
	return nil
}

func validateUsername(username string) error {
	n := len(username)
	if n < usernameMinLength || n > usernameMaxLength {
		return &ValidationError{Field: "username", Reason: fmt.Sprintf("must be %d-%d characters", usernameMinLength, usernameMaxLength)}
	}
	if !usernamePattern.MatchString(username) {
		return &ValidationError{Field: "username", Reason: "may only contain letters, digits, '_', '.' and '-'"}
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Reason: "is required"}
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	return nil
}
