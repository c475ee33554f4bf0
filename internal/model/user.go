// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHash が空のユーザーはOAuth専用でパスワードログインできない。
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	GoogleID     string
	DisplayName  string
	AvatarURL    string
	CreatedAt    time.Time
}

// HasPassword はパスワードログインが可能なユーザーかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// NewUser はユーザー作成時の入力を表す。
// PasswordHash はハッシュ化済みの値のみを受け付ける。
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	GoogleID     string
	DisplayName  string
	AvatarURL    string
}

// ExternalIdentity はOAuthプロバイダから取得したプロフィールを表す。
type ExternalIdentity struct {
	Provider    string
	ExternalID  string
	Email       string
	DisplayName string
	AvatarURL   string
}

// AuthenticatedIdentity は検証済みトークンから得たリクエスト主体を表す。
type AuthenticatedIdentity struct {
	UserID int64
}
