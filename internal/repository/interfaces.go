// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/queso/internal/model"
)

var (
	// ErrUserNotFound は削除対象のユーザーが存在しないことを示す。
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateUsername はユーザー名の一意制約違反を示す。
	ErrDuplicateUsername = errors.New("duplicate username")

	// ErrDuplicateEmail はメールアドレスの一意制約違反を示す。
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrDuplicateGoogleID はGoogleアカウントIDの一意制約違反を示す。
	ErrDuplicateGoogleID = errors.New("duplicate google id")
)

// UserRepository はユーザーデータの永続化インターフェース。
// Find系メソッドは見つからない場合に (nil, nil) を返す。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByGoogleID はGoogleアカウントIDでユーザーを取得する。
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)

	// List は全ユーザーをID順に取得する。
	List(ctx context.Context) ([]*model.User, error)

	// Create はユーザーを作成する。
	// 一意制約違反は ErrDuplicateUsername / ErrDuplicateEmail / ErrDuplicateGoogleID を返す。
	Create(ctx context.Context, user *model.NewUser) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。存在しない場合は ErrUserNotFound を返す。
	DeleteByID(ctx context.Context, id int64) error
}
