package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// NewPostgresUserRepoが正しく初期化されることを検証
func TestNewPostgresUserRepo_Initializes(t *testing.T) {
	repo := NewPostgresUserRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// 一意制約違反が制約名に応じた重複エラーに変換されることを検証
func TestMapUniqueViolation_ByConstraint(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"users_username_key", ErrDuplicateUsername},
		{"users_email_key", ErrDuplicateEmail},
		{"users_google_id_key", ErrDuplicateGoogleID},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			err := &pq.Error{Code: "23505", Constraint: tt.constraint}
			got := mapUniqueViolation(err)
			if !errors.Is(got, tt.want) {
				t.Errorf("mapUniqueViolation(%s) = %v, want %v", tt.constraint, got, tt.want)
			}
		})
	}
}

// ラップされたpq.Errorも判定できることを検証
func TestMapUniqueViolation_WrappedError(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "users_email_key"})
	if got := mapUniqueViolation(err); !errors.Is(got, ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", got)
	}
}

// 未知の制約名の一意制約違反は重複エラーにならないことを検証
func TestMapUniqueViolation_UnknownConstraint(t *testing.T) {
	got := mapUniqueViolation(&pq.Error{Code: "23505", Constraint: "other_key"})
	if got == nil {
		t.Fatal("expected non-nil error")
	}
	for _, sentinel := range []error{ErrDuplicateUsername, ErrDuplicateEmail, ErrDuplicateGoogleID} {
		if errors.Is(got, sentinel) {
			t.Errorf("unexpected sentinel %v", sentinel)
		}
	}
}

// 一意制約違反以外のエラーはnilを返すことを検証
func TestMapUniqueViolation_NonUniqueError(t *testing.T) {
	if got := mapUniqueViolation(&pq.Error{Code: "23503"}); got != nil {
		t.Errorf("expected nil for foreign key violation, got %v", got)
	}
	if got := mapUniqueViolation(errors.New("connection refused")); got != nil {
		t.Errorf("expected nil for generic error, got %v", got)
	}
}
