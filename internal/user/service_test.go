package user

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/queso/internal/metrics"
	"github.com/hitoshi/queso/internal/model"
	"github.com/hitoshi/queso/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn       func(ctx context.Context, id int64) (*model.User, error)
	findByUsernameFn func(ctx context.Context, username string) (*model.User, error)
	findByEmailFn    func(ctx context.Context, email string) (*model.User, error)
	listFn           func(ctx context.Context) ([]*model.User, error)
	createFn         func(ctx context.Context, nu *model.NewUser) (*model.User, error)
	deleteByIDFn     func(ctx context.Context, id int64) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []*model.User{}, nil
}
func (m *mockUserRepo) Create(ctx context.Context, nu *model.NewUser) (*model.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, nu)
	}
	return &model.User{ID: 1, Username: nu.Username, Email: nu.Email, PasswordHash: nu.PasswordHash, GoogleID: nu.GoogleID}, nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id int64) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func newTestService(repo repository.UserRepository, cfg ServiceConfig) *Service {
	svc := NewService(repo, metrics.NopCollector{}, cfg)
	svc.hash = func(p string) (string, error) { return "hashed:" + p, nil }
	return svc
}

func validInput() CreateInput {
	return CreateInput{Username: "alice", Email: "alice@example.com", Password: "password123"}
}

// --- Create ---

// TestService_Create_Success はパスワードがハッシュ化されて保存されることを検証する。
func TestService_Create_Success(t *testing.T) {
	var saved *model.NewUser
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, nu *model.NewUser) (*model.User, error) {
			saved = nu
			return &model.User{ID: 10, Username: nu.Username, Email: nu.Email, PasswordHash: nu.PasswordHash}, nil
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	user, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != 10 {
		t.Errorf("expected id 10, got %d", user.ID)
	}
	if saved.PasswordHash != "hashed:password123" {
		t.Errorf("expected hashed password to be stored, got %q", saved.PasswordHash)
	}
	if saved.GoogleID != "" {
		t.Errorf("expected empty google id, got %q", saved.GoogleID)
	}
}

// TestService_Create_TrimsInput は前後の空白が除去されることを検証する。
func TestService_Create_TrimsInput(t *testing.T) {
	var saved *model.NewUser
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, nu *model.NewUser) (*model.User, error) {
			saved = nu
			return &model.User{ID: 1}, nil
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	_, err := svc.Create(context.Background(), CreateInput{Username: "  alice ", Email: " alice@example.com ", Password: "password123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Username != "alice" || saved.Email != "alice@example.com" {
		t.Errorf("expected trimmed input, got %q / %q", saved.Username, saved.Email)
	}
}

// TestService_Create_UsernameExists はユーザー名重複が先に検出されることを検証する。
func TestService_Create_UsernameExists(t *testing.T) {
	repo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			return &model.User{ID: 1, Username: username}, nil
		},
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: 2, Email: email}, nil
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	_, err := svc.Create(context.Background(), validInput())
	if !errors.Is(err, ErrUsernameExists) {
		t.Errorf("expected ErrUsernameExists, got %v", err)
	}
}

// TestService_Create_EmailExists はメールアドレス重複を検証する。
func TestService_Create_EmailExists(t *testing.T) {
	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: 2, Email: email}, nil
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	_, err := svc.Create(context.Background(), validInput())
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got %v", err)
	}
}

// TestService_Create_RaceMappedFromConstraint は事前確認後の競合が一意制約から判定されることを検証する。
func TestService_Create_RaceMappedFromConstraint(t *testing.T) {
	tests := []struct {
		name    string
		repoErr error
		want    error
	}{
		{"username", repository.ErrDuplicateUsername, ErrUsernameExists},
		{"email", repository.ErrDuplicateEmail, ErrEmailExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockUserRepo{
				createFn: func(ctx context.Context, nu *model.NewUser) (*model.User, error) {
					return nil, tt.repoErr
				},
			}
			svc := newTestService(repo, ServiceConfig{})

			_, err := svc.Create(context.Background(), validInput())
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestService_Create_ValidationErrors は入力検証を検証する。
func TestService_Create_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input CreateInput
		field string
	}{
		{"short username", CreateInput{Username: "ab", Email: "a@example.com", Password: "password123"}, "username"},
		{"long username", CreateInput{Username: strings.Repeat("a", 33), Email: "a@example.com", Password: "password123"}, "username"},
		{"invalid username chars", CreateInput{Username: "al ice", Email: "a@example.com", Password: "password123"}, "username"},
		{"empty email", CreateInput{Username: "alice", Email: "", Password: "password123"}, "email"},
		{"invalid email", CreateInput{Username: "alice", Email: "not-an-email", Password: "password123"}, "email"},
		{"email with name", CreateInput{Username: "alice", Email: "Alice <a@example.com>", Password: "password123"}, "email"},
		{"short password", CreateInput{Username: "alice", Email: "a@example.com", Password: "short"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			createCalled := false
			repo := &mockUserRepo{
				createFn: func(ctx context.Context, nu *model.NewUser) (*model.User, error) {
					createCalled = true
					return &model.User{ID: 1}, nil
				},
			}
			svc := newTestService(repo, ServiceConfig{})

			_, err := svc.Create(context.Background(), tt.input)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, ve.Field)
			}
			if createCalled {
				t.Error("Create should not be called on validation error")
			}
		})
	}
}

// TestService_Create_PasswordMinLengthConfigurable はパスワード最小長が設定可能であることを検証する。
func TestService_Create_PasswordMinLengthConfigurable(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, ServiceConfig{PasswordMinLength: 12})

	in := validInput()
	in.Password = "elevenchars"
	_, err := svc.Create(context.Background(), in)

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "password" {
		t.Errorf("expected password ValidationError, got %v", err)
	}
}

// --- CreateFromIdentity ---

// TestService_CreateFromIdentity_EmailLocalPart はメールアドレスからユーザー名が導出されることを検証する。
func TestService_CreateFromIdentity_EmailLocalPart(t *testing.T) {
	var saved *model.NewUser
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, nu *model.NewUser) (*model.User, error) {
			saved = nu
			return &model.User{ID: 5, Username: nu.Username}, nil
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	_, err := svc.CreateFromIdentity(context.Background(), &model.ExternalIdentity{
		Provider:    "google",
		ExternalID:  "g-123",
		Email:       "bob.smith@example.com",
		DisplayName: "Bob Smith",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Username != "bob.smith" {
		t.Errorf("expected username bob.smith, got %q", saved.Username)
	}
	if saved.PasswordHash != "" {
		t.Error("OAuth user must not have a password hash")
	}
	if saved.GoogleID != "g-123" {
		t.Errorf("expected google id g-123, got %q", saved.GoogleID)
	}
}

// TestService_CreateFromIdentity_DisplayNamePolicy は表示名方針を検証する。
func TestService_CreateFromIdentity_DisplayNamePolicy(t *testing.T) {
	var saved *model.NewUser
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, nu *model.NewUser) (*model.User, error) {
			saved = nu
			return &model.User{ID: 5}, nil
		},
	}
	svc := newTestService(repo, ServiceConfig{UsernamePolicy: PolicyDisplayName})

	_, err := svc.CreateFromIdentity(context.Background(), &model.ExternalIdentity{
		ExternalID:  "g-1",
		Email:       "bob@example.com",
		DisplayName: "Bob Smith",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Username != "bob_smith" {
		t.Errorf("expected bob_smith, got %q", saved.Username)
	}
}

// TestService_CreateFromIdentity_DuplicateUsernameGetsSuffix は重複時に連番が付与されることを検証する。
func TestService_CreateFromIdentity_DuplicateUsernameGetsSuffix(t *testing.T) {
	taken := map[string]bool{"bob": true, "bob_2": true}
	var saved *model.NewUser
	repo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			if taken[username] {
				return &model.User{ID: 1, Username: username}, nil
			}
			return nil, nil
		},
		createFn: func(ctx context.Context, nu *model.NewUser) (*model.User, error) {
			saved = nu
			return &model.User{ID: 9, Username: nu.Username}, nil
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	_, err := svc.CreateFromIdentity(context.Background(), &model.ExternalIdentity{ExternalID: "g-1", Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Username != "bob_3" {
		t.Errorf("expected bob_3, got %q", saved.Username)
	}
}

// TestService_CreateFromIdentity_RaceOnUsernameRetries は作成時の一意制約違反で次の候補を試すことを検証する。
func TestService_CreateFromIdentity_RaceOnUsernameRetries(t *testing.T) {
	calls := 0
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, nu *model.NewUser) (*model.User, error) {
			calls++
			if calls == 1 {
				return nil, repository.ErrDuplicateUsername
			}
			return &model.User{ID: 3, Username: nu.Username}, nil
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	user, err := svc.CreateFromIdentity(context.Background(), &model.ExternalIdentity{ExternalID: "g-1", Email: "carol@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Username != "carol_2" {
		t.Errorf("expected carol_2, got %q", user.Username)
	}
}

// TestService_CreateFromIdentity_EmailExists は既存ユーザーとメールアドレスが衝突する場合を検証する。
func TestService_CreateFromIdentity_EmailExists(t *testing.T) {
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, nu *model.NewUser) (*model.User, error) {
			return nil, repository.ErrDuplicateEmail
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	_, err := svc.CreateFromIdentity(context.Background(), &model.ExternalIdentity{ExternalID: "g-1", Email: "dave@example.com"})
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got %v", err)
	}
}

// TestService_CreateFromIdentity_DuplicateGoogleIDPassedThrough はGoogle ID重複がそのまま返ることを検証する。
func TestService_CreateFromIdentity_DuplicateGoogleIDPassedThrough(t *testing.T) {
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, nu *model.NewUser) (*model.User, error) {
			return nil, repository.ErrDuplicateGoogleID
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	_, err := svc.CreateFromIdentity(context.Background(), &model.ExternalIdentity{ExternalID: "g-1", Email: "dave@example.com"})
	if !errors.Is(err, repository.ErrDuplicateGoogleID) {
		t.Errorf("expected ErrDuplicateGoogleID, got %v", err)
	}
}

// TestService_CreateFromIdentity_ExhaustedAttempts は候補が尽きた場合を検証する。
func TestService_CreateFromIdentity_ExhaustedAttempts(t *testing.T) {
	repo := &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			return &model.User{ID: 1}, nil
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	_, err := svc.CreateFromIdentity(context.Background(), &model.ExternalIdentity{ExternalID: "g-1", Email: "eve@example.com"})
	if !errors.Is(err, ErrUsernameExists) {
		t.Errorf("expected ErrUsernameExists, got %v", err)
	}
}

// --- Get / List / Delete ---

// TestService_Get_NotFound は存在しないユーザーでErrUserNotFoundを返すことを検証する。
func TestService_Get_NotFound(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, ServiceConfig{})

	_, err := svc.Get(context.Background(), 99)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

// TestService_Get_Found はユーザーが取得できることを検証する。
func TestService_Get_Found(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return &model.User{ID: id, Username: "alice"}, nil
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	user, err := svc.Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != 7 {
		t.Errorf("expected id 7, got %d", user.ID)
	}
}

// TestService_List_PropagatesError はリポジトリのエラーが伝播することを検証する。
func TestService_List_PropagatesError(t *testing.T) {
	repo := &mockUserRepo{
		listFn: func(ctx context.Context) ([]*model.User, error) {
			return nil, errors.New("db down")
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	if _, err := svc.List(context.Background()); err == nil {
		t.Error("expected error")
	}
}

// TestService_Delete_NotFound は存在しないユーザーの削除でErrUserNotFoundを返すことを検証する。
func TestService_Delete_NotFound(t *testing.T) {
	repo := &mockUserRepo{
		deleteByIDFn: func(ctx context.Context, id int64) error {
			return repository.ErrUserNotFound
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	err := svc.Delete(context.Background(), 1)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

// TestService_Delete_Success は削除が成功することを検証する。
func TestService_Delete_Success(t *testing.T) {
	var deletedID int64
	repo := &mockUserRepo{
		deleteByIDFn: func(ctx context.Context, id int64) error {
			deletedID = id
			return nil
		},
	}
	svc := newTestService(repo, ServiceConfig{})

	if err := svc.Delete(context.Background(), 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deletedID != 4 {
		t.Errorf("expected id 4 deleted, got %d", deletedID)
	}
}
