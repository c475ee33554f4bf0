// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/queso/internal/metrics"
	"github.com/hitoshi/queso/internal/model"
	"github.com/hitoshi/queso/internal/password"
	"github.com/hitoshi/queso/internal/repository"
)

// 重複ユーザー名を避けるために試す連番の上限
const maxUsernameAttempts = 20

var (
	// ErrUsernameExists はユーザー名が既に使われていることを示す。
	ErrUsernameExists = errors.New("username already exists")
	// ErrEmailExists はメールアドレスが既に登録されていることを示す。
	ErrEmailExists = errors.New("email already exists")
	// ErrUserNotFound はユーザーが存在しないことを示す。
	ErrUserNotFound = errors.New("user not found")
)

// ServiceConfig はユーザーサービスの設定。
type ServiceConfig struct {
	PasswordMinLength int
	UsernamePolicy    UsernamePolicy
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	hash     func(plaintext string) (string, error)
	metrics  metrics.MetricsCollector
	config   ServiceConfig
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, collector metrics.MetricsCollector, config ServiceConfig) *Service {
	if config.PasswordMinLength <= 0 {
		config.PasswordMinLength = DefaultPasswordMinLength
	}
	if config.UsernamePolicy == "" {
		config.UsernamePolicy = PolicyEmailLocalPart
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		userRepo: userRepo,
		hash:     password.Hash,
		metrics:  collector,
		config:   config,
	}
}

// Create はパスワード付きユーザーを登録する。
// ユーザー名、メールアドレスの順に重複を確認し、並行登録による競合は一意制約で検出する。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.User, error) {
	in = in.normalize()
	if err := validateCreateInput(in, s.config.PasswordMinLength); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, ErrUsernameExists
	}

	existing, err = s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	user, err := s.userRepo.Create(ctx, &model.NewUser{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.metrics.RecordUserCreated(metrics.SourceSignup)
	slog.Info("ユーザーを登録しました",
		slog.Int64("user_id", user.ID),
	)
	return user, nil
}

// CreateFromIdentity はOAuthプロフィールからパスワードなしのユーザーを作成する。
// ユーザー名は設定された方針で導出し、重複時は連番を付与する。
func (s *Service) CreateFromIdentity(ctx context.Context, ext *model.ExternalIdentity) (*model.User, error) {
	if ext.ExternalID == "" {
		return nil, &ValidationError{Field: "external_id", Reason: "is required"}
	}
	if err := validateEmail(ext.Email); err != nil {
		return nil, err
	}

	base := deriveUsername(s.config.UsernamePolicy, ext.Email, ext.DisplayName)

	for attempt := 1; attempt <= maxUsernameAttempts; attempt++ {
		candidate := base
		if attempt > 1 {
			candidate = withSuffix(base, attempt)
		}

		existing, err := s.userRepo.FindByUsername(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if existing != nil {
			continue
		}

		user, err := s.userRepo.Create(ctx, &model.NewUser{
			Username:    candidate,
			Email:       ext.Email,
			GoogleID:    ext.ExternalID,
			DisplayName: ext.DisplayName,
			AvatarURL:   ext.AvatarURL,
		})
		if errors.Is(err, repository.ErrDuplicateUsername) {
			// 確認後に同名ユーザーが作成された
			continue
		}
		if errors.Is(err, repository.ErrDuplicateGoogleID) {
			return nil, err
		}
		if err != nil {
			return nil, mapRepoError(err)
		}

		s.metrics.RecordUserCreated(metrics.SourceOAuth)
		slog.Info("OAuthユーザーを作成しました",
			slog.Int64("user_id", user.ID),
			slog.String("provider", ext.Provider),
		)
		return user, nil
	}

	return nil, ErrUsernameExists
}

// Get は指定IDのユーザーを取得する。
func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// List は全ユーザーを取得する。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Delete は指定IDのユーザーを削除する。
// 削除済みユーザーの発行済みトークンは以後の Resolve で失敗する。
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.userRepo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("ユーザーを削除しました",
		slog.Int64("user_id", id),
	)
	return nil
}

// mapRepoError はリポジトリの重複エラーをサービス層のエラーに変換する。
func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicateUsername):
		return ErrUsernameExists
	case errors.Is(err, repository.ErrDuplicateEmail):
		return ErrEmailExists
	default:
		return fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
}
