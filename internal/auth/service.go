// Package auth はパスワードログイン、Google OAuthログイン、セッショントークン発行を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/queso/internal/metrics"
	"github.com/hitoshi/queso/internal/model"
	"github.com/hitoshi/queso/internal/password"
	"github.com/hitoshi/queso/internal/repository"
	"github.com/hitoshi/queso/internal/token"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// LoginURL はstateとPKCEチャレンジを含むOAuth認証URLを生成する。
	LoginURL() (string, error)
	// ExchangeCode はstateを検証し、認可コードをトークンに交換してユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code, state string) (*model.ExternalIdentity, error)
}

// UserProvisioner はOAuthで初回ログインしたユーザーを作成する。
type UserProvisioner interface {
	CreateFromIdentity(ctx context.Context, ext *model.ExternalIdentity) (*model.User, error)
}

// Service は認証に関するビジネスロジックを提供する。
// 状態を持たないため、複数リクエストから同時に呼び出せる。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	provisioner UserProvisioner
	codec       *token.Codec
	metrics     metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	provisioner UserProvisioner,
	codec *token.Codec,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		provisioner: provisioner,
		codec:       codec,
		metrics:     collector,
	}
}

// LoginWithCredential はユーザー名またはメールアドレスとパスワードで認証し、セッショントークンを発行する。
// ユーザー不在、パスワード不一致、パスワード未設定（OAuth専用）はいずれも ErrInvalidCredentials となる。
func (s *Service) LoginWithCredential(ctx context.Context, identifier, plaintext string) (string, error) {
	identifier = strings.TrimSpace(identifier)

	user, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		s.metrics.RecordLogin(metrics.MethodPassword, metrics.ResultError)
		return "", fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		// 応答時間からユーザーの存在を推測されないよう、ダミーハッシュで照合する
		_, _ = password.Verify(plaintext, dummyRecord())
		s.metrics.RecordLogin(metrics.MethodPassword, metrics.ResultFailure)
		slog.Warn("login failed", slog.String("reason", "unknown identifier"))
		return "", ErrInvalidCredentials
	}

	ok, err := password.Verify(plaintext, user.PasswordHash)
	if err != nil {
		s.metrics.RecordLogin(metrics.MethodPassword, metrics.ResultError)
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		s.metrics.RecordLogin(metrics.MethodPassword, metrics.ResultFailure)
		slog.Warn("login failed",
			slog.Int64("user_id", user.ID),
			slog.String("reason", "password mismatch"),
		)
		return "", ErrInvalidCredentials
	}

	tok, err := s.codec.Issue(user.ID)
	if err != nil {
		s.metrics.RecordLogin(metrics.MethodPassword, metrics.ResultError)
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.metrics.RecordLogin(metrics.MethodPassword, metrics.ResultSuccess)
	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("method", metrics.MethodPassword),
	)
	return tok, nil
}

// findByIdentifier はユーザー名で検索し、見つからず識別子が@を含む場合はメールアドレスで検索する。
func (s *Service) findByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	if identifier == "" {
		return nil, nil
	}

	user, err := s.userRepo.FindByUsername(ctx, identifier)
	if err != nil || user != nil {
		return user, err
	}

	if strings.Contains(identifier, "@") {
		return s.userRepo.FindByEmail(ctx, identifier)
	}
	return nil, nil
}

// LoginURL はGoogle OAuthの認証URLを生成する。
func (s *Service) LoginURL() (string, error) {
	return s.oauth.LoginURL()
}

// HandleOAuthCallback はOAuthコールバックを処理し、セッショントークンを発行する。
func (s *Service) HandleOAuthCallback(ctx context.Context, code, state string) (string, error) {
	ext, err := s.oauth.ExchangeCode(ctx, code, state)
	if err != nil {
		var oe *OAuthError
		if errors.As(err, &oe) {
			s.metrics.RecordOAuthFailure(string(oe.Stage))
		}
		s.metrics.RecordLogin(metrics.MethodGoogle, metrics.ResultFailure)
		slog.Warn("oauth callback failed", slog.String("error", err.Error()))
		return "", err
	}

	return s.LoginWithOAuth(ctx, ext)
}

// LoginWithOAuth は外部プロフィールに紐づくユーザーでログインする。
// 未登録の場合はユーザーを自動作成する。
func (s *Service) LoginWithOAuth(ctx context.Context, ext *model.ExternalIdentity) (string, error) {
	user, err := s.userRepo.FindByGoogleID(ctx, ext.ExternalID)
	if err != nil {
		s.metrics.RecordLogin(metrics.MethodGoogle, metrics.ResultError)
		return "", fmt.Errorf("failed to find user by google id: %w", err)
	}

	if user != nil {
		slog.Info("existing user logged in",
			slog.Int64("user_id", user.ID),
			slog.String("provider", ext.Provider),
		)
	} else {
		user, err = s.provisioner.CreateFromIdentity(ctx, ext)
		if errors.Is(err, repository.ErrDuplicateGoogleID) {
			// 同一アカウントの並行ログインで先に作成された場合
			user, err = s.userRepo.FindByGoogleID(ctx, ext.ExternalID)
			if err == nil && user == nil {
				err = ErrUserNotFound
			}
		}
		if err != nil {
			s.metrics.RecordLogin(metrics.MethodGoogle, metrics.ResultError)
			return "", fmt.Errorf("failed to create user from oauth identity: %w", err)
		}
		slog.Info("new user created",
			slog.Int64("user_id", user.ID),
			slog.String("provider", ext.Provider),
		)
	}

	tok, err := s.codec.Issue(user.ID)
	if err != nil {
		s.metrics.RecordLogin(metrics.MethodGoogle, metrics.ResultError)
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.metrics.RecordLogin(metrics.MethodGoogle, metrics.ResultSuccess)
	return tok, nil
}

// Resolve は認証済みユーザーIDからユーザーを取得する。
// トークン発行後に削除されたユーザーは ErrUserNotFound となる。
func (s *Service) Resolve(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Invalidate はログアウトを受け付ける。
// トークンはステートレスなため失効させず、クライアント側での破棄に委ねる。
// 発行済みトークンは有効期限まで検証に成功し続ける。
func (s *Service) Invalidate(ctx context.Context, userID int64) error {
	slog.Info("user logged out", slog.Int64("user_id", userID))
	return nil
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// dummyRecord はユーザー不在時の照合に用いるハッシュを返す。初回呼び出し時に一度だけ生成する。
func dummyRecord() string {
	dummyOnce.Do(func() {
		h, err := password.Hash("queso-dummy-password")
		if err == nil {
			dummyHash = h
		}
	})
	return dummyHash
}
