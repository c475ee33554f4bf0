// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/queso/internal/model"
	"github.com/hitoshi/queso/internal/token"
)

var (
	// ErrMissingCredentials はAuthorizationヘッダーが無いか、Bearer形式でないことを示す。
	ErrMissingCredentials = errors.New("missing bearer credentials")

	// ErrUnauthorized はトークン検証に失敗したことを示す。
	ErrUnauthorized = errors.New("unauthorized")
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証済み主体を格納するためのキー。
var identityContextKey = contextKey("identity")

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// VerifyFailureRecorder はトークン検証失敗を記録する。
type VerifyFailureRecorder interface {
	RecordTokenVerifyFailure(kind string)
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// スキーム名は大文字小文字を区別しない。
func BearerToken(r *http.Request) (string, error) {
	values := r.Header.Values("Authorization")
	if len(values) != 1 {
		return "", ErrMissingCredentials
	}

	scheme, credential, ok := strings.Cut(strings.TrimSpace(values[0]), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingCredentials
	}

	credential = strings.TrimSpace(credential)
	if credential == "" || strings.ContainsAny(credential, " \t") {
		return "", ErrMissingCredentials
	}
	return credential, nil
}

// Authenticate はリクエストのBearerトークンを検証し、認証済み主体を返す。
// ヘッダー不備は ErrMissingCredentials、検証失敗は ErrUnauthorized をラップして返す。
func Authenticate(verifier TokenVerifier, r *http.Request) (*model.AuthenticatedIdentity, error) {
	raw, err := BearerToken(r)
	if err != nil {
		return nil, err
	}

	claims, err := verifier.Verify(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return &model.AuthenticatedIdentity{UserID: claims.UserID}, nil
}

// NewAuthMiddleware はBearerトークンを検証するミドルウェアを返す。
// 認証済み主体をリクエストコンテキストに注入する。
// 失敗時は原因に関わらず同一の401レスポンスを返し、原因はログにのみ記録する。
func NewAuthMiddleware(verifier TokenVerifier, recorder VerifyFailureRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := Authenticate(verifier, r)
			if err != nil {
				kind := failureKind(err)
				if recorder != nil {
					recorder.RecordTokenVerifyFailure(kind)
				}
				slog.Warn("authentication failed",
					slog.String("reason", kind),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteUnauthorized(w)
				return
			}

			ctx := ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteUnauthorized は統一フォーマットの401レスポンスを書き込む。
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="queso"`)
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// failureKind はログとメトリクス用の失敗種別を返す。
func failureKind(err error) string {
	if errors.Is(err, ErrMissingCredentials) {
		return "missing_credentials"
	}
	var te *token.Error
	if errors.As(err, &te) {
		return te.Kind.String()
	}
	return "unknown"
}

// IdentityFromContext はリクエストコンテキストから認証済み主体を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*model.AuthenticatedIdentity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.AuthenticatedIdentity)
	if !ok || identity == nil || identity.UserID <= 0 {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (int64, error) {
	identity, err := IdentityFromContext(ctx)
	if err != nil {
		return 0, err
	}
	return identity.UserID, nil
}

// ContextWithIdentity はコンテキストに認証済み主体を注入する。
// 外側のロギングミドルウェアにもユーザーIDを伝える。
func ContextWithIdentity(ctx context.Context, identity *model.AuthenticatedIdentity) context.Context {
	if st, ok := ctx.Value(requestStateKey).(*requestState); ok {
		st.userID = identity.UserID
	}
	return context.WithValue(ctx, identityContextKey, identity)
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return ContextWithIdentity(ctx, &model.AuthenticatedIdentity{UserID: userID})
}
