package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/queso/internal/middleware"
	"github.com/hitoshi/queso/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	LoginWithCredential(ctx context.Context, identifier, plaintext string) (string, error)
	LoginURL() (string, error)
	HandleOAuthCallback(ctx context.Context, code, state string) (string, error)
	Resolve(ctx context.Context, userID int64) (*model.User, error)
	Invalidate(ctx context.Context, userID int64) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// TokenTTL はレスポンスの expires_in に使うトークン有効期間。
	TokenTTL time.Duration
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type loginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
}

// identifier は username_or_email を優先し、空の場合は旧フィールドを使う。
func (req loginRequest) identifier() string {
	for _, v := range []string{req.UsernameOrEmail, req.Email, req.Username} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in,omitempty"`
}

type loginURLResponse struct {
	URL string `json:"url"`
}

type meResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Login はユーザー名またはメールアドレスとパスワードでログインする。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	identifier := req.identifier()
	if identifier == "" || req.Password == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("ユーザー名またはメールアドレスとパスワードは必須です"))
		return
	}

	tok, err := h.service.LoginWithCredential(r.Context(), identifier, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeToken(w, tok)
}

// Me は認証済みユーザーの情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	user, err := h.service.Resolve(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
	})
}

// Logout はログアウトを受け付ける。トークンは失効しない。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	if err := h.service.Invalidate(r.Context(), userID); err != nil {
		// 失敗してもログアウト自体は成功として扱う
		slog.Warn("logout failed", slog.String("error", err.Error()))
	}

	w.WriteHeader(http.StatusOK)
}

// GoogleLogin はGoogle OAuthの認証URLを返す。
// redirect=true の場合は認証URLへリダイレクトする。
// GET /api/auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	url, err := h.service.LoginURL()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if r.URL.Query().Get("redirect") == "true" {
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	}

	writeJSON(w, http.StatusOK, loginURLResponse{URL: url})
}

// GoogleCallback は認可コードとstateを受け取り、セッショントークンを発行する。
// POST /api/auth/google/callback
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Code == "" || req.State == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewOAuthFailedError("codeとstateは必須です"))
		return
	}

	tok, err := h.service.HandleOAuthCallback(r.Context(), req.Code, req.State)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.writeToken(w, tok)
}

func (h *AuthHandler) writeToken(w http.ResponseWriter, tok string) {
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     tok,
		TokenType: "Bearer",
		ExpiresIn: int64(h.config.TokenTTL / time.Second),
	})
}
