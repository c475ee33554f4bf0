package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/queso/internal/auth"
	"github.com/hitoshi/queso/internal/middleware"
	"github.com/hitoshi/queso/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	loginWithCredentialFn func(ctx context.Context, identifier, plaintext string) (string, error)
	loginURLFn            func() (string, error)
	handleCallbackFn      func(ctx context.Context, code, state string) (string, error)
	resolveFn             func(ctx context.Context, userID int64) (*model.User, error)
	invalidateFn          func(ctx context.Context, userID int64) error
}

func (m *mockAuthService) LoginWithCredential(ctx context.Context, identifier, plaintext string) (string, error) {
	if m.loginWithCredentialFn != nil {
		return m.loginWithCredentialFn(ctx, identifier, plaintext)
	}
	return "", nil
}

func (m *mockAuthService) LoginURL() (string, error) {
	if m.loginURLFn != nil {
		return m.loginURLFn()
	}
	return "", nil
}

func (m *mockAuthService) HandleOAuthCallback(ctx context.Context, code, state string) (string, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code, state)
	}
	return "", nil
}

func (m *mockAuthService) Resolve(ctx context.Context, userID int64) (*model.User, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockAuthService) Invalidate(ctx context.Context, userID int64) error {
	if m.invalidateFn != nil {
		return m.invalidateFn(ctx, userID)
	}
	return nil
}

// withUserID はテスト用にリクエストコンテキストに認証済みユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID int64) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- POST /api/auth/login ---

func TestAuthHandler_Login_Success(t *testing.T) {
	svc := &mockAuthService{
		loginWithCredentialFn: func(ctx context.Context, identifier, plaintext string) (string, error) {
			if identifier != "alice" || plaintext != "correct-horse" {
				t.Errorf("got (%q, %q)", identifier, plaintext)
			}
			return "signed.jwt.token", nil
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{TokenTTL: 24 * time.Hour})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"username_or_email":"alice","password":"correct-horse"}`))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body tokenResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Token != "signed.jwt.token" {
		t.Errorf("token = %q", body.Token)
	}
	if body.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", body.TokenType)
	}
	if body.ExpiresIn != 86400 {
		t.Errorf("expires_in = %d, want 86400", body.ExpiresIn)
	}
}

// 旧フィールド（email / username）も識別子として受け付ける
func TestAuthHandler_Login_LegacyFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"email", `{"email":"alice@example.com","password":"pw"}`, "alice@example.com"},
		{"username", `{"username":"alice","password":"pw"}`, "alice"},
		{"prefers username_or_email", `{"username_or_email":"a1","username":"a2","password":"pw"}`, "a1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			svc := &mockAuthService{
				loginWithCredentialFn: func(ctx context.Context, identifier, plaintext string) (string, error) {
					got = identifier
					return "tok", nil
				},
			}
			h := NewAuthHandler(svc, AuthHandlerConfig{})

			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Login(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if got != tt.want {
				t.Errorf("identifier = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthHandler_Login_InvalidCredentials_Returns401(t *testing.T) {
	svc := &mockAuthService{
		loginWithCredentialFn: func(ctx context.Context, identifier, plaintext string) (string, error) {
			return "", auth.ErrInvalidCredentials
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"username_or_email":"alice","password":"wrong"}`))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidCredentials)
	}
}

func TestAuthHandler_Login_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing password", `{"username_or_email":"alice"}`},
		{"missing identifier", `{"password":"pw"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockAuthService{
				loginWithCredentialFn: func(ctx context.Context, identifier, plaintext string) (string, error) {
					called = true
					return "", nil
				},
			}
			h := NewAuthHandler(svc, AuthHandlerConfig{})

			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Login(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if called {
				t.Error("service should not be called")
			}
		})
	}
}

func TestAuthHandler_Login_InternalError_HidesDetail(t *testing.T) {
	svc := &mockAuthService{
		loginWithCredentialFn: func(ctx context.Context, identifier, plaintext string) (string, error) {
			return "", errors.New("pq: connection refused")
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"username_or_email":"alice","password":"pw"}`))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "pq:") {
		t.Errorf("response leaks store error: %s", w.Body.String())
	}
}

// --- GET /api/auth/me ---

func TestAuthHandler_Me_Success(t *testing.T) {
	svc := &mockAuthService{
		resolveFn: func(ctx context.Context, userID int64) (*model.User, error) {
			return &model.User{
				ID:           userID,
				Username:     "alice",
				Email:        "alice@example.com",
				PasswordHash: "$argon2id$secret",
			}, nil
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), 42)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if strings.Contains(w.Body.String(), "argon2id") {
		t.Error("response must not contain the password hash")
	}

	var body meResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != 42 || body.Username != "alice" || body.Email != "alice@example.com" {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_Me_NoIdentity_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Me_DeletedUser_Returns404(t *testing.T) {
	svc := &mockAuthService{
		resolveFn: func(ctx context.Context, userID int64) (*model.User, error) {
			return nil, auth.ErrUserNotFound
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), 7)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// --- POST /api/auth/logout ---

func TestAuthHandler_Logout_ReturnsOK(t *testing.T) {
	var invalidated int64
	svc := &mockAuthService{
		invalidateFn: func(ctx context.Context, userID int64) error {
			invalidated = userID
			return nil
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{})

	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), 9)
	w := httptest.NewRecorder()

	h.Logout(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
	if invalidated != 9 {
		t.Errorf("invalidated user = %d, want 9", invalidated)
	}
}

// --- GET /api/auth/google/login ---

func TestAuthHandler_GoogleLogin_ReturnsURL(t *testing.T) {
	svc := &mockAuthService{
		loginURLFn: func() (string, error) {
			return "https://accounts.example.com/auth?state=xyz", nil
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil)
	w := httptest.NewRecorder()

	h.GoogleLogin(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body loginURLResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.URL != "https://accounts.example.com/auth?state=xyz" {
		t.Errorf("url = %q", body.URL)
	}
}

func TestAuthHandler_GoogleLogin_RedirectQuery(t *testing.T) {
	svc := &mockAuthService{
		loginURLFn: func() (string, error) {
			return "https://accounts.example.com/auth", nil
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/login?redirect=true", nil)
	w := httptest.NewRecorder()

	h.GoogleLogin(w, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if loc := w.Header().Get("Location"); loc != "https://accounts.example.com/auth" {
		t.Errorf("Location = %q", loc)
	}
}

// --- POST /api/auth/google/callback ---

func TestAuthHandler_GoogleCallback_Success(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code, state string) (string, error) {
			if code != "auth-code" || state != "signed-state" {
				t.Errorf("got (%q, %q)", code, state)
			}
			return "session-token", nil
		},
	}
	h := NewAuthHandler(svc, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/google/callback",
		strings.NewReader(`{"code":"auth-code","state":"signed-state"}`))
	w := httptest.NewRecorder()

	h.GoogleCallback(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body tokenResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Token != "session-token" || body.TokenType != "Bearer" {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_GoogleCallback_MissingParams_Returns400(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, AuthHandlerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/google/callback",
		strings.NewReader(`{"code":"auth-code"}`))
	w := httptest.NewRecorder()

	h.GoogleCallback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// OAuthの失敗段階ごとにステータスコードが変わる
func TestAuthHandler_GoogleCallback_OAuthErrorStatus(t *testing.T) {
	tests := []struct {
		stage auth.OAuthStage
		want  int
	}{
		{auth.StageState, http.StatusBadRequest},
		{auth.StageExchange, http.StatusUnauthorized},
		{auth.StageProfile, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			svc := &mockAuthService{
				handleCallbackFn: func(ctx context.Context, code, state string) (string, error) {
					return "", &auth.OAuthError{Stage: tt.stage, Err: errors.New("provider said: invalid_grant")}
				},
			}
			h := NewAuthHandler(svc, AuthHandlerConfig{})

			req := httptest.NewRequest(http.MethodPost, "/api/auth/google/callback",
				strings.NewReader(`{"code":"c","state":"s"}`))
			w := httptest.NewRecorder()

			h.GoogleCallback(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if strings.Contains(w.Body.String(), "invalid_grant") {
				t.Errorf("response leaks provider error: %s", w.Body.String())
			}
			if body := decodeErrorBody(t, w); body.Code != model.ErrCodeOAuthFailed {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeOAuthFailed)
			}
		})
	}
}
