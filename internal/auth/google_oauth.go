package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/oauth2"

	"github.com/hitoshi/queso/internal/model"
)

const (
	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	defaultOAuthTimeout = 10 * time.Second

	// ユーザー情報レスポンスの読み込み上限
	maxUserInfoBytes = 1 << 20
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// プロバイダー呼び出し1回あたりのタイムアウト
	Timeout time.Duration
}

// GoogleOAuthProvider はGoogle OAuth 2.0 (Authorization Code + PKCE) による認証を提供する。
// PKCE verifierは署名済みstateに格納するため、サーバー側に状態を持たない。
type GoogleOAuthProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
	timeout     time.Duration
	httpClient  *http.Client
	states      *StateCodec
	sanitizer   *bluemonday.Policy
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig, states *StateCodec) *GoogleOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultGoogleUserInfoURL
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultOAuthTimeout
	}

	return &GoogleOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{"profile", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: config.UserInfoURL,
		timeout:     config.Timeout,
		httpClient:  newNoRedirectClient(),
		states:      states,
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

// newNoRedirectClient はリダイレクトを追跡しないHTTPクライアントを生成する。
// トークンやアクセストークンがリダイレクト先へ転送されることを防ぐ。
func newNoRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// LoginURL はGoogle OAuthの認証URLを生成する。
// 呼び出しごとに新しいPKCE verifierとstateを生成する。
func (p *GoogleOAuthProvider) LoginURL() (string, error) {
	verifier := oauth2.GenerateVerifier()

	state, err := p.states.Encode(verifier)
	if err != nil {
		return "", fmt.Errorf("failed to encode oauth state: %w", err)
	}

	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// googleUserInfo はGoogleのユーザー情報エンドポイントのレスポンス。
// v2 は id、OpenID Connect (v3) は sub を返す。
type googleUserInfo struct {
	ID      string `json:"id"`
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// ExchangeCode はstateを検証してから認可コードをアクセストークンに交換し、ユーザー情報を取得する。
// stateが不正な場合はネットワーク呼び出しを行わない。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code, state string) (*model.ExternalIdentity, error) {
	// 1. stateを検証し、PKCE verifierを取り出す
	verifier, err := p.states.Decode(state)
	if err != nil {
		return nil, oauthErr(StageState, err)
	}
	if code == "" {
		return nil, oauthErr(StageExchange, errors.New("empty authorization code"))
	}

	// 2. 認可コードをアクセストークンに交換
	tok, err := p.exchangeToken(ctx, code, verifier)
	if err != nil {
		return nil, oauthErr(StageExchange, err)
	}

	// 3. アクセストークンでユーザー情報を取得
	info, err := p.fetchUserInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, oauthErr(StageProfile, err)
	}

	return &model.ExternalIdentity{
		Provider:    "google",
		ExternalID:  info.externalID(),
		Email:       strings.TrimSpace(info.Email),
		DisplayName: p.sanitizeName(info.Name),
		AvatarURL:   info.Picture,
	}, nil
}

func (p *GoogleOAuthProvider) exchangeToken(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return tok, nil
}

func (p *GoogleOAuthProvider) fetchUserInfo(ctx context.Context, accessToken string) (*googleUserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}

	if info.externalID() == "" {
		return nil, errors.New("empty id in user info response")
	}
	if info.Email == "" {
		return nil, errors.New("empty email in user info response")
	}

	return &info, nil
}

// sanitizeName は表示名からHTMLを除去し、プレーンテキストとして返す。
func (p *GoogleOAuthProvider) sanitizeName(name string) string {
	return strings.TrimSpace(html.UnescapeString(p.sanitizer.Sanitize(name)))
}

func (u *googleUserInfo) externalID() string {
	if u.ID != "" {
		return u.ID
	}
	return u.Sub
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
