package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/queso/internal/auth"
	"github.com/hitoshi/queso/internal/middleware"
	"github.com/hitoshi/queso/internal/model"
	"github.com/hitoshi/queso/internal/user"
)

// リクエストボディの上限（1MB）
const maxRequestBodySize = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをJSONとしてデコードする。
// 失敗時はVALIDATION_ERRORを書き込み、falseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディの解析に失敗しました"))
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// ストアやプロバイダーの生のエラー文言はクライアントに返さない。
func handleServiceError(w http.ResponseWriter, err error) {
	var (
		oauthErr *auth.OAuthError
		valErr   *user.ValidationError
		apiErr   *model.APIError
	)

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
	case errors.As(err, &oauthErr):
		middleware.WriteErrorResponse(w, oauthStatus(oauthErr.Stage),
			model.NewOAuthFailedError(oauthReason(oauthErr.Stage)))
	case errors.Is(err, user.ErrUsernameExists):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewUsernameExistsError())
	case errors.Is(err, user.ErrEmailExists):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewEmailExistsError())
	case errors.Is(err, user.ErrUserNotFound), errors.Is(err, auth.ErrUserNotFound):
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
	case errors.As(err, &valErr):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(valErr.Error()))
	case errors.As(err, &apiErr):
		middleware.WriteAPIError(w, apiErr)
	default:
		slog.Error("internal server error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// oauthStatus はOAuthの失敗段階をHTTPステータスコードに変換する。
func oauthStatus(stage auth.OAuthStage) int {
	switch stage {
	case auth.StageState:
		return http.StatusBadRequest
	case auth.StageExchange:
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

func oauthReason(stage auth.OAuthStage) string {
	switch stage {
	case auth.StageState:
		return "stateが無効または期限切れです"
	case auth.StageExchange:
		return "認可コードの交換に失敗しました"
	default:
		return "プロフィールの取得に失敗しました"
	}
}
