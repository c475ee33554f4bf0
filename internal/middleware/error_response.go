package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/queso/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスのJSON表現。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// codeStatus はエラーコードごとの既定のHTTPステータス。
// OAUTH_FAILED は失敗段階によって変わるため呼び出し側で指定する。
var codeStatus = map[string]int{
	model.ErrCodeInvalidCredentials: http.StatusUnauthorized,
	model.ErrCodeUnauthorized:       http.StatusUnauthorized,
	model.ErrCodeForbidden:          http.StatusForbidden,
	model.ErrCodeOAuthFailed:        http.StatusBadRequest,
	model.ErrCodeUsernameExists:     http.StatusConflict,
	model.ErrCodeEmailExists:        http.StatusConflict,
	model.ErrCodeUserNotFound:       http.StatusNotFound,
	model.ErrCodeValidation:         http.StatusBadRequest,
	model.ErrCodeRateLimited:        http.StatusTooManyRequests,
	model.ErrCodeInternal:           http.StatusInternalServerError,
}

// StatusForCode はエラーコードに対応するHTTPステータスを返す。未知のコードは500。
func StatusForCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteAPIError はエラーコードから導いたステータスでエラーレスポンスを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
}

// WriteErrorResponse は指定したステータスでエラーレスポンスを書き込む。
// 認証に関わる応答を中継キャッシュに残さないよう no-store を付与する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	body, err := json.Marshal(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
	if err != nil {
		slog.Error("failed to encode error response", slog.String("error", err.Error()))
		http.Error(w, http.StatusText(statusCode), statusCode)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	w.Write(append(body, '\n'))
}

// WriteInternalServerError は詳細を含まない500レスポンスを書き込む。
// 原因は呼び出し側でログに記録すること。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, model.NewInternalError())
}
