// Package handler はHTTP APIハンドラーを提供する。
// 各ハンドラーはリクエストコンテキストからテナント接続プールと
// 作業エリアスコープを取り出し、すべてのクエリをスコープと交差させる。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/fleetman/internal/model"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeTenantNotFound:
		return http.StatusNotFound
	case model.ErrCodeTenantInactive:
		return http.StatusForbidden
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeForbiddenLevel:
		return http.StatusForbidden
	case model.ErrCodeConnectionError:
		return http.StatusServiceUnavailable
	case model.ErrCodeWorkAreaNotFound, model.ErrCodeProjectNotFound, model.ErrCodePersonnelNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateSubdomain:
		return http.StatusConflict
	case model.ErrCodeValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeInvalidRequestBody はリクエストボディの解析失敗レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}
