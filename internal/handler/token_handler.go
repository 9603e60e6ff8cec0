package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/fleetman/internal/model"
)

// TokenIssuer はアクセストークンの発行インターフェース。
type TokenIssuer interface {
	Issue(userID string, level model.Level) (string, error)
}

// TokenHandler は開発環境向けのトークン発行ハンドラー。
// TOKEN_ISSUER_ENABLED=trueの場合のみルーターに登録される。
// 本番ではIdPが発行したトークンを受け付ける前提のため公開しない。
type TokenHandler struct {
	issuer TokenIssuer
}

// NewTokenHandler はTokenHandlerを生成する。
func NewTokenHandler(issuer TokenIssuer) *TokenHandler {
	return &TokenHandler{issuer: issuer}
}

// tokenRequest はトークン発行リクエストのボディ。
type tokenRequest struct {
	UserID string `json:"user_id"`
	Level  string `json:"level"`
}

// tokenResponse はトークン発行レスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Issue は指定ユーザー・レベルのアクセストークンを発行する。
// POST /auth/token
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.UserID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("user_idが空です"))
		return
	}
	level, err := model.ParseLevel(req.Level)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("levelはsite/company/corporateのいずれかを指定してください"))
		return
	}

	token, err := h.issuer.Issue(req.UserID, level)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
	})
}

// Pinger はコントロールプレーンDBの疎通確認インターフェース。
// *sql.DBが実装する。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はヘルスチェックハンドラー。テナント解決の前段に置かれ、
// 認証なしで到達できる。
type HealthHandler struct {
	pinger Pinger
}

// NewHealthHandler はHealthHandlerを生成する。pingerがnilの場合は
// DB疎通確認を行わない。
func NewHealthHandler(pinger Pinger) *HealthHandler {
	return &HealthHandler{pinger: pinger}
}

// Check は稼働状態を返す。コントロールプレーンDBに到達できない場合は503。
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.PingContext(ctx); err != nil {
			writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewConnectionError())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}