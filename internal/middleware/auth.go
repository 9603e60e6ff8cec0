package middleware

import (
	"net/http"

	"github.com/hitoshi/fleetman/internal/model"
)

// TokenVerifier はBearerトークンの検証に必要なインターフェース。
// auth.TokenServiceの部分集合として定義する。
type TokenVerifier interface {
	Verify(tokenString string) (*model.Identity, error)
}

// BearerExtractor はAuthorizationヘッダー値からトークンを取り出す関数型。
type BearerExtractor func(header string) (string, bool)

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 認証済みIdentityをリクエストコンテキストに注入するミドルウェアを返す。
// ヘッダー欠落・形式不正・署名不一致・期限切れのいずれも
// 401 UNAUTHENTICATEDで終了し、部分的なIdentityは注入しない。
func NewAuthMiddleware(verifier TokenVerifier, extract BearerExtractor, m AdmissionMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからトークンを取得
			header := r.Header.Get("Authorization")
			if header == "" {
				recordAuthFailure(m, "missing_header")
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			tokenString, ok := extract(header)
			if !ok {
				recordAuthFailure(m, "malformed_header")
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			// 2. 署名と有効期限を検証
			identity, err := verifier.Verify(tokenString)
			if err != nil {
				recordAuthFailure(m, "invalid_token")
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			// 3. 認証済みIdentityをコンテキストに注入
			ctx := ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func recordAuthFailure(m AdmissionMetrics, reason string) {
	if m != nil {
		m.RecordAuthFailure(reason)
	}
}
