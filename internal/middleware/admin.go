package middleware

import (
	"net/http"

	"github.com/hitoshi/fleetman/internal/model"
)

// NewAdminGateMiddleware はCORPORATEレベルを要求する最終ゲートを返す。
// 認可レベルのみを判定し、作業エリアスコープは一切参照しない。
// 破壊的操作やテナント管理などのごく一部のルートにのみ適用する。
func NewAdminGateMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := IdentityFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			if identity.Level != model.LevelCorporate {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenLevelError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
