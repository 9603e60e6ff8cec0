package middleware

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/scope"
)

// AssignmentFinderFactory はリクエストのテナント接続プールに束縛された
// AssignmentFinderを生成する。repositoryパッケージのコンストラクタを渡す。
type AssignmentFinderFactory func(db *sql.DB) scope.AssignmentFinder

// NewScopeMiddleware は認証済みIdentityから作業エリアスコープを計算し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 認証ミドルウェアとテナント解決ミドルウェアの後に配置すること。
//
// スコープは毎リクエスト計算され、リクエストをまたいでキャッシュされない。
// 割り当ての変更が次のリクエストから即座に反映されることを保証する。
func NewScopeMiddleware(calc *scope.Calculator, newFinder AssignmentFinderFactory) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := IdentityFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			db, err := DBFromContext(r.Context())
			if err != nil {
				slog.Error("scope calculation without tenant database",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			s, err := calc.Compute(r.Context(), identity, newFinder(db))
			if err != nil {
				slog.Error("scope calculation failed",
					slog.String("user_id", identity.UserID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			ctx := ContextWithScope(r.Context(), s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
