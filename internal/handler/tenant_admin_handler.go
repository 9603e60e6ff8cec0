package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/tenant"
)

// TenantRegistry はテナント管理APIが必要とするレジストリ操作。
type TenantRegistry interface {
	Create(ctx context.Context, name, subdomain, connURL string) (*model.TenantDescriptor, error)
	ListActive(ctx context.Context) ([]*model.TenantDescriptor, error)
	Deactivate(ctx context.Context, subdomain string) error
}

// MigrateTenantFunc は新規テナントDBへのスキーマ適用関数。
// テストではモック実装に差し替える。
type MigrateTenantFunc func(databaseURL string) error

// TenantAdminHandler はテナント管理APIのHTTPハンドラー。
// ルーター側でCORPORATEレベルゲートを通過したリクエストのみが到達する。
type TenantAdminHandler struct {
	registry      TenantRegistry
	migrateTenant MigrateTenantFunc
}

// NewTenantAdminHandler はTenantAdminHandlerを生成する。
func NewTenantAdminHandler(registry TenantRegistry, migrateTenant MigrateTenantFunc) *TenantAdminHandler {
	return &TenantAdminHandler{
		registry:      registry,
		migrateTenant: migrateTenant,
	}
}

// subdomainPattern はサブドメインとして許可する形式。
// 小文字英数字とハイフンのみ、先頭末尾は英数字。
var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// tenantCreateRequest はテナント作成リクエストのボディ。
type tenantCreateRequest struct {
	Name          string `json:"name"`
	Subdomain     string `json:"subdomain"`
	ConnectionURL string `json:"connection_url"`
}

// tenantResponse はテナントのAPIレスポンス。接続URLは含めない。
type tenantResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Create は新しいテナントを登録し、テナントDBにスキーマを適用する。
// POST /api/admin/tenants
func (h *TenantAdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req tenantCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	// 1. 入力検証
	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("テナント名が空です"))
		return
	}
	if !subdomainPattern.MatchString(req.Subdomain) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("サブドメインは小文字英数字とハイフンのみ使用できます"))
		return
	}
	if req.ConnectionURL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("接続URLが空です"))
		return
	}

	// 2. テナント登録
	d, err := h.registry.Create(r.Context(), req.Name, req.Subdomain, req.ConnectionURL)
	if err != nil {
		if errors.Is(err, tenant.ErrDuplicateSubdomain) {
			writeAPIErrorResponse(w, http.StatusConflict, model.NewDuplicateSubdomainError(req.Subdomain))
			return
		}
		handleServiceError(w, err)
		return
	}

	// 3. テナントDBへスキーマを適用
	if err := h.migrateTenant(req.ConnectionURL); err != nil {
		slog.Error("tenant schema migration failed",
			slog.String("tenant_id", d.ID),
			slog.String("subdomain", d.Subdomain),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewConnectionError())
		return
	}

	slog.Info("tenant created",
		slog.String("tenant_id", d.ID),
		slog.String("subdomain", d.Subdomain),
	)
	writeJSON(w, http.StatusCreated, toTenantResponse(d))
}

// List は有効なテナントの一覧を返す。
// GET /api/admin/tenants
func (h *TenantAdminHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.registry.ListActive(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result := make([]tenantResponse, 0, len(tenants))
	for _, d := range tenants {
		result = append(result, toTenantResponse(d))
	}
	writeJSON(w, http.StatusOK, result)
}

// Deactivate はテナントを無効化し、接続プールを破棄する。
// DELETE /api/admin/tenants/:subdomain
func (h *TenantAdminHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	subdomain := chi.URLParam(r, "subdomain")

	if err := h.registry.Deactivate(r.Context(), subdomain); err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			writeAPIErrorResponse(w, http.StatusNotFound, model.NewTenantNotFoundError(subdomain))
			return
		}
		handleServiceError(w, err)
		return
	}

	slog.Info("tenant deactivated", slog.String("subdomain", subdomain))
	w.WriteHeader(http.StatusNoContent)
}

// toTenantResponse はTenantDescriptorからAPIレスポンスに変換する。
func toTenantResponse(d *model.TenantDescriptor) tenantResponse {
	return tenantResponse{
		ID:        d.ID,
		Name:      d.Name,
		Subdomain: d.Subdomain,
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt,
	}
}
