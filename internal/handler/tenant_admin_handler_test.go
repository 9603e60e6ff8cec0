package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/tenant"
)

// mockTenantRegistry は関数フィールドで挙動を差し替えるモックレジストリ。
type mockTenantRegistry struct {
	createFunc     func(ctx context.Context, name, subdomain, connURL string) (*model.TenantDescriptor, error)
	listActiveFunc func(ctx context.Context) ([]*model.TenantDescriptor, error)
	deactivateFunc func(ctx context.Context, subdomain string) error
}

func (m *mockTenantRegistry) Create(ctx context.Context, name, subdomain, connURL string) (*model.TenantDescriptor, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, name, subdomain, connURL)
	}
	return &model.TenantDescriptor{
		ID:            "tenant-1",
		Name:          name,
		Subdomain:     subdomain,
		ConnectionURL: connURL,
		IsActive:      true,
		CreatedAt:     time.Now(),
	}, nil
}

func (m *mockTenantRegistry) ListActive(ctx context.Context) ([]*model.TenantDescriptor, error) {
	if m.listActiveFunc != nil {
		return m.listActiveFunc(ctx)
	}
	return []*model.TenantDescriptor{}, nil
}

func (m *mockTenantRegistry) Deactivate(ctx context.Context, subdomain string) error {
	if m.deactivateFunc != nil {
		return m.deactivateFunc(ctx, subdomain)
	}
	return nil
}

func noopMigrate(databaseURL string) error { return nil }

func TestTenantAdminHandler_Create(t *testing.T) {
	var migratedURL string
	h := NewTenantAdminHandler(&mockTenantRegistry{}, func(databaseURL string) error {
		migratedURL = databaseURL
		return nil
	})

	payload := []byte(`{"name":"Acme建設","subdomain":"acme","connection_url":"postgres://db/acme"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/tenants", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if migratedURL != "postgres://db/acme" {
		t.Errorf("migratedURL = %q", migratedURL)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["subdomain"] != "acme" {
		t.Errorf("subdomain = %v", body["subdomain"])
	}
	// 接続URLはレスポンスに含めない
	if _, ok := body["connection_url"]; ok {
		t.Error("connection_url must not be exposed in the response")
	}
}

func TestTenantAdminHandler_Create_InvalidSubdomain(t *testing.T) {
	h := NewTenantAdminHandler(&mockTenantRegistry{}, noopMigrate)

	for _, subdomain := range []string{"", "UPPER", "-leading", "trailing-", "dot.ted", "under_score"} {
		payload, _ := json.Marshal(tenantCreateRequest{Name: "Acme建設", Subdomain: subdomain, ConnectionURL: "postgres://db/acme"})
		req := httptest.NewRequest(http.MethodPost, "/api/admin/tenants", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		h.Create(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("subdomain %q: status = %d, want 400", subdomain, rec.Code)
		}
	}
}

func TestTenantAdminHandler_Create_DuplicateSubdomain(t *testing.T) {
	registry := &mockTenantRegistry{
		createFunc: func(ctx context.Context, name, subdomain, connURL string) (*model.TenantDescriptor, error) {
			return nil, tenant.ErrDuplicateSubdomain
		},
	}
	h := NewTenantAdminHandler(registry, noopMigrate)

	payload := []byte(`{"name":"Acme建設","subdomain":"acme","connection_url":"postgres://db/acme"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/tenants", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if body := decodeAPIError(t, rec); body.Code != model.ErrCodeDuplicateSubdomain {
		t.Errorf("code = %q", body.Code)
	}
}

func TestTenantAdminHandler_Create_MigrationFailure(t *testing.T) {
	h := NewTenantAdminHandler(&mockTenantRegistry{}, func(databaseURL string) error {
		return errors.New("connection refused")
	})

	payload := []byte(`{"name":"Acme建設","subdomain":"acme","connection_url":"postgres://db/acme"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/tenants", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if body := decodeAPIError(t, rec); body.Code != model.ErrCodeConnectionError {
		t.Errorf("code = %q", body.Code)
	}
}

func TestTenantAdminHandler_List(t *testing.T) {
	registry := &mockTenantRegistry{
		listActiveFunc: func(ctx context.Context) ([]*model.TenantDescriptor, error) {
			return []*model.TenantDescriptor{
				{ID: "tenant-1", Name: "Acme建設", Subdomain: "acme", IsActive: true},
				{ID: "tenant-2", Name: "Beta工業", Subdomain: "beta", IsActive: true},
			}, nil
		},
	}
	h := NewTenantAdminHandler(registry, noopMigrate)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/tenants", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body []tenantResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("len(body) = %d, want 2", len(body))
	}
}

func TestTenantAdminHandler_Deactivate(t *testing.T) {
	var deactivated string
	registry := &mockTenantRegistry{
		deactivateFunc: func(ctx context.Context, subdomain string) error {
			deactivated = subdomain
			return nil
		},
	}
	h := NewTenantAdminHandler(registry, noopMigrate)

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/tenants/acme", nil)
	rec := httptest.NewRecorder()
	h.Deactivate(rec, withURLParam(req, "subdomain", "acme"))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if deactivated != "acme" {
		t.Errorf("deactivated = %q", deactivated)
	}
}

func TestTenantAdminHandler_Deactivate_NotFound(t *testing.T) {
	registry := &mockTenantRegistry{
		deactivateFunc: func(ctx context.Context, subdomain string) error {
			return tenant.ErrNotFound
		},
	}
	h := NewTenantAdminHandler(registry, noopMigrate)

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/tenants/ghost", nil)
	rec := httptest.NewRecorder()
	h.Deactivate(rec, withURLParam(req, "subdomain", "ghost"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeAPIError(t, rec); body.Code != model.ErrCodeTenantNotFound {
		t.Errorf("code = %q", body.Code)
	}
}
