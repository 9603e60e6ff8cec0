package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/repository"
	"github.com/hitoshi/fleetman/internal/scope"
)

// fakeProjectRepo は関数フィールドで挙動を差し替えるモックリポジトリ。
type fakeProjectRepo struct {
	listByScopeFunc func(ctx context.Context, s scope.WorkAreaScope) ([]*model.Project, error)
	findByIDFunc    func(ctx context.Context, id string) (*model.Project, error)
	createFunc      func(ctx context.Context, p *model.Project) error
	updateFunc      func(ctx context.Context, p *model.Project) (bool, error)
	deleteFunc      func(ctx context.Context, id string) (bool, error)
}

func (f *fakeProjectRepo) ListByScope(ctx context.Context, s scope.WorkAreaScope) ([]*model.Project, error) {
	if f.listByScopeFunc != nil {
		return f.listByScopeFunc(ctx, s)
	}
	return []*model.Project{}, nil
}

func (f *fakeProjectRepo) FindByID(ctx context.Context, id string) (*model.Project, error) {
	if f.findByIDFunc != nil {
		return f.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (f *fakeProjectRepo) Create(ctx context.Context, p *model.Project) error {
	if f.createFunc != nil {
		return f.createFunc(ctx, p)
	}
	return nil
}

func (f *fakeProjectRepo) Update(ctx context.Context, p *model.Project) (bool, error) {
	if f.updateFunc != nil {
		return f.updateFunc(ctx, p)
	}
	return true, nil
}

func (f *fakeProjectRepo) Delete(ctx context.Context, id string) (bool, error) {
	if f.deleteFunc != nil {
		return f.deleteFunc(ctx, id)
	}
	return true, nil
}

func projectFactory(repo repository.ProjectRepository) ProjectRepoFactory {
	return func(db *sql.DB) repository.ProjectRepository { return repo }
}

func inScopeProject(id string, workAreaID int64) *model.Project {
	now := time.Now()
	return &model.Project{
		ID:         id,
		WorkAreaID: workAreaID,
		Name:       "基礎工事",
		Status:     model.ProjectStatusActive,
		StartDate:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestProjectHandler_List(t *testing.T) {
	repo := &fakeProjectRepo{
		listByScopeFunc: func(ctx context.Context, s scope.WorkAreaScope) ([]*model.Project, error) {
			return []*model.Project{inScopeProject("proj-1", 4)}, nil
		},
	}
	h := NewProjectHandler(projectFactory(repo), nil)

	req := scopedRequest(t, http.MethodGet, "/api/projects", nil, newTestDB(t), scope.Restricted([]int64{4}), siteIdentity())
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body []projectResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body) != 1 || body[0].ID != "proj-1" {
		t.Errorf("body = %+v", body)
	}
}

func TestProjectHandler_Get_OutOfScopeWorkArea_LooksLikeNotFound(t *testing.T) {
	repo := &fakeProjectRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Project, error) {
			// 実在するが所属作業エリアがスコープ外
			return inScopeProject(id, 9), nil
		},
	}
	m := &mockScopeMetrics{}
	h := NewProjectHandler(projectFactory(repo), m)

	req := scopedRequest(t, http.MethodGet, "/api/projects/proj-1", nil, newTestDB(t), scope.Restricted([]int64{4}), siteIdentity())
	rec := httptest.NewRecorder()
	h.Get(rec, withURLParam(req, "id", "proj-1"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeAPIError(t, rec); body.Code != model.ErrCodeProjectNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeProjectNotFound)
	}
	if m.scopeDenials != 1 {
		t.Errorf("scopeDenials = %d, want 1", m.scopeDenials)
	}
}

func TestProjectHandler_Get_Found(t *testing.T) {
	repo := &fakeProjectRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Project, error) {
			return inScopeProject(id, 4), nil
		},
	}
	h := NewProjectHandler(projectFactory(repo), nil)

	req := scopedRequest(t, http.MethodGet, "/api/projects/proj-1", nil, newTestDB(t), scope.Restricted([]int64{4}), siteIdentity())
	rec := httptest.NewRecorder()
	h.Get(rec, withURLParam(req, "id", "proj-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body projectResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.WorkAreaID != 4 || body.Status != "active" {
		t.Errorf("body = %+v", body)
	}
}

func TestProjectHandler_Create_OutOfScopeWorkArea(t *testing.T) {
	repo := &fakeProjectRepo{
		createFunc: func(ctx context.Context, p *model.Project) error {
			t.Fatal("repo.Create should not be called for an out-of-scope work area")
			return nil
		},
	}
	m := &mockScopeMetrics{}
	h := NewProjectHandler(projectFactory(repo), m)

	payload := []byte(`{"work_area_id":9,"name":"基礎工事","status":"planned","start_date":"2026-09-01T00:00:00Z"}`)
	req := scopedRequest(t, http.MethodPost, "/api/projects", payload, newTestDB(t), scope.Restricted([]int64{4}), siteIdentity())
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	// スコープ外の作業エリアは存在しない扱い
	if body := decodeAPIError(t, rec); body.Code != model.ErrCodeWorkAreaNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeWorkAreaNotFound)
	}
	if m.scopeDenials != 1 {
		t.Errorf("scopeDenials = %d, want 1", m.scopeDenials)
	}
}

func TestProjectHandler_Create(t *testing.T) {
	var created *model.Project
	repo := &fakeProjectRepo{
		createFunc: func(ctx context.Context, p *model.Project) error {
			created = p
			return nil
		},
	}
	h := NewProjectHandler(projectFactory(repo), nil)

	payload := []byte(`{"work_area_id":4,"name":"基礎工事","status":"planned","start_date":"2026-09-01T00:00:00Z"}`)
	req := scopedRequest(t, http.MethodPost, "/api/projects", payload, newTestDB(t), scope.Restricted([]int64{4}), siteIdentity())
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if created == nil {
		t.Fatal("repo.Create was not called")
	}
	if created.ID == "" {
		t.Error("project ID should be generated")
	}
	if created.Status != model.ProjectStatusPlanned {
		t.Errorf("status = %q", created.Status)
	}
}

func TestProjectHandler_Create_InvalidStatus(t *testing.T) {
	h := NewProjectHandler(projectFactory(&fakeProjectRepo{}), nil)

	payload := []byte(`{"work_area_id":4,"name":"基礎工事","status":"cancelled","start_date":"2026-09-01T00:00:00Z"}`)
	req := scopedRequest(t, http.MethodPost, "/api/projects", payload, newTestDB(t), scope.Restricted([]int64{4}), siteIdentity())
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeAPIError(t, rec); body.Code != model.ErrCodeValidationFailed {
		t.Errorf("code = %q", body.Code)
	}
}

func TestProjectHandler_Update_MoveToOutOfScopeWorkArea(t *testing.T) {
	repo := &fakeProjectRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Project, error) {
			return inScopeProject(id, 4), nil
		},
		updateFunc: func(ctx context.Context, p *model.Project) (bool, error) {
			t.Fatal("repo.Update should not be called when moving out of scope")
			return false, nil
		},
	}
	m := &mockScopeMetrics{}
	h := NewProjectHandler(projectFactory(repo), m)

	// スコープ内のプロジェクトをスコープ外の作業エリアへ移動しようとする
	payload := []byte(`{"work_area_id":9,"name":"基礎工事","status":"active","start_date":"2026-09-01T00:00:00Z"}`)
	req := scopedRequest(t, http.MethodPut, "/api/projects/proj-1", payload, newTestDB(t), scope.Restricted([]int64{4}), siteIdentity())
	rec := httptest.NewRecorder()
	h.Update(rec, withURLParam(req, "id", "proj-1"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeAPIError(t, rec); body.Code != model.ErrCodeWorkAreaNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeWorkAreaNotFound)
	}
	if m.scopeDenials != 1 {
		t.Errorf("scopeDenials = %d, want 1", m.scopeDenials)
	}
}

func TestProjectHandler_Update(t *testing.T) {
	var updated *model.Project
	repo := &fakeProjectRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Project, error) {
			return inScopeProject(id, 4), nil
		},
		updateFunc: func(ctx context.Context, p *model.Project) (bool, error) {
			updated = p
			return true, nil
		},
	}
	h := NewProjectHandler(projectFactory(repo), nil)

	payload := []byte(`{"work_area_id":4,"name":"仕上工事","status":"completed","start_date":"2026-09-01T00:00:00Z"}`)
	req := scopedRequest(t, http.MethodPut, "/api/projects/proj-1", payload, newTestDB(t), scope.Restricted([]int64{4}), siteIdentity())
	rec := httptest.NewRecorder()
	h.Update(rec, withURLParam(req, "id", "proj-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if updated == nil {
		t.Fatal("repo.Update was not called")
	}
	if updated.Name != "仕上工事" || updated.Status != model.ProjectStatusCompleted {
		t.Errorf("updated = %+v", updated)
	}
}

func TestProjectHandler_Delete_OutOfScope(t *testing.T) {
	repo := &fakeProjectRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Project, error) {
			return inScopeProject(id, 9), nil
		},
		deleteFunc: func(ctx context.Context, id string) (bool, error) {
			t.Fatal("repo.Delete should not be called for an out-of-scope project")
			return false, nil
		},
	}
	h := NewProjectHandler(projectFactory(repo), nil)

	req := scopedRequest(t, http.MethodDelete, "/api/projects/proj-1", nil, newTestDB(t), scope.Restricted([]int64{4}), siteIdentity())
	rec := httptest.NewRecorder()
	h.Delete(rec, withURLParam(req, "id", "proj-1"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestProjectHandler_Delete(t *testing.T) {
	repo := &fakeProjectRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Project, error) {
			return inScopeProject(id, 4), nil
		},
	}
	h := NewProjectHandler(projectFactory(repo), nil)

	req := scopedRequest(t, http.MethodDelete, "/api/projects/proj-1", nil, newTestDB(t), scope.Restricted([]int64{4}), siteIdentity())
	rec := httptest.NewRecorder()
	h.Delete(rec, withURLParam(req, "id", "proj-1"))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}
