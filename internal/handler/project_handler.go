package handler

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/fleetman/internal/middleware"
	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/repository"
)

// ProjectRepoFactory はリクエストのテナント接続プールに束縛された
// ProjectRepositoryを生成する。
type ProjectRepoFactory func(db *sql.DB) repository.ProjectRepository

// ProjectHandler はプロジェクト管理のHTTPハンドラー。
type ProjectHandler struct {
	newRepo ProjectRepoFactory
	metrics middleware.AdmissionMetrics
}

// NewProjectHandler はProjectHandlerを生成する。
func NewProjectHandler(newRepo ProjectRepoFactory, m middleware.AdmissionMetrics) *ProjectHandler {
	return &ProjectHandler{
		newRepo: newRepo,
		metrics: m,
	}
}

// projectRequest はプロジェクト作成・更新リクエストのボディ。
type projectRequest struct {
	WorkAreaID int64      `json:"work_area_id"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

// projectResponse はプロジェクトのAPIレスポンス。
type projectResponse struct {
	ID         string     `json:"id"`
	WorkAreaID int64      `json:"work_area_id"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// List はスコープと交差したプロジェクト一覧を返す。
// GET /api/projects
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	db, err := middleware.DBFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	s, err := middleware.ScopeFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	projects, err := h.newRepo(db).ListByScope(r.Context(), s)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		result = append(result, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, result)
}

// Get はプロジェクト詳細を取得する。
// GET /api/projects/:id
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	db, err := middleware.DBFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	s, err := middleware.ScopeFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	p, err := h.newRepo(db).FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if p == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError(id))
		return
	}
	// 所属作業エリアがスコープ外の場合も存在しない場合と同一の404を返す
	if !s.Allows(p.WorkAreaID) {
		h.denyAsNotFound(w, r, id, p.WorkAreaID)
		return
	}

	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

// Create はプロジェクトを作成する。
// POST /api/projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("プロジェクト名が空です"))
		return
	}
	status, ok := parseProjectStatus(req.Status)
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("statusはplanned/active/completedのいずれかを指定してください"))
		return
	}

	db, err := middleware.DBFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	s, err := middleware.ScopeFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// スコープ外の作業エリアへの作成は作業エリア自体が見えない扱いにする
	if !s.Allows(req.WorkAreaID) {
		if h.metrics != nil {
			h.metrics.RecordScopeDenial()
		}
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewWorkAreaNotFoundError(req.WorkAreaID))
		return
	}

	now := time.Now()
	p := &model.Project{
		ID:         uuid.NewString(),
		WorkAreaID: req.WorkAreaID,
		Name:       req.Name,
		Status:     status,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.newRepo(db).Create(r.Context(), p); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProjectResponse(p))
}

// Update はプロジェクトを更新する。
// PUT /api/projects/:id
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("プロジェクト名が空です"))
		return
	}
	status, ok := parseProjectStatus(req.Status)
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("statusはplanned/active/completedのいずれかを指定してください"))
		return
	}

	db, err := middleware.DBFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	s, err := middleware.ScopeFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	repo := h.newRepo(db)
	p, err := repo.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if p == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError(id))
		return
	}
	if !s.Allows(p.WorkAreaID) {
		h.denyAsNotFound(w, r, id, p.WorkAreaID)
		return
	}
	// 移動先の作業エリアもスコープ内でなければならない
	if req.WorkAreaID != p.WorkAreaID && !s.Allows(req.WorkAreaID) {
		if h.metrics != nil {
			h.metrics.RecordScopeDenial()
		}
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewWorkAreaNotFoundError(req.WorkAreaID))
		return
	}

	p.WorkAreaID = req.WorkAreaID
	p.Name = req.Name
	p.Status = status
	p.StartDate = req.StartDate
	p.EndDate = req.EndDate
	p.UpdatedAt = time.Now()

	updated, err := repo.Update(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !updated {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError(id))
		return
	}

	writeJSON(w, http.StatusOK, toProjectResponse(p))
}

// Delete はプロジェクトを削除する。
// DELETE /api/projects/:id
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	db, err := middleware.DBFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	s, err := middleware.ScopeFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	repo := h.newRepo(db)
	p, err := repo.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if p == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError(id))
		return
	}
	if !s.Allows(p.WorkAreaID) {
		h.denyAsNotFound(w, r, id, p.WorkAreaID)
		return
	}

	deleted, err := repo.Delete(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !deleted {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError(id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// denyAsNotFound はスコープ違反を記録し、クライアントには404と同一の
// レスポンスを返す。
func (h *ProjectHandler) denyAsNotFound(w http.ResponseWriter, r *http.Request, projectID string, workAreaID int64) {
	if h.metrics != nil {
		h.metrics.RecordScopeDenial()
	}
	if identity, err := middleware.IdentityFromContext(r.Context()); err == nil {
		slog.Warn("project scope violation",
			slog.String("user_id", identity.UserID),
			slog.String("project_id", projectID),
			slog.Int64("work_area_id", workAreaID),
		)
	}
	writeAPIErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError(projectID))
}

// parseProjectStatus はリクエストのstatus文字列を検証する。
func parseProjectStatus(s string) (model.ProjectStatus, bool) {
	switch model.ProjectStatus(s) {
	case model.ProjectStatusPlanned, model.ProjectStatusActive, model.ProjectStatusCompleted:
		return model.ProjectStatus(s), true
	default:
		return "", false
	}
}

// toProjectResponse はmodel.ProjectからAPIレスポンスに変換する。
func toProjectResponse(p *model.Project) projectResponse {
	return projectResponse{
		ID:         p.ID,
		WorkAreaID: p.WorkAreaID,
		Name:       p.Name,
		Status:     string(p.Status),
		StartDate:  p.StartDate,
		EndDate:    p.EndDate,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}
