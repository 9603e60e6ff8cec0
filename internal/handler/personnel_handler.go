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

// PersonnelRepoFactory はリクエストのテナント接続プールに束縛された
// PersonnelRepositoryを生成する。
type PersonnelRepoFactory func(db *sql.DB) repository.PersonnelRepository

// PersonnelHandler は要員管理のHTTPハンドラー。
type PersonnelHandler struct {
	newRepo PersonnelRepoFactory
	metrics middleware.AdmissionMetrics
}

// NewPersonnelHandler はPersonnelHandlerを生成する。
func NewPersonnelHandler(newRepo PersonnelRepoFactory, m middleware.AdmissionMetrics) *PersonnelHandler {
	return &PersonnelHandler{
		newRepo: newRepo,
		metrics: m,
	}
}

// personnelRequest は要員作成・更新リクエストのボディ。
type personnelRequest struct {
	WorkAreaID int64  `json:"work_area_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Email      string `json:"email"`
	IsActive   *bool  `json:"is_active,omitempty"`
}

// personnelResponse は要員のAPIレスポンス。
type personnelResponse struct {
	ID         string    `json:"id"`
	WorkAreaID int64     `json:"work_area_id"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	Email      string    `json:"email"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// List はスコープと交差した要員一覧を返す。
// GET /api/personnel
func (h *PersonnelHandler) List(w http.ResponseWriter, r *http.Request) {
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

	people, err := h.newRepo(db).ListByScope(r.Context(), s)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result := make([]personnelResponse, 0, len(people))
	for _, p := range people {
		result = append(result, toPersonnelResponse(p))
	}
	writeJSON(w, http.StatusOK, result)
}

// Get は要員詳細を取得する。
// GET /api/personnel/:id
func (h *PersonnelHandler) Get(w http.ResponseWriter, r *http.Request) {
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
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPersonnelNotFoundError(id))
		return
	}
	// 配属先がスコープ外の場合も存在しない場合と同一の404を返す
	if !s.Allows(p.WorkAreaID) {
		h.denyAsNotFound(w, r, id, p.WorkAreaID)
		return
	}

	writeJSON(w, http.StatusOK, toPersonnelResponse(p))
}

// Create は要員を作成する。
// POST /api/personnel
func (h *PersonnelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req personnelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("要員名が空です"))
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

	// スコープ外の作業エリアへの配属は作業エリア自体が見えない扱いにする
	if !s.Allows(req.WorkAreaID) {
		if h.metrics != nil {
			h.metrics.RecordScopeDenial()
		}
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewWorkAreaNotFoundError(req.WorkAreaID))
		return
	}

	now := time.Now()
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	p := &model.Personnel{
		ID:         uuid.NewString(),
		WorkAreaID: req.WorkAreaID,
		Name:       req.Name,
		Role:       req.Role,
		Email:      req.Email,
		IsActive:   isActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.newRepo(db).Create(r.Context(), p); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPersonnelResponse(p))
}

// Update は要員を更新する。
// PUT /api/personnel/:id
func (h *PersonnelHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req personnelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("要員名が空です"))
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
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPersonnelNotFoundError(id))
		return
	}
	if !s.Allows(p.WorkAreaID) {
		h.denyAsNotFound(w, r, id, p.WorkAreaID)
		return
	}
	// 異動先の作業エリアもスコープ内でなければならない
	if req.WorkAreaID != p.WorkAreaID && !s.Allows(req.WorkAreaID) {
		if h.metrics != nil {
			h.metrics.RecordScopeDenial()
		}
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewWorkAreaNotFoundError(req.WorkAreaID))
		return
	}

	p.WorkAreaID = req.WorkAreaID
	p.Name = req.Name
	p.Role = req.Role
	p.Email = req.Email
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	p.UpdatedAt = time.Now()

	updated, err := repo.Update(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !updated {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPersonnelNotFoundError(id))
		return
	}

	writeJSON(w, http.StatusOK, toPersonnelResponse(p))
}

// Delete は要員を削除する。
// DELETE /api/personnel/:id
func (h *PersonnelHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPersonnelNotFoundError(id))
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
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPersonnelNotFoundError(id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// denyAsNotFound はスコープ違反を記録し、クライアントには404と同一の
// レスポンスを返す。
func (h *PersonnelHandler) denyAsNotFound(w http.ResponseWriter, r *http.Request, personnelID string, workAreaID int64) {
	if h.metrics != nil {
		h.metrics.RecordScopeDenial()
	}
	if identity, err := middleware.IdentityFromContext(r.Context()); err == nil {
		slog.Warn("personnel scope violation",
			slog.String("user_id", identity.UserID),
			slog.String("personnel_id", personnelID),
			slog.Int64("work_area_id", workAreaID),
		)
	}
	writeAPIErrorResponse(w, http.StatusNotFound, model.NewPersonnelNotFoundError(personnelID))
}

// toPersonnelResponse はmodel.PersonnelからAPIレスポンスに変換する。
func toPersonnelResponse(p *model.Personnel) personnelResponse {
	return personnelResponse{
		ID:         p.ID,
		WorkAreaID: p.WorkAreaID,
		Name:       p.Name,
		Role:       p.Role,
		Email:      p.Email,
		IsActive:   p.IsActive,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}
