package handler

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/fleetman/internal/middleware"
	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/repository"
)

// WorkAreaRepoFactory はリクエストのテナント接続プールに束縛された
// WorkAreaRepositoryを生成する。
type WorkAreaRepoFactory func(db *sql.DB) repository.WorkAreaRepository

// WorkAreaHandler は作業エリア管理のHTTPハンドラー。
type WorkAreaHandler struct {
	newRepo WorkAreaRepoFactory
	metrics middleware.AdmissionMetrics
}

// NewWorkAreaHandler はWorkAreaHandlerを生成する。
func NewWorkAreaHandler(newRepo WorkAreaRepoFactory, m middleware.AdmissionMetrics) *WorkAreaHandler {
	return &WorkAreaHandler{
		newRepo: newRepo,
		metrics: m,
	}
}

// workAreaRequest は作業エリア作成・更新リクエストのボディ。
type workAreaRequest struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// workAreaResponse は作業エリアのAPIレスポンス。
type workAreaResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List はスコープと交差した作業エリア一覧を返す。
// GET /api/work-areas
func (h *WorkAreaHandler) List(w http.ResponseWriter, r *http.Request) {
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

	areas, err := h.newRepo(db).ListByScope(r.Context(), s)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result := make([]workAreaResponse, 0, len(areas))
	for _, wa := range areas {
		result = append(result, toWorkAreaResponse(wa))
	}
	writeJSON(w, http.StatusOK, result)
}

// Get は作業エリア詳細を取得する。
// GET /api/work-areas/:id
func (h *WorkAreaHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWorkAreaID(w, r)
	if !ok {
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

	// スコープ外は存在有無を悟らせないため404と同一のレスポンスを返す
	if !s.Allows(id) {
		h.denyAsNotFound(w, r, id)
		return
	}

	wa, err := h.newRepo(db).FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if wa == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewWorkAreaNotFoundError(id))
		return
	}

	writeJSON(w, http.StatusOK, toWorkAreaResponse(wa))
}

// Create は作業エリアを作成する。
// POST /api/work-areas（CORPORATEゲート適用）
func (h *WorkAreaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req workAreaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("作業エリア名が空です"))
		return
	}

	db, err := middleware.DBFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	now := time.Now()
	wa := &model.WorkArea{
		Name:      req.Name,
		Address:   req.Address,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.newRepo(db).Create(r.Context(), wa); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toWorkAreaResponse(wa))
}

// Update は作業エリアを更新する。
// PUT /api/work-areas/:id
func (h *WorkAreaHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWorkAreaID(w, r)
	if !ok {
		return
	}

	var req workAreaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("作業エリア名が空です"))
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

	// 書き込みは対象作業エリアがスコープに含まれることを事前に再確認する
	if !s.Allows(id) {
		h.denyAsNotFound(w, r, id)
		return
	}

	repo := h.newRepo(db)
	wa, err := repo.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if wa == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewWorkAreaNotFoundError(id))
		return
	}

	wa.Name = req.Name
	wa.Address = req.Address
	if req.IsActive != nil {
		wa.IsActive = *req.IsActive
	}
	wa.UpdatedAt = time.Now()

	updated, err := repo.Update(r.Context(), wa)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !updated {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewWorkAreaNotFoundError(id))
		return
	}

	writeJSON(w, http.StatusOK, toWorkAreaResponse(wa))
}

// Delete は作業エリアを完全に削除する。
// DELETE /api/work-areas/:id（CORPORATEゲート適用）
func (h *WorkAreaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWorkAreaID(w, r)
	if !ok {
		return
	}
	db, err := middleware.DBFromContext(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	deleted, err := h.newRepo(db).Delete(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !deleted {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewWorkAreaNotFoundError(id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// denyAsNotFound はスコープ違反を記録し、クライアントには404と同一の
// レスポンスを返す（存在推測の防止）。内部ではSCOPE_VIOLATIONとして
// ログとメトリクスに残す。
func (h *WorkAreaHandler) denyAsNotFound(w http.ResponseWriter, r *http.Request, workAreaID int64) {
	if h.metrics != nil {
		h.metrics.RecordScopeDenial()
	}
	if identity, err := middleware.IdentityFromContext(r.Context()); err == nil {
		slog.Warn("work area scope violation",
			slog.String("user_id", identity.UserID),
			slog.Int64("work_area_id", workAreaID),
		)
	}
	writeAPIErrorResponse(w, http.StatusNotFound, model.NewWorkAreaNotFoundError(workAreaID))
}

// parseWorkAreaID はURLパラメータから作業エリアIDを解析する。
func parseWorkAreaID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("作業エリアIDは数値で指定してください"))
		return 0, false
	}
	return id, true
}

// toWorkAreaResponse はmodel.WorkAreaからAPIレスポンスに変換する。
func toWorkAreaResponse(wa *model.WorkArea) workAreaResponse {
	return workAreaResponse{
		ID:        wa.ID,
		Name:      wa.Name,
		Address:   wa.Address,
		IsActive:  wa.IsActive,
		CreatedAt: wa.CreatedAt,
		UpdatedAt: wa.UpdatedAt,
	}
}
