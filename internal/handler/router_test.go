package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/fleetman/internal/auth"
	"github.com/hitoshi/fleetman/internal/middleware"
	"github.com/hitoshi/fleetman/internal/model"
	"github.com/hitoshi/fleetman/internal/repository"
	"github.com/hitoshi/fleetman/internal/scope"
	"github.com/hitoshi/fleetman/internal/tenant"
)

const routerTestSecret = "router-test-secret"

// routerTestResolver は固定のテナント表と接続プールを返すモックリゾルバ。
type routerTestResolver struct {
	tenants map[string]*model.TenantDescriptor
	pools   map[string]*sql.DB
}

func (r *routerTestResolver) ResolveBySubdomain(ctx context.Context, subdomain string) (*model.TenantDescriptor, error) {
	d, ok := r.tenants[subdomain]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return d, nil
}

func (r *routerTestResolver) Connection(ctx context.Context, d *model.TenantDescriptor) (*sql.DB, error) {
	db, ok := r.pools[d.Subdomain]
	if !ok {
		return nil, fmt.Errorf("no pool for %s", d.Subdomain)
	}
	return db, nil
}

// routerTestFinder はユーザーIDごとの固定割り当てを返すモック。
type routerTestFinder struct {
	assignments map[string][]int64
}

func (f *routerTestFinder) ListActiveWorkAreaIDs(ctx context.Context, userID string) ([]int64, error) {
	ids, ok := f.assignments[userID]
	if !ok {
		return []int64{}, nil
	}
	return ids, nil
}

// routerTestEnv はルーター統合テストの依存一式。
type routerTestEnv struct {
	handler      http.Handler
	tokens       *auth.TokenService
	workAreaRepo *fakeWorkAreaRepo
}

// newTenantWorkAreaRepo は指定IDの作業エリアだけを持つモックを作る。
func newTenantWorkAreaRepo(now time.Time, ownedIDs []int64) *fakeWorkAreaRepo {
	owned := make(map[int64]struct{}, len(ownedIDs))
	for _, id := range ownedIDs {
		owned[id] = struct{}{}
	}
	return &fakeWorkAreaRepo{
		listByScopeFunc: func(ctx context.Context, s scope.WorkAreaScope) ([]*model.WorkArea, error) {
			result := []*model.WorkArea{}
			for _, id := range ownedIDs {
				if s.Allows(id) {
					result = append(result, &model.WorkArea{ID: id, Name: fmt.Sprintf("第%d工区", id), IsActive: true, CreatedAt: now, UpdatedAt: now})
				}
			}
			return result, nil
		},
		findByIDFunc: func(ctx context.Context, id int64) (*model.WorkArea, error) {
			if _, ok := owned[id]; !ok {
				return nil, nil
			}
			return &model.WorkArea{ID: id, Name: fmt.Sprintf("第%d工区", id), IsActive: true, CreatedAt: now, UpdatedAt: now}, nil
		},
	}
}

func newRouterTestEnv(t *testing.T) *routerTestEnv {
	t.Helper()

	acmeDB := newTestDB(t)
	betaDB := newTestDB(t)
	resolver := &routerTestResolver{
		tenants: map[string]*model.TenantDescriptor{
			"acme": {ID: "tenant-1", Name: "Acme建設", Subdomain: "acme", IsActive: true},
			"beta": {ID: "tenant-2", Name: "Beta工業", Subdomain: "beta", IsActive: true},
			"dead": {ID: "tenant-3", Name: "解約済み", Subdomain: "dead", IsActive: false},
		},
		pools: map[string]*sql.DB{"acme": acmeDB, "beta": betaDB},
	}

	tokens := auth.NewTokenService(auth.TokenServiceConfig{
		Secret:   routerTestSecret,
		Issuer:   "fleetman",
		TokenTTL: time.Hour,
	})

	finder := &routerTestFinder{
		assignments: map[string][]int64{
			"site-user":    {4, 7},
			"unassigned":   {},
			"company-user": {4},
		},
	}

	// テナントごとに別の作業エリア集合を持たせる。ファクトリは
	// テナントミドルウェアが注入した接続プールをキーにリポジトリを
	// 選ぶため、プールの取り違えはそのまま他テナントの行として現れる
	now := time.Now()
	workAreaRepo := newTenantWorkAreaRepo(now, []int64{4, 7, 9})
	betaWorkAreaRepo := newTenantWorkAreaRepo(now, []int64{21, 22})
	repoByPool := map[*sql.DB]repository.WorkAreaRepository{
		acmeDB: workAreaRepo,
		betaDB: betaWorkAreaRepo,
	}

	env := &routerTestEnv{
		tokens:       tokens,
		workAreaRepo: workAreaRepo,
	}

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(6000, 600))
	t.Cleanup(rl.Stop)

	env.handler = NewRouter(&RouterDeps{
		TenantResolver:     resolver,
		SubdomainExtractor: &tenant.SubdomainExtractor{DefaultSubdomain: "default"},
		TenantConfig:       middleware.TenantMiddlewareConfig{},
		TokenVerifier:      tokens,
		ScopeCalc:          scope.NewCalculator(),
		NewFinder:          func(db *sql.DB) scope.AssignmentFinder { return finder },
		CORSAllowedOrigin:  "https://app.fleetman.app",
		RateLimiter:        rl,
		Logger:             slog.New(slog.NewJSONHandler(io.Discard, nil)),
		WorkAreaRepoFactory: func(db *sql.DB) repository.WorkAreaRepository {
			if repo, ok := repoByPool[db]; ok {
				return repo
			}
			return &fakeWorkAreaRepo{}
		},
		ProjectRepoFactory: func(db *sql.DB) repository.ProjectRepository {
			return &fakeProjectRepo{}
		},
		PersonnelRepoFactory: func(db *sql.DB) repository.PersonnelRepository {
			return &fakePersonnelRepo{}
		},
		TenantRegistry:    &mockTenantRegistry{},
		MigrateTenant:     noopMigrate,
		TokenIssuer:       tokens,
		EnableTokenIssuer: true,
	})
	return env
}

func (env *routerTestEnv) bearer(t *testing.T, userID string, level model.Level) string {
	t.Helper()
	token, err := env.tokens.Issue(userID, level)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return "Bearer " + token
}

func (env *routerTestEnv) do(t *testing.T, method, host, path, authorization string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "http://"+host+path, bytes.NewReader(body))
	req.Host = host
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthWithoutTenantOrAuth(t *testing.T) {
	env := newRouterTestEnv(t)

	rec := env.do(t, http.MethodGet, "example.com", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_UnknownTenant(t *testing.T) {
	env := newRouterTestEnv(t)

	rec := env.do(t, http.MethodGet, "ghost.api.fleetman.app", "/api/work-areas", env.bearer(t, "site-user", model.LevelSite), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRouter_InactiveTenant(t *testing.T) {
	env := newRouterTestEnv(t)

	rec := env.do(t, http.MethodGet, "dead.api.fleetman.app", "/api/work-areas", env.bearer(t, "site-user", model.LevelSite), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRouter_MissingToken(t *testing.T) {
	env := newRouterTestEnv(t)

	rec := env.do(t, http.MethodGet, "acme.api.fleetman.app", "/api/work-areas", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_ListScopedToAssignments(t *testing.T) {
	env := newRouterTestEnv(t)

	rec := env.do(t, http.MethodGet, "acme.api.fleetman.app", "/api/work-areas", env.bearer(t, "site-user", model.LevelSite), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body []workAreaResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("len(body) = %d, want 2 (assignments {4,7})", len(body))
	}
}

func TestRouter_CorporateSeesAllWorkAreas(t *testing.T) {
	env := newRouterTestEnv(t)

	rec := env.do(t, http.MethodGet, "acme.api.fleetman.app", "/api/work-areas", env.bearer(t, "admin-user", model.LevelCorporate), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body []workAreaResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body) != 3 {
		t.Fatalf("len(body) = %d, want 3", len(body))
	}
}

func TestRouter_UnassignedUserSeesNothing(t *testing.T) {
	env := newRouterTestEnv(t)

	// 割り当てゼロのユーザーは空スコープ（全拒否）になる
	rec := env.do(t, http.MethodGet, "acme.api.fleetman.app", "/api/work-areas", env.bearer(t, "unassigned", model.LevelSite), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body []workAreaResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("len(body) = %d, want 0", len(body))
	}

	getRec := env.do(t, http.MethodGet, "acme.api.fleetman.app", "/api/work-areas/4", env.bearer(t, "unassigned", model.LevelSite), nil)
	if getRec.Code != http.StatusNotFound {
		t.Fatalf("detail status = %d, want 404", getRec.Code)
	}
}

func TestRouter_ScopeDeniedDetailLooksLikeNotFound(t *testing.T) {
	env := newRouterTestEnv(t)

	token := env.bearer(t, "site-user", model.LevelSite)

	// スコープ外（実在する9番）と未存在（999番）のレスポンスが一致すること
	denied := env.do(t, http.MethodGet, "acme.api.fleetman.app", "/api/work-areas/9", token, nil)
	if denied.Code != http.StatusNotFound {
		t.Fatalf("denied status = %d, want 404", denied.Code)
	}

	inScope := env.do(t, http.MethodGet, "acme.api.fleetman.app", "/api/work-areas/4", token, nil)
	if inScope.Code != http.StatusOK {
		t.Fatalf("in-scope status = %d, want 200", inScope.Code)
	}
}

func TestRouter_WorkAreaCreateRequiresCorporate(t *testing.T) {
	env := newRouterTestEnv(t)

	payload := []byte(`{"name":"新工区"}`)
	rec := env.do(t, http.MethodPost, "acme.api.fleetman.app", "/api/work-areas", env.bearer(t, "site-user", model.LevelSite), payload)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "acme.api.fleetman.app", "/api/work-areas", env.bearer(t, "admin-user", model.LevelCorporate), payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_AdminTenantRoutesRequireCorporate(t *testing.T) {
	env := newRouterTestEnv(t)

	rec := env.do(t, http.MethodGet, "acme.api.fleetman.app", "/api/admin/tenants", env.bearer(t, "company-user", model.LevelCompany), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "acme.api.fleetman.app", "/api/admin/tenants", env.bearer(t, "admin-user", model.LevelCorporate), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_TokenIssueAndUse(t *testing.T) {
	env := newRouterTestEnv(t)

	payload := []byte(`{"user_id":"site-user","level":"site"}`)
	rec := env.do(t, http.MethodPost, "acme.api.fleetman.app", "/auth/token", "", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("issue status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body tokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	rec = env.do(t, http.MethodGet, "acme.api.fleetman.app", "/api/work-areas", "Bearer "+body.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("use status = %d, want 200", rec.Code)
	}
}

func TestRouter_ForgedTokenRejected(t *testing.T) {
	env := newRouterTestEnv(t)

	forged := auth.NewTokenService(auth.TokenServiceConfig{
		Secret:   "attacker-secret",
		Issuer:   "fleetman",
		TokenTTL: time.Hour,
	})
	token, err := forged.Issue("admin-user", model.LevelCorporate)
	if err != nil {
		t.Fatalf("failed to forge token: %v", err)
	}

	rec := env.do(t, http.MethodGet, "acme.api.fleetman.app", "/api/work-areas", "Bearer "+token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_TwoTenantIsolation(t *testing.T) {
	env := newRouterTestEnv(t)
	token := env.bearer(t, "admin-user", model.LevelCorporate)

	acmeIDs := map[int64]bool{4: true, 7: true, 9: true}
	betaIDs := map[int64]bool{21: true, 22: true}

	fetchIDs := func(host string) (map[int64]bool, error) {
		rec := env.do(t, http.MethodGet, host, "/api/work-areas", token, nil)
		if rec.Code != http.StatusOK {
			return nil, fmt.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var body []workAreaResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			return nil, err
		}
		ids := map[int64]bool{}
		for _, wa := range body {
			ids[wa.ID] = true
		}
		return ids, nil
	}

	// 各ホストが自テナントのプールに束縛され、自テナントの行だけを返すこと
	got, err := fetchIDs("acme.api.fleetman.app")
	if err != nil {
		t.Fatalf("acme request failed: %v", err)
	}
	if len(got) != len(acmeIDs) {
		t.Fatalf("acme ids = %v, want %v", got, acmeIDs)
	}
	for id := range got {
		if betaIDs[id] {
			t.Errorf("acme response leaked beta work area %d", id)
		}
	}

	got, err = fetchIDs("beta.api.fleetman.app")
	if err != nil {
		t.Fatalf("beta request failed: %v", err)
	}
	if len(got) != len(betaIDs) {
		t.Fatalf("beta ids = %v, want %v", got, betaIDs)
	}
	for id := range got {
		if acmeIDs[id] {
			t.Errorf("beta response leaked acme work area %d", id)
		}
	}

	// 両ホストへの並行リクエストでも取り違えが起きないこと
	const perHost = 8
	var wg sync.WaitGroup
	for i := 0; i < perHost*2; i++ {
		host, want, other := "acme.api.fleetman.app", acmeIDs, betaIDs
		if i%2 == 1 {
			host, want, other = "beta.api.fleetman.app", betaIDs, acmeIDs
		}
		wg.Add(1)
		go func(host string, want, other map[int64]bool) {
			defer wg.Done()
			got, err := fetchIDs(host)
			if err != nil {
				t.Errorf("%s request failed: %v", host, err)
				return
			}
			if len(got) != len(want) {
				t.Errorf("%s ids = %v, want %v", host, got, want)
			}
			for id := range got {
				if other[id] {
					t.Errorf("%s response leaked foreign work area %d", host, id)
				}
			}
		}(host, want, other)
	}
	wg.Wait()
}

func TestRouter_SecurityHeadersOnEveryResponse(t *testing.T) {
	env := newRouterTestEnv(t)

	rec := env.do(t, http.MethodGet, "example.com", "/health", "", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}
