package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	AdminRate       rate.Limit    // テナント管理操作のレート（req/sec）
	AdminBurst      int           // テナント管理操作のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// NewRateLimiterConfig はreq/min単位の設定値からRateLimiterConfigを生成する。
func NewRateLimiterConfig(generalPerMin, adminPerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst:    generalPerMin,
		AdminRate:       rate.Limit(float64(adminPerMin) / 60.0),
		AdminBurst:      adminPerMin,
		CleanupInterval: 5 * time.Minute,
	}
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/user、テナント管理操作 10 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(120, 10)
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterClass は1クラス分（API全般またはテナント管理）のリミッター群。
type limiterClass struct {
	mu       sync.RWMutex
	limiters map[string]*userLimiter
	rateVal  rate.Limit
	burst    int
	name     string
}

// getOrCreate はユーザーのリミッターを取得または作成する。
func (lc *limiterClass) getOrCreate(userID string) *rate.Limiter {
	lc.mu.RLock()
	ul, exists := lc.limiters[userID]
	lc.mu.RUnlock()

	if exists {
		lc.mu.Lock()
		ul.lastAccess = time.Now()
		lc.mu.Unlock()
		return ul.limiter
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	// ダブルチェック
	if ul, exists := lc.limiters[userID]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(lc.rateVal, lc.burst)
	lc.limiters[userID] = &userLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanup は最終アクセス時刻がttlを超えたエントリを削除する。
func (lc *limiterClass) cleanup(ttl time.Duration) {
	now := time.Now()
	lc.mu.Lock()
	for userID, ul := range lc.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(lc.limiters, userID)
		}
	}
	lc.mu.Unlock()
}

// count は現在のエントリ数を返す。
func (lc *limiterClass) count() int {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return len(lc.limiters)
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般のレート制限とテナント管理操作のレート制限の2種類を提供する。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterClass
	admin   *limiterClass
	stopCh  chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config: config,
		general: &limiterClass{
			limiters: make(map[string]*userLimiter),
			rateVal:  config.GeneralRate,
			burst:    config.GeneralBurst,
			name:     "general",
		},
		admin: &limiterClass{
			limiters: make(map[string]*userLimiter),
			rateVal:  config.AdminRate,
			burst:    config.AdminBurst,
			name:     "admin",
		},
		stopCh: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにIdentityが含まれている必要がある
// （認証ミドルウェアの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middlewareFor(rl.general)
}

// AdminMiddleware はテナント管理操作専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) AdminMiddleware() func(next http.Handler) http.Handler {
	return rl.middlewareFor(rl.admin)
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.count()
}

// AdminLimiterCount は現在管理されているテナント管理リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) AdminLimiterCount() int {
	return rl.admin.count()
}

func (rl *RateLimiter) middlewareFor(lc *limiterClass) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := IdentityFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := lc.getOrCreate(identity.UserID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, lc.rateVal)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", identity.UserID),
					slog.String("limit_type", lc.name),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ttl := rl.config.CleanupInterval * 2
			rl.general.cleanup(ttl)
			rl.admin.cleanup(ttl)
		case <-rl.stopCh:
			return
		}
	}
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Too many requests. Please try again later.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
