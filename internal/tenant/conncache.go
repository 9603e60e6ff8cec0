package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/fleetman/internal/model"
)

// ErrCacheClosed はClose済みのキャッシュに対するGetを示す。
var ErrCacheClosed = errors.New("connection cache is closed")

// OpenFunc はテナント接続URLからプール済みデータベースハンドルを開く。
// テストではモック実装に差し替える。
type OpenFunc func(ctx context.Context, connURL string) (*sql.DB, error)

// ConnCacheConfig は接続プールキャッシュの設定を保持する。
type ConnCacheConfig struct {
	MaxOpenConns int           // テナントあたりの最大同時接続数
	IdleTimeout  time.Duration // アイドル接続の回収タイムアウト
	Open         OpenFunc      // プール生成関数。nilの場合はlib/pqで開く
	OnPoolCreated func()       // プール登録時のフック（メトリクス用、nil可）
	OnPoolEvicted func()       // プール破棄時のフック（メトリクス用、nil可）
}

// DefaultConnCacheConfig は接続プールキャッシュの既定設定を返す。
func DefaultConnCacheConfig() ConnCacheConfig {
	return ConnCacheConfig{
		MaxOpenConns: 10,
		IdleTimeout:  30 * time.Second,
	}
}

// ConnCache はテナントIDごとに接続プールを遅延生成してメモ化する。
// 不変条件: 同一テナントIDに対して同時に存在する生きたプールは最大1つ。
type ConnCache struct {
	open         OpenFunc
	maxOpenConns int
	idleTimeout  time.Duration

	onPoolCreated func()
	onPoolEvicted func()

	mu     sync.Mutex
	pools  map[string]*sql.DB
	gens   map[string]uint64 // テナントIDごとの退避世代。Evictのたびに加算される
	closed bool
}

// NewConnCache は新しいConnCacheを生成する。
func NewConnCache(cfg ConnCacheConfig) *ConnCache {
	c := &ConnCache{
		open:          cfg.Open,
		maxOpenConns:  cfg.MaxOpenConns,
		idleTimeout:   cfg.IdleTimeout,
		onPoolCreated: cfg.OnPoolCreated,
		onPoolEvicted: cfg.OnPoolEvicted,
		pools:         make(map[string]*sql.DB),
		gens:          make(map[string]uint64),
	}
	if c.open == nil {
		c.open = c.openPostgres
	}
	return c
}

// Get はテナントの接続プールを返す。キャッシュ済みであればそれを、
// なければ新たにプールを生成して登録する。
//
// 生成はロックの外で行うため、同一テナントへの並行呼び出しが二重に
// プールを構築することがある。その場合は先に登録した側が勝者となり、
// 敗者は自分のプールを閉じて勝者のプールを採用する（接続リーク防止）。
// 生成中にテナントが無効化された場合（世代番号の変化で検出）は、
// 生成したプールを即座に閉じてErrInactiveを返す。
// 生成に失敗した場合は何もキャッシュせず、次回呼び出しで再試行される。
func (c *ConnCache) Get(ctx context.Context, d *model.TenantDescriptor) (*sql.DB, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCacheClosed
	}
	if db, ok := c.pools[d.ID]; ok {
		c.mu.Unlock()
		return db, nil
	}
	gen := c.gens[d.ID]
	c.mu.Unlock()

	db, err := c.open(ctx, d.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant pool: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		// シャットダウン後に完成したプール: 登録せず破棄する
		db.Close()
		return nil, ErrCacheClosed
	}
	if winner, ok := c.pools[d.ID]; ok {
		c.mu.Unlock()
		// 競合に敗れた側: 余剰プールを破棄して勝者を採用
		db.Close()
		return winner, nil
	}
	if c.gens[d.ID] != gen {
		c.mu.Unlock()
		// 生成中にEvictされた: 完成したプールを閉じて失敗を返す
		db.Close()
		slog.Warn("tenant pool discarded after deactivation",
			slog.String("tenant_id", d.ID),
		)
		return nil, ErrInactive
	}
	c.pools[d.ID] = db
	c.mu.Unlock()

	if c.onPoolCreated != nil {
		c.onPoolCreated()
	}
	slog.Info("tenant pool created",
		slog.String("tenant_id", d.ID),
		slog.Int("max_open_conns", c.maxOpenConns),
	)
	return db, nil
}

// Evict は指定テナントのプールを閉じてキャッシュから取り除く。
// 以後このプール経由で新しいクエリは発行できず、再有効化時には
// クリーンなプールが改めて生成される。プールが存在しなくても
// 世代番号は進めるため、生成中のプールも確実に破棄される。
func (c *ConnCache) Evict(tenantID string) {
	c.mu.Lock()
	db := c.pools[tenantID]
	delete(c.pools, tenantID)
	c.gens[tenantID]++
	c.mu.Unlock()

	if db != nil {
		db.Close()
		if c.onPoolEvicted != nil {
			c.onPoolEvicted()
		}
		slog.Info("tenant pool evicted",
			slog.String("tenant_id", tenantID),
		)
	}
}

// Len は現在キャッシュされているプール数を返す。テストおよびメトリクス用。
func (c *ConnCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pools)
}

// Close はすべてのプールを閉じ、キャッシュを終了状態にする。
// 以後のGetはErrCacheClosedを返し、Close時点で生成中だったプールは
// 完成後に登録されず破棄される。プロセスシャットダウン用。
func (c *ConnCache) Close() {
	c.mu.Lock()
	c.closed = true
	pools := c.pools
	c.pools = make(map[string]*sql.DB)
	c.mu.Unlock()

	for _, db := range pools {
		db.Close()
	}
}

// openPostgres はlib/pqでプールを開き、接続数制限とアイドル回収を設定する。
// 到達性の確認のためPingまで行い、失敗したハンドルは閉じて返さない。
func (c *ConnCache) openPostgres(ctx context.Context, connURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(c.maxOpenConns)
	db.SetMaxIdleConns(c.maxOpenConns)
	db.SetConnMaxIdleTime(c.idleTimeout)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
