// Package postgres 提供 PostgreSQL 数据库访问层实现
package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"novelforge-api/pkg/errors"
	"novelforge-api/pkg/logger"
	"novelforge-api/pkg/metrics"
)

// writeLockKey 标记当前上下文已持有的租户写锁
type writeLockKey struct{}

// TenantStore 单个租户的存储句柄
type TenantStore struct {
	tenantID  string
	client    *Client
	createdAt time.Time

	acquires   atomic.Int64
	lastUsedAt atomic.Int64 // unix nano
}

// TenantID 返回句柄所属租户
func (s *TenantStore) TenantID() string {
	return s.tenantID
}

// Client 返回底层数据库客户端
func (s *TenantStore) Client() *Client {
	return s.client
}

func (s *TenantStore) touch() {
	s.acquires.Add(1)
	s.lastUsedAt.Store(time.Now().UnixNano())
}

// TenantStoreStats 租户存储统计
type TenantStoreStats struct {
	TenantID   string    `json:"tenant_id"`
	Acquires   int64     `json:"acquires"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Seeder 租户初始化播种接口
type Seeder interface {
	// EnsureSeeded 幂等播种租户词表与预置数据
	EnsureSeeded(ctx context.Context, tenantID string) error
}

// Registry 租户存储注册表
// 首次 Acquire 时完成该租户的初始化播种，同租户并发初始化由 singleflight 收敛为一次；
// 所有写操作通过 WithWriteLock 串行化，同一逻辑任务内的嵌套加锁可重入
type Registry struct {
	client *Client
	seeder Seeder

	mu     sync.RWMutex
	stores map[string]*TenantStore
	locks  map[string]*sync.Mutex
	closed bool

	initGroup singleflight.Group
}

// NewRegistry 创建租户存储注册表
func NewRegistry(client *Client, seeder Seeder) *Registry {
	return &Registry{
		client: client,
		seeder: seeder,
		stores: make(map[string]*TenantStore),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Acquire 获取租户存储句柄，首次调用触发初始化
func (r *Registry) Acquire(ctx context.Context, tenantID string) (*TenantStore, error) {
	if tenantID == "" {
		return nil, errors.ErrTenantMissing
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, errors.ErrStoreUnavailable.WithDetail("registry closed")
	}
	if store, ok := r.stores[tenantID]; ok {
		r.mu.RUnlock()
		store.touch()
		return store, nil
	}
	r.mu.RUnlock()

	// 同租户并发初始化收敛为一次；失败不缓存，下次 Acquire 重试
	v, err, _ := r.initGroup.Do(tenantID, func() (any, error) {
		return r.initTenant(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}

	store := v.(*TenantStore)
	store.touch()
	return store, nil
}

func (r *Registry) initTenant(ctx context.Context, tenantID string) (*TenantStore, error) {
	// singleflight 合并的等待者可能携带已取消的上下文，初始化本身用独立超时
	initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	r.mu.RLock()
	if store, ok := r.stores[tenantID]; ok {
		r.mu.RUnlock()
		return store, nil
	}
	r.mu.RUnlock()

	if err := r.client.Ping(initCtx); err != nil {
		return nil, errors.ErrStoreUnavailable.WithError(err)
	}

	if r.seeder != nil {
		if err := r.seeder.EnsureSeeded(initCtx, tenantID); err != nil {
			logger.Error(initCtx, "tenant seeding failed", err, "tenant_id", tenantID)
			return nil, errors.Wrap(err, errors.CodeStoreUnavailable, "tenant initialization failed")
		}
	}

	store := &TenantStore{
		tenantID:  tenantID,
		client:    r.client,
		createdAt: time.Now(),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.ErrStoreUnavailable.WithDetail("registry closed")
	}
	r.stores[tenantID] = store
	metrics.TenantStoresOpen.Set(float64(len(r.stores)))
	r.mu.Unlock()

	logger.Info(initCtx, "tenant store initialized", "tenant_id", tenantID)
	return store, nil
}

// EnsureTenant 确保租户存储就绪，不返回句柄
func (r *Registry) EnsureTenant(ctx context.Context, tenantID string) error {
	_, err := r.Acquire(ctx, tenantID)
	return err
}

// lockFor 返回租户写锁，懒创建
func (r *Registry) lockFor(tenantID string) *sync.Mutex {
	r.mu.RLock()
	mu, ok := r.locks[tenantID]
	r.mu.RUnlock()
	if ok {
		return mu
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if mu, ok = r.locks[tenantID]; ok {
		return mu
	}
	mu = &sync.Mutex{}
	r.locks[tenantID] = mu
	return mu
}

// WithWriteLock 持有租户写锁执行 fn，同一上下文内嵌套调用不会死锁
func (r *Registry) WithWriteLock(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	if held, ok := ctx.Value(writeLockKey{}).(string); ok && held == tenantID {
		return fn(ctx)
	}

	mu := r.lockFor(tenantID)
	mu.Lock()
	defer mu.Unlock()

	return fn(context.WithValue(ctx, writeLockKey{}, tenantID))
}

// HoldsWriteLock 当前上下文是否已持有指定租户的写锁
func HoldsWriteLock(ctx context.Context, tenantID string) bool {
	held, ok := ctx.Value(writeLockKey{}).(string)
	return ok && held == tenantID
}

// Stats 返回全部租户存储统计
func (r *Registry) Stats() []TenantStoreStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]TenantStoreStats, 0, len(r.stores))
	for _, store := range r.stores {
		stats = append(stats, TenantStoreStats{
			TenantID:   store.tenantID,
			Acquires:   store.acquires.Load(),
			CreatedAt:  store.createdAt,
			LastUsedAt: time.Unix(0, store.lastUsedAt.Load()),
		})
	}
	return stats
}

// CloseAll 排空写锁并释放全部句柄
func (r *Registry) CloseAll() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	locks := make([]*sync.Mutex, 0, len(r.locks))
	for _, mu := range r.locks {
		locks = append(locks, mu)
	}
	r.stores = make(map[string]*TenantStore)
	r.locks = make(map[string]*sync.Mutex)
	metrics.TenantStoresOpen.Set(0)
	r.mu.Unlock()

	// 等待在途写任务释放锁
	for _, mu := range locks {
		drainLock(mu)
	}
}

func drainLock(mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()
}
