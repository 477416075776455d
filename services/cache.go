package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"backend_fieldservice/database"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ErrCacheMiss ключ отсутствует в кэше или Redis отключен
var ErrCacheMiss = errors.New("cache miss")

// DashboardCacheTTL время жизни кэша статистики
const DashboardCacheTTL = 5 * time.Minute

// CacheService предоставляет методы для кэширования. При отключенном Redis
// запись пропускается, а чтение всегда возвращает ErrCacheMiss.
type CacheService struct {
	redis  *redis.Client
	logger *logrus.Logger

	hits   int64
	misses int64
}

// NewCacheService создает новый экземпляр CacheService
func NewCacheService(redisClient *redis.Client, logger *logrus.Logger) *CacheService {
	return &CacheService{
		redis:  redisClient,
		logger: logger,
	}
}

// Enabled сообщает, подключен ли Redis
func (cs *CacheService) Enabled() bool {
	return cs != nil && cs.redis != nil
}

// GetJSON читает значение из кэша в dest
func (cs *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if !cs.Enabled() {
		return ErrCacheMiss
	}
	err := database.CacheGetJSON(ctx, cs.redis, key, dest)
	if errors.Is(err, redis.Nil) {
		atomic.AddInt64(&cs.misses, 1)
		return ErrCacheMiss
	}
	if err != nil {
		atomic.AddInt64(&cs.misses, 1)
		return err
	}
	atomic.AddInt64(&cs.hits, 1)
	return nil
}

// SetJSON сохраняет значение в кэш; ошибки только логируются
func (cs *CacheService) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !cs.Enabled() {
		return
	}
	if err := database.CacheSetJSON(ctx, cs.redis, key, value, ttl); err != nil {
		cs.logger.WithError(err).WithField("key", key).Warn("⚠️ Не удалось записать значение в кэш")
	}
}

// InvalidatePattern удаляет ключи по шаблону
func (cs *CacheService) InvalidatePattern(ctx context.Context, pattern string) {
	if !cs.Enabled() {
		return
	}
	if err := database.CacheDelPattern(ctx, cs.redis, pattern); err != nil {
		cs.logger.WithError(err).WithField("pattern", pattern).Warn("⚠️ Не удалось очистить кэш")
	}
}

// InvalidateDashboards сбрасывает кэш статистики всех пользователей
func (cs *CacheService) InvalidateDashboards(ctx context.Context) {
	cs.InvalidatePattern(ctx, "dashboard:*")
}

// GetCacheStats возвращает статистику использования кэша
func (cs *CacheService) GetCacheStats(ctx context.Context) (map[string]interface{}, error) {
	if !cs.Enabled() {
		return map[string]interface{}{"status": "disabled"}, nil
	}

	keyCount, err := cs.redis.DBSize(ctx).Result()
	if err != nil {
		return nil, err
	}

	hits := atomic.LoadInt64(&cs.hits)
	misses := atomic.LoadInt64(&cs.misses)
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses) * 100
	}

	return map[string]interface{}{
		"status":    "enabled",
		"key_count": keyCount,
		"hits":      hits,
		"misses":    misses,
		"hit_rate":  hitRate,
	}, nil
}
