package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend_fieldservice/config"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// InitRedis инициализирует подключение к Redis
func InitRedis(cfg *config.Config, log *logrus.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.MaxConns,
		MinIdleConns: 2,
		DialTimeout:  cfg.Redis.Timeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  300 * time.Second,
	})

	// Проверяем подключение
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.Timeout+time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	log.WithField("addr", cfg.GetRedisAddr()).Info("✅ Успешно подключено к Redis")
	return client, nil
}

// CacheSetJSON сохраняет JSON объект в кэш
func CacheSetJSON(ctx context.Context, client *redis.Client, key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка сериализации JSON: %w", err)
	}
	return client.Set(ctx, key, jsonData, ttl).Err()
}

// CacheGetJSON получает JSON объект из кэша
func CacheGetJSON(ctx context.Context, client *redis.Client, key string, dest interface{}) error {
	jsonData, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(jsonData, dest); err != nil {
		return fmt.Errorf("ошибка десериализации JSON: %w", err)
	}
	return nil
}

// CacheDelPattern удаляет ключи по шаблону
func CacheDelPattern(ctx context.Context, client *redis.Client, pattern string) error {
	iter := client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return client.Del(ctx, keys...).Err()
	}
	return nil
}

// DashboardCacheKey генерирует ключ кэша статистики для пользователя
func DashboardCacheKey(role string, userID uint) string {
	return fmt.Sprintf("dashboard:%s:%d", role, userID)
}

// NotificationChannel возвращает канал pub/sub уведомлений пользователя
func NotificationChannel(userID uint) string {
	return fmt.Sprintf("notifications:%d", userID)
}
