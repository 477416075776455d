package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/go-redis/redis/v8"
)

// RateLimitConfig конфигурация rate limiting
type RateLimitConfig struct {
	Requests       int                       // Количество запросов
	Window         time.Duration             // Временное окно
	SkipSuccessful bool                      // Пропускать успешные запросы
	KeyGenerator   func(*gin.Context) string // Генератор ключей
	Prefix         string
}

// DefaultKeyGenerator генерирует ключ на основе IP адреса
func DefaultKeyGenerator(c *gin.Context) string {
	return c.ClientIP()
}

// UserKeyGenerator генерирует ключ на основе пользователя
func UserKeyGenerator(c *gin.Context) string {
	if user := GetCurrentUser(c); user != nil {
		return "user:" + strconv.FormatUint(uint64(user.ID), 10)
	}
	return c.ClientIP()
}

// RateLimit создает middleware для ограничения частоты запросов.
// Без Redis ограничение не применяется.
func RateLimit(client *redis.Client, config RateLimitConfig) gin.HandlerFunc {
	prefix := config.Prefix
	if prefix == "" {
		prefix = "rate_limit:"
	}
	return func(c *gin.Context) {
		if client == nil || config.Requests <= 0 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := prefix + config.KeyGenerator(c)

		// Получаем текущее количество запросов
		current, err := client.Get(ctx, key).Int()
		if err != nil && err != redis.Nil {
			// В случае ошибки Redis пропускаем запрос
			c.Next()
			return
		}

		// Проверяем превышение лимита
		if current >= config.Requests {
			c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": fmt.Sprintf("Too many requests. Limit: %d requests per %v", config.Requests, config.Window),
				"error":   "rate limit exceeded",
			})
			return
		}

		// Увеличиваем счетчик
		pipe := client.Pipeline()
		pipe.Incr(ctx, key)
		if current == 0 {
			// Устанавливаем TTL только для первого запроса
			pipe.Expire(ctx, key, config.Window)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			c.Next()
			return
		}

		remaining := config.Requests - current - 1
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

		c.Next()

		// Если настроено пропускать успешные запросы и запрос успешен
		if config.SkipSuccessful && c.Writer.Status() < 400 {
			client.Decr(ctx, key)
		}
	}
}

// APIRateLimit общее ограничение для API по IP; стоит до аутентификации
func APIRateLimit(client *redis.Client, requests int, window time.Duration) gin.HandlerFunc {
	return RateLimit(client, RateLimitConfig{
		Requests:     requests,
		Window:       window,
		KeyGenerator: DefaultKeyGenerator,
	})
}

// UserRateLimit ограничение на пользователя; подключается после RequireAuth,
// иначе ключ вырождается в IP
func UserRateLimit(client *redis.Client, requests int, window time.Duration) gin.HandlerFunc {
	return RateLimit(client, RateLimitConfig{
		Requests:     requests,
		Window:       window,
		KeyGenerator: UserKeyGenerator,
		Prefix:       "rate_limit:user:",
	})
}

// AuthRateLimit ограничение для попыток входа; успешные входы не учитываются
func AuthRateLimit(client *redis.Client, requests int) gin.HandlerFunc {
	return RateLimit(client, RateLimitConfig{
		Requests:       requests,
		Window:         time.Minute,
		KeyGenerator:   DefaultKeyGenerator,
		SkipSuccessful: true,
		Prefix:         "rate_limit:auth:",
	})
}
