package service

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Incrementa todos los contadores del intento en un solo round trip.
const redisLoginFailScript = `
for _, key in ipairs(KEYS) do
  local current = redis.call("INCR", key)
  if current == 1 then
    redis.call("EXPIRE", key, ARGV[1])
  end
end
return #KEYS
`

type redisLimiterClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// redisLoginRateLimiter usa una ventana fija compartida entre instancias.
type redisLoginRateLimiter struct {
	client redisLimiterClient
	window time.Duration
	max    int
	ipMax  int
	prefix string
}

func NewRedisLoginRateLimiter(client *redis.Client, window time.Duration, max, ipMax int) LoginRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	if ipMax <= 0 {
		ipMax = defaultLoginIPMax
	}
	return &redisLoginRateLimiter{
		client: client,
		window: window,
		max:    max,
		ipMax:  ipMax,
		prefix: "auth:login:rl:",
	}
}

// Allow solo lee los contadores. Falla abierto si redis no responde.
func (l *redisLoginRateLimiter) Allow(ctx context.Context, email, clientIP string) bool {
	if l == nil || l.client == nil {
		return true
	}
	scopes := loginScopes(email, clientIP, l.max, l.ipMax)
	if len(scopes) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	values, err := l.client.MGet(ctx, l.keys(scopes)...).Result()
	if err != nil {
		return true
	}
	for i, scope := range scopes {
		if i >= len(values) {
			break
		}
		raw, ok := values[i].(string)
		if !ok {
			continue
		}
		count, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if count >= scope.max {
			return false
		}
	}
	return true
}

func (l *redisLoginRateLimiter) Fail(ctx context.Context, email, clientIP string) {
	if l == nil || l.client == nil {
		return
	}
	scopes := loginScopes(email, clientIP, l.max, l.ipMax)
	if len(scopes) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	_ = l.client.Eval(ctx, redisLoginFailScript, l.keys(scopes), seconds).Err()
}

func (l *redisLoginRateLimiter) Reset(ctx context.Context, email string) {
	if l == nil || l.client == nil {
		return
	}
	key := loginEmailKey(email)
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_ = l.client.Del(ctx, l.prefix+key).Err()
}

func (l *redisLoginRateLimiter) keys(scopes []loginScope) []string {
	keys := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		keys = append(keys, l.prefix+scope.key)
	}
	return keys
}
