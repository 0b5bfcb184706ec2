package service

import (
	"context"
	"strings"
	"sync"
	"time"
)

// LoginRateLimiter cuenta intentos fallidos de login por email y por IP de cliente.
// Un login exitoso limpia el contador del email, no el de la IP.
type LoginRateLimiter interface {
	Allow(ctx context.Context, email, clientIP string) bool
	Fail(ctx context.Context, email, clientIP string)
	Reset(ctx context.Context, email string)
}

const defaultLoginIPMax = 50

type loginScope struct {
	key string
	max int
}

func loginEmailKey(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	return "email:" + email
}

// loginScopes devuelve nil si no hay email; la IP es opcional.
func loginScopes(email, clientIP string, emailMax, ipMax int) []loginScope {
	emailKey := loginEmailKey(email)
	if emailKey == "" {
		return nil
	}
	scopes := []loginScope{{key: emailKey, max: emailMax}}
	if ip := strings.TrimSpace(clientIP); ip != "" {
		scopes = append(scopes, loginScope{key: "ip:" + strings.ToLower(ip), max: ipMax})
	}
	return scopes
}

type memoryLoginRateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	max       int
	ipMax     int
	hits      map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewLoginRateLimiter crea un rate limiter en memoria con ventana deslizante.
func NewLoginRateLimiter(window time.Duration, max, ipMax int) LoginRateLimiter {
	if max <= 0 {
		max = 1
	}
	if ipMax <= 0 {
		ipMax = defaultLoginIPMax
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryLoginRateLimiter{
		window: window,
		max:    max,
		ipMax:  ipMax,
		hits:   make(map[string][]time.Time),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *memoryLoginRateLimiter) Allow(_ context.Context, email, clientIP string) bool {
	scopes := loginScopes(email, clientIP, l.max, l.ipMax)
	if len(scopes) == 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.sweepLocked(now)
	for _, scope := range scopes {
		if len(l.pruneLocked(scope.key, now)) >= scope.max {
			return false
		}
	}
	return true
}

func (l *memoryLoginRateLimiter) Fail(_ context.Context, email, clientIP string) {
	scopes := loginScopes(email, clientIP, l.max, l.ipMax)
	if len(scopes) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.sweepLocked(now)
	for _, scope := range scopes {
		l.hits[scope.key] = append(l.pruneLocked(scope.key, now), now)
	}
}

func (l *memoryLoginRateLimiter) Reset(_ context.Context, email string) {
	key := loginEmailKey(email)
	if key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, key)
}

// pruneLocked descarta los intentos fuera de la ventana y borra la clave si queda vacia.
func (l *memoryLoginRateLimiter) pruneLocked(key string, now time.Time) []time.Time {
	entries, ok := l.hits[key]
	if !ok {
		return nil
	}
	cutoff := now.Add(-l.window)
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = kept
	return kept
}

// sweepLocked recorre todas las claves como mucho una vez por ventana.
func (l *memoryLoginRateLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key := range l.hits {
		l.pruneLocked(key, now)
	}
}
