package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// PasswordVerifier - то, что нужно AdminAuth от админ-сервиса
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, raw string) (bool, error)
}

// AdminAuth пропускает запрос только с верным паролем в X-Admin-Password.
func AdminAuth(v PasswordVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		pw := c.GetHeader(AdminPasswordHeader)
		if pw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing admin password"})
			return
		}

		ok, err := v.VerifyPassword(c.Request.Context(), pw)
		if err != nil {
			c.AbortWithStatusJSON(errorCodeDefiner(err), gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": model.ErrUnauthorized.Error()})
			return
		}

		c.Next()
	}
}

// limiterIdleTTL - через столько без запросов лимитер IP выкидывается из карты
const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiters держит по лимитеру на IP; простаивающие чистятся не чаще раза в ttl
type ipLimiters struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
	visitors  map[string]*visitor
}

func newIPLimiters(rps float64, burst int, ttl time.Duration, now func() time.Time) *ipLimiters {
	return &ipLimiters{
		rps:       rate.Limit(rps),
		burst:     burst,
		ttl:       ttl,
		now:       now,
		lastSweep: now(),
		visitors:  make(map[string]*visitor),
	}
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.ttl {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) >= l.ttl {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (l *ipLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// RateLimit - token bucket на каждый клиентский IP
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	return rateLimit(newIPLimiters(rps, burst, limiterIdleTTL, time.Now))
}

func rateLimit(limiters *ipLimiters) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// LimitBody ограничивает размер тела; превышение всплывет как 413 при разборе формы
func LimitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
