package identity

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleLimiter is how long an unused per-key limiter is kept.
const idleLimiter = 10 * time.Minute

// Limiter throttles attempts per key (an email address). Each key may make
// perMinute attempts per minute with a burst of the same size.
type Limiter struct {
	mu       sync.Mutex
	perMin   int
	visitors map[string]*visitor
	lastGC   time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter. perMinute <= 0 disables limiting.
func NewLimiter(perMinute int) *Limiter {
	return &Limiter{perMin: perMinute, visitors: make(map[string]*visitor)}
}

// Allow reports whether key may make another attempt now.
func (l *Limiter) Allow(key string) bool {
	if l.perMin <= 0 {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastGC) > idleLimiter {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > idleLimiter {
				delete(l.visitors, k)
			}
		}
		l.lastGC = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}
