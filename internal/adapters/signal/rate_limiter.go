package signal

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dkeye/voicegate/internal/domain"
)

const limiterIdleTTL = 10 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// JoinRateLimiter is a token bucket per user. Buckets idle for longer than
// limiterIdleTTL are dropped on the next sweep.
type JoinRateLimiter struct {
	mu        sync.Mutex
	users     map[domain.UserID]*userLimiter
	every     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewJoinRateLimiter allows perMinute joins per user with the given burst.
func NewJoinRateLimiter(perMinute, burst int) *JoinRateLimiter {
	perMinute = max(perMinute, 1)
	return &JoinRateLimiter{
		users: make(map[domain.UserID]*userLimiter),
		every: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: burst,
		now:   time.Now,
	}
}

func (rl *JoinRateLimiter) Allow(uid domain.UserID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for id, u := range rl.users {
			if now.Sub(u.lastSeen) > limiterIdleTTL {
				delete(rl.users, id)
			}
		}
		rl.lastSweep = now
	}

	u, ok := rl.users[uid]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.users[uid] = u
	}
	u.lastSeen = now
	return u.limiter.AllowN(now, 1)
}
