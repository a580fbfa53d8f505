// Package ratelimit implements the rate-limiting plugin, grounded on
// internal/middleware/ratelimit.go: a local token bucket
// (golang.org/x/time/rate) per remote address, with an optional
// Redis-backed shared counter (github.com/redis/go-redis/v9) for
// multi-instance deployments where a purely in-process bucket would let
// each instance grant its own quota.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/streamspace-dev/rangeweave/internal/apperr"
	"github.com/streamspace-dev/rangeweave/internal/logging"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
	"github.com/streamspace-dev/rangeweave/internal/plugin"
)

func init() {
	plugin.Register("ratelimit", New)
}

type Plugin struct {
	pipeline.Base

	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	redisClient *redis.Client
	redisLimit  int64
	redisWindow time.Duration
}

// New builds a rate-limit plugin instance. Recognized config keys: "rps",
// "burst" (local token bucket parameters, defaulting to 10 rps / burst
// 20), and optionally "redisAddr" + "redisLimit" + "redisWindowSeconds" to
// additionally enforce a shared counter across instances.
func New(instanceName string, cfg map[string][]string) (pipeline.Handler, error) {
	p := &Plugin{
		Base:     pipeline.Base{PluginName: instanceName},
		rps:      10,
		burst:    20,
		limiters: make(map[string]*rate.Limiter),
	}
	if v := first(cfg, "rps"); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
			p.rps = rate.Limit(f)
		}
	}
	if v := first(cfg, "burst"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			p.burst = n
		}
	}

	if addr := first(cfg, "redisAddr"); addr != "" {
		p.redisClient = redis.NewClient(&redis.Options{Addr: addr})
		p.redisLimit = 1000
		p.redisWindow = time.Minute
		if v := first(cfg, "redisLimit"); v != "" {
			fmt.Sscanf(v, "%d", &p.redisLimit)
		}
		if v := first(cfg, "redisWindowSeconds"); v != "" {
			var secs int
			if _, err := fmt.Sscanf(v, "%d", &secs); err == nil {
				p.redisWindow = time.Duration(secs) * time.Second
			}
		}
	}

	return p, nil
}

func first(cfg map[string][]string, key string) string {
	if v := cfg[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (p *Plugin) limiterFor(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(p.rps, p.burst)
		p.limiters[key] = l
	}
	return l
}

func (p *Plugin) OnRequest(ctx *pipeline.Context) (*pipeline.Response, error) {
	key := ctx.Req.Remote
	if key == "" {
		key = "unknown"
	}

	if !p.limiterFor(key).Allow() {
		return apperr.TooManyRequests("rate limit exceeded").Response(), nil
	}

	if p.redisClient != nil {
		if err := p.checkRedis(key); err != nil {
			if _, isLimit := err.(*limitExceeded); isLimit {
				return apperr.TooManyRequests("rate limit exceeded").Response(), nil
			}
			// Redis unavailable degrades to local-only limiting rather than
			// failing every request open or closed.
			logging.Component("ratelimit").Warn().Err(err).Msg("redis rate limit check failed, continuing with local limiter only")
		}
	}

	return nil, nil
}

type limitExceeded struct{}

func (*limitExceeded) Error() string { return "redis rate limit exceeded" }

func (p *Plugin) checkRedis(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	redisKey := "rangeweave:ratelimit:" + key
	count, err := p.redisClient.Incr(ctx, redisKey).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		p.redisClient.Expire(ctx, redisKey, p.redisWindow)
	}
	if count > p.redisLimit {
		return &limitExceeded{}
	}
	return nil
}
