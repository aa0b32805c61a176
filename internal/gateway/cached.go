package gateway

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/internal/cache"
	"taskboard/internal/models"
)

const (
	listTag         = "tasks"
	defaultCacheTTL = 30 * time.Second
)

// CachedGateway keeps List results in Redis and drops them whenever a task
// is created, updated or deleted through it. Redis problems never fail a
// call: the request goes to the wrapped gateway instead.
type CachedGateway struct {
	next    Gateway
	cache   *cache.RedisCache
	breaker *cache.CircuitBreaker
	metrics *cache.CacheMetrics
	ttl     time.Duration
	logger  *log.Logger
}

type CachedOptions struct {
	TTL     time.Duration
	Breaker *cache.CircuitBreakerConfig
	Logger  *log.Logger
}

func NewCachedGateway(next Gateway, rc *cache.RedisCache, opts CachedOptions) *CachedGateway {
	if opts.TTL <= 0 {
		opts.TTL = defaultCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}

	return &CachedGateway{
		next:    next,
		cache:   rc,
		breaker: cache.NewCircuitBreaker("task-list-cache", opts.Breaker, opts.Logger),
		metrics: cache.NewCacheMetrics(),
		ttl:     opts.TTL,
		logger:  opts.Logger,
	}
}

func (g *CachedGateway) Metrics() cache.CacheMetrics { return g.metrics.GetStats() }

func (g *CachedGateway) Breaker() *cache.CircuitBreaker { return g.breaker }

func (g *CachedGateway) List(ctx context.Context, teamID *string) ([]models.Task, error) {
	key := g.listKey(teamID)

	var (
		cached  []models.Task
		version int64
	)
	err := g.breaker.Execute(func() error {
		err := g.cache.Get(ctx, key, &cached)
		if errors.Is(err, cache.ErrCacheMiss) {
			// A miss is a healthy answer. The version read here is what the
			// fill below is checked against.
			version, err = g.cache.TagVersion(ctx, listTag)
		}
		return err
	})
	fill := false
	switch {
	case errors.Is(err, cache.ErrCircuitBreakerOpen):
		g.metrics.RecordBypass()
	case err != nil:
		g.metrics.RecordError()
		g.logger.WithFields(log.Fields{"key": key, "error": err}).Warn("gateway.cache.read_failed")
	case cached != nil:
		g.metrics.RecordHit()
		return cached, nil
	default:
		g.metrics.RecordMiss()
		fill = true
	}

	tasks, err := g.next.List(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !fill {
		return tasks, nil
	}

	// A write that landed while the list was in flight has already bumped
	// the version; storing this list would hide it until the TTL ran out.
	stale := false
	werr := g.breaker.Execute(func() error {
		err := g.cache.SetWithTagsAtVersion(ctx, key, tasks, g.ttl, []string{listTag}, listTag, version)
		if errors.Is(err, cache.ErrStaleVersion) {
			stale = true
			return nil
		}
		return err
	})
	switch {
	case stale:
		g.metrics.RecordStaleFill()
		g.logger.WithField("key", key).Debug("gateway.cache.stale_fill_dropped")
	case werr == nil:
		g.metrics.RecordSet()
	case !errors.Is(werr, cache.ErrCircuitBreakerOpen):
		g.metrics.RecordError()
		g.logger.WithFields(log.Fields{"key": key, "error": werr}).Warn("gateway.cache.write_failed")
	}
	return tasks, nil
}

func (g *CachedGateway) Create(ctx context.Context, task models.NewTask) (models.Task, error) {
	created, err := g.next.Create(ctx, task)
	if err != nil {
		return created, err
	}
	g.invalidate(ctx)
	return created, nil
}

func (g *CachedGateway) Update(ctx context.Context, id string, patch models.TaskPatch) (models.Task, error) {
	updated, err := g.next.Update(ctx, id, patch)
	if err != nil {
		return updated, err
	}
	g.invalidate(ctx)
	return updated, nil
}

func (g *CachedGateway) Delete(ctx context.Context, id string) error {
	if err := g.next.Delete(ctx, id); err != nil {
		return err
	}
	g.invalidate(ctx)
	return nil
}

// invalidate drops every cached list. It runs even while the breaker is
// open so that a recovering Redis never serves a list older than a write.
func (g *CachedGateway) invalidate(ctx context.Context) {
	if err := g.cache.InvalidateByTag(ctx, listTag); err != nil {
		g.metrics.RecordError()
		g.logger.WithFields(log.Fields{"tag": listTag, "error": err}).Warn("gateway.cache.invalidate_failed")
		return
	}
	g.metrics.RecordInvalidation()
}

func (g *CachedGateway) listKey(teamID *string) string {
	if teamID == nil || *teamID == "" {
		return g.cache.Key("tasks", "personal")
	}
	return g.cache.Key("tasks", "team", *teamID)
}
