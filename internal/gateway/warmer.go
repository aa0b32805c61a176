package gateway

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// WarmupJob preloads the task list of one board scope. Higher priorities are
// fetched first.
type WarmupJob struct {
	TeamID   *string
	Priority int
}

type WarmupStrategy struct {
	ConcurrentJobs int
	// HealthCheckFunc gates a run; when it reports false nothing is fetched.
	HealthCheckFunc func(ctx context.Context) error
}

// CacheWarmer fills the list cache ahead of the user switching boards.
type CacheWarmer struct {
	gw       *CachedGateway
	strategy WarmupStrategy
	logger   *log.Logger

	warmed  int64
	skipped int64
	failed  int64
}

func NewCacheWarmer(gw *CachedGateway, strategy WarmupStrategy) *CacheWarmer {
	if strategy.ConcurrentJobs < 1 {
		strategy.ConcurrentJobs = 3
	}
	if strategy.HealthCheckFunc == nil {
		strategy.HealthCheckFunc = gw.cache.Health
	}
	return &CacheWarmer{gw: gw, strategy: strategy, logger: gw.logger}
}

// Warm fetches every job's list through the cached gateway. Failed jobs are
// logged and skipped, except a refused session, which stops the run and is
// returned.
func (cw *CacheWarmer) Warm(ctx context.Context, jobs []WarmupJob) error {
	if len(jobs) == 0 {
		return nil
	}
	if err := cw.strategy.HealthCheckFunc(ctx); err != nil {
		atomic.AddInt64(&cw.skipped, int64(len(jobs)))
		cw.logger.WithField("error", err).Info("gateway.cache.warm_skipped")
		return nil
	}

	ordered := make([]WarmupJob, len(jobs))
	copy(ordered, jobs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		once    sync.Once
		expired error
	)
	jobCh := make(chan WarmupJob, len(ordered))
	for i := 0; i < cw.strategy.ConcurrentJobs && i < len(ordered); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if ctx.Err() != nil {
					return
				}
				if err := cw.processJob(ctx, job); errors.Is(err, ErrSessionExpired) {
					once.Do(func() {
						expired = err
						cancel()
					})
				}
			}
		}()
	}

	for _, job := range ordered {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	cw.logger.WithFields(log.Fields{"jobs": len(ordered), "warmed": atomic.LoadInt64(&cw.warmed)}).Debug("gateway.cache.warmed")
	return expired
}

func (cw *CacheWarmer) processJob(ctx context.Context, job WarmupJob) error {
	if _, err := cw.gw.List(ctx, job.TeamID); err != nil {
		atomic.AddInt64(&cw.failed, 1)
		cw.logger.WithFields(log.Fields{"key": cw.gw.listKey(job.TeamID), "error": err}).Warn("gateway.cache.warm_failed")
		return err
	}
	atomic.AddInt64(&cw.warmed, 1)
	return nil
}

func (cw *CacheWarmer) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"concurrent_jobs": cw.strategy.ConcurrentJobs,
		"warmed":          atomic.LoadInt64(&cw.warmed),
		"skipped":         atomic.LoadInt64(&cw.skipped),
		"failed":          atomic.LoadInt64(&cw.failed),
	}
}
