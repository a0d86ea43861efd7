// Package dedup short-circuits jobs whose content was already processed.
//
// After the acquire stage a job knows its content key. The gate looks for an
// earlier completed job with the same key and, when found, the job inherits
// that job's artifacts and metadata and completes without running the
// costly stages. Concurrent first-time jobs for one key are reduced, not
// eliminated, by a short-lived claim: the loser waits up to claim_wait for
// the winner to finish and then proceeds on its own.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"recap/internal/logging"
	"recap/internal/queue"
)

const (
	defaultClaimTTL  = 30 * time.Minute
	defaultClaimWait = 30 * time.Second
	defaultPoll      = 500 * time.Millisecond
)

// Store is the slice of the job store the gate reads.
type Store interface {
	GetByID(ctx context.Context, id int64) (*queue.Job, error)
	FindCompletedByContentKey(ctx context.Context, key string, excludeID int64) (*queue.Job, error)
}

// Gate performs the content-key lookup and claim handling.
type Gate struct {
	store     Store
	claims    Claimer
	cache     *lru.Cache[string, int64]
	claimTTL  time.Duration
	claimWait time.Duration
	poll      time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClaimer enables claims. Without one the gate only looks up.
func WithClaimer(c Claimer) Option {
	return func(g *Gate) { g.claims = c }
}

// WithClaimTiming sets the claim TTL, how long a loser waits for the winner,
// and the polling interval while waiting. Zero values keep the defaults.
func WithClaimTiming(ttl, wait, poll time.Duration) Option {
	return func(g *Gate) {
		if ttl > 0 {
			g.claimTTL = ttl
		}
		if wait > 0 {
			g.claimWait = wait
		}
		if poll > 0 {
			g.poll = poll
		}
	}
}

// WithLogger sets the gate logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock overrides the completion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New builds a gate with an LRU of cacheSize content keys (0 disables it).
func New(store Store, cacheSize int, opts ...Option) (*Gate, error) {
	g := &Gate{
		store:     store,
		claimTTL:  defaultClaimTTL,
		claimWait: defaultClaimWait,
		poll:      defaultPoll,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, int64](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("dedup cache: %w", err)
		}
		g.cache = cache
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// FindCompleted returns a completed job other than selfID with the same
// content key. Cached ids are re-read from the store before use.
func (g *Gate) FindCompleted(ctx context.Context, key string, selfID int64) (*queue.Job, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	if g.cache != nil {
		if id, ok := g.cache.Get(key); ok && id != selfID {
			job, err := g.store.GetByID(ctx, id)
			if err != nil {
				return nil, false, err
			}
			if job != nil && job.Stage == queue.StageCompleted && job.ContentKey == key {
				return job, true, nil
			}
			g.cache.Remove(key)
		}
	}
	job, err := g.store.FindCompletedByContentKey(ctx, key, selfID)
	if err != nil {
		return nil, false, err
	}
	if job == nil {
		return nil, false, nil
	}
	g.Remember(job)
	return job, true, nil
}

// Remember records a completed job in the cache.
func (g *Gate) Remember(job *queue.Job) {
	if g.cache == nil || job == nil || job.ContentKey == "" || job.Stage != queue.StageCompleted {
		return
	}
	g.cache.Add(job.ContentKey, job.ID)
}

// Apply completes job from source: artifacts and metadata are copied
// verbatim and the job moves straight to completed.
func (g *Gate) Apply(job, source *queue.Job) {
	job.ContentKey = source.ContentKey
	job.Artifacts = source.Artifacts.Clone()
	job.Metadata = source.Metadata
	job.SetCompleted(g.now().UTC())
}

// Decision is the outcome of Check. Release must be called once the job
// reaches a terminal stage.
type Decision struct {
	Source  *queue.Job
	release func(context.Context)
}

// Duplicate reports whether the job can complete from Source.
func (d Decision) Duplicate() bool {
	return d.Source != nil
}

// Release gives up a held claim. It is safe on every decision.
func (d Decision) Release(ctx context.Context) {
	if d.release != nil {
		d.release(ctx)
	}
}

// Check looks up key and, on a miss, takes the claim for selfID. A job that
// loses the claim waits for the holder's result before proceeding.
func (g *Gate) Check(ctx context.Context, key string, selfID int64) (Decision, error) {
	source, ok, err := g.FindCompleted(ctx, key, selfID)
	if err != nil || ok {
		return Decision{Source: source}, err
	}
	if g.claims == nil || key == "" {
		return Decision{}, nil
	}

	owner := fmt.Sprintf("job-%d-%s", selfID, uuid.NewString())
	won, err := g.claims.Claim(ctx, key, owner, g.claimTTL)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, g.logger), "dedup claim unavailable; continuing without it", "dedup_claim_failed",
			logging.String(logging.FieldContentKey, key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "duplicate work possible for this content key"),
			logging.String(logging.FieldErrorHint, "check dedup.redis_addr and that Redis is reachable"),
		)
		return Decision{}, nil
	}
	if won {
		return Decision{release: func(ctx context.Context) {
			if err := g.claims.Release(context.WithoutCancel(ctx), key, owner); err != nil {
				g.logger.Debug("dedup claim release failed", logging.String(logging.FieldContentKey, key), logging.Error(err))
			}
		}}, nil
	}

	logging.WithContext(ctx, g.logger).Info("content key claimed by another job; waiting",
		logging.String(logging.FieldContentKey, key),
		logging.Duration("claim_wait", g.claimWait),
		logging.String(logging.FieldEventType, "dedup_wait"),
	)
	return g.waitForWinner(ctx, key, selfID)
}

func (g *Gate) waitForWinner(ctx context.Context, key string, selfID int64) (Decision, error) {
	deadline := time.NewTimer(g.claimWait)
	defer deadline.Stop()
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		case <-deadline.C:
			return Decision{}, nil
		case <-ticker.C:
			source, ok, err := g.FindCompleted(ctx, key, selfID)
			if err != nil {
				return Decision{}, err
			}
			if ok {
				return Decision{Source: source}, nil
			}
		}
	}
}
