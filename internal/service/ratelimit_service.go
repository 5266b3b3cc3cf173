package service

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	config "github.com/xeinst/autopost/configs"
	"github.com/xeinst/autopost/internal/models"
	"github.com/xeinst/autopost/internal/repository"
)

// Scope identifies the rate-limit granularity: the global scope plus one scope
// per platform+target.
type Scope struct {
	Platform string
	Target   string
}

func (s Scope) Key() string {
	return s.Platform + "/" + s.Target
}

// Decision is the structured result of an acquisition attempt. Denials carry
// the exact time at which the action becomes allowed, so callers can retry on
// their next tick without busy-polling.
type Decision struct {
	Allowed       bool      `json:"allowed"`
	NextAllowedAt time.Time `json:"next_allowed_at,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

type RateLimitService interface {
	TryAcquire(ctx context.Context, scope Scope, topLevel bool) (Decision, error)
	RecordAction(ctx context.Context, tx *sql.Tx, scope Scope, topLevel bool, at time.Time) error
}

type rateLimitService struct {
	rr  repository.RateLimitRepository
	ar  repository.ActivityRepository
	bc  *config.BotConfig
	clk clock.Clock

	mu     sync.Mutex
	jitter func(min, max time.Duration) time.Duration
}

func NewRateLimitService(
	rr repository.RateLimitRepository,
	ar repository.ActivityRepository,
	bc *config.BotConfig,
	clk clock.Clock) RateLimitService {
	rng := rand.New(rand.NewSource(clk.Now().UnixNano()))
	return &rateLimitService{
		rr:  rr,
		ar:  ar,
		bc:  bc,
		clk: clk,
		jitter: func(min, max time.Duration) time.Duration {
			if max <= min {
				return min
			}
			return min + time.Duration(rng.Int63n(int64(max-min)))
		},
	}
}

// TryAcquire evaluates every constraint and, when more than one denies, reports
// the latest next-allowed time, since all constraints must clear before the
// action is permitted.
func (s *rateLimitService) TryAcquire(ctx context.Context, scope Scope, topLevel bool) (Decision, error) {
	now := s.clk.Now()

	denied := Decision{Allowed: true}
	deny := func(next time.Time, reason string) {
		if denied.Allowed || next.After(denied.NextAllowedAt) {
			denied = Decision{Allowed: false, NextAllowedAt: next, Reason: reason}
		}
	}

	// Jittered global minimum interval. Randomizing the gap keeps the bot's
	// timing from looking mechanical.
	global, err := s.rr.GetByScope(ctx, models.ScopeGlobal)
	if err != nil {
		return Decision{}, err
	}
	if global != nil && global.LastActionAt != nil {
		s.mu.Lock()
		interval := s.jitter(
			time.Duration(s.bc.RateLimits.GlobalCooldownMinSec)*time.Second,
			time.Duration(s.bc.RateLimits.GlobalCooldownMaxSec)*time.Second,
		)
		s.mu.Unlock()
		if next := global.LastActionAt.Add(interval); now.Before(next) {
			deny(next, "global minimum interval")
		}
	}

	// Per-target cooldown after a top-level post.
	if topLevel {
		policy, ok := s.bc.PolicyFor(scope.Platform, scope.Target)
		if !ok {
			return Decision{}, fmt.Errorf("%w: %s", ErrUnknownTarget, scope.Key())
		}
		window, err := s.rr.GetByScope(ctx, scope.Key())
		if err != nil {
			return Decision{}, err
		}
		if window != nil && window.LastTopLevelAt != nil {
			cooldown := time.Duration(policy.CooldownHours) * time.Hour
			if next := window.LastTopLevelAt.Add(cooldown); now.Before(next) {
				deny(next, "target cooldown")
			}
		}
	}

	// Rolling daily cap, recomputed from the ledger.
	kind := models.DraftKindComment
	limit := s.bc.RateLimits.MaxCommentsPerDay
	if topLevel {
		kind = models.DraftKindPost
		limit = s.bc.RateLimits.MaxPostsPerDay
	}
	since := now.Add(-24 * time.Hour)
	count, err := s.ar.CountPublishedSince(ctx, kind, since)
	if err != nil {
		return Decision{}, err
	}
	if count >= limit {
		next := now.Add(24 * time.Hour)
		if oldest, err := s.ar.OldestPublishedSince(ctx, kind, since); err == nil && oldest != nil {
			next = oldest.Add(24 * time.Hour)
		}
		deny(next, "daily cap")
	}

	// Global hourly cap, posts and comments counted together.
	hourAgo := now.Add(-1 * time.Hour)
	hourPosts, err := s.ar.CountPublishedSince(ctx, models.DraftKindPost, hourAgo)
	if err != nil {
		return Decision{}, err
	}
	hourComments, err := s.ar.CountPublishedSince(ctx, models.DraftKindComment, hourAgo)
	if err != nil {
		return Decision{}, err
	}
	if hourPosts+hourComments >= s.bc.RateLimits.MaxActionsPerHour {
		next := now.Add(time.Hour)
		oldestPost, _ := s.ar.OldestPublishedSince(ctx, models.DraftKindPost, hourAgo)
		oldestComment, _ := s.ar.OldestPublishedSince(ctx, models.DraftKindComment, hourAgo)
		if oldest := earliest(oldestPost, oldestComment); oldest != nil {
			next = oldest.Add(time.Hour)
		}
		deny(next, "hourly cap")
	}

	return denied, nil
}

func earliest(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.Before(*b) {
		return a
	}
	return b
}

// RecordAction must run in the same transaction as the draft's posted
// transition; it updates the global window and the scope window together.
func (s *rateLimitService) RecordAction(ctx context.Context, tx *sql.Tx, scope Scope, topLevel bool, at time.Time) error {
	if err := s.rr.Record(ctx, tx, models.ScopeGlobal, at, topLevel); err != nil {
		return err
	}
	return s.rr.Record(ctx, tx, scope.Key(), at, topLevel)
}
