package service

import (
	"context"
	"database/sql"
	"time"

	config "github.com/xeinst/autopost/configs"
	"github.com/xeinst/autopost/internal/models"
)

// in-memory fakes for the repository layer; WithinTx runs the body with a nil
// tx, which every repository treats as "use the pool"

type fakeUnitOfWork struct{}

func (f *fakeUnitOfWork) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type fakeDraftRepo struct {
	drafts map[string]*models.Draft
	recent []string
}

func newFakeDraftRepo() *fakeDraftRepo {
	return &fakeDraftRepo{drafts: map[string]*models.Draft{}}
}

func (f *fakeDraftRepo) GetByID(ctx context.Context, id string) (*models.Draft, error) {
	stored, ok := f.drafts[id]
	if !ok {
		return nil, nil
	}
	d := *stored
	return &d, nil
}

func (f *fakeDraftRepo) Create(ctx context.Context, tx *sql.Tx, draft *models.Draft) error {
	d := *draft
	f.drafts[draft.ID] = &d
	return nil
}

func (f *fakeDraftRepo) Update(ctx context.Context, tx *sql.Tx, draft *models.Draft) error {
	d := *draft
	f.drafts[draft.ID] = &d
	return nil
}

func (f *fakeDraftRepo) ListByStatus(ctx context.Context, status string, limit int) ([]*models.Draft, error) {
	var out []*models.Draft
	for _, d := range f.drafts {
		if d.Status == status {
			copied := *d
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeDraftRepo) ListEligible(ctx context.Context, now time.Time, limit int) ([]*models.Draft, error) {
	var out []*models.Draft
	for _, d := range f.drafts {
		if d.Eligible(now) {
			copied := *d
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeDraftRepo) ExistsBySource(ctx context.Context, platform, sourceRef string) (bool, error) {
	for _, d := range f.drafts {
		if d.Platform == platform && d.SourceRef == sourceRef {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDraftRepo) RecentBodies(ctx context.Context, platform, target string, limit int) ([]string, error) {
	return f.recent, nil
}

func (f *fakeDraftRepo) ListInconsistent(ctx context.Context) ([]*models.Draft, error) {
	return nil, nil
}

type publishedAction struct {
	kind string
	at   time.Time
}

type fakeActivityRepo struct {
	entries   []*models.ActivityEntry
	published []publishedAction
}

func (f *fakeActivityRepo) Create(ctx context.Context, tx *sql.Tx, entry *models.ActivityEntry) (int64, error) {
	e := *entry
	e.ID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, &e)
	return e.ID, nil
}

func (f *fakeActivityRepo) ListByDraft(ctx context.Context, draftID string) ([]*models.ActivityEntry, error) {
	var out []*models.ActivityEntry
	for _, e := range f.entries {
		if e.DraftID == draftID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeActivityRepo) ListRecent(ctx context.Context, limit int) ([]*models.ActivityEntry, error) {
	return f.entries, nil
}

func (f *fakeActivityRepo) CountPublishedSince(ctx context.Context, kind string, since time.Time) (int, error) {
	count := 0
	for _, p := range f.published {
		if p.kind == kind && !p.at.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeActivityRepo) OldestPublishedSince(ctx context.Context, kind string, since time.Time) (*time.Time, error) {
	var oldest *time.Time
	for i := range f.published {
		p := f.published[i]
		if p.kind != kind || p.at.Before(since) {
			continue
		}
		if oldest == nil || p.at.Before(*oldest) {
			oldest = &f.published[i].at
		}
	}
	return oldest, nil
}

func (f *fakeActivityRepo) CountByStateBetween(ctx context.Context, from, to time.Time) (map[string]int, error) {
	counts := map[string]int{}
	for _, e := range f.entries {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			counts[e.ToState]++
		}
	}
	return counts, nil
}

type fakeRateLimitRepo struct {
	windows map[string]*models.RateLimitWindow
}

func newFakeRateLimitRepo() *fakeRateLimitRepo {
	return &fakeRateLimitRepo{windows: map[string]*models.RateLimitWindow{}}
}

func (f *fakeRateLimitRepo) GetByScope(ctx context.Context, scope string) (*models.RateLimitWindow, error) {
	w, ok := f.windows[scope]
	if !ok {
		return nil, nil
	}
	copied := *w
	return &copied, nil
}

func (f *fakeRateLimitRepo) Record(ctx context.Context, tx *sql.Tx, scope string, at time.Time, topLevel bool) error {
	w, ok := f.windows[scope]
	if !ok {
		w = &models.RateLimitWindow{Scope: scope}
		f.windows[scope] = w
	}
	t := at
	w.LastActionAt = &t
	if topLevel {
		tl := at
		w.LastTopLevelAt = &tl
	}
	w.UpdatedAt = at
	return nil
}

type fakeSettingsRepo struct {
	values map[string]string
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{values: map[string]string{}}
}

func (f *fakeSettingsRepo) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeSettingsRepo) Set(ctx context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

func testBotConfig() *config.BotConfig {
	return &config.BotConfig{
		Targets: []config.TargetPolicy{
			{
				Name:          "golang subreddit",
				Platform:      "reddit",
				Target:        "golang",
				CooldownHours: 12,
				MinLength:     5,
				MaxLength:     100,
				BlockedFlairs: []string{"meta"},
				IsActive:      true,
			},
		},
		Moderation: config.ModerationConfig{
			ToxicityThreshold:   0.7,
			SpamThreshold:       0.7,
			SimilarityThreshold: 0.85,
		},
		RateLimits: config.RateLimitConfig{
			GlobalCooldownMinSec: 90,
			GlobalCooldownMaxSec: 150,
			MaxPostsPerDay:       2,
			MaxCommentsPerDay:    3,
			MaxActionsPerHour:    4,
		},
	}
}
