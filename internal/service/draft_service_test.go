package service

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeinst/autopost/internal/models"
	"github.com/xeinst/autopost/internal/transfer"
)

const cleanBody = "here is a genuinely useful answer with enough words to clear the minimum"

type draftFixture struct {
	ds  DraftService
	dr  *fakeDraftRepo
	ar  *fakeActivityRepo
	rr  *fakeRateLimitRepo
	clk *clock.Mock
}

func newDraftFixture(t *testing.T) *draftFixture {
	t.Helper()

	bc := testBotConfig()
	clk := clock.NewMock()
	clk.Set(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	dr := newFakeDraftRepo()
	ar := &fakeActivityRepo{}
	rr := newFakeRateLimitRepo()

	rl := NewRateLimitService(rr, ar, bc, clk)
	gate := NewModerationGate(bc.Moderation)
	ds := NewDraftService(&fakeUnitOfWork{}, dr, ar, rl, gate, bc, clk)

	return &draftFixture{ds: ds, dr: dr, ar: ar, rr: rr, clk: clk}
}

func (f *draftFixture) createDraft(t *testing.T, body string) *models.Draft {
	t.Helper()
	draft, err := f.ds.Create(context.Background(), &transfer.DraftCreation{
		Platform: "reddit",
		Target:   "golang",
		Kind:     "comment",
		Body:     body,
	})
	require.NoError(t, err)
	return draft
}

func TestCreateUnknownTarget(t *testing.T) {
	f := newDraftFixture(t)

	_, err := f.ds.Create(context.Background(), &transfer.DraftCreation{
		Platform: "reddit",
		Target:   "nosuchsub",
		Kind:     "comment",
		Body:     cleanBody,
	})
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestCreatePendingReview(t *testing.T) {
	f := newDraftFixture(t)

	draft := f.createDraft(t, cleanBody)
	assert.Equal(t, models.DraftStatusPendingReview, draft.Status)
	assert.NotEmpty(t, draft.ID)

	entries, err := f.ar.ListByDraft(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "created", entries[0].FromState)
	assert.Equal(t, models.DraftStatusPendingReview, entries[0].ToState)
	assert.Equal(t, models.ActorSystem, entries[0].Actor)
}

func TestCreateFailingModerationLandsRejected(t *testing.T) {
	f := newDraftFixture(t)

	// three words, below the five-word minimum
	draft := f.createDraft(t, "too short here")
	assert.Equal(t, models.DraftStatusRejected, draft.Status)
	assert.Contains(t, draft.Reasons, ReasonTooShort)

	entries, err := f.ar.ListByDraft(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.DraftStatusRejected, entries[0].ToState)
}

func TestApprove(t *testing.T) {
	f := newDraftFixture(t)
	draft := f.createDraft(t, cleanBody)

	approved, err := f.ds.Approve(context.Background(), draft.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusApproved, approved.Status)
	assert.True(t, approved.Eligible(f.clk.Now()))

	// second approve is an invalid transition and changes nothing
	again, err := f.ds.Approve(context.Background(), draft.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, models.DraftStatusApproved, again.Status)
}

func TestApproveWithSchedule(t *testing.T) {
	f := newDraftFixture(t)
	draft := f.createDraft(t, cleanBody)

	due := f.clk.Now().Add(2 * time.Hour)
	scheduled, err := f.ds.Approve(context.Background(), draft.ID, &due)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusScheduled, scheduled.Status)
	require.NotNil(t, scheduled.ScheduledFor)

	assert.False(t, scheduled.Eligible(f.clk.Now()))
	assert.True(t, scheduled.Eligible(f.clk.Now().Add(3*time.Hour)))
}

func TestApproveRecheckRejects(t *testing.T) {
	f := newDraftFixture(t)
	draft := f.createDraft(t, cleanBody)

	// an identical body published since creation makes this a near duplicate
	f.dr.recent = []string{cleanBody}

	rejected, err := f.ds.Approve(context.Background(), draft.ID, nil)
	var pv *PolicyViolationError
	require.ErrorAs(t, err, &pv)
	assert.Contains(t, pv.Reasons, ReasonNearDuplicate)
	assert.Equal(t, models.DraftStatusRejected, rejected.Status)

	stored, err := f.ds.Get(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusRejected, stored.Status)
}

func TestRejectIsIdempotent(t *testing.T) {
	f := newDraftFixture(t)
	draft := f.createDraft(t, cleanBody)

	first, err := f.ds.Reject(context.Background(), draft.ID, "off topic")
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusRejected, first.Status)

	second, err := f.ds.Reject(context.Background(), draft.ID, "off topic")
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusRejected, second.Status)

	// create + one reject, no duplicate entry for the repeat
	entries, err := f.ar.ListByDraft(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSkip(t *testing.T) {
	f := newDraftFixture(t)
	draft := f.createDraft(t, cleanBody)

	skipped, err := f.ds.Skip(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusSkipped, skipped.Status)

	_, err = f.ds.Approve(context.Background(), draft.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEditKeepsHistory(t *testing.T) {
	f := newDraftFixture(t)
	draft := f.createDraft(t, cleanBody)

	newBody := "a reworked answer that still has plenty of words in it for the minimum"
	edited, err := f.ds.Edit(context.Background(), draft.ID, newBody)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusPendingReview, edited.Status)
	assert.Equal(t, newBody, edited.Body)
	require.Len(t, edited.EditHistory, 1)
	assert.Equal(t, cleanBody, edited.EditHistory[0])
}

func TestEditTooLong(t *testing.T) {
	f := newDraftFixture(t)
	draft := f.createDraft(t, cleanBody)

	long := ""
	for i := 0; i < 101; i++ {
		long += "word "
	}
	edited, err := f.ds.Edit(context.Background(), draft.ID, long)
	assert.ErrorIs(t, err, ErrBodyTooLong)
	assert.Equal(t, cleanBody, edited.Body)
}

func TestMarkPostedRecordsWindows(t *testing.T) {
	f := newDraftFixture(t)
	draft := f.createDraft(t, cleanBody)

	_, err := f.ds.Approve(context.Background(), draft.ID, nil)
	require.NoError(t, err)

	posted, err := f.ds.MarkPosted(context.Background(), draft.ID, "t1_abc123")
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusPosted, posted.Status)
	assert.Equal(t, "t1_abc123", posted.PublishedRef)
	assert.Empty(t, posted.FailureReason)

	global := f.rr.windows[models.ScopeGlobal]
	require.NotNil(t, global)
	assert.Equal(t, f.clk.Now(), *global.LastActionAt)

	scope := f.rr.windows["reddit/golang"]
	require.NotNil(t, scope)
	// a comment never moves the top-level marker
	assert.Nil(t, scope.LastTopLevelAt)
}

func TestMarkPostedRequiresEligibility(t *testing.T) {
	f := newDraftFixture(t)
	draft := f.createDraft(t, cleanBody)

	_, err := f.ds.MarkPosted(context.Background(), draft.ID, "t1_abc123")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, f.rr.windows)
}

func TestMarkFailedAndRetry(t *testing.T) {
	f := newDraftFixture(t)
	draft := f.createDraft(t, cleanBody)

	_, err := f.ds.Approve(context.Background(), draft.ID, nil)
	require.NoError(t, err)

	failed, err := f.ds.MarkFailed(context.Background(), draft.ID, "timeout")
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusFailed, failed.Status)
	assert.Equal(t, "timeout", failed.FailureReason)
	assert.Empty(t, failed.PublishedRef)

	retried, err := f.ds.Retry(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusPendingReview, retried.Status)
	assert.Empty(t, retried.FailureReason)
}

func TestRetryOnlyFromFailed(t *testing.T) {
	f := newDraftFixture(t)
	draft := f.createDraft(t, cleanBody)

	_, err := f.ds.Retry(context.Background(), draft.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestGetMissingDraft(t *testing.T) {
	f := newDraftFixture(t)

	_, err := f.ds.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestLedgerTellsFullStory(t *testing.T) {
	f := newDraftFixture(t)
	draft := f.createDraft(t, cleanBody)

	_, err := f.ds.Approve(context.Background(), draft.ID, nil)
	require.NoError(t, err)
	_, err = f.ds.MarkPosted(context.Background(), draft.ID, "t1_xyz")
	require.NoError(t, err)

	entries, err := f.ar.ListByDraft(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.DraftStatusPendingReview, entries[0].ToState)
	assert.Equal(t, models.DraftStatusApproved, entries[1].ToState)
	assert.Equal(t, models.ActorHuman, entries[1].Actor)
	assert.Equal(t, models.DraftStatusPosted, entries[2].ToState)
	assert.Equal(t, models.ActorSystem, entries[2].Actor)
}
