package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	config "github.com/xeinst/autopost/configs"
)

func testPolicy() config.TargetPolicy {
	return config.TargetPolicy{
		Platform:      "reddit",
		Target:        "golang",
		MinLength:     5,
		MaxLength:     100,
		AllowLinks:    false,
		BlockedFlairs: []string{"meta"},
	}
}

func newGate() *ModerationGate {
	return NewModerationGate(config.ModerationConfig{
		ToxicityThreshold:   0.7,
		SpamThreshold:       0.7,
		SimilarityThreshold: 0.85,
		BlacklistedWords:    []string{"crypto pump"},
	})
}

func TestReviewPasses(t *testing.T) {
	g := newGate()

	v := g.Review(Candidate{Body: cleanBody, Kind: "comment"}, testPolicy(), nil)
	assert.True(t, v.Pass)
	assert.Empty(t, v.Reasons)
}

func TestReviewCollectsAllReasons(t *testing.T) {
	g := newGate()

	v := g.Review(Candidate{
		Body:        "see https://example.com now",
		Kind:        "comment",
		ParentFlair: "Meta discussion",
	}, testPolicy(), nil)

	assert.False(t, v.Pass)
	assert.Contains(t, v.Reasons, ReasonTooShort)
	assert.Contains(t, v.Reasons, ReasonLinkPolicy)
	assert.Contains(t, v.Reasons, ReasonBlockedFlair)
}

func TestReviewTooLong(t *testing.T) {
	g := newGate()
	policy := testPolicy()
	policy.MaxLength = 8

	v := g.Review(Candidate{Body: cleanBody, Kind: "comment"}, policy, nil)
	assert.False(t, v.Pass)
	assert.Contains(t, v.Reasons, ReasonTooLong)
}

func TestReviewToxicity(t *testing.T) {
	g := newGate()

	// marketing phrasing, shouting, and a wall of exclamation marks
	body := "BUY NOW LIMITED TIME OFFER THIS IS GUARANTEED TO BE AMAZING!!!!"
	v := g.Review(Candidate{Body: body, Kind: "comment"}, testPolicy(), nil)
	assert.False(t, v.Pass)
	assert.Contains(t, v.Reasons, ReasonToxicity)
	assert.GreaterOrEqual(t, v.ToxicityScore, 0.7)
}

func TestReviewBlacklistedWords(t *testing.T) {
	g := newGate()

	body := "this crypto pump group is guaranteed to make money fast for everyone joining"
	v := g.Review(Candidate{Body: body, Kind: "comment"}, testPolicy(), nil)
	assert.False(t, v.Pass)
	assert.Contains(t, v.Reasons, ReasonToxicity)
}

func TestReviewSpam(t *testing.T) {
	g := newGate()
	policy := testPolicy()
	policy.AllowLinks = true

	body := "check https://a.example https://b.example https://c.example and ping @one @two @three @four today"
	v := g.Review(Candidate{Body: body, Kind: "comment"}, policy, nil)
	assert.False(t, v.Pass)
	assert.Contains(t, v.Reasons, ReasonSpam)
	assert.NotContains(t, v.Reasons, ReasonLinkPolicy)
}

func TestReviewNearDuplicate(t *testing.T) {
	g := newGate()

	recent := []string{
		"a completely different remark about compiler flags",
		cleanBody,
	}
	v := g.Review(Candidate{Body: cleanBody, Kind: "comment"}, testPolicy(), recent)
	assert.False(t, v.Pass)
	assert.Contains(t, v.Reasons, ReasonNearDuplicate)
	assert.InDelta(t, 1.0, v.SimilarityScore, 0.001)
}

func TestReviewRewordedBodyIsNotDuplicate(t *testing.T) {
	g := newGate()

	recent := []string{"the scheduler keeps a cooldown per subreddit and a global pacing interval"}
	body := "worker pools drain the queue while honoring each policy budget every cycle"
	v := g.Review(Candidate{Body: body, Kind: "comment"}, testPolicy(), recent)
	assert.True(t, v.Pass)
	assert.Less(t, v.SimilarityScore, 0.85)
}
