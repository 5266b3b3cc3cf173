package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	config "github.com/xeinst/autopost/configs"
	"github.com/xeinst/autopost/internal/models"
	"go.uber.org/ratelimit"
)

// BlueskyClient publishes drafts as app.bsky.feed.post records through the
// atproto XRPC API.
type BlueskyClient struct {
	cfg   config.Bluesky
	pacer ratelimit.Limiter

	mu     sync.Mutex
	client *xrpc.Client
}

func NewBlueskyClient(cfg config.Bluesky) *BlueskyClient {
	return &BlueskyClient{
		cfg:   cfg,
		pacer: ratelimit.New(30, ratelimit.Per(time.Minute)),
	}
}

// Publish retries once after an auth failure: access tokens expire after a
// few hours, so the first 401 on a long-lived client means "refresh", not
// "credentials are wrong".
func (c *BlueskyClient) Publish(ctx context.Context, draft *models.Draft) (string, error) {
	return retryAuth(
		func() (string, error) { return c.publish(ctx, draft) },
		func() error { return c.refreshSession(ctx) },
	)
}

func (c *BlueskyClient) publish(ctx context.Context, draft *models.Draft) (string, error) {
	client, err := c.session(ctx)
	if err != nil {
		return "", err
	}

	post := &appbsky.FeedPost{
		Text:      draft.Body,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if draft.ParentRef != "" {
		ref, err := c.resolveRef(ctx, client, draft.ParentRef)
		if err != nil {
			return "", err
		}
		post.Reply = &appbsky.FeedPost_ReplyRef{Root: ref, Parent: ref}
	}

	c.pacer.Take()

	resp, err := comatproto.RepoCreateRecord(ctx, client, &comatproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       client.Auth.Did,
		Record:     &lexutil.LexiconTypeDecoder{Val: post},
	})
	if err != nil {
		return "", classifyXRPC(err)
	}
	return resp.Uri, nil
}

// resolveRef fetches the cid for a parent at-uri so the reply carries a full
// strong ref.
func (c *BlueskyClient) resolveRef(ctx context.Context, client *xrpc.Client, atURI string) (*comatproto.RepoStrongRef, error) {
	trimmed := strings.TrimPrefix(atURI, "at://")
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) != 3 {
		return nil, &PublishError{Reason: ReasonUnknown, Err: fmt.Errorf("malformed at-uri: %s", atURI)}
	}
	repo, collection, rkey := parts[0], parts[1], parts[2]

	out, err := comatproto.RepoGetRecord(ctx, client, "", collection, rkey, repo)
	if err != nil {
		return nil, classifyXRPC(err)
	}
	if out.Cid == nil {
		return nil, &PublishError{Reason: ReasonUnknown, Err: fmt.Errorf("no cid for parent: %s", atURI)}
	}
	return &comatproto.RepoStrongRef{Uri: out.Uri, Cid: *out.Cid}, nil
}

func (c *BlueskyClient) session(ctx context.Context) (*xrpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client := &xrpc.Client{
		Host: c.cfg.ServiceURL,
		Auth: &xrpc.AuthInfo{Handle: c.cfg.Identifier},
	}

	auth, err := comatproto.ServerCreateSession(ctx, client, &comatproto.ServerCreateSession_Input{
		Identifier: c.cfg.Identifier,
		Password:   c.cfg.Password,
	})
	if err != nil {
		return nil, &PublishError{Reason: ReasonAuthError, Err: err}
	}
	client.Auth.AccessJwt = auth.AccessJwt
	client.Auth.RefreshJwt = auth.RefreshJwt
	client.Auth.Did = auth.Did
	client.Auth.Handle = auth.Handle

	c.client = client
	return client, nil
}

// refreshSession rotates the access token using the refresh token, presented
// as the bearer token for the refresh call. A stale refresh token drops the
// session entirely so the next attempt logs in fresh.
func (c *BlueskyClient) refreshSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	c.client.Auth.AccessJwt = c.client.Auth.RefreshJwt
	refreshed, err := comatproto.ServerRefreshSession(ctx, c.client)
	if err != nil {
		c.client = nil
		return nil
	}
	c.client.Auth.AccessJwt = refreshed.AccessJwt
	c.client.Auth.RefreshJwt = refreshed.RefreshJwt
	return nil
}

// retryAuth runs attempt and, on an auth failure only, refreshes the session
// and tries one more time.
func retryAuth(attempt func() (string, error), refresh func() error) (string, error) {
	ref, err := attempt()
	var pe *PublishError
	if err == nil || !errors.As(err, &pe) || pe.Reason != ReasonAuthError {
		return ref, err
	}
	if rerr := refresh(); rerr != nil {
		return "", rerr
	}
	return attempt()
}

func classifyXRPC(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &PublishError{Reason: ReasonTimeout, Err: err}
	}

	var xe *xrpc.Error
	if errors.As(err, &xe) {
		switch xe.StatusCode {
		case 429:
			return &PublishError{Reason: ReasonRateLimited, Err: err}
		case 401, 403:
			return &PublishError{Reason: ReasonAuthError, Err: err}
		case 400:
			return &PublishError{Reason: ReasonPolicyRejected, Err: err}
		}
	}
	return &PublishError{Reason: ReasonUnknown, Err: err}
}
