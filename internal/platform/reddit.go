package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	config "github.com/xeinst/autopost/configs"
	"github.com/xeinst/autopost/internal/models"
	"go.uber.org/ratelimit"
)

const (
	redditAuthURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIURL  = "https://oauth.reddit.com"
)

// RedditClient publishes posts and comments through the Reddit OAuth API using
// the script-app password grant, and polls target listings for the monitor
// pass. Outbound calls are paced independently of the domain rate limiter so
// bursts of listing reads stay under Reddit's own API limits.
type RedditClient struct {
	cfg    config.Reddit
	client *http.Client
	pacer  ratelimit.Limiter

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewRedditClient(cfg config.Reddit) *RedditClient {
	return &RedditClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		pacer:  ratelimit.New(30, ratelimit.Per(time.Minute)),
	}
}

func (c *RedditClient) Publish(ctx context.Context, draft *models.Draft) (string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	var endpoint string
	form := url.Values{}
	switch draft.Kind {
	case models.DraftKindComment:
		endpoint = "/api/comment"
		form.Set("thing_id", draft.ParentRef)
		form.Set("text", draft.Body)
	case models.DraftKindPost:
		endpoint = "/api/submit"
		form.Set("sr", draft.Target)
		form.Set("kind", "self")
		form.Set("title", draft.Title)
		form.Set("text", draft.Body)
	default:
		return "", &PublishError{Reason: ReasonUnknown, Err: fmt.Errorf("unsupported kind: %s", draft.Kind)}
	}
	form.Set("api_type", "json")

	c.pacer.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, redditAPIURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &PublishError{Reason: ReasonTimeout, Err: err}
		}
		return "", &PublishError{Reason: ReasonUnknown, Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return "", err
	}

	var out struct {
		JSON struct {
			Errors [][]any `json:"errors"`
			Data   struct {
				Things []struct {
					Data struct {
						Name string `json:"name"`
					} `json:"data"`
				} `json:"things"`
				Name string `json:"name"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &PublishError{Reason: ReasonUnknown, Err: err}
	}

	if len(out.JSON.Errors) > 0 {
		return "", &PublishError{
			Reason: ReasonPolicyRejected,
			Err:    fmt.Errorf("reddit api errors: %v", out.JSON.Errors),
		}
	}

	if name := out.JSON.Data.Name; name != "" {
		return name, nil
	}
	if len(out.JSON.Data.Things) > 0 {
		return out.JSON.Data.Things[0].Data.Name, nil
	}
	return "", &PublishError{Reason: ReasonUnknown, Err: errors.New("no thing id in response")}
}

// SourcePost is a listing entry that matched the monitor keywords.
type SourcePost struct {
	ID     string
	Title  string
	Body   string
	Author string
	Flair  string
}

// SearchNew returns new posts in the target whose title or body contains one
// of the keywords.
func (c *RedditClient) SearchNew(ctx context.Context, target string, keywords []string, limit int) ([]SourcePost, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	c.pacer.Take()

	endpoint := fmt.Sprintf("%s/r/%s/new?limit=%d", redditAPIURL, target, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit listing failed: status %d", resp.StatusCode)
	}

	var listing struct {
		Data struct {
			Children []struct {
				Data struct {
					Name          string `json:"name"`
					Title         string `json:"title"`
					Selftext      string `json:"selftext"`
					Author        string `json:"author"`
					LinkFlairText string `json:"link_flair_text"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, err
	}

	var matches []SourcePost
	for _, child := range listing.Data.Children {
		text := strings.ToLower(child.Data.Title + " " + child.Data.Selftext)
		for _, kw := range keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				matches = append(matches, SourcePost{
					ID:     child.Data.Name,
					Title:  child.Data.Title,
					Body:   child.Data.Selftext,
					Author: child.Data.Author,
					Flair:  child.Data.LinkFlairText,
				})
				break
			}
		}
	}
	return matches, nil
}

func (c *RedditClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, redditAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &PublishError{Reason: ReasonAuthError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &PublishError{
			Reason: ReasonAuthError,
			Err:    fmt.Errorf("token request failed: status %d: %s", resp.StatusCode, string(data)),
		}
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &PublishError{Reason: ReasonAuthError, Err: err}
	}
	if out.AccessToken == "" {
		return "", &PublishError{Reason: ReasonAuthError, Err: errors.New("empty access token")}
	}

	c.accessToken = out.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn-60) * time.Second)
	slog.Info("reddit token refreshed", "expires_in", out.ExpiresIn)
	return c.accessToken, nil
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &PublishError{Reason: ReasonRateLimited, Err: fmt.Errorf("status %d", status)}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &PublishError{Reason: ReasonAuthError, Err: fmt.Errorf("status %d", status)}
	case status >= 400:
		return &PublishError{Reason: ReasonUnknown, Err: fmt.Errorf("status %d", status)}
	}
	return nil
}
