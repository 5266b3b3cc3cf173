package platform

import (
	"context"
	"fmt"

	"github.com/xeinst/autopost/internal/models"
)

// Failure reason codes recorded on drafts whose publish attempt failed.
const (
	ReasonRateLimited    = "rate_limited"
	ReasonAuthError      = "auth_error"
	ReasonPolicyRejected = "policy_rejected"
	ReasonTimeout        = "timeout"
	ReasonUnknown        = "unknown"
)

// PublishError wraps a platform failure with a reason code the draft queue can
// store verbatim.
type PublishError struct {
	Reason string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed (%s): %v", e.Reason, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Publisher sends a draft to its platform and returns the platform-assigned
// reference (Reddit thing id, Bluesky at-uri).
type Publisher interface {
	Publish(ctx context.Context, draft *models.Draft) (string, error)
}

// Publishers routes drafts to the client for their platform.
type Publishers struct {
	Reddit  Publisher
	Bluesky Publisher
}

func (p *Publishers) For(platform string) (Publisher, error) {
	switch platform {
	case models.PlatformReddit:
		if p.Reddit == nil {
			return nil, fmt.Errorf("reddit publisher not configured")
		}
		return p.Reddit, nil
	case models.PlatformBluesky:
		if p.Bluesky == nil {
			return nil, fmt.Errorf("bluesky publisher not configured")
		}
		return p.Bluesky, nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}
}
