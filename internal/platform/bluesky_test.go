package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryAuthRefreshesOnExpiredToken(t *testing.T) {
	attempts := 0
	refreshed := false

	ref, err := retryAuth(
		func() (string, error) {
			attempts++
			if !refreshed {
				return "", &PublishError{Reason: ReasonAuthError, Err: errors.New("token expired")}
			}
			return "at://did:plc:abc/app.bsky.feed.post/xyz", nil
		},
		func() error {
			refreshed = true
			return nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, "at://did:plc:abc/app.bsky.feed.post/xyz", ref)
	assert.Equal(t, 2, attempts)
	assert.True(t, refreshed)
}

func TestRetryAuthDoesNotRetryOtherFailures(t *testing.T) {
	attempts := 0
	refreshed := false

	_, err := retryAuth(
		func() (string, error) {
			attempts++
			return "", &PublishError{Reason: ReasonPolicyRejected, Err: errors.New("removed")}
		},
		func() error {
			refreshed = true
			return nil
		},
	)

	var pe *PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ReasonPolicyRejected, pe.Reason)
	assert.Equal(t, 1, attempts)
	assert.False(t, refreshed)
}

func TestRetryAuthGivesUpAfterSecondAuthFailure(t *testing.T) {
	attempts := 0

	_, err := retryAuth(
		func() (string, error) {
			attempts++
			return "", &PublishError{Reason: ReasonAuthError, Err: errors.New("bad credentials")}
		},
		func() error { return nil },
	)

	var pe *PublishError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ReasonAuthError, pe.Reason)
	assert.Equal(t, 2, attempts)
}
