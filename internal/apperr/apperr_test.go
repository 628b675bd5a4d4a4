package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := NotFound("get node", "node %d", 42)
	wrapped := fmt.Errorf("recall: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, "get node: node 42", err.Error())
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindStorage, KindOf(errors.New("disk on fire")))
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	err := fmt.Errorf("embed: %w", RateLimit("embed", 1500*time.Millisecond))

	assert.True(t, errors.Is(err, ErrRateLimit))
	assert.Equal(t, 1500*time.Millisecond, RetryAfterOf(err))
	assert.Contains(t, err.Error(), "retry after 1500 ms")
}

func TestStoragePreservesClassifiedErrors(t *testing.T) {
	nf := NotFound("get graph", "subject %q", "s1")
	assert.Same(t, nf, Storage("create node", nf))
	assert.Nil(t, Storage("noop", nil))

	cause := errors.New("database is locked")
	err := Storage("create node", cause)
	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, cause))
}

func TestUpstreamUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("embed", "embedding failed", cause)

	assert.True(t, errors.Is(err, ErrUpstream))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "embed: embedding failed: connection refused", err.Error())
}
