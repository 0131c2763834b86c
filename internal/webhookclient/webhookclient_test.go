package webhookclient_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/franksunye/fsoa-agent/internal/errs"
	"github.com/franksunye/fsoa-agent/internal/webhookclient"
)

func TestNoopClientRecordsSends(t *testing.T) {
	c := &webhookclient.NoopClient{}
	res := c.Post(context.Background(), "https://example.invalid/hook", "hello", []string{"alice"})

	assert.True(t, res.OK)
	assert.Len(t, c.Sent, 1)
	assert.Equal(t, "hello", c.Sent[0].Text)
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := webhookclient.NewCircuitBreaker()
	for i := 0; i < 5; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure()
	}
	assert.Equal(t, webhookclient.StateOpen, cb.GetState())
	assert.False(t, cb.Allow())
}

func TestCircuitBreakerOpensFromRecordedFailuresAlone(t *testing.T) {
	cb := webhookclient.NewCircuitBreaker()
	// force open
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, webhookclient.StateOpen, cb.GetState())
}

func TestSlackClientPostWithNoURLIsPermanentNoWebhook(t *testing.T) {
	c := webhookclient.NewSlackClient(4)
	res := c.Post(context.Background(), "", "hello", nil)

	assert.False(t, res.OK)
	assert.Error(t, res.Err)
	assert.True(t, errs.Is(res.Err, errs.NoWebhook))
}
