package errs_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/franksunye/fsoa-agent/internal/errs"
)

func TestWrapAndIs(t *testing.T) {
	cause := errors.New("boom")
	err := errs.Wrap(errs.DataFetchError, "fetch report", cause)

	assert.True(t, errs.Is(err, errs.DataFetchError))
	assert.False(t, errs.Is(err, errs.CacheCorrupt))

	kind, ok := errs.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, errs.DataFetchError, kind)
}

func TestNewHasNoCause(t *testing.T) {
	err := errs.New(errs.NoWebhook, "no webhook configured")
	assert.True(t, errs.Is(err, errs.NoWebhook))
}

func TestKindOfUnknownError(t *testing.T) {
	_, ok := errs.KindOf(errors.New("plain"))
	assert.False(t, ok)
}
