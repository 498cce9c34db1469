package fault

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := New(KindInvalidInput, "bad header")
	assert.Equal(t, KindInvalidInput, KindOf(err))

	wrapped := fmt.Errorf("reading upload: %w", err)
	assert.Equal(t, KindInvalidInput, KindOf(wrapped))

	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestIsTransient(t *testing.T) {
	transient := []Kind{KindStorage, KindBus, KindCatalog, KindJobStore}
	for _, k := range transient {
		assert.True(t, IsTransient(New(k, "x")), k.String())
	}

	deterministic := []Kind{KindInvalidInput, KindNotFound, KindExecution, KindTimeout, KindUnknown}
	for _, k := range deterministic {
		assert.False(t, IsTransient(New(k, "x")), k.String())
	}

	// Untagged errors must not be retried.
	assert.False(t, IsTransient(errors.New("mystery")))
}

func TestMessageIncludesDistinctCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindStorage, cause, "failed to download object uploads/j1/data.csv")

	msg := Message(err, 500)
	require.Contains(t, msg, "failed to download object")
	require.Contains(t, msg, "Cause: connection refused")
}

func TestMessageTruncates(t *testing.T) {
	err := New(KindExecution, "%s", strings.Repeat("a", 600))
	msg := Message(err, 500)
	assert.Len(t, []rune(msg), 503) // 500 runes plus "..."
	assert.True(t, strings.HasSuffix(msg, "..."))
}

func TestMessageNil(t *testing.T) {
	assert.Equal(t, "", Message(nil, 500))
}
