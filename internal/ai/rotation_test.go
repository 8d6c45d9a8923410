package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotationPolicyRequiresKeys(t *testing.T) {
	_, err := NewRotationPolicy(nil)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestRotationPolicyAdvanceWraps(t *testing.T) {
	p, err := NewRotationPolicy([]string{"a", "b"})
	require.NoError(t, err)

	key, idx := p.Current()
	assert.Equal(t, "a", key)
	assert.Equal(t, 0, idx)

	assert.Equal(t, 1, p.Advance(0))
	assert.Equal(t, 0, p.Advance(1))
	assert.Equal(t, 2, p.Len())
}

func TestRotationPolicyIgnoresStaleAdvance(t *testing.T) {
	p, err := NewRotationPolicy([]string{"a", "b", "c"})
	require.NoError(t, err)

	// two requests failed on key 0 at the same time
	p.Advance(0)
	p.Advance(0)

	key, idx := p.Current()
	assert.Equal(t, "b", key)
	assert.Equal(t, 1, idx)
}
