package zrtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashChainLinksVerify(t *testing.T) {
	hc, err := NewHashChain()
	require.NoError(t, err)

	assert.True(t, VerifyLink(hc.H2, hc.H3))
	assert.True(t, VerifyLink(hc.H1, hc.H2))
	assert.True(t, VerifyLink(hc.H0, hc.H1))
	assert.False(t, VerifyLink(hc.H0, hc.H3))
}

func TestDeriveKeysIsDeterministic(t *testing.T) {
	s0 := [32]byte{1, 2, 3, 4}
	ctx := []byte("context")

	a, err := DeriveKeys(s0, ctx)
	require.NoError(t, err)
	b, err := DeriveKeys(s0, ctx)
	require.NoError(t, err)

	assert.Equal(t, a.SRTPKeyInitiator, b.SRTPKeyInitiator)
	assert.NotEqual(t, a.SRTPKeyInitiator, a.SRTPKeyResponder)
}

func TestRenderSASIsFourCharacters(t *testing.T) {
	s0 := [32]byte{9, 9, 9}
	sas := RenderSAS(s0)
	assert.Len(t, sas, 4)
}
