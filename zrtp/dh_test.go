package zrtp

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPairSharedSecretAgrees(t *testing.T) {
	var seedA, seedB [32]byte
	_, err := rand.Read(seedA[:])
	require.NoError(t, err)
	_, err = rand.Read(seedB[:])
	require.NoError(t, err)

	a := GenerateKeyPair(seedA[:])
	b := GenerateKeyPair(seedB[:])

	secretA := a.SharedSecret(b.Public)
	secretB := b.SharedSecret(a.Public)

	assert.Equal(t, secretA.Bytes(), secretB.Bytes())
}

func TestEncodeDecodePublicValueRoundTrip(t *testing.T) {
	var seed [32]byte
	_, err := rand.Read(seed[:])
	require.NoError(t, err)

	kp := GenerateKeyPair(seed[:])
	encoded := EncodePublicValue(kp.Public)
	decoded := DecodePublicValue(encoded)

	assert.Equal(t, kp.Public.Bytes(), decoded.Bytes())
}
