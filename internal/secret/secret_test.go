package secret_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Faizanmal/SyncQuote-sub003/internal/secret"
)

func TestHashVerify(t *testing.T) {
	value := secret.NewToken(32)
	digest := secret.Hash(value)

	require.NotEqual(t, value, digest)
	require.Len(t, digest, 64)
	require.True(t, secret.Verify(value, digest))
	require.False(t, secret.Verify(value+"x", digest))
	require.False(t, secret.Verify("", digest))
}

func TestHashDeterministic(t *testing.T) {
	require.Equal(t, secret.Hash("abc"), secret.Hash("abc"))
	require.NotEqual(t, secret.Hash("abc"), secret.Hash("abd"))
}

func TestNewTokenUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		v := secret.NewToken(32)
		require.Len(t, v, 64)
		_, dup := seen[v]
		require.False(t, dup)
		seen[v] = struct{}{}
	}
}
