package testfs

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func NewTempDir(t *testing.T) (string, func()) {
	dir, err := os.MkdirTemp("", "ptstreamtest_")
	require.NoError(t, err)
	return dir, func() {
		require.NoError(t, os.RemoveAll(dir))
	}
}

func NewTempFile(t *testing.T) (*os.File, func()) {
	f, err := os.CreateTemp("", "ptstreamtest_")
	require.NoError(t, err)
	return f, func() {
		require.NoError(t, f.Close())
		require.NoError(t, os.Remove(f.Name()))
	}
}
