package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	oldTag, oldCommit := GitTag, GitCommit
	defer func() {
		GitTag, GitCommit = oldTag, oldCommit
	}()

	GitTag, GitCommit = "", ""
	require.Equal(t, "dev", String())
	GitTag = "v0.1.0"
	require.Equal(t, "v0.1.0", String())
	GitCommit = "abc123"
	require.Equal(t, "v0.1.0+abc123", String())
}
