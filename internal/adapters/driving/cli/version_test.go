package cli

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withVersion(t *testing.T, v string) {
	t.Helper()
	old := version
	SetVersion(v)
	t.Cleanup(func() {
		version = old
		versionShort = false
	})
}

func TestVersionCmd_Full(t *testing.T) {
	withVersion(t, "1.4.0")

	out, err := execute("version")
	require.NoError(t, err)

	assert.Contains(t, out, "handbook-rag version 1.4.0\n")
	assert.Contains(t, out, runtime.Version())
}

func TestVersionCmd_Short(t *testing.T) {
	withVersion(t, "1.4.0")

	out, err := execute("version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "1.4.0\n", out)
}

func TestVersionCmd_DevBuild(t *testing.T) {
	withVersion(t, "dev")

	out, err := execute("version")
	require.NoError(t, err)
	assert.Contains(t, out, "handbook-rag version dev")
}

func TestVersionCmd_RejectsArgs(t *testing.T) {
	_, err := execute("version", "extra")
	assert.Error(t, err)
}

func TestBuildRevision_Short(t *testing.T) {
	// test binaries carry no VCS stamp, but whatever comes back is bounded
	assert.LessOrEqual(t, len(buildRevision()), len("0123456789ab-dirty"))
}
