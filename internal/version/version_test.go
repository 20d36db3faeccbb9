package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Revision)

	assert.Contains(t, Short(), Version)
	assert.Contains(t, Short(), Revision)

	detailed := Detailed()
	assert.Contains(t, detailed, Version)
	assert.Contains(t, detailed, "/")

	assert.True(t, strings.HasPrefix(UserAgent(), AppName+"/"))
}

func TestFillFromBuild(t *testing.T) {
	origVersion, origRevision, origBuildDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origBuildDate
	})

	t.Run("defaults are replaced", func(t *testing.T) {
		Version, Revision, BuildDate = devVersion, "HEAD", ""

		fillFromBuild("v1.4.0", map[string]string{
			"vcs.revision": "abcdef1234567890",
			"vcs.modified": "true",
			"vcs.time":     "2026-03-01T10:00:00Z",
		})

		assert.Equal(t, "1.4.0", Version)
		assert.Equal(t, "abcdef123456-dirty", Revision)
		assert.Equal(t, "2026-03-01T10:00:00Z", BuildDate)
	})

	t.Run("ldflags win", func(t *testing.T) {
		Version, Revision, BuildDate = "2.0.0", "deadbeef", "from-ldflags"

		fillFromBuild("v9.9.9", map[string]string{
			"vcs.revision": "abcdef",
			"vcs.time":     "2026-03-01T10:00:00Z",
		})

		assert.Equal(t, "2.0.0", Version)
		assert.Equal(t, "deadbeef", Revision)
		assert.Equal(t, "from-ldflags", BuildDate)
	})

	t.Run("devel module version is ignored", func(t *testing.T) {
		Version, Revision, BuildDate = devVersion, "HEAD", ""

		fillFromBuild("(devel)", map[string]string{})

		assert.Equal(t, devVersion, Version)
		assert.Equal(t, "HEAD", Revision)
	})
}
