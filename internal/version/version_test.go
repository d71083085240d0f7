package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuildInfo(t *testing.T, mainVersion string) {
	t.Helper()
	prev := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Version: mainVersion}}, true
	}
	t.Cleanup(func() { readBuildInfo = prev })
}

func setVersion(t *testing.T, v string) {
	t.Helper()
	prev := Version
	Version = v
	t.Cleanup(func() { Version = prev })
}

func TestResolved(t *testing.T) {
	tests := []struct {
		name      string
		ldflags   string
		buildInfo string
		want      string
	}{
		{"ldflags win", "v1.2.3", "v0.9.0", "v1.2.3"},
		{"go install version", "unknown", "v0.9.0", "v0.9.0"},
		{"devel build", "unknown", "(devel)", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setVersion(t, tt.ldflags)
			withBuildInfo(t, tt.buildInfo)
			assert.Equal(t, tt.want, Resolved())
		})
	}
}

func TestString(t *testing.T) {
	setVersion(t, "v1.0.0")
	assert.Equal(t, "sitebuilder v1.0.0 (commit "+GitCommit+", built "+BuildTime+")", String())
}
