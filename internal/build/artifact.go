package build

import (
	"strings"

	"github.com/google/uuid"
)

// Bundle describes the output of one compile.
type Bundle struct {
	// Path is the bundle file written by the compiler.
	Path   string
	Inputs int
	Bytes  int64
}

// Artifact is a compiled bundle together with the identity it was loaded under.
type Artifact struct {
	Bundle
	LoadID string
}

// Reference is the logical name the bundle is loaded by. The query suffix
// makes every successful compile distinct to the loader.
func (a Artifact) Reference() string {
	return a.Path + "?update=" + a.LoadID
}

// SourceMap returns the companion source-map path of the bundle.
func (a Artifact) SourceMap() string {
	return SourceMapPath(a.Reference())
}

// SourceMapPath strips any query suffix from ref and appends ".map".
func SourceMapPath(ref string) string {
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		ref = ref[:i]
	}
	return ref + ".map"
}

// BundlePath strips any query suffix from a reference produced by Reference.
func BundlePath(ref string) string {
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		return ref[:i]
	}
	return ref
}

// IDGenerator produces load identities.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
