package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPath       = "path"
	KeyContentDir = "content_dir"
	KeyMirrorDir  = "mirror_dir"
	KeyStep       = "step"
	KeyPhase      = "phase"
	KeyRemote     = "remote"
	KeyBranch     = "branch"
	KeyRequest    = "request"
	KeyLoadID     = "load_id"
	KeyInputs     = "inputs"
	KeySize       = "size"
	KeyDurationMS = "duration_ms"
	KeyFile       = "file"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func ContentDir(p string) slog.Attr   { return slog.String(KeyContentDir, p) }
func MirrorDir(p string) slog.Attr    { return slog.String(KeyMirrorDir, p) }
func Step(s string) slog.Attr         { return slog.String(KeyStep, s) }
func Phase(p string) slog.Attr        { return slog.String(KeyPhase, p) }
func Remote(r string) slog.Attr       { return slog.String(KeyRemote, r) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func Request(id uint64) slog.Attr     { return slog.Uint64(KeyRequest, id) }
func LoadID(id string) slog.Attr      { return slog.String(KeyLoadID, id) }
func Inputs(n int) slog.Attr          { return slog.Int(KeyInputs, n) }
func Size(s string) slog.Attr         { return slog.String(KeySize, s) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func File(f string) slog.Attr         { return slog.String(KeyFile, f) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
