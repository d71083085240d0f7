package build

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
)

// Compiler is a persistent incremental compiler over the content directory.
// Compile is never called concurrently by the Scheduler.
type Compiler interface {
	Compile(ctx context.Context) (Bundle, error)
}

// Handle is a loaded build. Dispose releases whatever the load holds on to.
type Handle interface {
	Dispose() error
}

// Loader loads a compiled bundle by reference. Load may run concurrently
// with the next Compile.
type Loader interface {
	Load(ctx context.Context, ref string) (Handle, error)
}

// InputError is implemented by compile failures that can name the input
// that failed.
type InputError interface {
	error
	Input() string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithIDGenerator overrides the load identity source.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Scheduler) { s.ids = g }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Scheduler serializes and coalesces rebuild requests.
type Scheduler struct {
	compiler Compiler
	loader   Loader
	ids      IDGenerator
	recorder metrics.Recorder

	// requested is the logical timestamp of the most recent request.
	requested atomic.Uint64
	// compileMu is held for the whole compile phase and nothing else.
	compileMu sync.Mutex

	mu        sync.Mutex
	current   Handle
	artifact  *Artifact
	published uint64 // request id of the published load
}

// NewScheduler creates a Scheduler.
func NewScheduler(compiler Compiler, loader Loader, opts ...Option) *Scheduler {
	s := &Scheduler{
		compiler: compiler,
		loader:   loader,
		ids:      UUIDGenerator{},
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestRebuild records a rebuild request and compiles unless a newer
// request arrives while this one waits for the compile lock. After a
// successful compile and load, notify is called (when non-nil) unless a
// newer build has already been published.
//
// A compile failure is returned as a fatal build error; callers stop
// watching and exit.
func (s *Scheduler) RequestRebuild(ctx context.Context, notify func()) error {
	_, err := s.rebuild(ctx, notify)
	return err
}

// BuildOnce compiles and loads once, for non-watch builds.
func (s *Scheduler) BuildOnce(ctx context.Context) (*Artifact, error) {
	for {
		a, err := s.rebuild(ctx, nil)
		if err != nil || a != nil {
			return a, err
		}
		// Superseded by a concurrent request; wait for the lock and retry.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Current returns the most recently published artifact.
func (s *Scheduler) Current() (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact == nil {
		return Artifact{}, false
	}
	return *s.artifact, true
}

// Close disposes of the published load.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	h := s.current
	s.current = nil
	s.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.Dispose()
}

// rebuild returns a nil artifact and nil error when the request was
// superseded or its result was dropped in favor of a newer one.
func (s *Scheduler) rebuild(ctx context.Context, notify func()) (*Artifact, error) {
	id := s.requested.Add(1)

	bundle, compiled, compileTime, err := s.compile(ctx, id)
	if !compiled {
		slog.Debug("Rebuild superseded", logfields.Request(id))
		s.recorder.IncBuildOutcome(metrics.BuildCoalesced)
		return nil, nil
	}
	if err != nil {
		s.recorder.IncBuildOutcome(metrics.BuildFailed)
		return nil, compileFailure(err)
	}
	s.recorder.ObserveCompileDuration(compileTime)

	art := &Artifact{Bundle: bundle, LoadID: s.ids.New()}
	loadStart := time.Now()
	h, err := s.loader.Load(ctx, art.Reference())
	if err != nil {
		s.recorder.IncBuildOutcome(metrics.BuildFailed)
		return nil, ferrors.WrapError(err, ferrors.CategoryBuild, "load compiled bundle").
			Fatal().
			WithContext("bundle", bundle.Path).
			WithContext("load_id", art.LoadID).
			Build()
	}
	s.recorder.ObserveLoadDuration(time.Since(loadStart))
	s.recorder.SetBundleSize(bundle.Bytes, bundle.Inputs)

	slog.Debug("Rebuilt site",
		logfields.Request(id),
		logfields.LoadID(art.LoadID),
		logfields.Inputs(bundle.Inputs),
		logfields.Size(humanize.Bytes(uint64(max(bundle.Bytes, 0)))),
		logfields.DurationMS(float64(compileTime.Microseconds())/1000))

	if !s.publish(id, art, h) {
		slog.Debug("Dropping stale build", logfields.Request(id), logfields.LoadID(art.LoadID))
		s.recorder.IncBuildOutcome(metrics.BuildDropped)
		if derr := h.Dispose(); derr != nil {
			slog.Warn("Failed to dispose stale build", logfields.Error(derr))
		}
		return nil, nil
	}
	s.recorder.IncBuildOutcome(metrics.BuildCompiled)
	if notify != nil {
		notify()
	}
	return art, nil
}

// compile runs the compile phase for request id under compileMu. It
// reports compiled=false when a newer request arrived while id waited for
// the lock. The lock is released before returning, on panic too.
func (s *Scheduler) compile(ctx context.Context, id uint64) (bundle Bundle, compiled bool, took time.Duration, err error) {
	s.compileMu.Lock()
	defer s.compileMu.Unlock()
	if s.requested.Load() != id {
		return Bundle{}, false, 0, nil
	}

	s.disposeCurrent()

	start := time.Now()
	bundle, err = s.compiler.Compile(ctx)
	return bundle, true, time.Since(start), err
}

// publish installs h as the current load unless a newer request already
// published. A replaced handle that was not disposed before its successor
// compiled is disposed here.
func (s *Scheduler) publish(id uint64, art *Artifact, h Handle) bool {
	s.mu.Lock()
	if id <= s.published {
		s.mu.Unlock()
		return false
	}
	prev := s.current
	s.current = h
	s.artifact = art
	s.published = id
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Dispose(); err != nil {
			slog.Warn("Failed to dispose previous build", logfields.Error(err))
		}
	}
	return true
}

func (s *Scheduler) disposeCurrent() {
	s.mu.Lock()
	h := s.current
	s.current = nil
	s.mu.Unlock()
	if h == nil {
		return
	}
	if err := h.Dispose(); err != nil {
		slog.Warn("Failed to dispose previous build", logfields.Error(err))
	}
}

func compileFailure(err error) error {
	b := ferrors.WrapError(err, ferrors.CategoryBuild, "compile failed").Fatal()
	var ie InputError
	if errors.As(err, &ie) {
		b = b.WithContext("file", ie.Input())
	}
	if errors.Is(err, context.Canceled) {
		b = b.WithContext("canceled", true)
	}
	return b.Build()
}
