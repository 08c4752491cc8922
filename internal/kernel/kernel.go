// Package kernel is the top-level facade wiring the State Store, Transform
// Registry, Trace Log, and Graph Executor into the syscall-like surface
// described by the original kernel design: CreateTransform, PersistState,
// LoadState, ExecuteGraph.
//
// Layout follows spec.md §6 (registry/transforms, states, traces, tmp under
// a single storage root), and directory bootstrap on construction mirrors
// the teacher's constructors (store.New, registry.New, tracelog.New each
// create their own subdirectory; Kernel.New just sequences them).
package kernel

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/example/transformkernel/internal/executor"
	"github.com/example/transformkernel/internal/graph"
	"github.com/example/transformkernel/internal/kernelerrors"
	"github.com/example/transformkernel/internal/registry"
	"github.com/example/transformkernel/internal/store"
	"github.com/example/transformkernel/internal/tracelog"
)

// Kernel bundles the four subsystems under one storage root.
type Kernel struct {
	Root string

	Store    *store.Store
	Registry *registry.Registry
	Traces   *tracelog.Log
	Executor *executor.Executor

	log *zap.Logger
}

// Option configures a Kernel.
type Option func(*kernelOptions)

type kernelOptions struct {
	logger     *zap.Logger
	strictLoad bool
}

// WithLogger attaches a structured logger, propagated to every subsystem.
func WithLogger(l *zap.Logger) Option {
	return func(o *kernelOptions) { o.logger = l }
}

// WithStrictLoad enables the State Store's rehash-on-load verification
// (spec.md §4.1's optional strict mode).
func WithStrictLoad() Option {
	return func(o *kernelOptions) { o.strictLoad = true }
}

// New bootstraps a Kernel rooted at dir, creating registry/transforms,
// states, traces, and tmp subdirectories on first use (spec.md §6).
func New(dir string, opts ...Option) (*Kernel, error) {
	cfg := &kernelOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}

	tmpDir := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, kernelerrors.New(kernelerrors.ErrStoreIO, "create tmp dir %q: %v", tmpDir, err)
	}

	storeOpts := []store.Option{store.WithLogger(cfg.logger.Named("store"))}
	if cfg.strictLoad {
		storeOpts = append(storeOpts, store.WithStrictLoad())
	}
	st, err := store.New(filepath.Join(dir, "states"), storeOpts...)
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(filepath.Join(dir, "registry", "transforms"), registry.WithLogger(cfg.logger.Named("registry")))
	if err != nil {
		return nil, err
	}

	traces, err := tracelog.New(filepath.Join(dir, "traces"), tracelog.WithLogger(cfg.logger.Named("tracelog")))
	if err != nil {
		return nil, err
	}

	ex := executor.New(st, reg, traces, tmpDir, executor.WithLogger(cfg.logger.Named("executor")))

	return &Kernel{
		Root:     dir,
		Store:    st,
		Registry: reg,
		Traces:   traces,
		Executor: ex,
		log:      cfg.logger,
	}, nil
}

// CreateTransform registers spec in the Transform Registry.
func (k *Kernel) CreateTransform(spec registry.TransformSpec) (string, error) {
	return k.Registry.Create(spec)
}

// PersistState content-addresses and stores value.
func (k *Kernel) PersistState(value any) (string, error) {
	return k.Store.Persist(value)
}

// LoadState reads back the state addressed by hash.
func (k *Kernel) LoadState(hash string) (any, error) {
	return k.Store.Load(hash)
}

// ExecuteGraph runs spec against the already-persisted state at inputHash
// and returns the hash of the resulting execution summary.
func (k *Kernel) ExecuteGraph(ctx context.Context, spec graph.Spec, inputHash string) (string, error) {
	return k.Executor.ExecuteGraph(ctx, spec, inputHash, time.Now)
}
