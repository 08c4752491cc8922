// Package executor implements the Graph Executor (spec.md §4.4): topological
// scheduling, per-node input assembly from predecessor outputs, transform
// invocation, trace recording, and execution-summary construction.
//
// The firing loop follows the same validate-then-run shape as the teacher
// repo's internal/core/runner.go (Runner.Run): resolve inputs, persist the
// assembled input to obtain its content address, load the transform spec,
// and then invoke. No previously stored result is consulted: every node in
// the graph is fired on every run. A failed firing is recorded and the run
// continues (spec.md §4.4.4); it is never retried and never aborts the graph
// by itself.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/transformkernel/internal/graph"
	"github.com/example/transformkernel/internal/kernelerrors"
	"github.com/example/transformkernel/internal/registry"
	"github.com/example/transformkernel/internal/store"
	"github.com/example/transformkernel/internal/tracelog"
	"github.com/example/transformkernel/internal/transform"
)

// ExecutionSummary is the State persisted at the end of a run (spec.md §3).
type ExecutionSummary struct {
	ExecutionID  string            `json:"execution_id"`
	FinalOutputs map[string]string `json:"final_outputs"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Executor wires the Store, Registry, and Trace Log into spec.md §4.4's
// per-node firing protocol.
type Executor struct {
	Store    *store.Store
	Registry *registry.Registry
	Traces   *tracelog.Log
	TmpDir   string

	log *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger attaches a structured logger. A no-op logger is used if omitted.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// New builds an Executor. tmpDir is where per-firing input/output files are
// materialized (spec.md §6: tmp/input-<uuid>.json, tmp/output-<uuid>.json).
func New(st *store.Store, reg *registry.Registry, traces *tracelog.Log, tmpDir string, opts ...Option) *Executor {
	e := &Executor{Store: st, Registry: reg, Traces: traces, TmpDir: tmpDir, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteGraph runs spec to completion against inputHash and returns the
// content address of the resulting ExecutionSummary (spec.md §4.4.1).
//
// now is the timestamp recorded on the summary and on every trace packet,
// supplied by the caller so the executor itself never calls time.Now
// (spec.md's determinism concerns extend to making timestamp sourcing an
// explicit input rather than ambient state).
func (e *Executor) ExecuteGraph(ctx context.Context, spec graph.Spec, inputHash string, now func() time.Time) (string, error) {
	g, err := graph.New(spec)
	if err != nil {
		return "", err
	}

	executionID := uuid.NewString()
	log := e.log.With(zap.String("execution_id", executionID))

	outputs := make(map[string]string, len(spec.Nodes))

	for _, name := range g.TopologicalOrder() {
		transformID, _ := g.TransformID(name)
		outputHash, fired, err := e.fireNode(ctx, g, name, transformID, executionID, inputHash, outputs, now, log)
		if err != nil {
			return "", err
		}
		if fired {
			outputs[name] = outputHash
		}
	}

	summary := ExecutionSummary{
		ExecutionID:  executionID,
		FinalOutputs: finalOutputs(spec.Sinks, outputs),
		Timestamp:    now().UTC(),
	}
	summaryHash, err := e.Store.Persist(summary)
	if err != nil {
		return "", err
	}
	log.Info("execution complete", zap.String("summary_hash", summaryHash), zap.Int("sinks", len(summary.FinalOutputs)))
	return summaryHash, nil
}

// fireNode runs one node's firing protocol (spec.md §4.4.3). It returns
// (outputHash, fired, err): fired is false when the transform itself failed
// (recorded, not raised); err is non-nil only for kernel-level aborts.
func (e *Executor) fireNode(
	ctx context.Context,
	g *graph.Graph,
	name, transformID, executionID, inputHash string,
	outputs map[string]string,
	now func() time.Time,
	log *zap.Logger,
) (outputHash string, fired bool, err error) {
	predNames := g.Predecessors(name)

	type predecessor struct {
		name string
		hash string
	}
	var preds []predecessor
	if len(predNames) == 0 {
		preds = []predecessor{{name: graph.ReservedInputName, hash: inputHash}}
	} else {
		sort.Strings(predNames) // spec.md §9 Open Question 1: sort by predecessor name
		for _, p := range predNames {
			hash, ok := outputs[p]
			if !ok {
				return "", false, kernelerrors.New(kernelerrors.ErrPredecessorMissing, "node %q depends on %q, which produced no output", name, p)
			}
			preds = append(preds, predecessor{name: p, hash: hash})
		}
	}

	assembled := make([]any, 0, len(preds))
	for _, p := range preds {
		value, err := e.Store.Load(p.hash)
		if err != nil {
			return "", false, err
		}
		assembled = append(assembled, value)
	}

	inputsHash, err := e.Store.Persist(assembled)
	if err != nil {
		return "", false, err
	}

	spec, err := e.Registry.Load(transformID)
	if err != nil {
		return "", false, err
	}

	firingTmpDir := filepath.Join(e.TmpDir)
	if err := os.MkdirAll(firingTmpDir, 0o755); err != nil {
		return "", false, kernelerrors.New(kernelerrors.ErrStoreIO, "create tmp dir %q: %v", firingTmpDir, err)
	}
	inputBytes, err := e.Store.LoadRaw(inputsHash)
	if err != nil {
		return "", false, err
	}

	outcome, err := transform.Invoke(ctx, spec, inputBytes, firingTmpDir)
	if err != nil {
		return "", false, err
	}

	traceID := uuid.NewString()
	timestamp := now().UTC()

	if !outcome.Succeeded {
		errText := outcome.StdErr
		packet := tracelog.TracePacket{
			TraceID:       traceID,
			ExecutionID:   executionID,
			TransformID:   transformID,
			Timestamp:     timestamp,
			InputsHash:    inputsHash,
			OutputsHash:   "",
			DurationMS:    outcome.DurationMS,
			ResourceUsage: exitCodeResourceUsage(outcome.ExitCode),
			Error:         &errText,
		}
		if err := e.Traces.Append(packet); err != nil {
			return "", false, err
		}
		log.Warn("node firing failed", zap.String("node", name), zap.String("transform_id", transformID), zap.String("stderr", errText))
		return "", false, nil
	}

	outputHash, err = e.Store.PersistRaw(outcome.Output)
	if err != nil {
		return "", false, err
	}

	packet := tracelog.TracePacket{
		TraceID:       traceID,
		ExecutionID:   executionID,
		TransformID:   transformID,
		Timestamp:     timestamp,
		InputsHash:    inputsHash,
		OutputsHash:   outputHash,
		DurationMS:    outcome.DurationMS,
		ResourceUsage: outputBytesResourceUsage(len(outcome.Output)),
		Error:         nil,
	}
	if err := e.Traces.Append(packet); err != nil {
		return "", false, err
	}
	log.Debug("node fired", zap.String("node", name), zap.String("transform_id", transformID), zap.String("output_hash", outputHash))
	return outputHash, true, nil
}

func finalOutputs(sinks []string, outputs map[string]string) map[string]string {
	final := make(map[string]string, len(sinks))
	for _, s := range sinks {
		if h, ok := outputs[s]; ok {
			final[s] = h
		}
	}
	return final
}

func exitCodeResourceUsage(code *int) []byte {
	if code == nil {
		return []byte(`{"exit_code":null}`)
	}
	return []byte(fmt.Sprintf(`{"exit_code":%d}`, *code))
}

func outputBytesResourceUsage(n int) []byte {
	return []byte(fmt.Sprintf(`{"output_bytes":%d}`, n))
}
