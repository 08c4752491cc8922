package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/transformkernel/internal/graph"
	"github.com/example/transformkernel/internal/kernelerrors"
	"github.com/example/transformkernel/internal/registry"
	"github.com/example/transformkernel/internal/store"
	"github.com/example/transformkernel/internal/tracelog"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

type harness struct {
	st   *store.Store
	reg  *registry.Registry
	log  *tracelog.Log
	exec *Executor
	root string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()

	st, err := store.New(filepath.Join(root, "states"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	reg, err := registry.New(filepath.Join(root, "registry", "transforms"))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	tl, err := tracelog.New(filepath.Join(root, "traces"))
	if err != nil {
		t.Fatalf("tracelog: %v", err)
	}
	ex := New(st, reg, tl, filepath.Join(root, "tmp"))
	return &harness{st: st, reg: reg, log: tl, exec: ex, root: root}
}

func (h *harness) registerScript(t *testing.T, id, script string) registry.TransformSpec {
	t.Helper()
	path := filepath.Join(h.root, id+".sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	spec := registry.TransformSpec{ID: id, ExecCommand: path}
	if _, err := h.reg.Create(spec); err != nil {
		t.Fatalf("create transform: %v", err)
	}
	return spec
}

func (h *harness) traceCount(t *testing.T) int {
	t.Helper()
	f, err := os.Open(h.log.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatalf("open trace log: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	n := 0
	for scanner.Scan() {
		n++
	}
	return n
}

const copyScript = "#!/bin/sh\ncp \"$1\" \"$2\"\n"

func TestExecuteGraph_IdentityCopySingleNode(t *testing.T) {
	h := newHarness(t)
	h.registerScript(t, "identity", copyScript)

	inputHash, err := h.st.Persist(map[string]any{"numbers": []any{1, 2, 3}, "message": "hello"})
	if err != nil {
		t.Fatalf("persist input: %v", err)
	}

	spec := graph.Spec{
		Nodes: []graph.Node{{Name: "node1", TransformID: "identity"}},
		Sinks: []string{"node1"},
	}

	summaryHash, err := h.exec.ExecuteGraph(context.Background(), spec, inputHash, fixedNow)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	raw, err := h.st.LoadRaw(summaryHash)
	if err != nil {
		t.Fatalf("load summary: %v", err)
	}
	var summary ExecutionSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if _, ok := summary.FinalOutputs["node1"]; !ok {
		t.Fatalf("expected node1 in final outputs, got %v", summary.FinalOutputs)
	}
	if h.traceCount(t) != 1 {
		t.Fatalf("expected 1 trace, got %d", h.traceCount(t))
	}
}

func TestExecuteGraph_LinearChain(t *testing.T) {
	h := newHarness(t)
	// A emits {"v":41} regardless of input.
	h.registerScript(t, "emit41", "#!/bin/sh\necho '{\"v\":41}' > \"$2\"\n")
	h.registerScript(t, "increment", sumScriptIncrement)

	inputHash, err := h.st.Persist(map[string]any{})
	if err != nil {
		t.Fatalf("persist input: %v", err)
	}

	spec := graph.Spec{
		Nodes: []graph.Node{
			{Name: "A", TransformID: "emit41"},
			{Name: "B", TransformID: "increment"},
		},
		Edges: []graph.Edge{{From: "A", To: "B"}},
		Sinks: []string{"B"},
	}

	summaryHash, err := h.exec.ExecuteGraph(context.Background(), spec, inputHash, fixedNow)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	raw, _ := h.st.LoadRaw(summaryHash)
	var summary ExecutionSummary
	json.Unmarshal(raw, &summary)

	outRaw, err := h.st.LoadRaw(summary.FinalOutputs["B"])
	if err != nil {
		t.Fatalf("load B output: %v", err)
	}
	var out map[string]int
	if err := json.Unmarshal(outRaw, &out); err != nil {
		t.Fatalf("unmarshal B output: %v", err)
	}
	if out["v"] != 42 {
		t.Fatalf("expected v=42, got %v", out)
	}
	if h.traceCount(t) != 2 {
		t.Fatalf("expected 2 traces, got %d", h.traceCount(t))
	}
}

const sumScriptIncrement = `#!/bin/sh
v=$(grep -o '"v":[0-9]*' "$1" | head -1 | cut -d: -f2)
echo "{\"v\":$((v+1))}" > "$2"
`

func TestExecuteGraph_FailingMiddleNodeAbortsDownstream(t *testing.T) {
	h := newHarness(t)
	h.registerScript(t, "ok", "#!/bin/sh\necho '{}' > \"$2\"\n")
	h.registerScript(t, "fail", "#!/bin/sh\necho boom 1>&2\nexit 1\n")
	h.registerScript(t, "never", "#!/bin/sh\necho '{}' > \"$2\"\n")

	inputHash, err := h.st.Persist(map[string]any{})
	if err != nil {
		t.Fatalf("persist input: %v", err)
	}

	spec := graph.Spec{
		Nodes: []graph.Node{
			{Name: "A", TransformID: "ok"},
			{Name: "B", TransformID: "fail"},
			{Name: "C", TransformID: "never"},
		},
		Edges: []graph.Edge{{From: "A", To: "B"}, {From: "B", To: "C"}},
		Sinks: []string{"C"},
	}

	_, err = h.exec.ExecuteGraph(context.Background(), spec, inputHash, fixedNow)
	if err == nil {
		t.Fatalf("expected PredecessorMissing error")
	}
	if !errors.Is(err, kernelerrors.ErrPredecessorMissing) {
		t.Fatalf("expected ErrPredecessorMissing, got %v", err)
	}
	if h.traceCount(t) != 2 {
		t.Fatalf("expected 2 traces (A success, B failure), got %d", h.traceCount(t))
	}
}

func TestExecuteGraph_CycleRejectedBeforeAnyFiring(t *testing.T) {
	h := newHarness(t)
	inputHash, err := h.st.Persist(map[string]any{})
	if err != nil {
		t.Fatalf("persist input: %v", err)
	}

	spec := graph.Spec{
		Nodes: []graph.Node{{Name: "A", TransformID: "x"}, {Name: "B", TransformID: "y"}},
		Edges: []graph.Edge{{From: "A", To: "B"}, {From: "B", To: "A"}},
	}

	_, err = h.exec.ExecuteGraph(context.Background(), spec, inputHash, fixedNow)
	if !errors.Is(err, kernelerrors.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
	if h.traceCount(t) != 0 {
		t.Fatalf("expected no traces before cycle rejection, got %d", h.traceCount(t))
	}
}
