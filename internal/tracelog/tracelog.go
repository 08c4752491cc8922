// Package tracelog implements the append-only Trace Log (spec.md §4.3).
//
// The in-process append path reuses the mutex-guarded-recorder discipline of
// the teacher repo's internal/trace.Recorder; the on-disk append additionally
// takes a github.com/gofrs/flock advisory lock so that multiple kernel
// processes sharing the same traces.jsonl (spec.md §5) do not interleave
// within a line even when a single record exceeds the platform's atomic
// pipe-buffer write size.
package tracelog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/example/transformkernel/internal/kernelerrors"
)

// TracePacket is the per-node-firing record defined in spec.md §3.
type TracePacket struct {
	TraceID       string          `json:"trace_id"`
	ExecutionID   string          `json:"execution_id"`
	TransformID   string          `json:"transform_id"`
	Timestamp     time.Time       `json:"timestamp"`
	InputsHash    string          `json:"inputs_hash"`
	OutputsHash   string          `json:"outputs_hash"`
	DurationMS    int64           `json:"duration_ms"`
	ResourceUsage json.RawMessage `json:"resource_usage"`
	Error         *string         `json:"error,omitempty"`
}

// Log is an append-only writer for traces/traces.jsonl.
type Log struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex // serializes appends within this process
	log  *zap.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithLogger attaches a structured logger. A no-op logger is used if omitted.
func WithLogger(l *zap.Logger) Option {
	return func(lg *Log) { lg.log = l }
}

// New opens (creating if necessary) the trace log at dir/traces.jsonl.
func New(dir string, opts ...Option) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kernelerrors.New(kernelerrors.ErrStoreIO, "create traces dir %q: %v", dir, err)
	}
	path := filepath.Join(dir, "traces.jsonl")
	l := &Log{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Append writes one TracePacket as a single compact JSON line.
//
// Appends are line-atomic (spec.md §4.3): the process-local mutex serializes
// writers within this process, and the gofrs/flock advisory lock serializes
// writers across processes sharing the same storage root, so a single
// os.File.Write call per record is never required to stay under the pipe
// buffer threshold to remain safe.
func (l *Log) Append(packet TracePacket) error {
	line, err := json.Marshal(packet)
	if err != nil {
		return kernelerrors.New(kernelerrors.ErrStoreIO, "marshal trace packet %q: %v", packet.TraceID, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(); err != nil {
		return kernelerrors.New(kernelerrors.ErrStoreIO, "lock trace log: %v", err)
	}
	defer func() { _ = l.lock.Unlock() }()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return kernelerrors.New(kernelerrors.ErrStoreIO, "open trace log: %v", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return kernelerrors.New(kernelerrors.ErrStoreIO, "append trace: %v", err)
	}
	l.log.Debug("appended trace", zap.String("trace_id", packet.TraceID), zap.String("transform_id", packet.TransformID))
	return nil
}

// Path returns the underlying traces.jsonl path. The kernel exposes no read
// operation (spec.md §4.3): "consumers tail the file."
func (l *Log) Path() string { return l.path }
