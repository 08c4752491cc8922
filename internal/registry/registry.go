// Package registry implements the durable Transform catalog (spec.md §4.2).
//
// Persistence follows the same pretty-printed-JSON-plus-atomic-rename shape
// as the teacher repo's internal/recovery/state.Store (SaveRun/writeFileAtomicDurable),
// adapted to the registry's single-file-per-id layout.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/transformkernel/internal/kernelerrors"
)

// TransformSpec is the persistent, registry-keyed description of an
// externally-supplied executable (spec.md §3).
type TransformSpec struct {
	ID          string          `json:"id"`
	ExecCommand string          `json:"exec_command"`
	Meta        json.RawMessage `json:"meta,omitempty"`
}

// Registry persists TransformSpecs under <Dir>/<id>.json.
type Registry struct {
	// Dir is the registry/transforms directory (spec.md §6).
	Dir string

	log *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger attaches a structured logger. A no-op logger is used if omitted.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// New creates a Registry rooted at dir, creating dir if necessary.
func New(dir string, opts ...Option) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kernelerrors.New(kernelerrors.ErrStoreIO, "create registry dir %q: %v", dir, err)
	}
	r := &Registry{Dir: dir, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Create persists spec, assigning a fresh UUID v4 if spec.ID is empty
// (spec.md §4.2). Overwrite-on-collision is permitted (last-writer-wins,
// spec.md §9 Open Question 4).
func (r *Registry) Create(spec TransformSpec) (string, error) {
	id := strings.TrimSpace(spec.ID)
	if id == "" {
		id = uuid.NewString()
	}
	spec.ID = id

	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return "", kernelerrors.New(kernelerrors.ErrStoreIO, "marshal transform spec %q: %v", id, err)
	}

	if err := writeFileAtomic(r.path(id), data, 0o644); err != nil {
		return "", kernelerrors.New(kernelerrors.ErrStoreIO, "write transform spec %q: %v", id, err)
	}
	r.log.Debug("registered transform", zap.String("transform_id", id))
	return id, nil
}

// Load reads the TransformSpec registered under id.
func (r *Registry) Load(id string) (TransformSpec, error) {
	b, err := os.ReadFile(r.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return TransformSpec{}, kernelerrors.New(kernelerrors.ErrTransformNotFound, "transform %q", id)
		}
		return TransformSpec{}, kernelerrors.New(kernelerrors.ErrStoreIO, "read transform %q: %v", id, err)
	}

	var spec TransformSpec
	if err := json.Unmarshal(b, &spec); err != nil {
		return TransformSpec{}, kernelerrors.New(kernelerrors.ErrCorruptSpec, "transform %q: %v", id, err)
	}
	return spec, nil
}

func (r *Registry) path(id string) string {
	return filepath.Join(r.Dir, id+".json")
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
