// Package store implements the content-addressed State Store (spec.md §4.1).
//
// Persistence and idempotence follow the same temp-file-then-rename discipline
// as the teacher repo's internal/core/cache.go (FileCache.Put / writeFileAtomic).
package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/example/transformkernel/internal/canonicaljson"
	"github.com/example/transformkernel/internal/kernelerrors"
)

// Store is a content-addressed filesystem store of JSON documents.
//
// Store is safe for concurrent use by multiple goroutines and multiple
// processes sharing the same Dir: writes are idempotent and atomic (spec.md §5).
type Store struct {
	// Dir is the states directory (spec.md §6: states/<hex-sha256>.json).
	Dir string

	// Strict enables §4.1's optional rehash-on-load verification.
	Strict bool

	log *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithStrictLoad enables rehashing loaded bytes and failing with
// kernelerrors.ErrCorruptState on mismatch.
func WithStrictLoad() Option {
	return func(s *Store) { s.Strict = true }
}

// WithLogger attaches a structured logger. A no-op logger is used if omitted.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New creates a Store rooted at dir, creating dir if it does not exist
// (spec.md §4.1: "Empty directories are auto-created on first use").
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kernelerrors.New(kernelerrors.ErrStoreIO, "create states dir %q: %v", dir, err)
	}
	s := &Store{Dir: dir, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Persist canonically serializes value, computes its content address, and
// writes it to disk if not already present.
//
// Persist is idempotent: repeated calls with canonically-equal values return
// the same hash and perform at most one write (spec.md §4.1 invariant b).
func (s *Store) Persist(value any) (string, error) {
	canonical, err := canonicaljson.Marshal(value)
	if err != nil {
		return "", kernelerrors.New(kernelerrors.ErrStoreIO, "canonicalize value: %v", err)
	}
	return s.persistCanonical(canonical)
}

// PersistRaw canonicalizes an already-serialized JSON document (e.g. bytes
// read back from a transform's output file) and persists it exactly as
// Persist would, without requiring the caller to first decode it to a Go
// value.
func (s *Store) PersistRaw(raw []byte) (string, error) {
	canonical, err := canonicaljson.Canonicalize(raw)
	if err != nil {
		return "", kernelerrors.New(kernelerrors.ErrStoreIO, "canonicalize raw value: %v", err)
	}
	return s.persistCanonical(canonical)
}

func (s *Store) persistCanonical(canonical []byte) (string, error) {
	sum := sha256.Sum256(canonical)
	hash := hex.EncodeToString(sum[:])

	path := s.path(hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	} else if !os.IsNotExist(err) {
		return "", kernelerrors.New(kernelerrors.ErrStoreIO, "stat %q: %v", path, err)
	}

	if err := writeFileAtomic(path, canonical, 0o644); err != nil {
		return "", kernelerrors.New(kernelerrors.ErrStoreIO, "write state %q: %v", hash, err)
	}
	s.log.Debug("persisted state", zap.String("hash", hash), zap.Int("bytes", len(canonical)))
	return hash, nil
}

// Load reads the state addressed by hash and parses it as JSON.
func (s *Store) Load(hash string) (any, error) {
	path := s.path(hash)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kernelerrors.New(kernelerrors.ErrNotFound, "state %q at %s", hash, path)
		}
		return nil, kernelerrors.New(kernelerrors.ErrStoreIO, "read %q: %v", path, err)
	}

	if s.Strict {
		canonical, err := canonicaljson.Canonicalize(b)
		if err != nil {
			return nil, kernelerrors.New(kernelerrors.ErrCorruptState, "state %q: %v", hash, err)
		}
		sum := sha256.Sum256(canonical)
		if hex.EncodeToString(sum[:]) != hash {
			return nil, kernelerrors.New(kernelerrors.ErrCorruptState, "state %q: stored bytes do not rehash to requested key", hash)
		}
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, kernelerrors.New(kernelerrors.ErrCorruptState, "state %q: %v", hash, err)
	}
	return v, nil
}

// LoadRaw returns the exact bytes stored under hash, without parsing.
func (s *Store) LoadRaw(hash string) ([]byte, error) {
	path := s.path(hash)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kernelerrors.New(kernelerrors.ErrNotFound, "state %q at %s", hash, path)
		}
		return nil, kernelerrors.New(kernelerrors.ErrStoreIO, "read %q: %v", path, err)
	}
	return b, nil
}

func (s *Store) path(hash string) string {
	return filepath.Join(s.Dir, hash+".json")
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
