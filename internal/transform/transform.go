// Package transform implements the child-process invocation protocol
// (spec.md §4.4.3 steps 4-7, §6 "Transform invocation protocol").
//
// It follows the same os/exec shape as the teacher repo's
// internal/core/executor.go: build the argv, capture stderr and wall time,
// and translate the exit status into a structured Outcome rather than
// aborting the caller. The child runs with the invoking process's
// environment; no environment isolation is applied.
package transform

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/transformkernel/internal/kernelerrors"
	"github.com/example/transformkernel/internal/registry"
)

// Outcome is the result of one invocation: either a successful output byte
// slice, or a failure description. It is never a Go error for the
// non-zero-exit case — spec.md §4.4.4 requires the caller to record and
// continue, not abort.
type Outcome struct {
	Succeeded  bool
	Output     []byte
	DurationMS int64
	ExitCode   *int
	StdErr     string
}

// SplitCommand splits spec.md §3's whitespace-delimited exec_command into a
// program and static args, per §9 Open Question 3 (no quoting support).
func SplitCommand(execCommand string) (program string, args []string, err error) {
	fields := strings.Fields(execCommand)
	if len(fields) == 0 {
		return "", nil, kernelerrors.New(kernelerrors.ErrInvalidTransformSpec, "exec_command is empty")
	}
	return fields[0], fields[1:], nil
}

// Invoke materializes input to a fresh temp file under tmpDir, spawns the
// transform with the input and output paths appended as positional args
// (spec.md §4.4.3 steps 4-6), and returns the resulting Outcome.
//
// Cleanup of both temp files is unconditional on every exit path (spec.md §5
// "Resource lifecycle"), regardless of success or failure.
func Invoke(ctx context.Context, spec registry.TransformSpec, input []byte, tmpDir string) (Outcome, error) {
	program, staticArgs, err := SplitCommand(spec.ExecCommand)
	if err != nil {
		return Outcome{}, err
	}

	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return Outcome{}, kernelerrors.New(kernelerrors.ErrStoreIO, "create tmp dir: %v", err)
	}

	id := uuid.NewString()
	inputPath := tmpPath(tmpDir, "input", id)
	outputPath := tmpPath(tmpDir, "output", id)

	defer func() { _ = os.Remove(inputPath) }()
	defer func() { _ = os.Remove(outputPath) }()
	if err := os.WriteFile(inputPath, input, 0o644); err != nil {
		return Outcome{}, kernelerrors.New(kernelerrors.ErrStoreIO, "write transform input: %v", err)
	}

	args := make([]string, 0, len(staticArgs)+2)
	args = append(args, staticArgs...)
	args = append(args, inputPath, outputPath)

	cmd := exec.CommandContext(ctx, program, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start).Milliseconds()

	if runErr != nil {
		var exitCode *int
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			exitCode = &code
		}
		return Outcome{
			Succeeded:  false,
			DurationMS: duration,
			ExitCode:   exitCode,
			StdErr:     stderr.String(),
		}, nil
	}

	output, err := os.ReadFile(outputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Outcome{
				Succeeded:  false,
				DurationMS: duration,
				StdErr:     "transform exited 0 but did not write an output file",
			}, nil
		}
		return Outcome{}, kernelerrors.New(kernelerrors.ErrStoreIO, "read transform output: %v", err)
	}

	return Outcome{
		Succeeded:  true,
		Output:     output,
		DurationMS: duration,
	}, nil
}

func tmpPath(dir, kind, id string) string {
	return filepath.Join(dir, kind+"-"+id+".json")
}
