package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/transformkernel/internal/graph"
	"github.com/example/transformkernel/internal/kernel"
	"github.com/example/transformkernel/internal/kernelconfig"
	"github.com/example/transformkernel/internal/registry"
)

func newDemoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Register an identity transform, run a one-node graph, print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runDemo(cmd.Context(), cfg)
		},
	}
}

func runDemo(ctx context.Context, cfg kernelconfig.Config) error {
	logger, err := kernelconfig.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	opts := []kernel.Option{kernel.WithLogger(logger)}
	if cfg.StrictLoad {
		opts = append(opts, kernel.WithStrictLoad())
	}

	k, err := kernel.New(cfg.StoreDir, opts...)
	if err != nil {
		return fmt.Errorf("bootstrap kernel: %w", err)
	}

	identityScript, err := writeIdentityScript(cfg.StoreDir)
	if err != nil {
		return fmt.Errorf("write identity transform: %w", err)
	}

	transformID, err := k.CreateTransform(registry.TransformSpec{ExecCommand: "sh " + identityScript})
	if err != nil {
		return fmt.Errorf("create transform: %w", err)
	}

	inputHash, err := k.PersistState(map[string]any{
		"numbers": []int{1, 2, 3},
		"message": "hello",
	})
	if err != nil {
		return fmt.Errorf("persist input state: %w", err)
	}

	spec := graph.Spec{
		Nodes: []graph.Node{{Name: "node1", TransformID: transformID}},
		Sinks: []string{"node1"},
	}

	summaryHash, err := k.ExecuteGraph(ctx, spec, inputHash)
	if err != nil {
		return fmt.Errorf("execute graph: %w", err)
	}

	summary, err := k.LoadState(summaryHash)
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// writeIdentityScript materializes a tiny shell transform that copies its
// input file to its output file, satisfying the I/O protocol of spec.md §6.
func writeIdentityScript(storeDir string) (string, error) {
	path := filepath.Join(storeDir, "identity.sh")
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\ncp \"$1\" \"$2\"\n"), 0o755); err != nil {
		return "", err
	}
	return path, nil
}
