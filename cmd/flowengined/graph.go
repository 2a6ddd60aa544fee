// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/flowengine/pkg/workflow"
)

// newWorkflowCommand groups the offline graph-maintenance subcommands:
// export serializes a stored workflow's graph to YAML, import creates a
// new workflow from one. Neither touches the HTTP API or the engine;
// both operate directly on the configured Store.
func newWorkflowCommand() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "inspect and transfer workflow graphs outside the HTTP API",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "sqlite:// path, or empty for the in-memory store")

	var output string
	exportCmd := &cobra.Command{
		Use:   "export <workflow-id>",
		Short: "write a workflow's graph (workflow + steps + edges) as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportWorkflow(databaseURL, args[0], output)
		},
	}
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "file to write to (default: stdout)")

	var asNew bool
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "create a workflow from a previously exported YAML graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return importWorkflow(databaseURL, args[0], asNew)
		},
	}
	importCmd.Flags().BoolVar(&asNew, "as-new", true, "assign a fresh id instead of reusing the exported one")

	cmd.AddCommand(exportCmd, importCmd)
	return cmd
}

func exportWorkflow(databaseURL, workflowID, output string) error {
	store, err := openStore(databaseURL)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	wf, err := store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}
	steps, err := store.GetSteps(ctx, workflowID)
	if err != nil {
		return err
	}
	edges, err := store.GetEdges(ctx, workflowID)
	if err != nil {
		return err
	}

	graph := workflow.Graph{Workflow: wf, Steps: steps, Edges: edges}
	encoded, err := yaml.Marshal(graph)
	if err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}

	if output == "" {
		_, err = os.Stdout.Write(encoded)
		return err
	}
	return os.WriteFile(output, encoded, 0o644)
}

func importWorkflow(databaseURL, path string, asNew bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var graph workflow.Graph
	if err := yaml.Unmarshal(raw, &graph); err != nil {
		return fmt.Errorf("decoding graph: %w", err)
	}
	if graph.Workflow == nil {
		return fmt.Errorf("%s: missing workflow", path)
	}

	store, err := openStore(databaseURL)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	wf := graph.Workflow
	if asNew || wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	now := time.Now()
	wf.CreatedAt, wf.UpdatedAt = now, now

	for _, s := range graph.Steps {
		s.WorkflowID = wf.ID
	}
	for _, e := range graph.Edges {
		e.WorkflowID = wf.ID
	}

	if err := store.CreateWorkflow(ctx, wf); err != nil {
		return err
	}
	if len(graph.Steps) > 0 || len(graph.Edges) > 0 {
		if err := store.UpdateWorkflow(ctx, wf, graph.Steps, graph.Edges); err != nil {
			return err
		}
	}

	fmt.Printf("imported workflow %s (%s)\n", wf.ID, wf.Name)
	return nil
}
