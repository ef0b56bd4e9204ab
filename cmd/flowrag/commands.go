package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flowrag/flowrag/internal/storage"
)

// --- workspaces ---

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "Manage workspaces",
}

var workspacesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all workspaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/workspaces")
		if err != nil {
			return err
		}

		var workspaces []storage.Workspace
		if err := decodeJSON(resp, &workspaces); err != nil {
			return err
		}

		if len(workspaces) == 0 {
			fmt.Fprintln(os.Stdout, "no workspaces")
			return nil
		}
		for _, ws := range workspaces {
			fmt.Fprintf(os.Stdout, "%s  %s\n", ws.ID, ws.Name)
		}
		return nil
	},
}

var workspacesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/workspaces", map[string]string{
			"name":        args[0],
			"description": description,
		})
		if err != nil {
			return err
		}

		var ws storage.Workspace
		if err := decodeJSON(resp, &ws); err != nil {
			return err
		}

		printSuccess("Created workspace %s", ws.ID)
		return nil
	},
}

var workspacesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a workspace and its documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/workspaces/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted workspace %s", args[0])
		return nil
	},
}

var workspacesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a workspace as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/workspaces/"+args[0])
		if err != nil {
			return err
		}

		var ws any
		if err := decodeJSON(resp, &ws); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ws)
	},
}

func init() {
	workspacesCreateCmd.Flags().String("description", "", "workspace description")

	workspacesCmd.AddCommand(workspacesListCmd)
	workspacesCmd.AddCommand(workspacesCreateCmd)
	workspacesCmd.AddCommand(workspacesDeleteCmd)
	workspacesCmd.AddCommand(workspacesShowCmd)
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <workspace-id> <file>",
	Short: "Upload a document into a workspace",
	Long: `Upload a document into a workspace's knowledge base.

Examples:
  flowrag ingest ws-123 ./report.pdf
  flowrag ingest ws-123 ./notes.txt`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspaceID, path := args[0], args[1]

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.upload(cmd.Context(), "/workspaces/"+workspaceID+"/documents", filepath.Base(path), data)
		if err != nil {
			return err
		}

		var doc storage.Document
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}

		printSuccess("Indexed %s as %d chunks (document %s)", doc.Filename, doc.ChunkCount, doc.ID)
		return nil
	},
}

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <workspace-id> <query>",
	Short: "Run a workspace's workflow against a query",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspaceID, query := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/workspaces/"+workspaceID+"/execute", map[string]string{
			"query": query,
		})
		if err != nil {
			return err
		}

		var result struct {
			Success        bool     `json:"success"`
			Response       string   `json:"response"`
			Error          string   `json:"error"`
			ContextUsed    []string `json:"context_used"`
			Provider       string   `json:"provider"`
			ProcessingTime float64  `json:"processing_time"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Success {
			printError("%s", result.Error)
			return fmt.Errorf("execution failed")
		}

		fmt.Fprintln(os.Stdout, result.Response)
		printStatus("Provider", "%s", result.Provider)
		printStatus("Context chunks", "%d", len(result.ContextUsed))
		printStatus("Time", "%.2fs", result.ProcessingTime)
		return nil
	},
}
