package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/handbook-rag/internal/adapters/driving/mcp"
)

var (
	mcpPort  int
	mcpNoAsk bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the handbook to AI assistants",
	Long: `Expose retrieval over the Model Context Protocol so that assistants
such as Claude Desktop can look things up in the handbook themselves.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Long: `Run the MCP server until interrupted.

Tools:
  retrieve          ranked handbook excerpts for a question
  assemble_prompt   a grounded prompt built from those excerpts
  ask               a generated answer (only when generation is configured)

Every ingested document is also listed as a handbook:// resource.

Without --port the server speaks JSON-RPC on stdin/stdout, which is what
desktop assistants launch. With --port it serves streamable HTTP on
/mcp, plus /healthz, for the MCP Inspector or remote clients.

Examples:
  handbook-rag mcp serve
  handbook-rag mcp serve --port 8080

claude_desktop_config.json:
  {
    "mcpServers": {
      "handbook": {
        "command": "/path/to/handbook-rag",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "serve HTTP on this port instead of stdio")
	mcpServeCmd.Flags().BoolVar(&mcpNoAsk, "no-ask", false, "do not offer the ask tool even if a generator is configured")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	if mcpPort < 0 || mcpPort > 65535 {
		return fmt.Errorf("--port must be between 0 and 65535, got %d", mcpPort)
	}

	server, err := mcp.NewServer(mcpPorts())
	if err != nil {
		return err
	}

	if mcpPort > 0 {
		// stdout carries the JSON-RPC stream in stdio mode
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost:%d/mcp\n", mcpPort)
	}
	return server.Serve(cmd.Context(), mcpPort)
}

// mcpPorts collects the services the server needs. Answer stays nil
// unless a generator is configured and --no-ask is off.
func mcpPorts() *mcp.Ports {
	ports := &mcp.Ports{
		Retrieval: retrievalService,
		Prompt:    promptService,
		Document:  documentService,
	}
	if generates && !mcpNoAsk {
		ports.Answer = answerService
	}
	return ports
}
