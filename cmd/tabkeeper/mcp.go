package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/tabkeeper"
	"github.com/aretw0/tabkeeper/internal/config"
	"github.com/aretw0/tabkeeper/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the ordering tools as MCP tools, so AI agents can keep a tab
through tabkeeper. Every tool except get_menu takes a session_id argument.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, logger, err := buildApp(cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()

		if t, _ := cmd.Flags().GetString("transport"); t != "" {
			app.Config.MCP.Transport = t
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			app.Config.MCP.Addr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := app.Ping(ctx); err != nil {
			return err
		}
		if sweeper := app.Sweeper(); sweeper != nil {
			go sweeper.Run(ctx)
		}

		srv := mcp.NewServer(app.Tools, app.Catalog, tabkeeper.Version, mcp.WithLogger(logger))

		switch app.Config.MCP.Transport {
		case config.TransportStdio:
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			logger.Info("Starting tabkeeper MCP server (stdio)", "tools", len(srv.ToolNames()))
			return srv.ServeStdio()
		case config.TransportSSE:
			logger.Info("Starting tabkeeper MCP server (SSE)", "addr", app.Config.MCP.Addr)
			if err := srv.ServeSSE(ctx, app.Config.MCP.Addr, app.Config.MCP.BaseURL); err != nil {
				return err
			}
			logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport %q, supported: %s, %s", app.Config.MCP.Transport, config.TransportStdio, config.TransportSSE)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringP("transport", "t", "", "Transport type: stdio or sse (overrides mcp.transport)")
	mcpCmd.Flags().String("addr", "", "Listen address for SSE (overrides mcp.addr)")
}
