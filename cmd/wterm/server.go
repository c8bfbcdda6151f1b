package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/wterm/internal/api"
	"github.com/kalambet/wterm/internal/config"
	"github.com/kalambet/wterm/internal/remote"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the settings server (foreground)",
	Long: `Run the settings server. It confirms or rejects global settings posted by
terminals and keeps the authoritative values. With --mcp, the terminal's own
settings are also exposed as MCP tools over stdio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		addr, _ := cmd.Flags().GetString("addr")
		return runServer(cmd.Context(), addr, withMCP)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server reachability and local state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
	serveCmd.Flags().String("addr", "", "listen address (default 127.0.0.1:<server.port>)")
}

func runServer(ctx context.Context, addr string, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "wterm version %s\n", version)

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	if a.cfg.Remote.Token == "" {
		slog.Warn("no bearer token configured; the server accepts unauthenticated writes")
	}

	handler := api.NewPeerHandler(api.PeerDeps{
		Store:    a.db,
		Registry: a.reg,
		Token:    a.cfg.Remote.Token,
		Logger:   slog.Default(),
	})

	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if a.cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, a.cfg.Server.MaxConns)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("wterm server listening", "addr", ln.Addr().String(), "max_conns", a.cfg.Server.MaxConns)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Settings: a.store, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func showStatus(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()

	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	if cfg.Remote.URL == "" {
		printStatus(w, "Server", "none (offline, writes are confirmed locally)")
	} else {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()
		client := remote.NewClient(cfg.Remote.URL, cfg.Remote.Token, 2*time.Second)
		if err := client.Health(ctx); err != nil {
			printStatus(w, "Server", "%s unreachable (%v)", cfg.Remote.URL, err)
		} else {
			printStatus(w, "Server", "%s reachable", cfg.Remote.URL)
		}
	}

	printStatus(w, "Token", "%s", tokenLabel(cfg.Remote.Token))
	printStatus(w, "Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func tokenLabel(token string) string {
	if token == "" {
		return "not set"
	}
	return "set"
}
