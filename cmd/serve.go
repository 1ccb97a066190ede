package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcon-bridge/rcon-ws-bridge/internal/applog"
	"github.com/rcon-bridge/rcon-ws-bridge/internal/bridgeserver"
	"github.com/rcon-bridge/rcon-ws-bridge/internal/config"
	"github.com/rcon-bridge/rcon-ws-bridge/internal/sse"
)

var serveFlags = &config.Flags{}

// serveCmd starts the WebSocket bridge and its stateless HTTP/SSE
// siblings on one HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the RCON bridge HTTP server",
	Long: `Start the RCON bridge: a WebSocket endpoint that drives an HTML
console UI via server-sent fragments, plus the stateless POST /rcon,
POST /connect, and GET /stream HTTP/SSE endpoints sharing the same
upstream target.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := applog.New(applog.Options{Level: serveFlags.LogLevel, Format: serveFlags.LogFormat})

		bridgeSrv := bridgeserver.New(serveFlags.BridgeConfig(logger), bridgeserver.Options{Logger: logger})
		sseHandler := sse.New(serveFlags.SSEConfig(logger))

		mux := http.NewServeMux()
		mux.Handle(serveFlags.Path, bridgeSrv)
		mux.Handle("/", sseHandler.Mux())

		httpSrv := &http.Server{Addr: serveFlags.ListenAddr, Handler: mux}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", serveFlags.ListenAddr).Str("path", serveFlags.Path).Msg("cmd: bridge server listening")
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info().Msg("cmd: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("serve: shutdown: %w", err)
		}
		return bridgeSrv.Shutdown(shutdownCtx)
	},
}

func init() {
	config.Register(serveCmd, serveFlags)
	rootCmd.AddCommand(serveCmd)
}
