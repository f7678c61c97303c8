package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mindlog-lab/mindlog/internal/publish"
	"github.com/mindlog-lab/mindlog/internal/server"
	"github.com/mindlog-lab/mindlog/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the mindlog HTTP server.

The server provides:
  - Chat API (sessions, turns, decisions)
  - Token-protected summary and dashboard
  - Health check and Prometheus metrics

Set MINDLOG_NATS_URL to publish every logged event to NATS.

Example:
  mindlog serve --port 8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", cfg.Port, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withStore(func(st store.Store) error {
		var pub publish.Publisher = publish.Nop{}
		if cfg.NATSURL != "" {
			np, err := publish.ConnectNATS(publish.NATSConfig{
				URL:     cfg.NATSURL,
				Subject: cfg.NATSSubject,
				Token:   cfg.NATSToken,
			}, log)
			if err != nil {
				return err
			}
			pub = np
		}

		svc, err := buildService(st, log, pub)
		if err != nil {
			pub.Close()
			return err
		}

		srv := server.New(svc, st, log, server.Options{
			Port:              port,
			AllowedOrigins:    cfg.AllowedOrigins,
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitWindow:   cfg.RateLimitWindow,
			ReadTimeout:       cfg.ServerReadTimeout,
			WriteTimeout:      cfg.ServerWriteTimeout,
		})

		tokenFile := getTokenFilePath()
		if err := os.WriteFile(tokenFile, []byte(srv.Token()), 0600); err != nil {
			log.Warn("failed to write token file", zap.String("path", tokenFile), zap.Error(err))
		}
		defer os.Remove(tokenFile)

		printStartup(cmd, srv.Port(), srv.Token())

		return serveAndDrain(ctx, srv, pub, log)
	})
}

type runner interface {
	Run(ctx context.Context) error
}

// serveAndDrain runs srv until ctx is cancelled or it fails, then drains pub
// once the server has stopped handling turns.
func serveAndDrain(ctx context.Context, srv runner, pub publish.Publisher, log *zap.Logger) error {
	served := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(served)
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-served
		log.Info("draining event publisher")
		if err := pub.Close(); err != nil {
			return fmt.Errorf("failed to drain publisher: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func printStartup(cmd *cobra.Command, port int, token string) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Server running at http://localhost:%d\n", port)
	fmt.Fprintf(out, "Dashboard: http://localhost:%d/dashboard?token=%s\n", port, token)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  chat             Talk to the triage engine in the terminal")
	fmt.Fprintln(out, "  results          Show experiment statistics")
	fmt.Fprintln(out, "  sessions         List recent sessions")
	fmt.Fprintln(out, "  token            Show dashboard URL")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop")
}
