package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/erentorlak/todv2/internal/config"
	"github.com/erentorlak/todv2/internal/server"
	"github.com/erentorlak/todv2/internal/state"
)

var (
	serveAddr      string
	serveTimeout   time.Duration
	serveEphemeral bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve dialog sessions over HTTP",
	Long: `Serve dialog sessions over HTTP.

Endpoints:
  GET    /healthz                  liveness
  GET    /metrics                  Prometheus metrics
  GET    /v1/intents               the intent catalogue
  GET    /v1/sessions              stored sessions
  POST   /v1/sessions              start a session
  GET    /v1/sessions/{id}         session state
  DELETE /v1/sessions/{id}         forget a session
  POST   /v1/sessions/{id}/turns   send {"text": "..."} and get the reply

Sessions older than store.retention are purged periodically. When
dialog.catalog_path is set and dialog.watch_catalog is on, edits to the
catalogue file are picked up without a restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from server.addr)")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 60*time.Second, "Per-request timeout")
	serveCmd.Flags().BoolVar(&serveEphemeral, "ephemeral", false, "Keep sessions in memory only")
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nReceived interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{ephemeral: serveEphemeral, registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return err
	}
	defer a.Close()

	printStatus("✓", fmt.Sprintf("Catalog: %d intents", len(a.catalog.Intents())), color.FgGreen)
	printStatus("✓", "Backend: "+a.backend, color.FgGreen)
	if serveEphemeral {
		printStatus("!", "Sessions are kept in memory only", color.FgYellow)
	} else {
		printStatus("✓", "Store: "+cfg.Store.Path, color.FgGreen)
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Store.Retention > 0 {
		janitor := state.NewJanitor(a.store, cfg.Store.Retention, time.Hour)
		g.Go(func() error {
			janitor.Run(ctx)
			return nil
		})
	}

	if cfg.Dialog.CatalogPath != "" && cfg.Dialog.WatchCatalog {
		g.Go(func() error {
			if err := a.catalog.Watch(ctx); err != nil {
				log.Printf("[serve] catalog watch stopped: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return server.New(a.engine, prometheus.DefaultGatherer, serveTimeout).Run(ctx, addr)
	})

	return g.Wait()
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
