package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"service-nanny/cmd/root"
	"service-nanny/controllers"
	"service-nanny/internal/config"
	"service-nanny/internal/env"
	"service-nanny/internal/logger"
	"service-nanny/internal/runtime"
	"service-nanny/internal/store"
	"service-nanny/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the service-nanny daemon",
	Long:  `Discover services, reconcile with the container runtime and serve the HTTP control surface until interrupted`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return startServer(ctx, config.Get())
	},
}

/**
 * Run the daemon until ctx is cancelled
 * @param {context.Context} ctx - Cancelled on SIGINT/SIGTERM
 * @param {*config.AppConfig} cfg - Loaded configuration
 * @returns {error} Startup failure, nil after a graceful shutdown
 * @description
 * - Opens the event journal and builds the server graph
 * - Initial discovery failing to read the services root is fatal
 * - Background health poller and manifest watcher stop with ctx
 * - Running services are left running on shutdown, the next start adopts them
 */
func startServer(ctx context.Context, cfg *config.AppConfig) error {
	gin.SetMode(cfg.Server.Mode)

	journal, err := store.Open(cfg.Journal.DSN, cfg.Journal.Retain)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()
	if err := journal.Ping(ctx); err != nil {
		return fmt.Errorf("journal unavailable: %w", err)
	}

	svc := services.NewServer(cfg, runtime.NewCompose(cfg.Runtime, nil), journal)
	if err := svc.Init(ctx); err != nil {
		return fmt.Errorf("initial discovery: %w", err)
	}
	svc.StartBackground(ctx)

	listeners, err := CreateListeners(ListenAddrs(cfg.Server))
	if len(listeners) == 0 {
		return fmt.Errorf("no listener available: %w", err)
	}

	httpServer := &http.Server{
		Handler:           controllers.NewRouter(svc, cfg.Server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, len(listeners))
	var wg sync.WaitGroup
	for _, ln := range listeners {
		wg.Add(1)
		go func(ln net.Listener) {
			defer wg.Done()
			if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve %s: %w", ln.Addr(), err)
			}
		}(ln)
	}
	logger.Infof("service-nanny %s started, %d services discovered", env.Version, svc.Registry().Count())

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case serveErr = <-errCh:
		logger.Errorf("Listener failed: %v", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Graceful shutdown incomplete: %v", err)
	}
	wg.Wait()
	if cfg.Server.Socket != "" && cfg.Server.Socket != "-" {
		os.Remove(cfg.Server.Socket)
	}
	return serveErr
}

func init() {
	serverCmd.Flags().String("address", "", "TCP listen address (default :8080)")
	_ = viper.BindPFlag("server.address", serverCmd.Flags().Lookup("address"))

	root.RootCmd.AddCommand(serverCmd)
}
