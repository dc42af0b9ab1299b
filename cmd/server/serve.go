package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclekaldoteth/stacks-daily-raffle/internal/api"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/contract"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/metrics"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/raffle"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/rpc"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// serveStrict fails startup when the hosted API is unreachable
var serveStrict bool

func init() {
	serveCmd.Flags().BoolVar(&serveStrict, "strict", false, "exit if the hosted API is unreachable at startup")
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting raffle backend",
		zap.String("network", cfg.Network),
		zap.String("api", cfg.APIBaseURL()),
		zap.String("contract", cfg.ContractAddress+"."+cfg.ContractName),
		zap.String("listen", cfg.ListenAddr()))
	if cfg.APIKey == "" {
		logger.Warn("HIRO_API_KEY is not set, upstream calls are rate limited")
	}

	m := metrics.New(raffle.ReadOnlyFunctions()...)
	rpcClient := rpc.NewClient(cfg.APIBaseURL(), cfg.APIKey, cfg.UpstreamTimeout)

	// Test upstream connection
	info, err := rpcClient.GetInfo(ctx)
	if err != nil {
		if serveStrict {
			return fmt.Errorf("failed to reach hosted API: %w", err)
		}
		logger.Warn("hosted API unreachable at startup", zap.Error(err))
	} else {
		logger.Info("connected to hosted API", zap.Uint64("stacks_tip", info.StacksTipHeight))
	}

	contractService := contract.NewService(rpcClient, cfg.Network, cfg.ContractAddress, cfg.ContractName, logger, m)
	fetcher, err := raffle.NewFetcher(contractService, raffle.Options{
		Interval: cfg.RefreshInterval,
		Logger:   logger,
		Metrics:  m,
	})
	if err != nil {
		return err
	}
	stream, err := api.NewStream(fetcher.Bus(), fetcher, cfg.ContractAddress, logger)
	if err != nil {
		return fmt.Errorf("failed to subscribe snapshot stream: %w", err)
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(rpcClient, contractService, fetcher, cfg, logger)
	router := api.SetupRouter(handler, stream, m, logger)

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           api.WithCORS(router, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go fetcher.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
