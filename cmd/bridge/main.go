// meter-bridge
// Main entry point for the Bridge service
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MatusOllah/slogcolor"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"github.com/iotaledger/meter-bridge/internal/buffered"
	"github.com/iotaledger/meter-bridge/internal/channel"
	"github.com/iotaledger/meter-bridge/internal/config"
	"github.com/iotaledger/meter-bridge/internal/dispatch"
	"github.com/iotaledger/meter-bridge/internal/health"
	"github.com/iotaledger/meter-bridge/internal/indexer"
	"github.com/iotaledger/meter-bridge/internal/storage"
	"github.com/iotaledger/meter-bridge/internal/transport"
)

// shutdownGrace bounds how long the HTTP server's graceful shutdown waits
// for in-flight requests to finish.
const shutdownGrace = 30 * time.Second

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:   "bridge",
		Short: "meter-bridge Bridge service",
		Long:  "Translates LoRaWAN sensor traffic into the ledger-facing channel protocol.",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the Bridge service",
		RunE:  runBridge,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("meter-bridge v0.1.0")
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/meter-bridge/bridge.yaml", "Configuration file path")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	opts := slogcolor.DefaultOptions
	switch level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}
	log := slog.New(slogcolor.NewHandler(os.Stderr, opts))
	slog.SetDefault(log)
	return log
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging.Level)

	if cfg.Node.URL == "" {
		return fmt.Errorf("node.url is required")
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	strategy, err := cfg.ErrorHandlingStrategy()
	if err != nil {
		return fmt.Errorf("invalid error_handling.strategy: %w", err)
	}

	var s3Client health.S3HeadBucketer
	if cfg.ObjectStore.Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return fmt.Errorf("failed to load AWS config for object-store probe: %w", err)
		}
		s3Client = s3.NewFromConfig(awsCfg)
	}
	healthChecker := health.New(health.Options{
		NodeURL:      cfg.Node.URL,
		IndexerURL:   cfg.Indexer.URL,
		ObjectBucket: cfg.ObjectStore.Bucket,
	}, s3Client)

	// channelFactory is the one place a real deployment wires the
	// channel-cryptography library against the LedgerChannel seam; that
	// library is an out-of-scope external collaborator here, so the fake
	// in-memory implementation stands in until a production build supplies
	// its own channel.Factory.
	channelFactory := channel.NewFakeFactory()

	b := dispatch.New(dispatch.Config{
		Nodes:          storage.NewLoraWanNodeStore(db),
		Users:          storage.NewUserStore(db),
		Pending:        storage.NewPendingRequestStore(db),
		Buffered:       storage.NewBufferedMessageStore(db),
		ChannelFactory: channelFactory,
		Transport: transport.NewPool(func() (transport.LedgerClient, error) {
			return transport.NewHTTPClient(cfg.Node.URL), nil
		}, log),
		Health:         healthChecker,
		Strategy:       strategy,
		Log:            log,
	})

	retryLoop, err := buffered.New(b.Buffered, b, cfg.BufferedInterval(buffered.DefaultInterval), log)
	if err != nil {
		return fmt.Errorf("failed to build buffered-message retry loop: %w", err)
	}
	if err := retryLoop.Start(); err != nil {
		return fmt.Errorf("failed to start buffered-message retry loop: %w", err)
	}
	defer retryLoop.Shutdown()

	cachedMessages := storage.NewCachedMessageStore(db)
	syncLoop, err := indexer.New(b.Users, b, cachedMessages,
		cfg.IndexingInterval(indexer.DefaultInterval), cfg.IndexingBudget(indexer.DefaultBudget), log)
	if err != nil {
		return fmt.Errorf("failed to build message indexer: %w", err)
	}
	if err := syncLoop.Start(); err != nil {
		return fmt.Errorf("failed to start message indexer: %w", err)
	}
	defer syncLoop.Shutdown()

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	srv := &http.Server{Addr: listenAddr, Handler: b.Router()}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("bridge: listening", "addr", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("bridge: received signal, shutting down", "signal", sig)
	case err := <-serveErr:
		return fmt.Errorf("listener failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("bridge: graceful shutdown failed", "error", err)
	}

	log.Info("bridge: shutdown complete")
	return nil
}
