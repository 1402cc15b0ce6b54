// Command indexer runs the chainweb indexing pipeline: backfill, ranged
// backfill, and live-tail, plus an ops-only status server. Command layout
// follows the project's established CLI shape: globals & middleware,
// controllers, CLI definitions, then a consolidated route export.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"chainweb-indexer/pkg/chainwebclient"
	"chainweb-indexer/pkg/config"
	"chainweb-indexer/pkg/httpserver"
	"chainweb-indexer/pkg/indexer"
	"chainweb-indexer/pkg/store/memstore"
)

// 1. Globals & middleware

var (
	log     = logrus.New()
	cfg     config.Config
	reporter *httpserver.Reporter
)

func indexerBail(err error) {
	log.Fatalf("indexer: %v", err)
}

func resolveStringFlag(cmd *cobra.Command, name, envKey, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return fallback
}

func persistentPreRun(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	env := resolveStringFlag(cmd, "env", "CHAINWEB_INDEXER_ENV", "")
	loaded, err := config.Load(env)
	if err != nil {
		indexerBail(err)
	}
	cfg = *loaded

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.JSONFormatter{})

	reporter = httpserver.NewReporter(time.Now())
}

// 2. Controllers

func buildIndexer() *indexer.Indexer {
	httpClient := &http.Client{Timeout: cfg.Node.Timeout}
	client := chainwebclient.NewHTTPClient(cfg.Node.BaseURL, cfg.Node.NetworkVersion, httpClient, log)
	st := memstore.New()
	indexerCfg := indexer.Config{
		ChainConcurrency: cfg.Concurrency.Chains,
		PollConcurrency:  cfg.Concurrency.Polls,
	}
	return indexer.New(client, st, indexerCfg, log)
}

func startStatusServer(ctx context.Context) {
	handler := httpserver.New(reporter, log)
	srv := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: handler}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("status server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ix := buildIndexer()
	startStatusServer(ctx)

	log.Info("starting backfill")
	if err := ix.Backfill(ctx); err != nil {
		return err
	}
	log.Info("backfill complete")
	return nil
}

func runBackfillRange(cmd *cobra.Command, args []string) error {
	var minHeight, maxHeight, chain int64
	if _, err := fmt.Sscanf(args[0], "%d", &minHeight); err != nil {
		return fmt.Errorf("invalid min height %q: %w", args[0], err)
	}
	if _, err := fmt.Sscanf(args[1], "%d", &maxHeight); err != nil {
		return fmt.Errorf("invalid max height %q: %w", args[1], err)
	}
	if _, err := fmt.Sscanf(args[2], "%d", &chain); err != nil {
		return fmt.Errorf("invalid chain %q: %w", args[2], err)
	}
	force, _ := cmd.Flags().GetBool("force")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ix := buildIndexer()
	startStatusServer(ctx)

	log.WithFields(logrus.Fields{"min": minHeight, "max": maxHeight, "chain": chain, "force": force}).Info("starting ranged backfill")
	return ix.BackfillRange(ctx, minHeight, maxHeight, chainwebclient.ChainID(chain), force)
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ix := buildIndexer()
	startStatusServer(ctx)

	log.Info("starting live-tail indexing")
	for {
		err := ix.ListenHeadersStream(ctx)
		reporter.RecordError(err)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.WithError(err).Warn("headers stream ended, reconnecting")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

// 3. CLI definitions (TOP)

var rootCmd = &cobra.Command{
	Use:               "indexer",
	Short:             "Index chainweb blocks, transactions, events, and transfers",
	PersistentPreRun:  persistentPreRun,
}

func init() {
	rootCmd.PersistentFlags().String("env", "", "environment overlay to merge over the default config")
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Index every chain from its stored range to the current cut, and down to genesis",
	RunE:  runBackfill,
}

var backfillRangeCmd = &cobra.Command{
	Use:   "backfill-range <min-height> <max-height> <chain>",
	Short: "Index one chain's [min-height, max-height] range",
	Args:  cobra.ExactArgs(3),
	RunE:  runBackfillRange,
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the node's live header stream, indexing each block as it arrives",
	RunE:  runTail,
}

func init() {
	backfillRangeCmd.Flags().Bool("force", false, "delete and rebuild any block already stored in range")
}

// 4. Consolidated route export (BOTTOM)

func main() {
	rootCmd.AddCommand(backfillCmd, backfillRangeCmd, tailCmd)
	if err := rootCmd.Execute(); err != nil {
		indexerBail(err)
	}
}
