package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/hrygo/nfintake/internal/profile"
	"github.com/hrygo/nfintake/plugin/ai"
	"github.com/hrygo/nfintake/plugin/ai/cache"
	"github.com/hrygo/nfintake/server"
	v1 "github.com/hrygo/nfintake/server/router/api/v1"
	"github.com/hrygo/nfintake/server/runner/embedding"
	"github.com/hrygo/nfintake/server/service/invoice"
	"github.com/hrygo/nfintake/server/service/semantic"
	"github.com/hrygo/nfintake/store"
	"github.com/hrygo/nfintake/store/db"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "nfintake",
	Short:   "Invoice intake service: extract, verify and record payables, then query them in plain language",
	Version: version,
	RunE:    runServe,
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)
	viper.SetDefault("embedding-strategy", "sequential")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite or postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name")
	rootCmd.PersistentFlags().String("cors-origin", "", "browser origin allowed to call the API")
	rootCmd.PersistentFlags().String("embedding-strategy", "sequential", "backfill strategy: sequential, batch or rate-limited")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "cors-origin", "embedding-strategy"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("nfintake")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:       viper.GetString("mode"),
		Addr:       viper.GetString("addr"),
		Port:       viper.GetInt("port"),
		Data:       viper.GetString("data"),
		Driver:     viper.GetString("driver"),
		DSN:        viper.GetString("dsn"),
		CORSOrigin: viper.GetString("cors-origin"),
		Version:    version,
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	p, err := loadProfile()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !p.IsDev() {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		return err
	}
	storeInstance := store.New(dbDriver, p)
	defer storeInstance.Close()
	if err := storeInstance.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	invoiceService := invoice.NewService(storeInstance)
	extractor, queryService, runners := newAIServices(ctx, p, storeInstance)
	api := v1.NewAPIV1Service(p, invoiceService, extractor, queryService)
	s := server.NewServer(p, api, runners...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
		s.Shutdown(ctx)
		return nil
	case err := <-errCh:
		return err
	}
}

// newAIServices builds the AI-backed components. Each one that cannot be
// configured is left nil and its endpoints answer with a provider error.
func newAIServices(ctx context.Context, p *profile.Profile, st *store.Store) (ai.Extractor, v1.QueryService, []server.BackgroundRunner) {
	cfg := ai.NewConfigFromProfile(p)
	if !cfg.Enabled {
		slog.Info("AI features disabled")
		return nil, nil, nil
	}

	var extractor ai.Extractor
	if cfg.HasExtraction() {
		e, err := ai.NewExtractor(ctx, &cfg.Extraction)
		if err != nil {
			slog.Warn("invoice extraction unavailable", "error", err)
		} else {
			extractor = e
		}
	}

	if err := cfg.Validate(); err != nil {
		slog.Warn("semantic search unavailable", "error", err)
		return extractor, nil, nil
	}

	embedder, err := ai.NewEmbeddingService(ctx, &cfg.Embedding)
	if err != nil {
		slog.Warn("semantic search unavailable", "error", err)
		return extractor, nil, nil
	}
	embedder = cache.NewEmbeddingCache(embedder, 1024, 24*time.Hour)

	var llm ai.LLMService
	if l, err := ai.NewLLMService(ctx, &cfg.LLM); err != nil {
		slog.Warn("answers will summarize facts without a language model", "error", err)
	} else {
		llm = l
	}

	indexer := semantic.NewIndexer(st, embedder, semantic.WithStrategy(backfillStrategy(viper.GetString("embedding-strategy"))))
	queryService := semantic.NewQueryService(indexer, st, embedder, llm)
	return extractor, queryService, []server.BackgroundRunner{embedding.NewRunner(indexer)}
}

func backfillStrategy(name string) semantic.BackfillStrategy {
	switch name {
	case "batch":
		return semantic.BatchStrategy{Size: 16}
	case "rate-limited":
		return semantic.RateLimitedStrategy{Limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1), Concurrency: 4}
	default:
		return semantic.SequentialStrategy{}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
