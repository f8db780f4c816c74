// Command prefetch-demo runs a memoized prefetch pass over a database table.
// It iterates the configured root table in chunks, attaches the configured
// relations to every record, and reports per-relation cache statistics at the
// end of the run.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	_ "github.com/go-sql-driver/mysql"

	prefetch "github.com/xelixdev/memoized-prefetch"
	"github.com/xelixdev/memoized-prefetch/internal/config"
	"github.com/xelixdev/memoized-prefetch/internal/logging"
	"github.com/xelixdev/memoized-prefetch/metrics"
	"github.com/xelixdev/memoized-prefetch/sqlsource"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("prefetch-demo error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	pflag.Bool("version", false, "Print version and exit")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if showVersion, _ := pflag.CommandLine.GetBool("version"); showVersion {
		fmt.Printf("prefetch-demo %s (%s)\n", Version, Commit)
		return nil
	}

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger = logger.With(slog.String("run_id", uuid.NewString()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("mysql", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("connected to database",
		slog.String("host", cfg.Database.Host),
		slog.Int("port", cfg.Database.Port),
		slog.String("database", cfg.Database.Database),
	)

	specs, err := buildSpecs(db, cfg.Relations)
	if err != nil {
		return err
	}

	engine, err := prefetch.New(ctx, specs, prefetch.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to build prefetch engine: %w", err)
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(metrics.NewCollector(engine))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", slog.String("error", err.Error()))
			}
		}()
		logger.Info("serving metrics", slog.String("addr", cfg.Metrics.Addr))
	}

	start := time.Now()
	chunks, records, runErr := processAll(ctx, logger, engine, db, cfg)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		cancel()
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("run complete",
		slog.Int("chunks", chunks),
		slog.Int("records", records),
		slog.Duration("elapsed", time.Since(start)),
	)
	for _, st := range engine.Stats() {
		logger.Info("relation stats",
			slog.String("relation", st.Name),
			slog.Int64("cache_hits", st.CacheHits),
			slog.Int64("cache_misses", st.CacheMisses),
			slog.Int64("keys_fetched", st.KeysFetched),
			slog.Int64("entities_fetched", st.EntitiesFetched),
			slog.Int64("evictions", st.Evictions),
			slog.Int64("cache_len", st.CacheLen),
		)
	}
	return nil
}

// processAll drives the chunk loop until the table is exhausted, the chunk
// limit is reached, or ctx is cancelled.
func processAll(ctx context.Context, logger *slog.Logger, engine *prefetch.Engine, db *sql.DB, cfg *config.Config) (chunks, records int, err error) {
	reader, err := sqlsource.NewChunkReader(db, sqlsource.ChunkConfig{
		Table:     cfg.Run.Table,
		KeyColumn: cfg.Run.KeyColumn,
		Columns:   cfg.Run.Columns,
		Size:      cfg.Run.ChunkSize,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to build chunk reader: %w", err)
	}

	for {
		if cfg.Run.MaxChunks > 0 && chunks >= cfg.Run.MaxChunks {
			logger.Info("chunk limit reached", slog.Int("max_chunks", cfg.Run.MaxChunks))
			return chunks, records, nil
		}

		chunk, err := reader.Next(ctx)
		if err != nil {
			return chunks, records, fmt.Errorf("failed to read chunk %d: %w", chunks+1, err)
		}
		if len(chunk) == 0 {
			return chunks, records, nil
		}

		if err := engine.ProcessChunk(ctx, chunk); err != nil {
			return chunks, records, fmt.Errorf("failed to process chunk %d: %w", chunks+1, err)
		}
		chunks++
		records += len(chunk)
		logger.Debug("processed chunk", slog.Int("chunk", chunks), slog.Int("records", len(chunk)))
	}
}

// buildSpecs turns relation configs into engine specs backed by sqlsource
// tables.
func buildSpecs(db *sql.DB, relations []config.RelationConfig) ([]prefetch.RelationSpec, error) {
	specs := make([]prefetch.RelationSpec, 0, len(relations))
	for _, rel := range relations {
		source, err := sqlsource.NewTable(db, sqlsource.TableConfig{
			Name:      rel.Name,
			Table:     rel.Table,
			KeyColumn: rel.KeyColumn,
			Columns:   rel.Columns,
		})
		if err != nil {
			return nil, fmt.Errorf("relation %q: %w", rel.Name, err)
		}

		spec := prefetch.RelationSpec{
			Name:          rel.Name,
			Paths:         rel.Paths,
			Source:        source,
			Eager:         rel.Eager,
			CacheCapacity: rel.CacheCapacity,
		}
		if rel.Multivalued {
			associations, err := sqlsource.NewAssociationTable(db, sqlsource.AssociationConfig{
				Table: rel.AssociationTable,
			})
			if err != nil {
				return nil, fmt.Errorf("relation %q: %w", rel.Name, err)
			}
			spec.Multivalued = true
			spec.Associations = associations
			spec.AssociationSourceField = rel.AssociationSourceField
			spec.AssociationTargetField = rel.AssociationTargetField
			spec.IdentityField = rel.IdentityField
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
