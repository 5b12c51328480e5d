// The iscc-hub binary runs the declaration API: validator, sequencer,
// projection, and receipt builder behind spec.md §4.G's POST/DELETE
// surface. Grounded on cmd/boulder-wfe2/main.go's config-file ->
// component-wiring -> ListenAndServe -> CatchSignals shutdown shape,
// trimmed to this hub's single HTTP listener (no gRPC backends, no TLS
// chain loading - the hub has no ACME-style AIA issuer concept).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/iscc/iscc-hub/api"
	"github.com/iscc/iscc-hub/config"
	"github.com/iscc/iscc-hub/log"
	"github.com/iscc/iscc-hub/metrics"
	"github.com/iscc/iscc-hub/metrics/measured_http"
	"github.com/iscc/iscc-hub/receipt"
	"github.com/iscc/iscc-hub/sequencer"
	"github.com/iscc/iscc-hub/storage"
)

func failOnError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", msg, err)
		os.Exit(1)
	}
}

func main() {
	configFile := flag.String("config", "", "File path to the hub's JSON configuration file")
	flag.Parse()
	if *configFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	failOnError(err, "loading configuration")

	logger := log.New("iscc-hub")
	logger.Infof("iscc-hub starting, hub id %d, realm %d, domain %s", cfg.HubID, cfg.Realm, cfg.Domain)

	driver := "sqlite3"
	if isMySQLDSN(cfg.DBPath) {
		driver = "mysql"
	}
	database, err := storage.Open(driver, cfg.DBPath, logger)
	failOnError(err, "opening storage")
	defer database.Close()

	clk := clock.New()

	stats := metrics.NewHubScope(prometheus.DefaultRegisterer)
	if cfg.DebugAddr != "" {
		go serveMetrics(logger, cfg.DebugAddr)
	}

	seq := sequencer.New(
		database,
		cfg.HubID,
		clk,
		logger,
		cfg.SequencerMaxRetries,
		cfg.SequencerRetryBase.Duration,
		cfg.SequencerRetryCap.Duration,
	)
	seq.SetStats(stats)

	builder, err := receipt.NewBuilder(cfg.SecKey, cfg.Domain, cfg.Realm, clk)
	failOnError(err, "constructing receipt builder")

	handler := api.NewHandler(api.Config{
		HubID:           cfg.HubID,
		Realm:           cfg.Realm,
		VerifySignature: cfg.VerifySignature,
		VerifyHubID:     cfg.VerifyHubID,
		VerifyTimestamp: cfg.VerifyTimestamp,
		RequestTimeout:  cfg.RequestTimeout.Duration,
	}, database, seq, builder, logger, clk)
	handler.SetStats(stats)

	var httpHandler http.Handler = measured_http.New(handler.Mux(), clk)
	if cfg.EnableTracing {
		shutdown, err := setupTracing(context.Background())
		failOnError(err, "setting up tracing")
		defer shutdown(context.Background())
		httpHandler = otelhttp.NewHandler(httpHandler, "iscc-hub")
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: httpHandler,
	}

	go func() {
		logger.Infof("listening on %s", cfg.ListenAddress)
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logger.AuditErrf("HTTP server exited: %v", err)
			os.Exit(1)
		}
	}()

	catchSignals(logger, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
}

// isMySQLDSN distinguishes a MySQL DSN (user:pass@tcp(host:port)/db) from a
// SQLite file path or ":memory:"/"file:" DSN, the same two-driver split
// storage.dialectMap supports.
func isMySQLDSN(dsn string) bool {
	for i := 0; i < len(dsn); i++ {
		if dsn[i] == '@' {
			return true
		}
	}
	return false
}

// setupTracing wires an OTLP/gRPC span exporter into the global
// TracerProvider, the standard OTel Go bootstrap (exporter -> batch
// processor -> provider), configured via the OTEL_EXPORTER_OTLP_* env
// vars rather than hub-specific config fields.
func setupTracing(ctx context.Context) (func(context.Context) error, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// serveMetrics exposes the default Prometheus registry on addr, grounded
// on cmd/shell.go's DebugAddr (a separate, unauthenticated listener
// reserved for scraping, never the public API port).
func serveMetrics(logger log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Infof("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Errf("metrics listener exited: %v", err)
	}
}

// catchSignals blocks until SIGTERM, SIGINT, or SIGHUP, runs callback, and
// exits. Grounded on cmd/shell.go's CatchSignals.
func catchSignals(logger log.Logger, callback func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	sig := <-sigChan
	logger.Infof("caught %s, shutting down", sig)

	if callback != nil {
		callback()
	}

	logger.Infof("exiting")
	os.Exit(0)
}
