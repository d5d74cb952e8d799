// Command logtree aggregates structured log streams. It reads JSON log
// records from standard input or a TCP socket, reconstructs per-producer
// sessions and routes them to the configured sinks: the terminal tree
// renderer, a plain line writer, and/or a PostgreSQL database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/TheEntropyCollective/logtree/pkg/config"
	"github.com/TheEntropyCollective/logtree/pkg/logging"
	"github.com/TheEntropyCollective/logtree/pkg/monitor"
	"github.com/TheEntropyCollective/logtree/pkg/reader"
	"github.com/TheEntropyCollective/logtree/pkg/sink"
	"github.com/TheEntropyCollective/logtree/pkg/sink/postgres"
	"github.com/TheEntropyCollective/logtree/pkg/sink/tree"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configFile  = flag.String("config", "", "Configuration file path")
		inputMode   = flag.String("input", "", "Input mode: stdin or socket (overrides config)")
		listenAddr  = flag.String("listen", "", "TCP listen address for socket mode (overrides config)")
		dbConn      = flag.String("db", "", "PostgreSQL connection string; enables the SQL sink (overrides config)")
		runMigrate  = flag.Bool("migrate", false, "Apply the eagilog schema migrations and exit")
		condensed   = flag.Bool("condensed", false, "Condensed tree output")
		minSeverity = flag.String("min-severity", "", "Drop messages below this severity (overrides config)")
		monitorAddr = flag.String("monitor", "", "HTTP monitor listen address; enables the monitor (overrides config)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logtree: %v\n", err)
		return 2
	}
	if *inputMode != "" {
		cfg.Input.Mode = *inputMode
	}
	if *listenAddr != "" {
		cfg.Input.ListenAddr = *listenAddr
		cfg.Input.Mode = "socket"
	}
	if *dbConn != "" {
		cfg.Postgres.ConnString = *dbConn
		cfg.Postgres.Enabled = true
	}
	if *condensed {
		cfg.Tree.Condensed = true
	}
	if *minSeverity != "" {
		cfg.MinSeverity = *minSeverity
	}
	if *monitorAddr != "" {
		cfg.Monitor.ListenAddr = *monitorAddr
		cfg.Monitor.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "logtree: %v\n", err)
		return 2
	}

	log, err := logging.ConfigureFromSettings(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logtree: %v\n", err)
		return 2
	}

	if *runMigrate {
		pgCfg := postgres.DefaultConfig()
		pgCfg.ConnString = cfg.Postgres.ConnString
		pgCfg.MigrationsPath = cfg.Postgres.MigrationsPath
		if err := postgres.MigrateToLatest(pgCfg); err != nil {
			log.Error("migration failed", map[string]interface{}{"error": err.Error()})
			return 1
		}
		log.Info("eagilog schema is up to date", nil)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var factories []sink.Factory
	var pgFactory *postgres.Factory

	if cfg.Tree.Enabled {
		factories = append(factories, tree.NewFactory(os.Stdout, tree.Options{
			Condensed: cfg.Tree.Condensed,
			BatchSize: cfg.Tree.BatchSize,
		}))
	}
	if cfg.Writer.Enabled {
		out := os.Stdout
		if cfg.Writer.Path != "" {
			file, err := os.OpenFile(cfg.Writer.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				log.Error("cannot open writer sink output", map[string]interface{}{"error": err.Error()})
				return 2
			}
			defer file.Close()
			out = file
		}
		factories = append(factories, sink.NewWriterFactory(out, sink.DefaultTTYBatchSize))
	}
	if cfg.Postgres.Enabled {
		pgCfg := postgres.DefaultConfig()
		pgCfg.ConnString = cfg.Postgres.ConnString
		pgCfg.MigrationsPath = cfg.Postgres.MigrationsPath
		pgCfg.BatchSize = cfg.Postgres.BatchSize
		pgFactory = postgres.NewFactory(ctx, pgCfg, log)
		factories = append(factories, pgFactory)
	}

	var metrics *monitor.Metrics
	var hub *monitor.Hub
	var mon *monitor.Server
	if cfg.Monitor.Enabled {
		metrics, err = monitor.NewMetrics()
		if err != nil {
			log.Error("cannot set up metrics", map[string]interface{}{"error": err.Error()})
			return 2
		}
		hub = monitor.NewHub(log)
		factories = append(factories, hub)
	}

	gate := sink.NewSeverityGate(cfg.MinSeverityLevel())
	var factory sink.Factory = sink.NewFilterFactory(sink.NewMulti(factories...), gate)
	if metrics != nil {
		factory = monitor.Instrument(factory, metrics)
	}

	if *configFile != "" {
		watcher, err := config.NewWatcher(*configFile, log, func(next *config.Config) {
			gate.Set(next.MinSeverityLevel())
			if lvl, err := logging.ParseLogLevel(next.Logging.Level); err == nil {
				log.SetLevel(lvl)
			}
		})
		if err != nil {
			log.Warn("config hot reload unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			defer watcher.Close()
		}
	}

	var srv *reader.Server
	status := func() map[string]interface{} {
		doc := map[string]interface{}{"input": cfg.Input.Mode}
		if pgFactory != nil {
			doc["database_connected"] = pgFactory.Connected()
		}
		if srv != nil {
			doc["listener"] = srv.Stats()
		}
		return doc
	}
	if cfg.Monitor.Enabled {
		mon = monitor.NewServer(metrics, hub, status, log)
		if err := mon.Start(cfg.Monitor.ListenAddr); err != nil {
			log.Error("cannot start monitor", map[string]interface{}{"error": err.Error()})
			return 2
		}
		defer mon.Shutdown(context.Background())
	}

	code := 0
	switch cfg.Input.Mode {
	case "socket":
		locked := sink.NewLocked(factory)
		srv = reader.NewServer(locked, log)
		if err := srv.Listen(cfg.Input.ListenAddr); err != nil {
			log.Error("cannot listen", map[string]interface{}{"error": err.Error()})
			return 1
		}
		if err := srv.Serve(ctx); err != nil {
			log.Error("listener failed", map[string]interface{}{"error": err.Error()})
			code = 1
		}
		factory = locked
	default:
		if !reader.New(os.Stdin, factory, log).Run() {
			code = 1
		}
	}

	if err := factory.Close(); err != nil {
		log.Warn("sink shutdown reported errors", map[string]interface{}{"error": err.Error()})
	}
	return code
}
