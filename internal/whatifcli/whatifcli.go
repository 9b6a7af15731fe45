// Package whatifcli is the entrypoint for the whatif command.
package whatifcli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/alloy/syntax/alloytypes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/grafana/whatif/internal/build"
	"github.com/grafana/whatif/internal/oracle"
	"github.com/grafana/whatif/internal/whatif"
)

// Run executes the whatif command and exits the process on failure.
func Run() {
	if err := Command().Execute(); err != nil {
		os.Exit(1)
	}
}

func Command() *cobra.Command {
	return newCommand(&environment{
		stdout: os.Stdout,
		stderr: os.Stderr,
		openDB: oracle.Open,
	})
}

// environment is what the commands touch outside the process.
type environment struct {
	stdout io.Writer
	stderr io.Writer
	openDB func(dsn string) (*sql.DB, error)
}

func newCommand(env *environment) *cobra.Command {
	g := &globalFlags{logLevel: level.InfoValue().String()}

	cmd := &cobra.Command{
		Use:     "whatif [global options] <subcommand>",
		Short:   "Explore how PostgreSQL plan costs change under operator overrides",
		Version: build.Print("whatif"),

		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}
	cmd.SetVersionTemplate("{{ .Version }}\n")
	cmd.SetOut(env.stdout)
	cmd.SetErr(env.stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configFile, "config.file", "", "Alloy-syntax configuration file with connection settings.")
	pf.StringVar(&g.dsn, "dsn", "", "postgres:// URL of the server to plan on. Overrides the configuration file.")
	pf.StringVar(&g.output, "output", "", "Output format: text, json or yaml.")
	pf.DurationVar(&g.timeout, "timeout", 0, "Deadline for the whole run, 0 uses the configured timeout.")
	pf.StringVar(&g.metricsFile, "metrics.file", "", "Write Prometheus metrics of the run to this file in the text exposition format.")
	pf.StringVar(&g.logLevel, "log.level", g.logLevel, "Minimum log level: debug, info, warn or error.")

	cmd.AddCommand(
		planCommand(env, g),
		compareCommand(env, g),
	)
	return cmd
}

type globalFlags struct {
	configFile  string
	dsn         string
	output      string
	timeout     time.Duration
	metricsFile string
	logLevel    string
}

// session is one oracle session with the engine running on it.
type session struct {
	cfg      Config
	format   outputFormat
	logger   log.Logger
	registry *prometheus.Registry
	db       *sql.DB
	engine   *whatif.Engine

	metricsFile string
}

// openSession resolves configuration and flags and connects.
func (g *globalFlags) openSession(env *environment) (*session, error) {
	lvl, err := level.Parse(g.logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log.level: %w", err)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(env.stderr))
	logger = level.NewFilter(logger, level.Allow(lvl))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	cfg, err := LoadConfig(g.configFile)
	if err != nil {
		return nil, err
	}
	if g.dsn != "" {
		cfg.DataSourceName = alloytypes.Secret(g.dsn)
	}
	if g.output != "" {
		cfg.Output = g.output
	}
	if g.timeout > 0 {
		cfg.Timeout = g.timeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	format, err := parseOutputFormat(cfg.Output)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN()
	if instance, err := oracle.InstanceKey(dsn); err == nil {
		logger = log.With(logger, "instance", instance)
	}

	db, err := env.openDB(dsn)
	if err != nil {
		return nil, err
	}
	// The engine is one oracle session.
	db.SetMaxOpenConns(1)

	registry := prometheus.NewRegistry()
	registry.MustRegister(build.NewCollector("whatif"))

	o, err := oracle.NewPostgres(oracle.PostgresArguments{
		DB:            db,
		EngineVersion: cfg.EngineVersion,
		Logger:        logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	engine, err := whatif.New(whatif.Arguments{
		Oracle:   o,
		Logger:   logger,
		Registry: registry,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &session{
		cfg:         cfg,
		format:      format,
		logger:      logger,
		registry:    registry,
		db:          db,
		engine:      engine,
		metricsFile: g.metricsFile,
	}, nil
}

func (s *session) context(parent context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(parent, s.cfg.Timeout)
	}
	return context.WithCancel(parent)
}

// Close writes the metrics file, if requested, and disconnects.
func (s *session) Close() error {
	if err := s.db.Close(); err != nil {
		level.Debug(s.logger).Log("msg", "error closing database connection", "err", err)
	}
	if s.metricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(s.metricsFile, s.registry); err != nil {
		return fmt.Errorf("writing metrics file: %w", err)
	}
	return nil
}
