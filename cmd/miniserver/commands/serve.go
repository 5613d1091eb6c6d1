package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/miniserver/internal/logger"
	"github.com/marmos91/miniserver/internal/telemetry"
	"github.com/marmos91/miniserver/pkg/auth"
	"github.com/marmos91/miniserver/pkg/config"
	"github.com/marmos91/miniserver/pkg/lifecycle"
	"github.com/marmos91/miniserver/pkg/metrics"
	"github.com/marmos91/miniserver/pkg/metrics/prometheus"
	"github.com/marmos91/miniserver/pkg/server"
	"github.com/marmos91/miniserver/pkg/store"
)

// serveOptions holds the serve flags. They are registered on both the
// root command and serve so that a bare "miniserver" serves too.
type serveOptions struct {
	hostname   string
	port       int
	bind       string
	unixSocket string
	env        string
	logLevel   string
	test       bool
	skip       []string
	revert     bool
	pidFile    string
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Begin serving the app over HTTP",
	Long: `Begin serving the app over HTTP.

Outside production the database is migrated before the listener starts and
the /test routes are mounted. SIGINT and SIGTERM trigger a graceful shutdown.

Examples:
  # Serve on the configured address (default 127.0.0.1:8080)
  miniserver serve

  # Serve on all interfaces, port 9000
  miniserver serve --hostname 0.0.0.0 --port 9000

  # Serve on a unix domain socket
  miniserver serve --unix-socket /run/miniserver.sock

  # Staging, without the test routes
  miniserver serve --env staging --skip test

  # Start over from an empty schema
  miniserver serve --revert`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&serveOpts.hostname, "hostname", "H", "", "Set the hostname the server will run on")
	fs.IntVarP(&serveOpts.port, "port", "p", 0, "Set the port the server will run on")
	fs.StringVarP(&serveOpts.bind, "bind", "b", "", "Set hostname and port together (host:port)")
	fs.StringVar(&serveOpts.unixSocket, "unix-socket", "", "Set the path of the unix domain socket to bind")
	fs.StringVarP(&serveOpts.env, "env", "e", "", "Environment: development, testing, staging or production")
	fs.StringVarP(&serveOpts.logLevel, "log-level", "l", "", "Minimum log level (trace, debug, info, notice, warning, error, critical)")
	fs.BoolVarP(&serveOpts.test, "test", "t", false, "Mount the test routes in any environment")
	fs.StringSliceVarP(&serveOpts.skip, "skip", "s", nil, "Skip default steps: m|migrate, t|test")
	fs.BoolVar(&serveOpts.revert, "revert", false, "Revert all migrations before migrating (not in production)")
	fs.StringVar(&serveOpts.pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/miniserver/miniserver.pid)")
}

// skipSet records which default serve steps were turned off.
type skipSet struct {
	migrate bool
	test    bool
}

func parseSkip(values []string) (skipSet, error) {
	var s skipSet
	for _, v := range values {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "m", "migrate":
			s.migrate = true
		case "t", "test":
			s.test = true
		case "":
		default:
			return skipSet{}, fmt.Errorf("invalid --skip value %q (valid: m, migrate, t, test)", v)
		}
	}
	return s, nil
}

// migrationPlan is what serve does to the schema before listening.
type migrationPlan struct {
	Revert bool
	Up     bool
}

// planMigrations applies the environment policy. Production never touches
// the schema; use "miniserver migrate" there. Staging always migrates.
func planMigrations(env config.Environment, revert bool, skip skipSet) migrationPlan {
	if env.IsProduction() {
		return migrationPlan{}
	}
	return migrationPlan{
		Revert: revert,
		Up:     revert || !skip.migrate || env == config.EnvStaging,
	}
}

// mountTestRoutes reports whether the /test routes are served.
func mountTestRoutes(env config.Environment, force bool, skip skipSet) bool {
	if force {
		return true
	}
	return !env.IsProduction() && !skip.test
}

// bindOptions turns the flags the user actually set into bind options. The
// configured unix socket applies only when no bind flag was given.
func bindOptions(cmd *cobra.Command, cfg *config.Config) lifecycle.BindOptions {
	var opts lifecycle.BindOptions
	flags := cmd.Flags()

	if flags.Changed("hostname") {
		h := serveOpts.hostname
		opts.Hostname = &h
	}
	if flags.Changed("port") {
		p := serveOpts.port
		opts.Port = &p
	}
	if flags.Changed("bind") {
		b := serveOpts.bind
		opts.Bind = &b
	}
	if flags.Changed("unix-socket") {
		s := serveOpts.unixSocket
		opts.UnixSocket = &s
	}

	if opts == (lifecycle.BindOptions{}) && cfg.Server.UnixSocket != "" {
		s := cfg.Server.UnixSocket
		opts.UnixSocket = &s
	}
	return opts
}

// resolveBindOptions collects the bind options and checks they resolve to
// a single listen address, so a bad combination fails before migrations
// or any other side effect.
func resolveBindOptions(cmd *cobra.Command, cfg *config.Config) (lifecycle.BindOptions, error) {
	opts := bindOptions(cmd, cfg)
	if _, err := lifecycle.ResolveBindTarget(opts); err != nil {
		return lifecycle.BindOptions{}, fmt.Errorf("invalid bind options: %w", err)
	}
	return opts, nil
}

// applyServeOverrides applies --env and --log-level on top of the loaded
// configuration and validates the result again.
func applyServeOverrides(cfg *config.Config) error {
	if serveOpts.env != "" {
		env, err := config.ParseEnvironment(serveOpts.env)
		if err != nil {
			return err
		}
		cfg.Environment = env
	}
	if serveOpts.logLevel != "" {
		level, ok := logger.ParseLevel(serveOpts.logLevel)
		if !ok {
			return fmt.Errorf("invalid --log-level %q", serveOpts.logLevel)
		}
		cfg.Logging.Level = level.String()
	}
	return config.Validate(cfg)
}

// resolveSecret returns the configured token secret. Outside production an
// empty secret is replaced by a random one that lives as long as the
// process; tokens issued with it stop working after a restart.
func resolveSecret(cfg *config.Config) (secret string, ephemeral bool, err error) {
	if cfg.Auth.Secret != "" {
		return cfg.Auth.Secret, false, nil
	}
	if cfg.Environment.IsProduction() {
		return "", false, errors.New("auth.secret is required in production")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", false, fmt.Errorf("failed to generate token secret: %w", err)
	}
	return hex.EncodeToString(buf), true, nil
}

func serverURL(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if addr.Network() == "unix" {
		return "http+unix://" + addr.String()
	}
	return "http://" + addr.String()
}

func runServe(cmd *cobra.Command, args []string) error {
	bootStart := time.Now()

	cfg, v, err := config.LoadViper(GetConfigFile())
	if err != nil {
		return err
	}
	if err := applyServeOverrides(cfg); err != nil {
		return err
	}
	skip, err := parseSkip(serveOpts.skip)
	if err != nil {
		return err
	}
	bind, err := resolveBindOptions(cmd, cfg)
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "miniserver",
		ServiceVersion: Version,
		Environment:    cfg.Environment.String(),
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("Telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "miniserver",
		ServiceVersion: Version,
		Environment:    cfg.Environment.String(),
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Environment", "env", cfg.Environment.String())
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	var (
		lifecycleMetrics *prometheus.LifecycleMetrics
		httpMetrics      *prometheus.HTTPMetrics
	)
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		lifecycleMetrics = prometheus.NewLifecycleMetrics()
		httpMetrics = prometheus.NewHTTPMetrics()
		logger.Info("Metrics enabled", "path", cfg.Metrics.Path)
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Database close error", logger.Err(err))
		}
	}()

	if err := runMigrationPlan(ctx, st, planMigrations(cfg.Environment, serveOpts.revert, skip), cfg.Environment); err != nil {
		return err
	}

	secret, ephemeral, err := resolveSecret(cfg)
	if err != nil {
		return err
	}
	if ephemeral {
		logger.Warn("auth.secret not set; using an ephemeral token secret")
	}
	tokens, err := auth.NewTokenService(auth.Config{
		Secret:     secret,
		Issuer:     cfg.Auth.Issuer,
		DefaultTTL: cfg.Auth.TokenTTL,
	}, st)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	srv := server.New(cfg.Server.HTTP)
	opts := []lifecycle.Option{
		lifecycle.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		lifecycle.WithDefaultAddress(cfg.Server.Hostname, cfg.Server.Port),
	}
	if lifecycleMetrics != nil {
		opts = append(opts, lifecycle.WithMetrics(lifecycleMetrics))
	}
	coord := lifecycle.New(srv, opts...)

	testRoutes := mountTestRoutes(cfg.Environment, serveOpts.test, skip)
	srv.SetHandler(server.NewRouter(server.RouterConfig{
		Lifecycle:      coord,
		Store:          st,
		Tokens:         tokens,
		Metrics:        httpMetrics,
		MetricsPath:    cfg.Metrics.Path,
		TestRoutes:     testRoutes,
		RequestTimeout: cfg.Server.HTTP.RequestTimeout,
	}))
	if testRoutes {
		logger.Info("Test routes mounted", "prefix", "/test")
	}

	if err := coord.Start(ctx, bind); err != nil {
		if shutdownErr := coord.Shutdown(); shutdownErr != nil {
			logger.Error("Cleanup after failed start", logger.Err(shutdownErr))
		}
		_ = coord.Release()
		return fmt.Errorf("failed to start server: %w", err)
	}

	pidPath := serveOpts.pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}
	if err := writePidFile(pidPath); err != nil {
		logger.Warn("PID file not written", "path", pidPath, logger.Err(err))
	} else {
		defer func() { _ = os.Remove(pidPath) }()
	}

	if config.Watch(v, func(next *config.Config, err error) {
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", logger.Err(err))
			return
		}
		if serveOpts.logLevel == "" && next.Logging.Level != cfg.Logging.Level {
			logger.SetLevel(next.Logging.Level)
			logger.Info("Log level changed", "level", next.Logging.Level)
		}
	}) {
		logger.Debug("Watching configuration file", "path", v.ConfigFileUsed())
	}

	logger.Info("Server starting on "+serverURL(coord.Addr()), logger.Phase(coord.Phase().String()))
	logger.Info("System boot took", logger.Elapsed(bootStart))

	if err := coord.AwaitCompletion(context.Background()); err != nil {
		logger.Error("Waiting for shutdown", logger.Err(err))
	}

	shutdownErr := coord.Shutdown()
	if shutdownErr != nil {
		logger.Error("Server shutdown error", logger.Err(shutdownErr))
	}
	if err := coord.Release(); err != nil {
		logger.Error("Server release error", logger.Err(err))
	}

	logger.Info("Server stopped")
	return shutdownErr
}

// runMigrationPlan reverts and applies migrations according to plan, then
// purges expired tokens when the schema is known to be current.
func runMigrationPlan(ctx context.Context, st *store.GORMStore, plan migrationPlan, env config.Environment) error {
	m := st.Migrator()

	if plan.Revert {
		logger.Info("Reverting database", "env", env.String(), "type", string(st.Type()))
		if err := m.Down(ctx); err != nil {
			return fmt.Errorf("failed to revert migrations: %w", err)
		}
	}

	if !plan.Up {
		return nil
	}

	logger.Info("Migrating database", "env", env.String(), "type", string(st.Type()))
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	purged, err := st.DeleteExpiredTokens(ctx, time.Now())
	if err != nil {
		logger.Warn("Failed to purge expired tokens", logger.Err(err))
	} else if purged > 0 {
		logger.Info("Purged expired tokens", "count", purged)
	}
	return nil
}
