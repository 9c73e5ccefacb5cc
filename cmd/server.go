// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/workspacesio/workspaces/pkg/api"
	"github.com/workspacesio/workspaces/pkg/clientcache"
	"github.com/workspacesio/workspaces/pkg/db"
	"github.com/workspacesio/workspaces/pkg/db/memory"
	"github.com/workspacesio/workspaces/pkg/db/postgres"
	"github.com/workspacesio/workspaces/pkg/debug"
	"github.com/workspacesio/workspaces/pkg/env"
	"github.com/workspacesio/workspaces/pkg/issuer"
	"github.com/workspacesio/workspaces/pkg/logger"
	"github.com/workspacesio/workspaces/pkg/registry"
	"github.com/workspacesio/workspaces/pkg/token"
)

// ServerOpts holds configuration for the workspaces server.
type ServerOpts struct {
	IP        string
	HTTPPort  int
	DebugPort int

	DBDriver       string
	DBDSN          string
	DBMaxOpenConns int
	DBMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DefaultTTL         time.Duration
	UpstreamTimeout    time.Duration
	MaxSessionDuration time.Duration

	RateLimitEnabled         bool
	RateLimitRPS             int
	RateLimitBurstMultiplier int
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the workspaces API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := loadServerOpts(cmd)
		return runServer(cmd.Context(), opts)
	},
}

func init() {
	serverCmd.Flags().String("ip", "0.0.0.0", "Address to bind")
	serverCmd.Flags().Int("http_port", 8080, "API port")
	serverCmd.Flags().Int("debug_port", 8081, "Debug/metrics port")
	serverCmd.Flags().String("db_driver", "memory", "Database driver (memory, postgres)")
	serverCmd.Flags().String("db_dsn", "", "Database DSN")
	serverCmd.Flags().Int("db_max_open_conns", 25, "Max open database connections")
	serverCmd.Flags().Int("db_max_idle_conns", 5, "Max idle database connections")
	serverCmd.Flags().String("redis_addr", "", "Redis address for the token reuse cache (optional)")
	serverCmd.Flags().String("redis_password", "", "Redis password")
	serverCmd.Flags().Int("redis_db", 0, "Redis database number")
	serverCmd.Flags().Duration("default_ttl", 1*time.Hour, "Default credential lifetime")
	serverCmd.Flags().Duration("upstream_timeout", 5*time.Second, "Timeout for node issuance calls")
	serverCmd.Flags().Duration("max_session_duration", 12*time.Hour, "Ceiling on credential lifetimes")
	serverCmd.Flags().Bool("rate_limit_enabled", true, "Enable token issuance rate limiting")
	serverCmd.Flags().Int("rate_limit_rps", 10, "Token issuance requests per second per user")
	serverCmd.Flags().Int("rate_limit_burst_multiplier", 2, "Burst multiplier for rate limiting")

	rootCmd.AddCommand(serverCmd)
}

func loadServerOpts(cmd *cobra.Command) *ServerOpts {
	f := NewFlagLoader(cmd)
	return &ServerOpts{
		IP:                 f.String("ip"),
		HTTPPort:           f.Int("http_port"),
		DebugPort:          f.Int("debug_port"),
		DBDriver:           f.String("db_driver"),
		DBDSN:              f.String("db_dsn"),
		DBMaxOpenConns:     f.Int("db_max_open_conns"),
		DBMaxIdleConns:     f.Int("db_max_idle_conns"),
		RedisAddr:          f.String("redis_addr"),
		RedisPassword:      f.String("redis_password"),
		RedisDB:            f.Int("redis_db"),
		DefaultTTL:         f.Duration("default_ttl"),
		UpstreamTimeout:    f.Duration("upstream_timeout"),
		MaxSessionDuration: f.Duration("max_session_duration"),

		RateLimitEnabled:         f.Bool("rate_limit_enabled"),
		RateLimitRPS:             f.Int("rate_limit_rps"),
		RateLimitBurstMultiplier: f.Int("rate_limit_burst_multiplier"),
	}
}

// openStore constructs the configured persistence backend.
func openStore(opts *ServerOpts) (db.Store, error) {
	switch db.Driver(opts.DBDriver) {
	case db.DriverMemory:
		return memory.New(), nil
	case db.DriverPostgres:
		cfg := db.DefaultConfig(db.DriverPostgres)
		cfg.DSN = opts.DBDSN
		if opts.DBMaxOpenConns > 0 {
			cfg.MaxOpenConns = opts.DBMaxOpenConns
		}
		if opts.DBMaxIdleConns > 0 {
			cfg.MaxIdleConns = opts.DBMaxIdleConns
		}
		return postgres.New(cfg)
	default:
		return nil, fmt.Errorf("unknown db driver %q", opts.DBDriver)
	}
}

func runServer(ctx context.Context, opts *ServerOpts) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(opts)
	if err != nil {
		return err
	}
	instrumented := db.NewMetricsStore(store)
	defer instrumented.Close()

	tokenOpts := []token.Option{}
	if opts.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		defer rdb.Close()
		tokenOpts = append(tokenOpts, token.WithRedis(rdb))
		logger.Info().Str("addr", opts.RedisAddr).Msg("token reuse cache enabled")
	}

	reg := registry.New(instrumented, registry.Config{
		MaxSessionDuration: opts.MaxSessionDuration,
	})
	clients := clientcache.New(opts.UpstreamTimeout, 100)
	defer clients.Close()
	tokens := token.New(instrumented, tokenOpts...)
	iss := issuer.New(instrumented, reg, clients, tokens, issuer.Config{
		DefaultTTL:      opts.DefaultTTL,
		UpstreamTimeout: opts.UpstreamTimeout,
	})

	apiCfg := api.Config{}
	if opts.RateLimitEnabled && !env.IsLocal() {
		apiCfg.IssueRPS = float64(opts.RateLimitRPS)
		apiCfg.IssueBurstMultiplier = opts.RateLimitBurstMultiplier
	}

	apiServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", opts.IP, opts.HTTPPort),
		Handler: api.NewServer(instrumented, iss, reg, clients, apiCfg),
	}
	debugServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", opts.IP, opts.DebugPort),
		Handler: debug.GetMux(),
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", apiServer.Addr).Msg("api server listening")
		errCh <- apiServer.ListenAndServe()
	}()
	go func() {
		logger.Info().Str("addr", debugServer.Addr).Msg("debug server listening")
		errCh <- debugServer.ListenAndServe()
	}()
	debug.SetReady()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server failed")
		}
	}
	debug.SetNotReady()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = debugServer.Shutdown(shutdownCtx)

	return nil
}
